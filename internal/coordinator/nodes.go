package coordinator

import (
	"fmt"
	"time"

	"zigbee-ezsp-host/internal/ezsp"
	"zigbee-ezsp-host/internal/store"
)

// nodeTouchInterval limits how often traffic from a known node is written back.
const nodeTouchInterval = time.Minute

// Nodes returns every node the coordinator has recorded.
func (c *Coordinator) Nodes() ([]*store.Node, error) {
	return c.store.ListNodes()
}

func (c *Coordinator) trustCenterJoin(ev ezsp.TrustCenterJoinEvent) {
	eui := ev.NewNodeEUI64.String()
	now := time.Now()

	if ev.Status == ezsp.DeviceLeft {
		err := c.store.UpdateNode(eui, func(n *store.Node) error {
			n.Left = true
			n.LastSeen = now
			return nil
		})
		if err != nil {
			c.logger.Error("update left node", "ieee", eui, "err", err)
		}
		c.logger.Info("node left", "ieee", eui, "nwk", fmt.Sprintf("0x%04X", ev.NewNodeID))
		c.emit(EventNodeLeft, NodeEvent{EUI64: eui, NodeID: ev.NewNodeID, Status: ev.Status.String()})
		return
	}

	err := c.store.UpdateNode(eui, func(n *store.Node) error {
		if n.Joined.IsZero() || n.Left {
			n.Joined = now
		}
		n.NodeID = ev.NewNodeID
		n.Parent = ev.ParentOfNewNode
		n.LastSeen = now
		n.Left = false
		return nil
	})
	if err != nil {
		c.logger.Error("update joined node", "ieee", eui, "err", err)
	}
	c.touch(ev.NewNodeEUI64, now)
	c.logger.Info("node joined", "ieee", eui, "nwk", fmt.Sprintf("0x%04X", ev.NewNodeID), "status", ev.Status)
	c.emit(EventNodeJoined, NodeEvent{
		EUI64:  eui,
		NodeID: ev.NewNodeID,
		Parent: ev.ParentOfNewNode,
		Status: ev.Status.String(),
	})
}

func (c *Coordinator) deviceAnnounce(ev ezsp.EndDeviceAnnounceEvent) {
	eui := ev.EUI64.String()
	now := time.Now()
	err := c.store.UpdateNode(eui, func(n *store.Node) error {
		if n.Joined.IsZero() {
			n.Joined = now
		}
		n.NodeID = ev.NodeID
		n.LastSeen = now
		n.Left = false
		return nil
	})
	if err != nil {
		c.logger.Error("update announced node", "ieee", eui, "err", err)
	}
	c.touch(ev.EUI64, now)
	c.logger.Debug("device announce", "ieee", eui, "nwk", fmt.Sprintf("0x%04X", ev.NodeID))
}

// messageReceived refreshes link quality of known nodes, at most once per
// nodeTouchInterval each.
func (c *Coordinator) messageReceived(ev ezsp.IncomingMessageEvent) {
	if ev.SenderEUI == (ezsp.EUI64{}) {
		return
	}
	now := time.Now()
	c.seenMu.Lock()
	last, ok := c.seen[ev.SenderEUI]
	if ok && now.Sub(last) < nodeTouchInterval {
		c.seenMu.Unlock()
		return
	}
	c.seen[ev.SenderEUI] = now
	c.seenMu.Unlock()

	eui := ev.SenderEUI.String()
	err := c.store.UpdateNode(eui, func(n *store.Node) error {
		n.NodeID = ev.Sender
		n.LastSeen = now
		n.LQI = ev.LinkQuality
		n.RSSI = ev.RSSI
		return nil
	})
	if err != nil {
		c.logger.Warn("update node link quality", "ieee", eui, "err", err)
	}
}

func (c *Coordinator) touch(eui ezsp.EUI64, t time.Time) {
	c.seenMu.Lock()
	c.seen[eui] = t
	c.seenMu.Unlock()
}
