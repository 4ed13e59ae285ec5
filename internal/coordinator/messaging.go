package coordinator

import (
	"context"
	"fmt"
	"time"

	"zigbee-ezsp-host/internal/ezsp"
	"zigbee-ezsp-host/internal/store"
)

const (
	// zdoSequenceMask keeps host ZDO sequence numbers clear of the stack's 128-255.
	zdoSequenceMask = 0x7F

	zdoMgmtPermitJoiningReq uint16 = 0x0036

	defaultAPSOptions = ezsp.APSOptionRetry | ezsp.APSOptionEnableRouteDiscovery | ezsp.APSOptionEnableAddressDiscover
)

func (c *Coordinator) nextZDOSequence() uint8 {
	return uint8(c.zdoSeq.Add(1) & zdoSequenceMask)
}

// PermitJoin opens or closes the network for device joining. The local NCP
// is opened first, then every router is told through Mgmt_Permit_Joining_req.
func (c *Coordinator) PermitJoin(ctx context.Context, duration uint8) error {
	if !c.isStarted() {
		return ErrNotStarted
	}
	status, err := c.engine.PermitJoining(ctx, duration)
	if err != nil {
		return fmt.Errorf("permit join: %w", err)
	}
	if !status.OK() {
		return fmt.Errorf("permit join: status %s", status)
	}

	aps := ezsp.ApsFrame{
		ProfileID: ezsp.ZDOProfileID,
		ClusterID: zdoMgmtPermitJoiningReq,
	}
	// Payload: sequence, duration, trust center significance.
	payload := []byte{c.nextZDOSequence(), duration, 0x01}
	status, _, err = c.engine.Send(ctx, ezsp.OutgoingBroadcast, ezsp.BroadcastRouters, &aps, payload, 0, 0)
	if err != nil {
		return fmt.Errorf("permit join broadcast: %w", err)
	}
	if !status.OK() {
		return fmt.Errorf("permit join broadcast: status %s", status)
	}

	c.logger.Info("permit join", "duration", duration)
	c.emit(EventPermitJoin, PermitJoinEvent{Duration: duration})
	return nil
}

// SendUnicast sends payload to one node. Zero APS options get retries and
// route and address discovery. It returns the message tag that the matching
// message_sent event will carry.
func (c *Coordinator) SendUnicast(ctx context.Context, destination uint16, aps ezsp.ApsFrame, payload []byte) (uint16, error) {
	if !c.isStarted() {
		return 0, ErrNotStarted
	}
	if aps.Options == ezsp.APSOptionNone {
		aps.Options = defaultAPSOptions
	}
	status, tag, err := c.engine.Send(ctx, ezsp.OutgoingDirect, destination, &aps, payload, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("send unicast to 0x%04X: %w", destination, err)
	}
	if !status.OK() {
		return tag, fmt.Errorf("send unicast to 0x%04X: status %s", destination, status)
	}
	return tag, nil
}

// SendBroadcast sends payload to a broadcast address such as
// ezsp.BroadcastRxOnWhenIdle.
func (c *Coordinator) SendBroadcast(ctx context.Context, destination uint16, aps ezsp.ApsFrame, payload []byte) (uint16, error) {
	if !ezsp.IsBroadcastAddress(destination) {
		return 0, fmt.Errorf("send broadcast: 0x%04X is not a broadcast address", destination)
	}
	if !c.isStarted() {
		return 0, ErrNotStarted
	}
	status, tag, err := c.engine.Send(ctx, ezsp.OutgoingBroadcast, destination, &aps, payload, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("send broadcast to 0x%04X: %w", destination, err)
	}
	if !status.OK() {
		return tag, fmt.Errorf("send broadcast to 0x%04X: status %s", destination, status)
	}
	return tag, nil
}

// Counters flattens the engine, link and NCP counters into one map and
// stores it as the latest snapshot. NCP counters are skipped while the
// network is down.
func (c *Coordinator) Counters(ctx context.Context) (map[string]uint64, error) {
	values := make(map[string]uint64)

	ec := c.engine.Counters()
	values["ezsp.sequence"] = uint64(ec.Sequence)
	values["ezsp.message_tag"] = uint64(ec.MessageTag)
	values["ezsp.queue_full"] = ec.QueueFull
	values["ezsp.overflow"] = ec.Overflow
	values["ezsp.orphaned"] = ec.Orphaned
	values["ezsp.unknown_callbacks"] = ec.UnknownCallbacks
	values["ezsp.reset_requests"] = ec.ResetRequests
	values["coordinator.resets"] = c.resets.Load()

	if c.link != nil {
		lc := c.link.Counters()
		values["ash.tx_data"] = lc.TxData
		values["ash.tx_redata"] = lc.TxReData
		values["ash.tx_ack"] = lc.TxAck
		values["ash.tx_nak"] = lc.TxNak
		values["ash.rx_data"] = lc.RxData
		values["ash.rx_ack"] = lc.RxAck
		values["ash.rx_nak"] = lc.RxNak
		values["ash.rx_duplicate"] = lc.RxDuplicate
		values["ash.out_of_sequence"] = lc.OutOfSequence
		values["ash.crc_errors"] = lc.CRCErrors
		values["ash.comm_errors"] = lc.CommErrors
		values["ash.length_errors"] = lc.LengthErrors
		values["ash.cancelled"] = lc.Cancelled
		values["ash.ack_timeouts"] = lc.AckTimeouts
		values["ash.ncp_resets"] = lc.NCPResets
	}

	if c.isStarted() {
		ncp, err := c.engine.ReadCounters(ctx)
		if err != nil {
			return values, fmt.Errorf("read counters: %w", err)
		}
		for i, v := range ncp {
			values["ncp."+ezsp.CounterType(i).String()] = uint64(v)
		}
	}

	if err := c.store.SaveCounters(&store.CountersSnapshot{TakenAt: time.Now(), Values: values}); err != nil {
		c.logger.Warn("save counters", "err", err)
	}
	return values, nil
}
