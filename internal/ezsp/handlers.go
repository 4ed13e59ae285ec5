package ezsp

import "fmt"

const gpdCommissioningCommandID = 0xE0

// dispatch turns a decoded callback into engine events. It runs on the
// transport's receive goroutine.
func (e *Engine) dispatch(cb Callback, l Layout) {
	switch c := cb.(type) {
	case StackStatusCallback:
		e.logger.Info("ezsp stack status", "status", c.Status)
		e.emit(EventStackStatus, StackStatusEvent{Status: c.Status})

	case MessageSentCallback:
		ev := MessageSentEvent{
			Status:      c.Status,
			Type:        c.Type,
			Destination: c.IndexOrDestination,
			ApsFrame:    c.ApsFrame,
			MessageTag:  c.MessageTag,
		}
		if !c.Status.OK() {
			e.logger.Debug("ezsp delivery failed", "dst", fmt.Sprintf("0x%04X", c.IndexOrDestination), "tag", c.MessageTag, "status", c.Status)
			e.emit(EventMessageSentDeliveryFailed, ev)
			return
		}
		e.emit(EventMessageSent, ev)

	case IncomingSenderEUI64Callback:
		// Legacy firmware announces the sender before the message itself.
		e.senderEUI64 = c.SenderEUI64

	case IncomingMessageCallback:
		sender := c.Packet.SenderLongID
		if !l.PacketInfo {
			sender = e.senderEUI64
			e.senderEUI64 = EUI64{}
		}
		e.incomingMessage(c, sender)

	case MacFilterMatchCallback:
		e.macFilterMatch(c)

	case GpepIncomingCallback:
		if c.Address.ApplicationID != GpApplicationSourceID {
			e.logger.Warn("ezsp green power frame with unsupported application id", "app_id", c.Address.ApplicationID)
			return
		}
		ev := GreenPowerMessageEvent{
			SourceID:     c.Address.SourceID,
			GpdCommandID: c.GpdCommandID,
			FrameCounter: c.SecurityFrameCount,
			GpdLink:      c.GpdLink,
			Payload:      c.GpdCommandPayload,
		}
		if c.GpdCommandID == gpdCommissioningCommandID {
			ev.CommandIdentifier = 0x04
		}
		e.emit(EventGreenPowerMessage, ev)

	case TrustCenterJoinCallback:
		e.logger.Info("ezsp trust center join",
			"node", fmt.Sprintf("0x%04X", c.NewNodeID), "eui64", c.NewNodeEUI64, "status", c.Status)
		e.emit(EventTrustCenterJoin, TrustCenterJoinEvent{
			NewNodeID:       c.NewNodeID,
			NewNodeEUI64:    c.NewNodeEUI64,
			Status:          c.Status,
			PolicyDecision:  c.PolicyDecision,
			ParentOfNewNode: c.ParentOfNewNode,
		})

	case IDConflictCallback:
		e.logger.Warn("ezsp node id conflict", "node", fmt.Sprintf("0x%04X", c.NodeID))
		e.emit(EventIDConflict, IDConflictEvent{NodeID: c.NodeID})

	case NetworkFoundCallback:
		e.emit(EventNetworkFound, c)

	case EnergyScanResultCallback:
		e.emit(EventEnergyScanResult, c)

	case ScanCompleteCallback:
		e.emit(EventScanComplete, ScanCompleteEvent{Channel: c.Channel, Status: c.Status})

	default:
		e.emit(EventCallback, cb)
	}
}

func (e *Engine) emit(t EventType, data interface{}) {
	e.events.Emit(Event{Type: t, Data: data})
}

func (e *Engine) incomingMessage(c IncomingMessageCallback, sender EUI64) {
	aps := c.ApsFrame
	if aps.ProfileID == ZDOProfileID && aps.ClusterID >= zdoResponseClusterMask {
		e.emit(EventZDOResponse, ZDOResponseEvent{
			ClusterID:   aps.ClusterID,
			Sender:      c.Packet.SenderShortID,
			SenderEUI:   sender,
			LinkQuality: c.Packet.LastHopLQI,
			Payload:     c.Contents,
		})
		return
	}
	if aps.ProfileID == ZDOProfileID && aps.ClusterID == EndDeviceAnnounceID {
		b := NewBuffer(len(c.Contents))
		if err := b.Load(c.Contents); err != nil {
			return
		}
		ev := EndDeviceAnnounceEvent{
			Sequence:     b.ReadUint8(),
			NodeID:       b.ReadUint16(),
			EUI64:        b.ReadEUI64(),
			Capabilities: b.ReadUint8(),
		}
		if b.Err() != nil {
			e.logger.Warn("ezsp malformed device announce", "payload", fmt.Sprintf("%X", c.Contents))
			return
		}
		e.emit(EventEndDeviceAnnounce, ev)
		return
	}
	e.emit(EventIncomingMessage, IncomingMessageEvent{
		Type:        c.Type,
		ApsFrame:    aps,
		Sender:      c.Packet.SenderShortID,
		SenderEUI:   sender,
		LinkQuality: c.Packet.LastHopLQI,
		RSSI:        c.Packet.LastHopRSSI,
		Payload:     c.Contents,
	})
}

func (e *Engine) macFilterMatch(c MacFilterMatchCallback) {
	f, err := parseInterpan(c.Contents)
	if err != nil {
		e.logger.Debug("ezsp mac filter frame dropped", "err", err, "payload", fmt.Sprintf("%X", c.Contents))
		return
	}
	if f.ProfileID != TouchlinkProfileID || f.ClusterID != TouchlinkClusterID {
		e.emit(EventCallback, c)
		return
	}
	e.emit(EventTouchlinkMessage, TouchlinkMessageEvent{
		SourcePanID: f.SourcePanID,
		SourceEUI:   f.SourceEUI64,
		GroupID:     f.GroupID,
		LinkQuality: c.Packet.LastHopLQI,
		Payload:     f.Payload,
	})
}
