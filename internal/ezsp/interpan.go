package ezsp

import (
	"errors"
	"fmt"
)

// Inter-PAN MAC/stub-NWK/APS framing as passed up by the MAC filter callback.
const (
	macAckRequired uint16 = 0x0020

	// Data frame, long source, with long or short destination. Compared
	// after the ack-required bit is cleared.
	macLongDestFrameControl  uint16 = 0xCC01
	macShortDestFrameControl uint16 = 0xC801

	stubNwkFrameControl uint16 = 0x000B

	interpanAPSFrameControl   uint8 = 0x03
	interpanAPSDeliveryMask   uint8 = 0x0C
	interpanAPSSecurity       uint8 = 0x20
	interpanDeliveryUnicast   uint8 = 0x00
	interpanDeliveryBroadcast uint8 = 0x08
	interpanDeliveryMulticast uint8 = 0x0C
)

var errNotInterpan = errors.New("not an inter-PAN frame")

type interpanFrame struct {
	SourcePanID uint16
	SourceEUI64 EUI64
	GroupID     uint16
	ClusterID   uint16
	ProfileID   uint16
	Payload     []byte
}

func parseInterpan(raw []byte) (interpanFrame, error) {
	var f interpanFrame
	b := NewBuffer(len(raw))
	if err := b.Load(raw); err != nil {
		return f, err
	}

	fc := b.ReadUint16() &^ macAckRequired
	b.ReadUint8()  // mac sequence
	b.ReadUint16() // destination pan
	switch fc {
	case macLongDestFrameControl:
		b.ReadEUI64()
	case macShortDestFrameControl:
		b.ReadUint16()
	default:
		return f, fmt.Errorf("%w: mac frame control 0x%04X", errNotInterpan, fc)
	}
	f.SourcePanID = b.ReadUint16()
	f.SourceEUI64 = b.ReadEUI64()

	if nwk := b.ReadUint16(); nwk != stubNwkFrameControl {
		return f, fmt.Errorf("%w: nwk frame control 0x%04X", errNotInterpan, nwk)
	}
	aps := b.ReadUint8()
	if aps&^interpanAPSDeliveryMask&^interpanAPSSecurity != interpanAPSFrameControl {
		return f, fmt.Errorf("%w: aps frame control 0x%02X", errNotInterpan, aps)
	}
	switch aps & interpanAPSDeliveryMask {
	case interpanDeliveryUnicast, interpanDeliveryBroadcast:
	case interpanDeliveryMulticast:
		f.GroupID = b.ReadUint16()
	default:
		return f, fmt.Errorf("%w: delivery mode 0x%02X", errNotInterpan, aps&interpanAPSDeliveryMask)
	}
	f.ClusterID = b.ReadUint16()
	f.ProfileID = b.ReadUint16()
	f.Payload = b.ReadRest()
	return f, b.Err()
}
