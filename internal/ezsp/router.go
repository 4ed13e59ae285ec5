package ezsp

import (
	"context"
	"fmt"
)

// Send routes one outbound data message by its addressing type and returns
// the NCP status with the message tag consumed by the call. The tag is what
// a later EventMessageSent or EventMessageSentDeliveryFailed reports back.
//
// Alias and nwkSequence are only used when the type asks for aliasing or the
// frame travels between the Green Power endpoints with the alias sequence
// option set. aps.Sequence is updated from the reply.
func (e *Engine) Send(ctx context.Context, typ OutgoingMessageType, target uint16, aps *ApsFrame, payload []byte, alias uint16, nwkSequence uint8) (SLStatus, uint16, error) {
	switch typ {
	case OutgoingDirect, OutgoingViaAddressTable, OutgoingViaBinding,
		OutgoingMulticast, OutgoingMulticastWithAlias:
	case OutgoingBroadcast, OutgoingBroadcastWithAlias:
		if !IsBroadcastAddress(target) {
			return SLInvalidParameter, 0, fmt.Errorf("ezsp send: 0x%04X is not a broadcast address", target)
		}
	default:
		return SLInvalidParameter, 0, fmt.Errorf("ezsp send: unsupported message type %s", typ)
	}

	tag := e.nextMessageTag()
	l := e.Layout()

	radius := DefaultMaxHops
	nwkAlias := CoordinatorAddress
	var seqAlias uint8
	if usesAlias(typ, aps) {
		if aps.Radius != 0 {
			radius = aps.Radius
		}
		nwkAlias = alias
		seqAlias = nwkSequence
	}

	var (
		status SLStatus
		apsSeq uint8
		err    error
	)
	switch typ {
	case OutgoingDirect, OutgoingViaAddressTable, OutgoingViaBinding:
		status, apsSeq, err = e.SendUnicast(ctx, typ, target, *aps, tag, payload)

	case OutgoingMulticast, OutgoingMulticastWithAlias:
		switch {
		case l.WideStatus:
			status, apsSeq, err = e.SendMulticast(ctx, *aps, radius, radius, 0, nwkAlias, seqAlias, tag, payload)
		case nwkAlias != CoordinatorAddress || typ == OutgoingMulticastWithAlias:
			status, apsSeq, err = e.SendMulticastWithAlias(ctx, *aps, radius, radius, nwkAlias, seqAlias, tag, payload)
		default:
			status, apsSeq, err = e.SendMulticast(ctx, *aps, radius, radius, 0, 0, 0, tag, payload)
		}

	case OutgoingBroadcast, OutgoingBroadcastWithAlias:
		switch {
		case l.WideStatus:
			status, apsSeq, err = e.SendBroadcast(ctx, nwkAlias, target, seqAlias, *aps, radius, tag, payload)
		case nwkAlias != CoordinatorAddress || typ == OutgoingBroadcastWithAlias:
			status, apsSeq, err = e.ProxyBroadcast(ctx, nwkAlias, target, seqAlias, *aps, radius, tag, payload)
		default:
			status, apsSeq, err = e.SendBroadcast(ctx, 0, target, 0, *aps, radius, tag, payload)
		}
	}
	if err != nil {
		return status, tag, err
	}

	aps.Sequence = apsSeq
	e.logger.Debug("ezsp send", "type", typ, "target", fmt.Sprintf("0x%04X", target),
		"cluster", fmt.Sprintf("0x%04X", aps.ClusterID), "tag", tag, "aps_seq", apsSeq, "status", status)
	return status, tag, nil
}

func usesAlias(typ OutgoingMessageType, aps *ApsFrame) bool {
	if typ == OutgoingMulticastWithAlias || typ == OutgoingBroadcastWithAlias {
		return true
	}
	return aps.SourceEndpoint == GreenPowerEndpoint &&
		aps.DestinationEndpoint == GreenPowerEndpoint &&
		aps.Options&APSOptionUseAliasSequence != 0
}
