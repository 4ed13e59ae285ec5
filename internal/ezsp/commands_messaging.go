package ezsp

import "context"

// sendData runs one of the data send commands. They all reply with a status
// and the APS sequence number assigned by the NCP.
func (e *Engine) sendData(ctx context.Context, id FrameID, encode func(w *Buffer, l Layout)) (SLStatus, uint8, error) {
	l := e.Layout()
	var (
		status SLStatus
		seq    uint8
	)
	err := e.command(ctx, id,
		func(w *Buffer) { encode(w, l) },
		func(r *Buffer) {
			status = l.readStatus(r)
			seq = r.ReadUint8()
		})
	return status, seq, err
}

// SendUnicast sends to one node, addressed directly, through the address
// table or through a binding.
func (e *Engine) SendUnicast(ctx context.Context, typ OutgoingMessageType, indexOrDestination uint16, aps ApsFrame, tag uint16, payload []byte) (SLStatus, uint8, error) {
	return e.sendData(ctx, FrameSendUnicast, func(w *Buffer, l Layout) {
		w.WriteUint8(uint8(typ))
		w.WriteUint16(indexOrDestination)
		w.WriteApsFrame(aps)
		l.writeTag(w, tag)
		w.WritePayload(payload)
	})
}

// SendBroadcast uses the legacy argument order before protocol 0x0e and
// carries the alias and NWK sequence from then on.
func (e *Engine) SendBroadcast(ctx context.Context, alias, destination uint16, nwkSequence uint8, aps ApsFrame, radius uint8, tag uint16, payload []byte) (SLStatus, uint8, error) {
	return e.sendData(ctx, FrameSendBroadcast, func(w *Buffer, l Layout) {
		if l.WideStatus {
			w.WriteUint16(alias)
			w.WriteUint16(destination)
			w.WriteUint8(nwkSequence)
		} else {
			w.WriteUint16(destination)
		}
		w.WriteApsFrame(aps)
		w.WriteUint8(radius)
		l.writeTag(w, tag)
		w.WritePayload(payload)
	})
}

// ProxyBroadcast is the legacy aliased broadcast.
func (e *Engine) ProxyBroadcast(ctx context.Context, source, destination uint16, nwkSequence uint8, aps ApsFrame, radius uint8, tag uint16, payload []byte) (SLStatus, uint8, error) {
	return e.sendData(ctx, FrameProxyBroadcast, func(w *Buffer, l Layout) {
		w.WriteUint16(source)
		w.WriteUint16(destination)
		w.WriteUint8(nwkSequence)
		w.WriteApsFrame(aps)
		w.WriteUint8(radius)
		l.writeTag(w, tag)
		w.WritePayload(payload)
	})
}

// SendMulticast sends to a group. From protocol 0x0e the command carries the
// broadcast address, alias and NWK sequence; before that aliasing needs
// SendMulticastWithAlias.
func (e *Engine) SendMulticast(ctx context.Context, aps ApsFrame, hops, nonMemberRadius uint8, broadcastAddr, alias uint16, nwkSequence uint8, tag uint16, payload []byte) (SLStatus, uint8, error) {
	return e.sendData(ctx, FrameSendMulticast, func(w *Buffer, l Layout) {
		w.WriteApsFrame(aps)
		w.WriteUint8(hops)
		if l.WideStatus {
			w.WriteUint16(broadcastAddr)
			w.WriteUint16(alias)
			w.WriteUint8(nwkSequence)
		} else {
			w.WriteUint8(nonMemberRadius)
		}
		l.writeTag(w, tag)
		w.WritePayload(payload)
	})
}

func (e *Engine) SendMulticastWithAlias(ctx context.Context, aps ApsFrame, hops, nonMemberRadius uint8, alias uint16, nwkSequence uint8, tag uint16, payload []byte) (SLStatus, uint8, error) {
	return e.sendData(ctx, FrameSendMulticastWithAlias, func(w *Buffer, l Layout) {
		w.WriteApsFrame(aps)
		w.WriteUint8(hops)
		w.WriteUint8(nonMemberRadius)
		w.WriteUint16(alias)
		w.WriteUint8(nwkSequence)
		l.writeTag(w, tag)
		w.WritePayload(payload)
	})
}

func (e *Engine) SendReply(ctx context.Context, sender uint16, aps ApsFrame, payload []byte) (SLStatus, error) {
	return e.statusCommand(ctx, FrameSendReply, func(w *Buffer) {
		w.WriteUint16(sender)
		w.WriteApsFrame(aps)
		w.WritePayload(payload)
	})
}

// SendRawMessage transmits a raw MAC frame. Priority and CCA are only
// encoded from protocol 0x0e.
func (e *Engine) SendRawMessage(ctx context.Context, payload []byte, priority uint8, useCCA bool) (SLStatus, error) {
	l := e.Layout()
	return e.statusCommand(ctx, FrameSendRawMessage, func(w *Buffer) {
		w.WritePayload(payload)
		if l.WideStatus {
			w.WriteUint8(priority)
			w.WriteBool(useCCA)
		}
	})
}

// DGpSend queues a Green Power frame for a GPD.
func (e *Engine) DGpSend(ctx context.Context, action, useCCA bool, addr GpAddress, gpdCommandID uint8, payload []byte, gpepHandle uint8, lifetimeMs uint16) (SLStatus, error) {
	return e.statusCommand(ctx, FrameDGpSend, func(w *Buffer) {
		w.WriteBool(action)
		w.WriteBool(useCCA)
		w.WriteGpAddress(addr)
		w.WriteUint8(gpdCommandID)
		w.WritePayload(payload)
		w.WriteUint8(gpepHandle)
		w.WriteUint16(lifetimeMs)
	})
}
