package ezsp

// Callback type bits of the low frame-control byte.
const (
	fcCallbackTypeMask = fcSyncCB | fcAsyncCB
)

// startCommand resets the outbound buffer and writes the header of command
// id in the active layout. Sequence and frame control are left zero and
// stamped by sendCommand. The cursor is left at the parameter region.
func (e *Engine) startCommand(id FrameID) {
	l := e.Layout()
	b := e.out
	b.Reset()
	b.WriteUint8(0)
	b.WriteUint8(0)
	if l.Extended {
		b.WriteUint8(fcExtFormatVersion)
		b.WriteUint16(uint16(id))
		return
	}
	b.WriteUint8(uint8(id))
}

// frameControl is the low frame-control byte of an outbound command.
func (e *Engine) frameControl() byte {
	fc := byte(fcCommand)
	fc |= (e.networkIndex << fcNetworkIndexOffset) & fcNetworkIndexMask
	fc |= byte(e.sleepMode) & fcSleepModeMask
	return fc
}

// frameHeader is the decoded fixed part of an inbound frame.
type frameHeader struct {
	seq     uint8
	control byte
	id      FrameID
}

func (h frameHeader) isCallback() bool { return h.control&fcCallbackTypeMask != 0 }

func (h frameHeader) isSyncCallback() bool { return h.control&fcCallbackTypeMask == fcSyncCB }

// validateFrame inspects the header of the frame loaded in b and derives its
// status. On return the cursor is at the parameter region, or at the end of
// the frame when it is too short to carry one.
func (e *Engine) validateFrame(b *Buffer, l Layout) (frameHeader, Status) {
	minLen, params := legacyMinFrameLength, legacyParametersIdx
	if l.Extended {
		minLen, params = extMinFrameLength, extParametersIdx
	}
	if b.Len() < minLen {
		b.SetPosition(b.Len())
		return frameHeader{}, StatusDataFrameTooShort
	}

	h := frameHeader{
		seq:     b.ByteAt(sequenceIndex),
		control: b.ByteAt(legacyFrameControlIdx),
	}
	if l.Extended {
		h.id = FrameID(b.ByteAt(extFrameIDLBIdx)) | FrameID(b.ByteAt(extFrameIDHBIdx))<<8
	} else {
		h.id = FrameID(b.ByteAt(legacyFrameIDIdx))
	}

	e.callbacksPending.Store(h.control&fcPendingCB != 0)

	status := StatusSuccess
	switch {
	case h.control&fcDirectionMask != fcResponse:
		status = StatusWrongDirection
	case h.control&fcTruncated != 0:
		status = StatusTruncated
	case h.control&fcOverflow != 0:
		status = StatusOverflow
	}

	if status != StatusWrongDirection {
		if l.Extended {
			hb := b.ByteAt(extFrameControlHBIdx)
			if hb&fcExtFormatVersionMask != fcExtFormatVersion || hb&fcExtReservedMask != 0 {
				status = StatusUnsupportedControl
			}
		}
		if h.id == FrameInvalidCommand && b.Len() > params {
			status = Status(b.ByteAt(params))
		}
	}

	b.SetPosition(params)
	return h, status
}
