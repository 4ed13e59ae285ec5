package ash

import (
	"errors"
)

var errCancelled = errors.New("ash: frame cancelled")

// unstuffer reassembles frames from the serial byte stream. It removes byte
// stuffing, drops flow-control bytes and abandons a frame on CANCEL or
// SUBSTITUTE.
type unstuffer struct {
	buf     []byte
	escaped bool
	bad     error
}

func newUnstuffer() *unstuffer {
	return &unstuffer{buf: make([]byte, 0, maxFrameLength+crcLength)}
}

// push consumes one byte. It returns the unstuffed frame (CRC included) when
// b completes one, or an error when a frame in progress had to be dropped.
// The returned slice is only valid until the next call.
func (u *unstuffer) push(b byte) ([]byte, error) {
	switch b {
	case flagByte:
		frame, err := u.buf, u.bad
		if u.escaped && err == nil {
			err = errCommError
		}
		u.reset()
		if err != nil {
			return nil, err
		}
		if len(frame) == 0 {
			return nil, nil
		}
		return frame, nil
	case cancelByte:
		pending := len(u.buf) > 0 || u.bad != nil
		u.reset()
		if pending {
			return nil, errCancelled
		}
		return nil, nil
	case subByte:
		u.bad = errCommError
		return nil, nil
	case xonByte, xoffByte:
		return nil, nil
	case escapeByte:
		u.escaped = true
		return nil, nil
	case wakeByte:
		// The NCP sends 0xFF between frames to wake the host.
		if len(u.buf) == 0 && !u.escaped {
			return nil, nil
		}
	}

	if u.bad != nil {
		return nil, nil
	}
	if u.escaped {
		b ^= flipBit
		u.escaped = false
	}
	if len(u.buf) == cap(u.buf) {
		u.bad = errTooLong
		return nil, nil
	}
	u.buf = append(u.buf, b)
	return nil, nil
}

func (u *unstuffer) reset() {
	u.buf = u.buf[:0]
	u.escaped = false
	u.bad = nil
}
