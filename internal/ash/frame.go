package ash

import (
	"encoding/binary"
	"errors"
	"fmt"

	"zigbee-ezsp-host/internal/ezsp"
)

// ASH protocol version carried in RSTACK and ERROR frames.
const ashVersion = 2

// Reserved bytes.
const (
	flagByte   = 0x7E
	escapeByte = 0x7D
	xonByte    = 0x11
	xoffByte   = 0x13
	subByte    = 0x18
	cancelByte = 0x1A
	wakeByte   = 0xFF
	flipBit    = 0x20
)

// Control byte layout.
const (
	dataFrameMask  = 0x80
	shortFrameMask = 0xE0

	ackNumMask   = 0x07
	reTxFlag     = 0x08
	notReadyFlag = 0x08
	frmNumMask   = 0x70
	frmNumShift  = 4

	controlACK    = 0x80
	controlNAK    = 0xA0
	controlRST    = 0xC0
	controlRSTACK = 0xC1
	controlERROR  = 0xC2
)

// Frame lengths, control byte included, CRC and flag excluded.
const (
	crcLength        = 2
	minDataLength    = 3
	maxDataLength    = ezsp.MaxFrameLength
	minDataFrameLen  = minDataLength + 1
	maxFrameLength   = maxDataLength + 1
	shortFrameLength = 1
	rstackLength     = 3
	errorLength      = 3
)

// LFSR used to whiten DATA frame payloads.
const (
	lfsrSeed = 0x42
	lfsrPoly = 0xB8
)

// Reset and error codes reported by the NCP.
const (
	resetUnknown    = 0x00
	resetExternal   = 0x01
	resetPowerOn    = 0x02
	resetWatchdog   = 0x03
	resetAssert     = 0x06
	resetBootloader = 0x09
	resetSoftware   = 0x0B
	errorAckTimeout = 0x51
)

func resetReasonName(code uint8) string {
	switch code {
	case resetUnknown:
		return "unknown"
	case resetExternal:
		return "external"
	case resetPowerOn:
		return "power_on"
	case resetWatchdog:
		return "watchdog"
	case resetAssert:
		return "assert"
	case resetBootloader:
		return "bootloader"
	case resetSoftware:
		return "software"
	case errorAckTimeout:
		return "ack_timeout"
	}
	return fmt.Sprintf("0x%02X", code)
}

type frameType uint8

const (
	frameInvalid frameType = iota
	frameData
	frameACK
	frameNAK
	frameRST
	frameRSTACK
	frameERROR
)

func (t frameType) String() string {
	switch t {
	case frameData:
		return "DATA"
	case frameACK:
		return "ACK"
	case frameNAK:
		return "NAK"
	case frameRST:
		return "RST"
	case frameRSTACK:
		return "RSTACK"
	case frameERROR:
		return "ERROR"
	}
	return "INVALID"
}

var (
	errBadCRC    = errors.New("ash: bad crc")
	errTooShort  = errors.New("ash: frame too short")
	errTooLong   = errors.New("ash: frame too long")
	errCommError = errors.New("ash: serial comm error")
)

// classify derives the frame type from the control byte and checks the
// length expected for it. n counts the control byte and data, not the CRC.
func classify(control byte, n int) (frameType, error) {
	var t frameType
	var ok bool
	switch {
	case control == controlRSTACK:
		t, ok = frameRSTACK, n == rstackLength
	case control == controlERROR:
		t, ok = frameERROR, n == errorLength
	case control == controlRST:
		t, ok = frameRST, n == shortFrameLength
	case control&dataFrameMask == 0:
		t, ok = frameData, n >= minDataFrameLen
	case control&shortFrameMask == controlACK:
		t, ok = frameACK, n == shortFrameLength
	case control&shortFrameMask == controlNAK:
		t, ok = frameNAK, n == shortFrameLength
	default:
		return frameInvalid, fmt.Errorf("%w: control 0x%02X", ezsp.StatusASHBadControl, control)
	}
	if !ok {
		return frameInvalid, fmt.Errorf("%w: %d bytes for %s", ezsp.StatusASHBadLength, n, t)
	}
	return t, nil
}

func frmNum(control byte) uint8 { return (control & frmNumMask) >> frmNumShift }

func ackNum(control byte) uint8 { return control & ackNumMask }

func inc8(n uint8) uint8 { return (n + 1) & 0x07 }

// withinRange reports whether n lies in [lo, hi] on the 3-bit frame number circle.
func withinRange(lo, n, hi uint8) bool {
	return (n-lo)&0x07 <= (hi-lo)&0x07
}

func dataControl(frm, ack uint8, reTx bool) byte {
	c := (frm << frmNumShift) & frmNumMask
	c |= ack & ackNumMask
	if reTx {
		c |= reTxFlag
	}
	return c
}

func ackControl(ack uint8, notReady bool) byte {
	c := byte(controlACK) | ack&ackNumMask
	if notReady {
		c |= notReadyFlag
	}
	return c
}

func nakControl(ack uint8) byte { return controlNAK | ack&ackNumMask }

// --- CRC-CCITT (poly 0x1021, init 0xFFFF, no reflection) ---

var crcTable [256]uint16

func init() {
	const poly = 0x1021
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// randomize XORs data in place with the LFSR sequence. Applying it twice
// restores the input.
func randomize(data []byte) {
	seed := byte(lfsrSeed)
	for i := range data {
		data[i] ^= seed
		if seed&1 != 0 {
			seed = seed>>1 ^ lfsrPoly
		} else {
			seed >>= 1
		}
	}
}

func isReserved(b byte) bool {
	switch b {
	case flagByte, escapeByte, xonByte, xoffByte, subByte, cancelByte:
		return true
	}
	return false
}

// encodeFrame appends the CRC to control+data, byte-stuffs the result and
// terminates it with a flag.
func encodeFrame(control byte, data []byte) []byte {
	raw := make([]byte, 0, 1+len(data)+crcLength)
	raw = append(raw, control)
	raw = append(raw, data...)
	raw = binary.BigEndian.AppendUint16(raw, crc16(raw))

	out := make([]byte, 0, 2*len(raw)+1)
	for _, b := range raw {
		if isReserved(b) {
			out = append(out, escapeByte, b^flipBit)
			continue
		}
		out = append(out, b)
	}
	return append(out, flagByte)
}

// encodeData builds a DATA frame. payload is copied and whitened.
func encodeData(frm, ack uint8, reTx bool, payload []byte) []byte {
	data := append([]byte(nil), payload...)
	randomize(data)
	return encodeFrame(dataControl(frm, ack, reTx), data)
}

// decodeFrame checks the CRC of an unstuffed frame and returns the control
// byte and data field.
func decodeFrame(raw []byte) (byte, []byte, error) {
	if len(raw) < 1+crcLength {
		return 0, nil, errTooShort
	}
	n := len(raw) - crcLength
	if n > maxFrameLength {
		return 0, nil, errTooLong
	}
	if got, want := binary.BigEndian.Uint16(raw[n:]), crc16(raw[:n]); got != want {
		return 0, nil, fmt.Errorf("%w: got 0x%04X, want 0x%04X", errBadCRC, got, want)
	}
	return raw[0], raw[1:n], nil
}
