package ezsp

import (
	"bytes"
	"errors"
	"testing"
)

func TestBufferReadPastLength(t *testing.T) {
	b := NewBuffer(16)
	if err := b.Load([]byte{0x34, 0x12, 0x01}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := b.ReadUint16(); got != 0x1234 {
		t.Errorf("u16: got 0x%04X, want 0x1234", got)
	}
	if got := b.ReadUint16(); got != 0 {
		t.Errorf("overrun read: got 0x%04X, want 0", got)
	}
	if !errors.Is(b.Err(), ErrBufferOverrun) {
		t.Fatalf("err: got %v, want ErrBufferOverrun", b.Err())
	}
	// The error is sticky: the remaining byte is no longer readable.
	if got := b.ReadUint8(); got != 0 {
		t.Errorf("read after error: got 0x%02X, want 0", got)
	}
}

func TestBufferWritePastCapacity(t *testing.T) {
	b := NewBuffer(4)
	b.WriteUint16(0xBEEF)
	b.WriteUint32(0xDEADBEEF)
	if !errors.Is(b.Err(), ErrBufferOverflow) {
		t.Fatalf("err: got %v, want ErrBufferOverflow", b.Err())
	}
	if b.Len() != 2 {
		t.Errorf("len: got %d, want 2", b.Len())
	}
	if !bytes.Equal(b.Bytes(), []byte{0xEF, 0xBE}) {
		t.Errorf("bytes: got %X", b.Bytes())
	}
}

func TestBufferLoadTooLong(t *testing.T) {
	b := NewBuffer(4)
	if err := b.Load(make([]byte, 5)); !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("load: got %v, want ErrBufferOverflow", err)
	}
}

func TestBufferPayload(t *testing.T) {
	b := NewBuffer(16)
	b.WritePayload([]byte{0xAA, 0xBB, 0xCC})
	if !bytes.Equal(b.Bytes(), []byte{0x03, 0xAA, 0xBB, 0xCC}) {
		t.Fatalf("encoded: got %X", b.Bytes())
	}

	b.SetPosition(0)
	got := b.ReadPayload()
	if !bytes.Equal(got, []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("payload: got %X", got)
	}
	// ReadPayload returns a copy.
	got[0] = 0x00
	if b.ByteAt(1) != 0xAA {
		t.Error("payload aliases the buffer")
	}
	if b.Remaining() != 0 {
		t.Errorf("remaining: got %d, want 0", b.Remaining())
	}
}

func TestBufferPayloadLengthPastEnd(t *testing.T) {
	b := NewBuffer(16)
	if err := b.Load([]byte{0x05, 0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	if got := b.ReadPayload(); got != nil {
		t.Errorf("payload: got %X, want nil", got)
	}
	if !errors.Is(b.Err(), ErrBufferOverrun) {
		t.Errorf("err: got %v, want ErrBufferOverrun", b.Err())
	}
}

func TestBufferOversizePayload(t *testing.T) {
	b := NewBuffer(512)
	b.WritePayload(make([]byte, 256))
	if !errors.Is(b.Err(), ErrBufferOverflow) {
		t.Errorf("err: got %v, want ErrBufferOverflow", b.Err())
	}
}

func TestBufferSetByteAt(t *testing.T) {
	b := NewBuffer(8)
	b.SetByteAt(3, 0x7F)
	if b.Len() != 4 {
		t.Errorf("len: got %d, want 4", b.Len())
	}
	if b.ByteAt(3) != 0x7F {
		t.Errorf("byte 3: got 0x%02X, want 0x7F", b.ByteAt(3))
	}
	if b.ByteAt(10) != 0 {
		t.Error("ByteAt out of range should be zero")
	}
	b.SetByteAt(8, 0x01)
	if !errors.Is(b.Err(), ErrBufferOverflow) {
		t.Errorf("err: got %v, want ErrBufferOverflow", b.Err())
	}
}

func TestEUI64String(t *testing.T) {
	e := EUI64{0x78, 0x56, 0x34, 0x12, 0x00, 0x4b, 0x12, 0x00}
	if got := e.String(); got != "0x00124b0012345678" {
		t.Errorf("string: got %s", got)
	}
	back, err := ParseEUI64("00124B0012345678")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back != e {
		t.Errorf("parse: got %v, want %v", back, e)
	}
	if _, err := ParseEUI64("0x1234"); err == nil {
		t.Error("expected error for short address")
	}
}
