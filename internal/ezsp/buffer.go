package ezsp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBufferOverrun is recorded when a read passes the logical frame length.
	ErrBufferOverrun = errors.New("ezsp: read past end of frame")
	// ErrBufferOverflow is recorded when a write would exceed the buffer capacity.
	ErrBufferOverflow = errors.New("ezsp: write past buffer capacity")
	// ErrInvalidField is recorded when a field holds a value the record
	// layout cannot be derived from.
	ErrInvalidField = errors.New("ezsp: invalid field value")
)

// Buffer is a fixed-capacity frame buffer with a single read/write cursor.
//
// Reads are bounded by the logical length (the number of bytes written or
// loaded), writes by the capacity. The first out-of-bounds access is recorded
// and every later access becomes a no-op returning zero values, so a decoder
// can read a whole record and check Err once.
type Buffer struct {
	data   []byte
	length int
	pos    int
	err    error
}

// NewBuffer allocates a buffer of the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Reset empties the buffer and clears any recorded error.
func (b *Buffer) Reset() {
	b.length = 0
	b.pos = 0
	b.err = nil
}

// Load copies frame into the buffer and rewinds the cursor.
func (b *Buffer) Load(frame []byte) error {
	b.Reset()
	if len(frame) > len(b.data) {
		b.err = ErrBufferOverflow
		return fmt.Errorf("load %d bytes into %d: %w", len(frame), len(b.data), ErrBufferOverflow)
	}
	b.length = copy(b.data, frame)
	return nil
}

// Err returns the first out-of-bounds error, if any.
func (b *Buffer) Err() error { return b.err }

// Len returns the logical length of the frame.
func (b *Buffer) Len() int { return b.length }

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Position returns the cursor.
func (b *Buffer) Position() int { return b.pos }

// SetPosition moves the cursor. Positions beyond the capacity are recorded as an error.
func (b *Buffer) SetPosition(pos int) {
	if pos < 0 || pos > len(b.data) {
		b.fail(ErrBufferOverflow)
		return
	}
	b.pos = pos
}

// Remaining returns the number of unread bytes before the logical end.
func (b *Buffer) Remaining() int {
	if b.pos >= b.length {
		return 0
	}
	return b.length - b.pos
}

// Bytes returns the logical frame. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.length] }

// ByteAt returns the byte at pos without moving the cursor.
func (b *Buffer) ByteAt(pos int) byte {
	if pos < 0 || pos >= b.length {
		return 0
	}
	return b.data[pos]
}

// SetByteAt overwrites a byte without moving the cursor, extending the logical length if needed.
func (b *Buffer) SetByteAt(pos int, v byte) {
	if pos < 0 || pos >= len(b.data) {
		b.fail(ErrBufferOverflow)
		return
	}
	b.data[pos] = v
	if pos >= b.length {
		b.length = pos + 1
	}
}

func (b *Buffer) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Buffer) next(n int) []byte {
	if b.err != nil {
		return nil
	}
	if n < 0 || b.pos+n > b.length {
		b.fail(ErrBufferOverrun)
		return nil
	}
	s := b.data[b.pos : b.pos+n]
	b.pos += n
	return s
}

func (b *Buffer) grow(n int) []byte {
	if b.err != nil {
		return nil
	}
	if b.pos+n > len(b.data) {
		b.fail(ErrBufferOverflow)
		return nil
	}
	s := b.data[b.pos : b.pos+n]
	b.pos += n
	if b.pos > b.length {
		b.length = b.pos
	}
	return s
}

// --- readers ---

func (b *Buffer) ReadUint8() uint8 {
	s := b.next(1)
	if s == nil {
		return 0
	}
	return s[0]
}

func (b *Buffer) ReadInt8() int8 { return int8(b.ReadUint8()) }

func (b *Buffer) ReadBool() bool { return b.ReadUint8() != 0 }

func (b *Buffer) ReadUint16() uint16 {
	s := b.next(2)
	if s == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(s)
}

func (b *Buffer) ReadUint32() uint32 {
	s := b.next(4)
	if s == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(s)
}

// ReadBytes copies n bytes out of the buffer.
func (b *Buffer) ReadBytes(n int) []byte {
	s := b.next(n)
	if s == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, s)
	return out
}

// ReadPayload reads a u8 length followed by that many bytes.
func (b *Buffer) ReadPayload() []byte {
	n := b.ReadUint8()
	if b.err != nil {
		return nil
	}
	return b.ReadBytes(int(n))
}

// ReadRest copies everything from the cursor to the logical end.
func (b *Buffer) ReadRest() []byte {
	return b.ReadBytes(b.Remaining())
}

func (b *Buffer) ReadEUI64() EUI64 {
	var v EUI64
	if s := b.next(8); s != nil {
		copy(v[:], s)
	}
	return v
}

func (b *Buffer) ReadExtPanID() ExtPanID {
	var v ExtPanID
	if s := b.next(8); s != nil {
		copy(v[:], s)
	}
	return v
}

func (b *Buffer) ReadKey() KeyData {
	var v KeyData
	if s := b.next(len(v)); s != nil {
		copy(v[:], s)
	}
	return v
}

// ReadUint16List reads n little-endian u16 values.
func (b *Buffer) ReadUint16List(n int) []uint16 {
	out := make([]uint16, 0, n)
	for i := 0; i < n && b.err == nil; i++ {
		out = append(out, b.ReadUint16())
	}
	return out
}

// --- writers ---

func (b *Buffer) WriteUint8(v uint8) {
	if s := b.grow(1); s != nil {
		s[0] = v
	}
}

func (b *Buffer) WriteInt8(v int8) { b.WriteUint8(uint8(v)) }

func (b *Buffer) WriteBool(v bool) {
	if v {
		b.WriteUint8(1)
		return
	}
	b.WriteUint8(0)
}

func (b *Buffer) WriteUint16(v uint16) {
	if s := b.grow(2); s != nil {
		binary.LittleEndian.PutUint16(s, v)
	}
}

func (b *Buffer) WriteUint32(v uint32) {
	if s := b.grow(4); s != nil {
		binary.LittleEndian.PutUint32(s, v)
	}
}

func (b *Buffer) WriteBytes(p []byte) {
	if s := b.grow(len(p)); s != nil {
		copy(s, p)
	}
}

// WritePayload writes a u8 length followed by p. Payloads longer than 255 bytes fail.
func (b *Buffer) WritePayload(p []byte) {
	if len(p) > 0xFF {
		b.fail(ErrBufferOverflow)
		return
	}
	b.WriteUint8(uint8(len(p)))
	b.WriteBytes(p)
}

func (b *Buffer) WriteEUI64(v EUI64) { b.WriteBytes(v[:]) }

func (b *Buffer) WriteExtPanID(v ExtPanID) { b.WriteBytes(v[:]) }

func (b *Buffer) WriteKey(v KeyData) { b.WriteBytes(v[:]) }

func (b *Buffer) WriteUint16List(vs []uint16) {
	for _, v := range vs {
		b.WriteUint16(v)
	}
}
