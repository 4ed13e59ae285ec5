package ezsp

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockTransport records every frame handed to Send and answers through
// respond, delivering replies on a single goroutine like a real link.
type mockTransport struct {
	mu        sync.Mutex
	connected bool
	timeout   time.Duration
	sent      [][]byte
	sendErr   error
	respond   func(frame []byte) [][]byte

	recv Receiver
	rx   chan []byte
	done chan struct{}
}

func newMockTransport() *mockTransport {
	return &mockTransport{timeout: time.Second}
}

func (m *mockTransport) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.rx = make(chan []byte, 64)
	m.done = make(chan struct{})
	go m.deliver(m.rx, m.done)
	return nil
}

func (m *mockTransport) deliver(rx chan []byte, done chan struct{}) {
	defer close(done)
	for f := range rx {
		m.recv.FrameReceived(f)
	}
}

func (m *mockTransport) Stop() {
	m.mu.Lock()
	rx, done := m.rx, m.done
	m.rx = nil
	m.connected = false
	m.mu.Unlock()
	if rx != nil {
		close(rx)
		<-done
	}
}

func (m *mockTransport) ResetNCP(ctx context.Context) error { return nil }

func (m *mockTransport) Send(frame []byte) error {
	cp := append([]byte(nil), frame...)
	m.mu.Lock()
	m.sent = append(m.sent, cp)
	respond, err, rx := m.respond, m.sendErr, m.rx
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if respond != nil && rx != nil {
		for _, r := range respond(cp) {
			rx <- r
		}
	}
	return nil
}

// inject delivers an unsolicited frame, such as a callback.
func (m *mockTransport) inject(frame []byte) {
	m.mu.Lock()
	rx := m.rx
	m.mu.Unlock()
	rx <- frame
}

func (m *mockTransport) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) ResponseTimeout() time.Duration { return m.timeout }

func (m *mockTransport) SetReceiver(r Receiver) { m.recv = r }

func (m *mockTransport) setRespond(fn func(frame []byte) [][]byte) {
	m.mu.Lock()
	m.respond = fn
	m.mu.Unlock()
}

func (m *mockTransport) sentFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

func newTestEngine(t *testing.T) (*Engine, *mockTransport) {
	t.Helper()
	m := newMockTransport()
	e := New(m, Config{}, newTestLogger())
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(e.Stop)
	return e, m
}

// encode collects the bytes written by fn.
func encode(fn func(b *Buffer)) []byte {
	b := NewBuffer(bufferCapacity)
	fn(b)
	return append([]byte(nil), b.Bytes()...)
}

// buildFrame assembles an inbound frame in layout l. fc is used as given.
func buildFrame(l Layout, seq uint8, fc byte, id FrameID, params []byte) []byte {
	out := []byte{seq, fc}
	if l.Extended {
		out = append(out, fcExtFormatVersion, byte(id), byte(id>>8))
	} else {
		out = append(out, byte(id))
	}
	return append(out, params...)
}

// requestID extracts the command id of an outbound frame.
func requestID(l Layout, frame []byte) FrameID {
	if l.Extended {
		return FrameID(frame[extFrameIDLBIdx]) | FrameID(frame[extFrameIDHBIdx])<<8
	}
	return FrameID(frame[legacyFrameIDIdx])
}

// requestParams returns the parameter bytes of an outbound frame.
func requestParams(l Layout, frame []byte) []byte {
	return frame[l.headerLength():]
}

// replyWith answers each request with a response frame of the same id and
// sequence carrying the params registered for that id.
func replyWith(e *Engine, params map[FrameID][]byte) func([]byte) [][]byte {
	return func(req []byte) [][]byte {
		l := e.Layout()
		id := requestID(l, req)
		return [][]byte{buildFrame(l, req[sequenceIndex], fcResponse, id, params[id])}
	}
}

func (l Layout) writeStatus(b *Buffer, s SLStatus) {
	if l.WideStatus {
		b.WriteUint32(uint32(s))
		return
	}
	b.WriteUint8(uint8(slToEmber(s)))
}

func (l Layout) writeLinkInfo(b *Buffer, p PacketInfo) {
	if l.PacketInfo {
		b.WritePacketInfo(p)
		return
	}
	b.WriteUint8(p.LastHopLQI)
	b.WriteInt8(p.LastHopRSSI)
}

func slToEmber(s SLStatus) EmberStatus {
	if s == SLOK {
		return EmberSuccess
	}
	for e, sl := range emberToSL {
		if sl == s && e != EmberSuccess {
			return e
		}
	}
	return EmberErrFatal
}

// collect subscribes to t and returns a channel of its events.
func collect(e *Engine, t EventType) <-chan Event {
	ch := make(chan Event, 16)
	e.Events().On(t, func(ev Event) { ch <- ev })
	return ch
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}
