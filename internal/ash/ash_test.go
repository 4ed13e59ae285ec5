package ash

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"zigbee-ezsp-host/internal/ezsp"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// hostFrame is one frame written by the host, CRC checked and unstuffed.
type hostFrame struct {
	control byte
	data    []byte
}

// fakeNCP sits on the far end of a pipe and decodes everything the host
// writes. Tests answer by writing raw bytes.
type fakeNCP struct {
	t      *testing.T
	conn   net.Conn
	frames chan hostFrame
}

func newFakeNCP(t *testing.T) (*fakeNCP, Opener) {
	t.Helper()
	host, ncp := net.Pipe()
	f := &fakeNCP{t: t, conn: ncp, frames: make(chan hostFrame, 64)}
	go f.readLoop()
	t.Cleanup(func() { ncp.Close() })
	return f, func(string, int) (Port, error) { return host, nil }
}

func (f *fakeNCP) readLoop() {
	u := newUnstuffer()
	buf := make([]byte, 64)
	for {
		n, err := f.conn.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			raw, err := u.push(b)
			if err != nil || raw == nil {
				continue
			}
			control, data, err := decodeFrame(raw)
			if err != nil {
				continue
			}
			f.frames <- hostFrame{control: control, data: append([]byte(nil), data...)}
		}
	}
}

func (f *fakeNCP) write(b []byte) {
	f.t.Helper()
	if _, err := f.conn.Write(b); err != nil {
		f.t.Errorf("ncp write: %v", err)
	}
}

// next returns the next host frame, failing the test after a second.
func (f *fakeNCP) next() hostFrame {
	f.t.Helper()
	select {
	case fr := <-f.frames:
		return fr
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for host frame")
		return hostFrame{}
	}
}

// answerReset waits for the host's RST and replies with a software RSTACK.
func (f *fakeNCP) answerReset() {
	f.t.Helper()
	if fr := f.next(); fr.control != controlRST {
		f.t.Fatalf("expected RST, got control 0x%02X", fr.control)
	}
	f.write([]byte{0x1A, 0xC1, 0x02, 0x0B, 0x0A, 0x52, 0x7E})
}

type recorder struct {
	mu     sync.Mutex
	frames chan []byte
	failed []ezsp.Status
}

func newRecorder() *recorder { return &recorder{frames: make(chan []byte, 16)} }

func (r *recorder) FrameReceived(frame []byte) {
	r.frames <- append([]byte(nil), frame...)
}

func (r *recorder) TransportFailed(status ezsp.Status) {
	r.mu.Lock()
	r.failed = append(r.failed, status)
	r.mu.Unlock()
}

func (r *recorder) failures() []ezsp.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ezsp.Status(nil), r.failed...)
}

// startLink brings a transport up against a fake NCP.
func startLink(t *testing.T) (*Transport, *fakeNCP, *recorder) {
	t.Helper()
	ncp, open := newFakeNCP(t)
	tr := New(Config{Port: "pipe", BaudRate: 115200, Open: open}, newTestLogger())
	rec := newRecorder()
	tr.SetReceiver(rec)

	errCh := make(chan error, 1)
	go func() { errCh <- tr.Start(context.Background()) }()
	ncp.answerReset()
	if err := <-errCh; err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(tr.Stop)
	return tr, ncp, rec
}

func TestResetHandshake(t *testing.T) {
	tr, _, _ := startLink(t)
	if !tr.Connected() {
		t.Fatal("expected connected after RSTACK")
	}
}

func TestResetRejectsVersion(t *testing.T) {
	ncp, open := newFakeNCP(t)
	tr := New(Config{Open: open}, newTestLogger())
	tr.SetReceiver(newRecorder())

	errCh := make(chan error, 1)
	go func() { errCh <- tr.Start(context.Background()) }()
	for i := 0; i < resetAttempts; i++ {
		if fr := ncp.next(); fr.control != controlRST {
			t.Fatalf("attempt %d: expected RST, got 0x%02X", i, fr.control)
		}
		ncp.write(encodeFrame(controlRSTACK, []byte{0x03, resetSoftware}))
	}
	err := <-errCh
	if !errors.Is(err, ezsp.StatusASHErrorVersion) {
		t.Fatalf("err: got %v, want %v", err, ezsp.StatusASHErrorVersion)
	}
	if tr.Connected() {
		t.Error("connected after failed reset")
	}
}

func TestResetHonoursContext(t *testing.T) {
	_, open := newFakeNCP(t)
	tr := New(Config{Open: open}, newTestLogger())
	tr.SetReceiver(newRecorder())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tr.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err: got %v, want deadline exceeded", err)
	}
}

func TestDataExchange(t *testing.T) {
	tr, ncp, rec := startLink(t)

	sendErr := make(chan error, 1)
	go func() { sendErr <- tr.Send([]byte{0x00, 0x00, 0x00, 0x0D}) }()

	fr := ncp.next()
	if fr.control != 0x00 {
		t.Fatalf("data control: got 0x%02X, want 0x00", fr.control)
	}
	if want := []byte{0x42, 0x21, 0xA8, 0x59}; !bytes.Equal(fr.data, want) {
		t.Errorf("data: got % X, want % X", fr.data, want)
	}

	// ACK(1) then the VERSION response as frame 0.
	ncp.write([]byte{0x81, 0x60, 0x59, 0x7E})
	if err := <-sendErr; err != nil {
		t.Fatalf("send: %v", err)
	}
	ncp.write([]byte{0x01, 0x42, 0xA1, 0xA8, 0x59, 0x28, 0x05, 0xC6, 0xA8, 0x77, 0x7E})

	if fr := ncp.next(); fr.control != 0x81 {
		t.Errorf("host ack: got 0x%02X, want 0x81", fr.control)
	}
	select {
	case got := <-rec.frames:
		want := []byte{0x00, 0x80, 0x00, 0x0D, 0x02, 0x10, 0x74}
		if !bytes.Equal(got, want) {
			t.Errorf("delivered: got % X, want % X", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}

	c := tr.Counters()
	if c.TxData != 1 || c.RxData != 1 || c.RxAck != 1 || c.TxAck != 1 {
		t.Errorf("counters: got %+v", c)
	}
}

func TestRetransmitOnNak(t *testing.T) {
	tr, ncp, _ := startLink(t)

	sendErr := make(chan error, 1)
	go func() { sendErr <- tr.Send([]byte{0x00, 0x00, 0x00, 0x0D}) }()

	if fr := ncp.next(); fr.control != 0x00 {
		t.Fatalf("first: got 0x%02X, want 0x00", fr.control)
	}
	ncp.write(encodeFrame(nakControl(0), nil))

	fr := ncp.next()
	if fr.control != dataControl(0, 0, true) {
		t.Fatalf("retransmission: got 0x%02X, want 0x%02X", fr.control, dataControl(0, 0, true))
	}
	ncp.write(encodeFrame(ackControl(1, false), nil))
	if err := <-sendErr; err != nil {
		t.Fatalf("send: %v", err)
	}
	if c := tr.Counters(); c.RxNak != 1 || c.TxReData != 1 {
		t.Errorf("counters: got %+v", c)
	}
}

func TestRetransmitOnAckTimeout(t *testing.T) {
	tr, ncp, _ := startLink(t)

	sendErr := make(chan error, 1)
	go func() { sendErr <- tr.Send([]byte{0x00, 0x00, 0x00, 0x0D}) }()

	ncp.next()
	start := time.Now()
	fr := ncp.next()
	if fr.control&reTxFlag == 0 {
		t.Fatalf("expected retransmission, got control 0x%02X", fr.control)
	}
	if elapsed := time.Since(start); elapsed < ackTimeMin {
		t.Errorf("retransmitted after %s, before the ACK period", elapsed)
	}
	ncp.write(encodeFrame(ackControl(1, false), nil))
	if err := <-sendErr; err != nil {
		t.Fatalf("send: %v", err)
	}
	if c := tr.Counters(); c.AckTimeouts != 1 {
		t.Errorf("ack timeouts: got %d, want 1", c.AckTimeouts)
	}
}

func TestOutOfSequenceData(t *testing.T) {
	_, ncp, rec := startLink(t)

	payload := []byte{0x00, 0x90, 0x19, 0x00}

	// Frame 1 while frame 0 is expected: one NAK, then silence.
	ncp.write(encodeData(1, 0, false, payload))
	if fr := ncp.next(); fr.control != nakControl(0) {
		t.Fatalf("first reject: got 0x%02X, want 0x%02X", fr.control, nakControl(0))
	}
	ncp.write(encodeData(2, 0, false, payload))

	// A retransmitted duplicate is acknowledged, not NAKed.
	ncp.write(encodeData(1, 0, true, payload))
	if fr := ncp.next(); fr.control != ackControl(0, false) {
		t.Fatalf("duplicate: got 0x%02X, want 0x%02X", fr.control, ackControl(0, false))
	}

	ncp.write(encodeData(0, 0, false, payload))
	if fr := ncp.next(); fr.control != ackControl(1, false) {
		t.Fatalf("in sequence: got 0x%02X, want 0x%02X", fr.control, ackControl(1, false))
	}
	select {
	case got := <-rec.frames:
		if !bytes.Equal(got, payload) {
			t.Errorf("delivered: got % X, want % X", got, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestBadCRCIsRejected(t *testing.T) {
	tr, ncp, _ := startLink(t)

	frame := encodeData(0, 0, false, []byte{0x00, 0x90, 0x19, 0x00})
	frame[len(frame)-2] ^= 0x01
	ncp.write(frame)
	if fr := ncp.next(); fr.control != nakControl(0) {
		t.Fatalf("got 0x%02X, want NAK", fr.control)
	}
	if c := tr.Counters(); c.CRCErrors != 1 {
		t.Errorf("crc errors: got %d, want 1", c.CRCErrors)
	}
}

func TestUnexpectedRSTACK(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  ezsp.Status
	}{
		{"rstack", []byte{0xC1, 0x02, 0x0B, 0x0A, 0x52, 0x7E}, ezsp.StatusASHErrorNCPReset},
		{"error", []byte{0xC2, 0x02, 0x51, 0xA8, 0xBD, 0x7E}, ezsp.StatusASHNCPFatalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ncp, rec := startLink(t)
			ncp.write(tt.frame)

			deadline := time.Now().Add(time.Second)
			for len(rec.failures()) == 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			failed := rec.failures()
			if len(failed) != 1 || failed[0] != tt.want {
				t.Fatalf("failures: got %v, want [%v]", failed, tt.want)
			}
			if tr.Connected() {
				t.Error("still connected")
			}
			if err := tr.Send([]byte{0x00, 0x00, 0x00}); !errors.Is(err, ezsp.StatusNotConnected) {
				t.Errorf("send: got %v, want %v", err, ezsp.StatusNotConnected)
			}
		})
	}
}

func TestSendLengthChecks(t *testing.T) {
	tr := New(Config{}, newTestLogger())
	if err := tr.Send([]byte{0x00, 0x00}); !errors.Is(err, ezsp.StatusDataFrameTooShort) {
		t.Errorf("short: got %v", err)
	}
	if err := tr.Send(make([]byte, maxDataLength+1)); !errors.Is(err, ezsp.StatusDataFrameTooLong) {
		t.Errorf("long: got %v", err)
	}
	if err := tr.Send([]byte{0x00, 0x00, 0x00}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("not started: got %v", err)
	}
}

func TestAdjustAckPeriod(t *testing.T) {
	tr := New(Config{}, newTestLogger())
	tests := []struct {
		start    time.Duration
		measured time.Duration
		want     time.Duration
	}{
		{800 * time.Millisecond, 0, 700 * time.Millisecond},
		{400 * time.Millisecond, 0, ackTimeMin},
		{2400 * time.Millisecond, 2400 * time.Millisecond, ackTimeMax},
		{800 * time.Millisecond, 800 * time.Millisecond, 1100 * time.Millisecond},
	}
	for _, tt := range tests {
		tr.ackPeriod = tt.start
		tr.adjustAckPeriod(tt.measured)
		if tr.ackPeriod != tt.want {
			t.Errorf("start %s measured %s: got %s, want %s", tt.start, tt.measured, tr.ackPeriod, tt.want)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	tr, _, _ := startLink(t)
	tr.Stop()
	tr.Stop()
	if tr.Connected() {
		t.Error("connected after stop")
	}
}

func TestResponseTimeoutOverride(t *testing.T) {
	if got := New(Config{}, newTestLogger()).ResponseTimeout(); got != responseTimeout {
		t.Errorf("default: got %s, want %s", got, responseTimeout)
	}
	if got := New(Config{ResponseTimeout: 3 * time.Second}, newTestLogger()).ResponseTimeout(); got != 3*time.Second {
		t.Errorf("override: got %s, want 3s", got)
	}
}
