package ezsp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCommandFrameHeader(t *testing.T) {
	m := newMockTransport()
	e := New(m, Config{NetworkIndex: 1, SleepMode: SleepDeep}, newTestLogger())
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()
	m.setRespond(replyWith(e, nil))

	if err := e.Nop(context.Background()); err != nil {
		t.Fatalf("nop: %v", err)
	}
	sent := m.sentFrames()
	if len(sent) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(sent))
	}
	if len(sent[0]) != 3 {
		t.Fatalf("legacy nop length: got %d, want 3", len(sent[0]))
	}
	if sent[0][1] != 0x21 {
		t.Errorf("frame control: got 0x%02X, want 0x21", sent[0][1])
	}
	if sent[0][2] != byte(FrameNop) {
		t.Errorf("frame id: got 0x%02X, want 0x%02X", sent[0][2], byte(FrameNop))
	}
}

func TestCommandSingleFlight(t *testing.T) {
	e, m := newTestEngine(t)

	var inflight atomic.Int32
	var overlap atomic.Bool
	m.SetReceiver(receiverFunc(func(frame []byte) {
		inflight.Add(-1)
		e.FrameReceived(frame)
	}))
	reply := replyWith(e, nil)
	m.setRespond(func(req []byte) [][]byte {
		if inflight.Add(1) != 1 {
			overlap.Store(true)
		}
		time.Sleep(time.Millisecond)
		return reply(req)
	})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.Nop(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("nop: %v", err)
	}
	if overlap.Load() {
		t.Error("a command was sent while another was outstanding")
	}
	if n := len(m.sentFrames()); n != 16 {
		t.Errorf("sent: got %d, want 16", n)
	}
}

// receiverFunc lets a test observe frames before the engine does.
type receiverFunc func(frame []byte)

func (f receiverFunc) FrameReceived(frame []byte) { f(frame) }
func (f receiverFunc) TransportFailed(Status) {}

func TestSequenceWraps(t *testing.T) {
	e, m := newTestEngine(t)
	m.setRespond(replyWith(e, nil))

	for i := 0; i < 257; i++ {
		if err := e.Nop(context.Background()); err != nil {
			t.Fatalf("nop %d: %v", i, err)
		}
	}
	sent := m.sentFrames()
	for i, f := range sent {
		if f[sequenceIndex] != uint8(i) {
			t.Fatalf("frame %d seq: got %d, want %d", i, f[sequenceIndex], uint8(i))
		}
	}
	if sent[256][sequenceIndex] != 0 {
		t.Errorf("seq after 256 commands: got %d, want 0", sent[256][sequenceIndex])
	}
}

func TestMessageTagWraps(t *testing.T) {
	tests := []struct {
		name    string
		version uint8
		period  int
	}{
		{"legacy", 0, 128},
		{"v13", 0x0d, 128},
		{"v14", 0x0e, 65536},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			if tt.version != 0 {
				if err := e.setVersion(tt.version); err != nil {
					t.Fatal(err)
				}
			}
			var got uint16
			for i := 0; i < tt.period; i++ {
				got = e.nextMessageTag()
			}
			if got != 0 {
				t.Errorf("tag after %d: got %d, want 0", tt.period, got)
			}
			if got := e.nextMessageTag(); got != 1 {
				t.Errorf("tag after wrap: got %d, want 1", got)
			}
		})
	}
}

func TestOverflowIsTransparent(t *testing.T) {
	e, m := newTestEngine(t)
	m.setRespond(func(req []byte) [][]byte {
		return [][]byte{buildFrame(legacyLayout, req[0], fcResponse|fcOverflow, FrameGetNodeID, []byte{0x34, 0x12})}
	})

	id, err := e.GetNodeID(context.Background())
	if err != nil {
		t.Fatalf("get node id: %v", err)
	}
	if id != 0x1234 {
		t.Errorf("node id: got 0x%04X, want 0x1234", id)
	}
	c := e.Counters()
	if c.Overflow != 1 {
		t.Errorf("overflow counter: got %d, want 1", c.Overflow)
	}
	if c.ResetRequests != 0 {
		t.Errorf("reset requests: got %d, want 0", c.ResetRequests)
	}
}

func TestResponseErrors(t *testing.T) {
	tests := []struct {
		name      string
		version   uint8
		fc        byte
		fcHigh    byte
		id        FrameID
		params    []byte
		want      Status
		wantReset bool
	}{
		{"wrong direction", 0, fcCommand, 0, FrameGetNodeID, []byte{0x34, 0x12}, StatusWrongDirection, false},
		{"wrong direction wins over truncated", 0, fcCommand | fcTruncated, 0, FrameGetNodeID, nil, StatusWrongDirection, false},
		{"truncated", 0, fcResponse | fcTruncated, 0, FrameGetNodeID, nil, StatusTruncated, true},
		{"truncated wins over overflow", 0, fcResponse | fcTruncated | fcOverflow, 0, FrameGetNodeID, nil, StatusTruncated, true},
		{"invalid command", 0, fcResponse, 0, FrameInvalidCommand, []byte{byte(StatusInvalidFrameID)}, StatusInvalidFrameID, true},
		{"invalid command queue full", 0, fcResponse, 0, FrameInvalidCommand, []byte{byte(StatusQueueFull)}, StatusQueueFull, false},
		{"reserved high bits", 0x0d, fcResponse, fcExtFormatVersion | 0x04, FrameGetNodeID, []byte{0x34, 0x12}, StatusUnsupportedControl, true},
		{"bad format version", 0x0d, fcResponse, 0x02, FrameGetNodeID, []byte{0x34, 0x12}, StatusUnsupportedControl, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, m := newTestEngine(t)
			resets := collect(e, EventNCPNeedsReset)
			if tt.version != 0 {
				if err := e.setVersion(tt.version); err != nil {
					t.Fatal(err)
				}
			}
			m.setRespond(func(req []byte) [][]byte {
				f := buildFrame(e.Layout(), req[0], tt.fc, tt.id, tt.params)
				if tt.version != 0 {
					f[extFrameControlHBIdx] = tt.fcHigh
				}
				return [][]byte{f}
			})

			id, err := e.GetNodeID(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err: got %v, want %v", err, tt.want)
			}
			if id != 0 {
				t.Errorf("failed reply was parsed: node id 0x%04X", id)
			}
			if tt.wantReset {
				ev := waitEvent(t, resets)
				if got := ev.Data.(NCPNeedsResetEvent).Status; got != tt.want {
					t.Errorf("reset status: got %v, want %v", got, tt.want)
				}
				return
			}
			// The next exchange proves the receive goroutine is done with the
			// failed one.
			m.setRespond(replyWith(e, nil))
			if err := e.Nop(context.Background()); err != nil {
				t.Fatalf("nop: %v", err)
			}
			if n := e.Counters().ResetRequests; n != 0 {
				t.Errorf("reset requests: got %d, want 0", n)
			}
		})
	}
}

func TestResetPolicy(t *testing.T) {
	tests := []struct {
		status Status
		reset  bool
	}{
		{StatusWrongDirection, false},
		{StatusOverflow, false},
		{StatusQueueFull, false},
		{StatusSecurityParametersInvalid, false},
		{StatusTruncated, true},
		{StatusNoResponse, true},
		{StatusUnsupportedControl, true},
		{StatusASHNCPFatalError, true},
		{StatusInvalidFrameID, true},
		{StatusNoTxSpace, true},
	}
	e, _ := newTestEngine(t)
	for _, tt := range tests {
		if got := e.classify(tt.status); got != tt.reset {
			t.Errorf("%v: got reset=%v, want %v", tt.status, got, tt.reset)
		}
	}
	c := e.Counters()
	if c.QueueFull != 1 {
		t.Errorf("queue full counter: got %d, want 1", c.QueueFull)
	}
	if c.Overflow != 1 {
		t.Errorf("overflow counter: got %d, want 1", c.Overflow)
	}
}

func TestTimeoutClearsState(t *testing.T) {
	e, m := newTestEngine(t)
	m.timeout = 20 * time.Millisecond
	resets := collect(e, EventNCPNeedsReset)

	var lastSeq uint8
	m.setRespond(func(req []byte) [][]byte {
		lastSeq = req[0]
		return nil
	})

	err := e.Nop(context.Background())
	if !errors.Is(err, StatusNoResponse) {
		t.Fatalf("err: got %v, want %v", err, StatusNoResponse)
	}
	if st := e.corr.current(); st != stateTimedOut {
		t.Errorf("state: got %v, want %v", st, stateTimedOut)
	}
	ev := waitEvent(t, resets)
	if got := ev.Data.(NCPNeedsResetEvent).Status; got != StatusNoResponse {
		t.Errorf("reset status: got %v, want %v", got, StatusNoResponse)
	}

	// A response arriving after the deadline is dropped, not matched.
	m.inject(buildFrame(legacyLayout, lastSeq, fcResponse, FrameNop, nil))
	waitFor(t, "orphaned response", func() bool { return e.Counters().Orphaned == 1 })

	m.setRespond(replyWith(e, nil))
	if err := e.Nop(context.Background()); err != nil {
		t.Fatalf("nop after timeout: %v", err)
	}
	if st := e.corr.current(); st != stateResolved {
		t.Errorf("state: got %v, want %v", st, stateResolved)
	}
}

func TestCommandTooLong(t *testing.T) {
	e, m := newTestEngine(t)
	m.setRespond(replyWith(e, map[FrameID][]byte{FrameEcho: {0x00}}))

	_, err := e.Echo(context.Background(), make([]byte, 230))
	if !errors.Is(err, StatusCommandTooLong) {
		t.Fatalf("err: got %v, want %v", err, StatusCommandTooLong)
	}
	if n := len(m.sentFrames()); n != 0 {
		t.Errorf("sent: got %d frames, want 0", n)
	}
	if n := e.Counters().ResetRequests; n != 0 {
		t.Errorf("reset requests: got %d, want 0", n)
	}

	// The longest frame that fits still goes out.
	if _, err := e.Echo(context.Background(), make([]byte, MaxFrameLength-legacyParametersIdx-1)); err != nil {
		t.Fatalf("echo at limit: %v", err)
	}
}

func TestCommandNotConnected(t *testing.T) {
	e, m := newTestEngine(t)
	e.Stop()

	err := e.Nop(context.Background())
	if !errors.Is(err, StatusNotConnected) {
		t.Fatalf("err: got %v, want %v", err, StatusNotConnected)
	}
	if n := len(m.sentFrames()); n != 0 {
		t.Errorf("sent: got %d frames, want 0", n)
	}
}

func TestNotConnectedBeforeTooLong(t *testing.T) {
	e, m := newTestEngine(t)
	e.Stop()

	for _, size := range []int{0, 230, bufferCapacity} {
		_, err := e.Echo(context.Background(), make([]byte, size))
		if !errors.Is(err, StatusNotConnected) {
			t.Errorf("echo %d bytes: got %v, want %v", size, err, StatusNotConnected)
		}
	}
	if n := len(m.sentFrames()); n != 0 {
		t.Errorf("sent: got %d frames, want 0", n)
	}
}

func TestTransportSendError(t *testing.T) {
	tests := []struct {
		name    string
		sendErr error
		want    Status
	}{
		{"plain error", errors.New("serial write failed"), StatusNoTxSpace},
		{"status error", StatusASHNCPFatalError, StatusASHNCPFatalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, m := newTestEngine(t)
			resets := collect(e, EventNCPNeedsReset)
			m.sendErr = tt.sendErr

			if err := e.Nop(context.Background()); !errors.Is(err, tt.want) {
				t.Fatalf("err: got %v, want %v", err, tt.want)
			}
			waitEvent(t, resets)
			if st := e.corr.current(); st != stateIdle {
				t.Errorf("state: got %v, want %v", st, stateIdle)
			}
		})
	}
}

func TestAdmissionHonoursContext(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := e.Nop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err: got %v, want deadline exceeded", err)
	}
}

func TestPendingCallbackFlag(t *testing.T) {
	e, m := newTestEngine(t)
	m.setRespond(func(req []byte) [][]byte {
		return [][]byte{buildFrame(legacyLayout, req[0], fcResponse|fcPendingCB, FrameNop, nil)}
	})
	if err := e.Nop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !e.CallbacksPending() {
		t.Error("expected pending callbacks")
	}

	m.setRespond(replyWith(e, nil))
	if err := e.Nop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.CallbacksPending() {
		t.Error("pending flag not cleared")
	}
}

func TestCallbackPoll(t *testing.T) {
	e, m := newTestEngine(t)
	stacks := collect(e, EventStackStatus)
	m.setRespond(func(req []byte) [][]byte {
		return [][]byte{buildFrame(legacyLayout, req[0], fcResponse|fcSyncCB, FrameStackStatusHandler, []byte{byte(EmberNetworkUp)})}
	})

	if err := e.Callback(context.Background()); err != nil {
		t.Fatalf("callback: %v", err)
	}
	select {
	case ev := <-stacks:
		if got := ev.Data.(StackStatusEvent).Status; got != SLNetworkUp {
			t.Errorf("status: got %v, want %v", got, SLNetworkUp)
		}
	default:
		t.Fatal("stack status not emitted before the poll returned")
	}

	m.setRespond(func(req []byte) [][]byte {
		return [][]byte{buildFrame(legacyLayout, req[0], fcResponse, FrameNoCallbacks, nil)}
	})
	if err := e.Callback(context.Background()); err != nil {
		t.Fatalf("empty poll: %v", err)
	}
}

func TestAsyncCallbacks(t *testing.T) {
	e, m := newTestEngine(t)
	stacks := collect(e, EventStackStatus)

	m.inject(buildFrame(legacyLayout, 0, fcResponse|fcAsyncCB, FrameStackStatusHandler, []byte{byte(EmberNetworkDown)}))
	ev := waitEvent(t, stacks)
	if got := ev.Data.(StackStatusEvent).Status; got != SLNetworkDown {
		t.Errorf("status: got %v, want %v", got, SLNetworkDown)
	}

	m.inject(buildFrame(legacyLayout, 0, fcResponse|fcAsyncCB, FrameID(0xEE), []byte{0x01, 0x02}))
	waitFor(t, "unknown callback", func() bool { return e.Counters().UnknownCallbacks == 1 })

	// A callback arriving while a command is outstanding does not resolve it.
	m.setRespond(func(req []byte) [][]byte {
		return [][]byte{
			buildFrame(legacyLayout, 0, fcResponse|fcAsyncCB, FrameStackStatusHandler, []byte{byte(EmberNetworkUp)}),
			buildFrame(legacyLayout, req[0], fcResponse, FrameGetNodeID, []byte{0xCD, 0xAB}),
		}
	})
	id, err := e.GetNodeID(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != 0xABCD {
		t.Errorf("node id: got 0x%04X, want 0xABCD", id)
	}
	waitEvent(t, stacks)
}

func TestOrphanedResponse(t *testing.T) {
	e, m := newTestEngine(t)
	m.inject(buildFrame(legacyLayout, 7, fcResponse, FrameNop, nil))
	waitFor(t, "orphaned response", func() bool { return e.Counters().Orphaned == 1 })
}

func TestStartClearsVersion(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.setVersion(0x0e); err != nil {
		t.Fatal(err)
	}
	if err := e.setVersion(0x0d); err == nil {
		t.Error("expected error setting the version twice")
	}
	e.Stop()
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v := e.ProtocolVersion(); v != 0 {
		t.Errorf("version after restart: got 0x%02X, want 0", v)
	}
	if l := e.Layout(); l.Extended {
		t.Error("layout after restart should be legacy")
	}
}
