// Package ezsp implements the host side of the EmberZNet Serial Protocol:
// command encoding, single-flight request/response correlation, frame
// validation, the reset policy and decoding of asynchronous callbacks.
package ezsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// bufferCapacity leaves headroom over MaxFrameLength so an oversized command
// is caught by the length check rather than by a partial write.
const bufferCapacity = 256

// Config holds the per-session frame-control settings.
type Config struct {
	NetworkIndex uint8
	SleepMode    SleepMode
}

// Counters is a snapshot of the engine's session counters.
type Counters struct {
	Sequence         uint8  `json:"sequence"`
	MessageTag       uint16 `json:"message_tag"`
	QueueFull        uint64 `json:"queue_full"`
	Overflow         uint64 `json:"overflow"`
	Orphaned         uint64 `json:"orphaned"`
	UnknownCallbacks uint64 `json:"unknown_callbacks"`
	ResetRequests    uint64 `json:"reset_requests"`
}

// Engine drives one EZSP session over a Transport.
type Engine struct {
	transport Transport
	logger    *slog.Logger
	events    *EventBus

	networkIndex uint8
	sleepMode    SleepMode

	// admission is a depth-1 queue; holding its slot owns out.
	admission chan struct{}
	out       *Buffer
	seq       atomic.Uint32

	// resp is written only by the correlator while a request is awaiting,
	// and read only by the admitted command after resolution.
	resp *Buffer
	corr correlator

	// cb belongs to the transport's receive goroutine.
	cb          *Buffer
	decoders    map[FrameID]callbackDecoder
	senderEUI64 EUI64

	layout atomic.Pointer[Layout]

	tagMu sync.Mutex
	tag   uint16

	callbacksPending atomic.Bool
	queueFull        atomic.Uint64
	overflows        atomic.Uint64
	orphaned         atomic.Uint64
	unknownCallbacks atomic.Uint64
	resetRequests    atomic.Uint64
}

// New creates an engine bound to t and registers itself as t's receiver.
func New(t Transport, cfg Config, logger *slog.Logger) *Engine {
	logger = logger.With("component", "ezsp")
	e := &Engine{
		transport:    t,
		logger:       logger,
		events:       NewEventBus(logger),
		networkIndex: cfg.NetworkIndex,
		sleepMode:    cfg.SleepMode,
		admission:    make(chan struct{}, 1),
		out:          NewBuffer(bufferCapacity),
		resp:         NewBuffer(bufferCapacity),
		cb:           NewBuffer(bufferCapacity),
		decoders:     callbackDecoders(),
	}
	t.SetReceiver(e)
	return e
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Start brings the link up. The protocol version must be negotiated again
// after every start.
func (e *Engine) Start(ctx context.Context) error {
	e.layout.Store(nil)
	if err := e.transport.Start(ctx); err != nil {
		return fmt.Errorf("ezsp start: %w", err)
	}
	return nil
}

// Stop takes the link down.
func (e *Engine) Stop() {
	e.transport.Stop()
}

// ResetNCP hard-resets the co-processor. The protocol version is cleared.
func (e *Engine) ResetNCP(ctx context.Context) error {
	e.layout.Store(nil)
	if err := e.transport.ResetNCP(ctx); err != nil {
		return fmt.Errorf("ezsp reset ncp: %w", err)
	}
	return nil
}

// Connected reports the transport's link state.
func (e *Engine) Connected() bool { return e.transport.Connected() }

// Layout returns the wire layout of the negotiated version, or the legacy
// layout before negotiation.
func (e *Engine) Layout() Layout {
	if l := e.layout.Load(); l != nil {
		return *l
	}
	return legacyLayout
}

// ProtocolVersion returns the negotiated version, zero before negotiation.
func (e *Engine) ProtocolVersion() uint8 { return e.Layout().Version }

func (e *Engine) setVersion(version uint8) error {
	l := LayoutFor(version)
	if !e.layout.CompareAndSwap(nil, &l) {
		return fmt.Errorf("ezsp: protocol version already set to 0x%02X", e.ProtocolVersion())
	}
	return nil
}

// CallbacksPending reports whether the last inbound frame announced queued callbacks.
func (e *Engine) CallbacksPending() bool { return e.callbacksPending.Load() }

// Counters returns a snapshot of the session counters.
func (e *Engine) Counters() Counters {
	e.tagMu.Lock()
	tag := e.tag
	e.tagMu.Unlock()
	return Counters{
		Sequence:         uint8(e.seq.Load()),
		MessageTag:       tag,
		QueueFull:        e.queueFull.Load(),
		Overflow:         e.overflows.Load(),
		Orphaned:         e.orphaned.Load(),
		UnknownCallbacks: e.unknownCallbacks.Load(),
		ResetRequests:    e.resetRequests.Load(),
	}
}

// nextMessageTag advances and returns the outbound message tag.
func (e *Engine) nextMessageTag() uint16 {
	mask := e.Layout().TagMask
	e.tagMu.Lock()
	defer e.tagMu.Unlock()
	e.tag = (e.tag + 1) & mask
	return e.tag
}

// --- dispatch queue ---

func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.admission <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() { <-e.admission }

// command runs one exchange: encode writes the parameters, decode reads the
// reply parameters. A non-nil error means the exchange itself failed; an
// application status in the reply is left to decode.
func (e *Engine) command(ctx context.Context, id FrameID, encode func(w *Buffer), decode func(r *Buffer)) error {
	if err := e.acquire(ctx); err != nil {
		return fmt.Errorf("ezsp %s: %w", id, err)
	}
	defer e.release()

	e.startCommand(id)
	if encode != nil {
		encode(e.out)
	}
	if e.out.Err() != nil {
		if !e.transport.Connected() {
			return fmt.Errorf("ezsp %s: %w", id, StatusNotConnected)
		}
		return fmt.Errorf("ezsp %s: %w", id, StatusCommandTooLong)
	}

	if status := e.sendCommand(id); status != StatusSuccess {
		return fmt.Errorf("ezsp %s: %w", id, status)
	}

	if decode != nil {
		decode(e.resp)
		if err := e.resp.Err(); err != nil {
			return fmt.Errorf("ezsp %s reply: %w", id, err)
		}
	}
	return nil
}

// sendCommand stamps and transmits the frame in out, then blocks until the
// correlator resolves it. Overflow has already been reported by then and is
// returned as success.
func (e *Engine) sendCommand(id FrameID) Status {
	if !e.transport.Connected() {
		return StatusNotConnected
	}
	if e.out.Len() > MaxFrameLength {
		return StatusCommandTooLong
	}

	frame := e.out.Bytes()
	seq := uint8(e.seq.Add(1) - 1)
	frame[sequenceIndex] = seq
	frame[legacyFrameControlIdx] = e.frameControl()

	result := e.corr.arm(id, e.transport.ResponseTimeout(), e.responseTimedOut)

	e.logger.Debug("ezsp TX", "frame", id, "seq", seq, "params", fmt.Sprintf("%X", frame[e.Layout().headerLength():]))

	if err := e.transport.Send(frame); err != nil {
		e.corr.cancel()
		status := transportStatus(err)
		e.logger.Warn("ezsp send failed", "frame", id, "seq", seq, "status", status, "err", err)
		if e.classify(status) {
			e.requestReset(status)
		}
		return status
	}

	status := <-result
	if status == StatusOverflow {
		return StatusSuccess
	}
	return status
}

// transportStatus maps a Send error onto the status taxonomy.
func transportStatus(err error) Status {
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusNoTxSpace
}

func (e *Engine) responseTimedOut(id FrameID) {
	e.logger.Warn("ezsp response timeout", "frame", id, "timeout", e.transport.ResponseTimeout())
	if e.classify(StatusNoResponse) {
		e.requestReset(StatusNoResponse)
	}
}

// --- inbound ---

// FrameReceived implements Receiver.
func (e *Engine) FrameReceived(frame []byte) {
	l := e.Layout()
	if len(frame) > legacyFrameControlIdx && frame[legacyFrameControlIdx]&fcCallbackTypeMask != 0 {
		e.callbackReceived(frame, l)
		return
	}

	var (
		hdr    frameHeader
		status Status
		reset  bool
	)
	want, ok := e.corr.resolve(func() Status {
		if err := e.resp.Load(frame); err != nil {
			status = StatusDataFrameTooLong
		} else {
			hdr, status = e.validateFrame(e.resp, l)
		}
		if status != StatusSuccess {
			reset = e.classify(status)
		}
		return status
	})
	if !ok {
		e.orphaned.Add(1)
		e.logger.Warn("ezsp orphaned response (too late)", "payload", fmt.Sprintf("%X", frame))
		return
	}
	// An empty CALLBACK poll is answered with NO_CALLBACKS.
	if status == StatusSuccess && hdr.id != want && !(want == FrameCallback && hdr.id == FrameNoCallbacks) {
		e.logger.Warn("ezsp response id mismatch", "want", want, "got", hdr.id, "seq", hdr.seq)
	}
	e.logger.Debug("ezsp RX", "frame", hdr.id, "seq", hdr.seq, "status", status)
	if reset {
		e.requestReset(status)
	}
}

// TransportFailed implements Receiver.
func (e *Engine) TransportFailed(status Status) {
	e.logger.Error("ezsp transport failure", "status", status)
	if e.classify(status) {
		e.requestReset(status)
	}
}

func (e *Engine) callbackReceived(frame []byte, l Layout) {
	if err := e.cb.Load(frame); err != nil {
		e.logger.Warn("ezsp callback dropped", "err", err)
		return
	}
	hdr, status := e.validateFrame(e.cb, l)
	if status != StatusSuccess {
		if e.classify(status) {
			e.requestReset(status)
		}
		if status != StatusOverflow {
			e.logger.Warn("ezsp callback rejected", "frame", hdr.id, "status", status)
			return
		}
	}

	cb, err := e.decodeCallback(hdr.id, e.cb, l)
	switch {
	case err == nil:
		e.logger.Debug("ezsp callback", "frame", hdr.id, "seq", hdr.seq)
		e.dispatch(cb, l)
	case errors.Is(err, errUnknownCallback):
		e.unknownCallbacks.Add(1)
		e.logger.Warn("ezsp unknown callback", "frame", hdr.id, "params", fmt.Sprintf("%X", e.cb.Bytes()[l.headerLength():]))
	default:
		e.logger.Warn("ezsp callback decode failed", "frame", hdr.id, "err", err)
	}

	// A synchronous callback is the reply to a CALLBACK poll. It completes
	// the poll only after its events went out.
	if hdr.isSyncCallback() {
		if id, awaiting := e.corr.pending(); awaiting && id == FrameCallback {
			e.corr.resolve(func() Status { return StatusSuccess })
		}
	}
}
