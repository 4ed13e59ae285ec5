// Package ash implements the Asynchronous Serial Host link layer that
// carries EZSP frames over a UART: byte stuffing, CRC, payload whitening,
// the RST/RSTACK handshake and acknowledged delivery with retransmission.
package ash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"zigbee-ezsp-host/internal/ezsp"
)

// Timing of the link.
const (
	ackTimeInitial = 800 * time.Millisecond
	ackTimeMin     = 400 * time.Millisecond
	ackTimeMax     = 2400 * time.Millisecond
	resetTimeout   = 2500 * time.Millisecond
	maxTimeouts    = 6
	resetAttempts  = 3

	// responseTimeout bounds an EZSP exchange: the worst case of every
	// retransmission running into the longest ACK period.
	responseTimeout = maxTimeouts * ackTimeMax

	rxQueueDepth = 32
)

// ErrNotConnected is returned by Send while the link is down. It wraps
// ezsp.StatusNotConnected so the engine maps it onto its status taxonomy.
var ErrNotConnected = fmt.Errorf("ash: %w", ezsp.StatusNotConnected)

// Port is the byte stream beneath the link. serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the named port.
type Opener func(name string, baudRate int) (Port, error)

// OpenSerial opens a UART at 8N1 and asserts DTR and RTS, which USB
// bridges on most Silicon Labs sticks need before the NCP talks.
func OpenSerial(name string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("ash: open %s: %w", name, err)
	}
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)
	return port, nil
}

// Config selects the serial port. Open defaults to OpenSerial.
// ResponseTimeout overrides the EZSP response window when non-zero.
type Config struct {
	Port            string
	BaudRate        int
	Open            Opener
	ResponseTimeout time.Duration
}

// Counters is a snapshot of the link statistics.
type Counters struct {
	TxData        uint64 `json:"tx_data"`
	TxReData      uint64 `json:"tx_redata"`
	TxAck         uint64 `json:"tx_ack"`
	TxNak         uint64 `json:"tx_nak"`
	RxData        uint64 `json:"rx_data"`
	RxAck         uint64 `json:"rx_ack"`
	RxNak         uint64 `json:"rx_nak"`
	RxDuplicate   uint64 `json:"rx_duplicate"`
	OutOfSequence uint64 `json:"out_of_sequence"`
	CRCErrors     uint64 `json:"crc_errors"`
	CommErrors    uint64 `json:"comm_errors"`
	LengthErrors  uint64 `json:"length_errors"`
	Cancelled     uint64 `json:"cancelled"`
	AckTimeouts   uint64 `json:"ack_timeouts"`
	NCPResets     uint64 `json:"ncp_resets"`
}

type counters struct {
	txData        atomic.Uint64
	txReData      atomic.Uint64
	txAck         atomic.Uint64
	txNak         atomic.Uint64
	rxData        atomic.Uint64
	rxAck         atomic.Uint64
	rxNak         atomic.Uint64
	rxDuplicate   atomic.Uint64
	outOfSequence atomic.Uint64
	crcErrors     atomic.Uint64
	commErrors    atomic.Uint64
	lengthErrors  atomic.Uint64
	cancelled     atomic.Uint64
	ackTimeouts   atomic.Uint64
	ncpResets     atomic.Uint64
}

type rstack struct {
	version uint8
	reason  uint8
}

// Transport is an ASH link over a serial port. It implements ezsp.Transport
// with a transmit window of one frame.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	recvMu sync.RWMutex
	recv   ezsp.Receiver

	// lifecycleMu guards port, done, rx and closeOnce across Start/Stop.
	lifecycleMu sync.Mutex
	port        Port
	done        chan struct{}
	closeOnce   sync.Once
	running     bool
	rx          chan []byte
	wg          sync.WaitGroup

	writeMu sync.Mutex
	sendMu  sync.Mutex

	// mu guards the link state below.
	mu        sync.Mutex
	connected bool
	resetting bool
	frmTx     uint8 // next frame number to send
	frmRx     uint8 // next frame number expected from the NCP
	ackRx     uint8 // last ack number received
	rejecting bool
	nakRx     bool
	ackPeriod time.Duration

	rstackCh chan rstack
	notify   chan struct{}

	stats counters
}

// New creates a transport. Nothing is opened until Start.
func New(cfg Config, logger *slog.Logger) *Transport {
	if cfg.Open == nil {
		cfg.Open = OpenSerial
	}
	return &Transport{
		cfg:       cfg,
		logger:    logger.With("component", "ash"),
		ackPeriod: ackTimeInitial,
		rstackCh:  make(chan rstack, 1),
		notify:    make(chan struct{}, 1),
	}
}

// SetReceiver implements ezsp.Transport.
func (t *Transport) SetReceiver(r ezsp.Receiver) {
	t.recvMu.Lock()
	t.recv = r
	t.recvMu.Unlock()
}

func (t *Transport) receiver() ezsp.Receiver {
	t.recvMu.RLock()
	defer t.recvMu.RUnlock()
	return t.recv
}

// ResponseTimeout implements ezsp.Transport.
func (t *Transport) ResponseTimeout() time.Duration {
	if t.cfg.ResponseTimeout > 0 {
		return t.cfg.ResponseTimeout
	}
	return responseTimeout
}

// Connected implements ezsp.Transport.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Counters returns a snapshot of the link statistics.
func (t *Transport) Counters() Counters {
	s := &t.stats
	return Counters{
		TxData:        s.txData.Load(),
		TxReData:      s.txReData.Load(),
		TxAck:         s.txAck.Load(),
		TxNak:         s.txNak.Load(),
		RxData:        s.rxData.Load(),
		RxAck:         s.rxAck.Load(),
		RxNak:         s.rxNak.Load(),
		RxDuplicate:   s.rxDuplicate.Load(),
		OutOfSequence: s.outOfSequence.Load(),
		CRCErrors:     s.crcErrors.Load(),
		CommErrors:    s.commErrors.Load(),
		LengthErrors:  s.lengthErrors.Load(),
		Cancelled:     s.cancelled.Load(),
		AckTimeouts:   s.ackTimeouts.Load(),
		NCPResets:     s.ncpResets.Load(),
	}
}

// Start opens the port, starts the receive goroutines and resets the NCP.
func (t *Transport) Start(ctx context.Context) error {
	t.lifecycleMu.Lock()
	if t.running {
		t.lifecycleMu.Unlock()
		return errors.New("ash: already started")
	}
	port, err := t.cfg.Open(t.cfg.Port, t.cfg.BaudRate)
	if err != nil {
		t.lifecycleMu.Unlock()
		return err
	}
	t.port = port
	t.done = make(chan struct{})
	t.closeOnce = sync.Once{}
	t.rx = make(chan []byte, rxQueueDepth)
	t.running = true
	t.wg.Add(2)
	go t.readLoop(port, t.done)
	go t.deliverLoop(t.rx, t.done)
	t.lifecycleMu.Unlock()

	t.logger.Info("ash port opened", "port", t.cfg.Port, "baud", t.cfg.BaudRate)

	for attempt := 1; ; attempt++ {
		err = t.ResetNCP(ctx)
		if err == nil {
			return nil
		}
		if attempt >= resetAttempts || ctx.Err() != nil {
			t.Stop()
			return fmt.Errorf("ash start: %w", err)
		}
		t.logger.Warn("ash reset failed, retrying", "attempt", attempt, "err", err)
	}
}

// Stop closes the port and waits for the receive goroutines.
func (t *Transport) Stop() {
	t.lifecycleMu.Lock()
	if !t.running {
		t.lifecycleMu.Unlock()
		return
	}
	t.running = false
	t.closeOnce.Do(func() { close(t.done) })
	err := t.port.Close()
	t.lifecycleMu.Unlock()

	t.setDisconnected()
	t.wg.Wait()
	if err != nil {
		t.logger.Warn("ash port close", "err", err)
	}
}

// ResetNCP sends RST and waits for the NCP's RSTACK. On success the frame
// counters restart at zero and the link is connected.
func (t *Transport) ResetNCP(ctx context.Context) error {
	t.lifecycleMu.Lock()
	done, running := t.done, t.running
	t.lifecycleMu.Unlock()
	if !running {
		return ErrNotConnected
	}

	t.mu.Lock()
	t.connected = false
	t.resetting = true
	t.mu.Unlock()
	t.wake()
	defer func() {
		t.mu.Lock()
		t.resetting = false
		t.mu.Unlock()
	}()

	select {
	case <-t.rstackCh:
	default:
	}

	rst := append([]byte{cancelByte}, encodeFrame(controlRST, nil)...)
	if err := t.write(rst); err != nil {
		return err
	}
	t.logger.Debug("ash RST sent")

	deadline := time.NewTimer(resetTimeout)
	defer deadline.Stop()
	for {
		select {
		case ack := <-t.rstackCh:
			if ack.version != ashVersion {
				return fmt.Errorf("ash: rstack version %d: %w", ack.version, ezsp.StatusASHErrorVersion)
			}
			if ack.reason != resetSoftware {
				t.logger.Warn("ash RSTACK with unexpected reset reason", "reason", resetReasonName(ack.reason))
				continue
			}
			t.mu.Lock()
			t.connected = true
			t.frmTx, t.frmRx, t.ackRx = 0, 0, 0
			t.rejecting, t.nakRx = false, false
			t.ackPeriod = ackTimeInitial
			t.mu.Unlock()
			t.logger.Info("ash connected", "reason", resetReasonName(ack.reason))
			return nil
		case <-deadline.C:
			return fmt.Errorf("ash: no RSTACK within %s: %w", resetTimeout, ezsp.StatusASHErrorResetFail)
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return ErrNotConnected
		}
	}
}

// Send implements ezsp.Transport. It blocks until the NCP acknowledges the
// frame, retransmitting on NAK or ACK timeout.
func (t *Transport) Send(frame []byte) error {
	if len(frame) < minDataLength {
		return ezsp.StatusDataFrameTooShort
	}
	if len(frame) > maxDataLength {
		return ezsp.StatusDataFrameTooLong
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.lifecycleMu.Lock()
	done := t.done
	t.lifecycleMu.Unlock()

	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	frm := t.frmTx
	t.frmTx = inc8(frm)
	t.mu.Unlock()
	next := inc8(frm)

	reTx := false
	timeouts := 0
	for {
		t.mu.Lock()
		ack := t.frmRx
		period := t.ackPeriod
		t.nakRx = false
		t.mu.Unlock()

		if err := t.write(encodeData(frm, ack, reTx, frame)); err != nil {
			return err
		}
		if reTx {
			t.stats.txReData.Add(1)
		} else {
			t.stats.txData.Add(1)
		}
		sentAt := time.Now()

		timer := time.NewTimer(period)
		outcome := t.waitAck(next, timer.C, done)
		timer.Stop()

		switch outcome {
		case outcomeAcked:
			if !reTx {
				t.adjustAckPeriod(time.Since(sentAt))
			}
			return nil
		case outcomeNak:
			t.logger.Debug("ash NAK, retransmitting", "frm", frm)
		case outcomeExpired:
			timeouts++
			t.stats.ackTimeouts.Add(1)
			t.mu.Lock()
			t.ackPeriod = min(2*t.ackPeriod, ackTimeMax)
			t.mu.Unlock()
			if timeouts >= maxTimeouts {
				t.setDisconnected()
				t.logger.Error("ash too many ACK timeouts", "frm", frm, "timeouts", timeouts)
				return fmt.Errorf("ash: frame %d: %w", frm, ezsp.StatusASHErrorTimeouts)
			}
			t.logger.Warn("ash ACK timeout", "frm", frm, "attempt", timeouts)
		case outcomeDown:
			return ErrNotConnected
		}
		reTx = true
	}
}

type ackOutcome int

const (
	outcomeAcked ackOutcome = iota
	outcomeNak
	outcomeExpired
	outcomeDown
)

func (t *Transport) waitAck(next uint8, expired <-chan time.Time, done <-chan struct{}) ackOutcome {
	for {
		t.mu.Lock()
		connected, ackRx, nak := t.connected, t.ackRx, t.nakRx
		t.nakRx = false
		t.mu.Unlock()

		switch {
		case !connected:
			return outcomeDown
		case ackRx == next:
			return outcomeAcked
		case nak:
			return outcomeNak
		}
		select {
		case <-t.notify:
		case <-expired:
			return outcomeExpired
		case <-done:
			return outcomeDown
		}
	}
}

// adjustAckPeriod folds a measured round trip into the ACK period:
// T = 7/8 T + 1/2 measured, clamped.
func (t *Transport) adjustAckPeriod(measured time.Duration) {
	t.mu.Lock()
	p := (7*t.ackPeriod + 4*measured) / 8
	t.ackPeriod = max(ackTimeMin, min(p, ackTimeMax))
	t.mu.Unlock()
}

func (t *Transport) wake() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *Transport) setDisconnected() {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	t.wake()
}

func (t *Transport) write(b []byte) error {
	t.lifecycleMu.Lock()
	port := t.port
	t.lifecycleMu.Unlock()
	if port == nil {
		return ErrNotConnected
	}
	t.writeMu.Lock()
	_, err := port.Write(b)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("ash write: %w: %w", ezsp.StatusASHCommError, err)
	}
	return nil
}

// --- receive path ---

func (t *Transport) readLoop(port Port, done chan struct{}) {
	defer t.wg.Done()

	backoff := 10 * time.Millisecond
	const maxBackoff = 5 * time.Second

	u := newUnstuffer()
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if err != nil || n == 0 {
			select {
			case <-done:
				return
			default:
			}
			if err != nil && err != io.EOF && !strings.Contains(err.Error(), "closed") {
				t.logger.Error("ash read error", "err", err)
			}
			select {
			case <-time.After(backoff):
			case <-done:
				return
			}
			backoff = min(2*backoff, maxBackoff)
			continue
		}
		backoff = 10 * time.Millisecond

		for _, b := range buf[:n] {
			raw, err := u.push(b)
			if err != nil {
				t.frameError(err)
				continue
			}
			if raw != nil {
				t.frameReceived(raw, done)
			}
		}
	}
}

// frameError counts a frame dropped by the unstuffer or the CRC check and
// puts the receiver into the reject state.
func (t *Transport) frameError(err error) {
	switch {
	case errors.Is(err, errCancelled):
		t.stats.cancelled.Add(1)
		return
	case errors.Is(err, errBadCRC):
		t.stats.crcErrors.Add(1)
	case errors.Is(err, errCommError):
		t.stats.commErrors.Add(1)
	default:
		t.stats.lengthErrors.Add(1)
	}
	t.logger.Debug("ash frame dropped", "err", err)
	t.reject()
}

func (t *Transport) frameReceived(raw []byte, done chan struct{}) {
	control, data, err := decodeFrame(raw)
	if err != nil {
		t.frameError(err)
		return
	}
	typ, err := classify(control, 1+len(data))
	if err != nil {
		t.stats.lengthErrors.Add(1)
		t.logger.Debug("ash frame rejected", "err", err)
		t.reject()
		return
	}

	switch typ {
	case frameData:
		t.dataReceived(control, data, done)
	case frameACK:
		t.stats.rxAck.Add(1)
		t.ackReceived(ackNum(control))
	case frameNAK:
		t.stats.rxNak.Add(1)
		t.ackReceived(ackNum(control))
		t.mu.Lock()
		t.nakRx = t.ackRx != t.frmTx
		t.mu.Unlock()
		t.wake()
	case frameRSTACK:
		t.rstackReceived(rstack{version: data[0], reason: data[1]})
	case frameERROR:
		t.stats.ncpResets.Add(1)
		t.logger.Error("ash NCP error frame", "version", data[0], "code", resetReasonName(data[1]))
		if t.linkLost() {
			t.fail(ezsp.StatusASHNCPFatalError)
		}
	case frameRST:
		t.logger.Debug("ash ignoring RST from NCP")
	}
}

func (t *Transport) dataReceived(control byte, data []byte, done chan struct{}) {
	t.ackReceived(ackNum(control))

	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	frm := frmNum(control)
	if frm != t.frmRx {
		retransmit := control&reTxFlag != 0
		ack, nak := t.frmRx, false
		if retransmit {
			t.stats.rxDuplicate.Add(1)
		} else {
			t.stats.outOfSequence.Add(1)
			nak = !t.rejecting
			t.rejecting = true
		}
		t.mu.Unlock()
		switch {
		case retransmit:
			t.sendAck(ack)
		case nak:
			t.sendNak(ack)
		}
		return
	}
	t.frmRx = inc8(frm)
	t.rejecting = false
	ack := t.frmRx
	t.mu.Unlock()

	t.stats.rxData.Add(1)
	t.sendAck(ack)

	payload := append([]byte(nil), data...)
	randomize(payload)

	t.lifecycleMu.Lock()
	rx := t.rx
	t.lifecycleMu.Unlock()
	select {
	case rx <- payload:
	case <-done:
	}
}

// ackReceived advances ackRx when n acknowledges an outstanding frame.
func (t *Transport) ackReceived(n uint8) {
	t.mu.Lock()
	if !withinRange(t.ackRx, n, t.frmTx) {
		t.mu.Unlock()
		t.logger.Debug("ash ack number out of range", "ack", n)
		return
	}
	changed := t.ackRx != n
	t.ackRx = n
	t.mu.Unlock()
	if changed {
		t.wake()
	}
}

func (t *Transport) rstackReceived(ack rstack) {
	t.mu.Lock()
	resetting := t.resetting
	t.mu.Unlock()
	if resetting {
		select {
		case t.rstackCh <- ack:
		default:
		}
		return
	}
	t.stats.ncpResets.Add(1)
	t.logger.Error("ash unexpected RSTACK", "reason", resetReasonName(ack.reason))
	if t.linkLost() {
		t.fail(ezsp.StatusASHErrorNCPReset)
	}
}

// linkLost drops the connection and reports whether it was up.
func (t *Transport) linkLost() bool {
	t.mu.Lock()
	was := t.connected && !t.resetting
	t.connected = false
	t.mu.Unlock()
	t.wake()
	return was
}

func (t *Transport) fail(status ezsp.Status) {
	if r := t.receiver(); r != nil {
		r.TransportFailed(status)
	}
}

// reject NAKs once per reject condition.
func (t *Transport) reject() {
	t.mu.Lock()
	if !t.connected || t.rejecting {
		t.mu.Unlock()
		return
	}
	t.rejecting = true
	ack := t.frmRx
	t.mu.Unlock()
	t.sendNak(ack)
}

func (t *Transport) sendAck(ack uint8) {
	if err := t.write(encodeFrame(ackControl(ack, false), nil)); err != nil {
		t.logger.Error("ash send ACK failed", "err", err)
		return
	}
	t.stats.txAck.Add(1)
}

func (t *Transport) sendNak(ack uint8) {
	if err := t.write(encodeFrame(nakControl(ack), nil)); err != nil {
		t.logger.Error("ash send NAK failed", "err", err)
		return
	}
	t.stats.txNak.Add(1)
}

// deliverLoop hands DATA payloads to the receiver on a goroutine of its own
// so the read loop keeps acknowledging while the engine dispatches.
func (t *Transport) deliverLoop(rx chan []byte, done chan struct{}) {
	defer t.wg.Done()
	for {
		select {
		case frame := <-rx:
			if r := t.receiver(); r != nil {
				r.FrameReceived(frame)
			}
		case <-done:
			return
		}
	}
}
