package ezsp

import (
	"context"
	"time"
)

// Transport is the link layer beneath the engine, typically ASH over a
// serial port.
type Transport interface {
	Start(ctx context.Context) error
	Stop()
	// ResetNCP hard-resets the co-processor and re-synchronises the link.
	ResetNCP(ctx context.Context) error
	// Send hands one fully encoded EZSP frame to the link layer. The frame
	// must not be retained after Send returns.
	Send(frame []byte) error
	Connected() bool
	// ResponseTimeout is how long a command may wait for its reply.
	ResponseTimeout() time.Duration
	// SetReceiver registers the sink for inbound frames and fatal errors.
	SetReceiver(r Receiver)
}

// Receiver consumes inbound traffic from a Transport.
type Receiver interface {
	// FrameReceived is called once per inbound EZSP frame, from a single
	// goroutine. The slice is only valid for the duration of the call.
	FrameReceived(frame []byte)
	// TransportFailed reports a condition the link layer cannot recover from.
	TransportFailed(status Status)
}
