package ezsp

import (
	"sync"
	"time"
)

type pendingState uint8

const (
	stateIdle pendingState = iota
	stateAwaiting
	stateResolved
	stateTimedOut
)

func (s pendingState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaiting:
		return "awaiting"
	case stateResolved:
		return "resolved"
	case stateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// correlator pairs the single in-flight command with the next response
// frame. Exactly one of resolve or the timer completes each armed request;
// the loser of that race finds the state no longer Awaiting and does nothing.
type correlator struct {
	mu     sync.Mutex
	state  pendingState
	id     FrameID
	gen    uint64
	timer  *time.Timer
	result chan Status
}

// arm moves Idle/Resolved/TimedOut to Awaiting and starts the deadline.
// The returned channel receives exactly one status.
func (c *correlator) arm(id FrameID, timeout time.Duration, onTimeout func(FrameID)) <-chan Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	gen := c.gen
	c.state = stateAwaiting
	c.id = id
	c.result = make(chan Status, 1)
	c.timer = time.AfterFunc(timeout, func() {
		if c.expire(gen) {
			onTimeout(id)
		}
	})
	return c.result
}

// resolve completes the awaiting request with status after fn has run under
// the lock. It reports false, without calling fn, when nothing is awaiting.
func (c *correlator) resolve(fn func() Status) (FrameID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateAwaiting {
		return 0, false
	}
	c.timer.Stop()
	status := fn()
	c.state = stateResolved
	c.result <- status
	return c.id, true
}

// cancel abandons the awaiting request, used when the transport refused the frame.
func (c *correlator) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateAwaiting {
		return
	}
	c.timer.Stop()
	c.state = stateIdle
}

func (c *correlator) expire(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != stateAwaiting {
		return false
	}
	c.state = stateTimedOut
	c.result <- StatusNoResponse
	return true
}

// pending reports whether a request is awaiting its response.
func (c *correlator) pending() (FrameID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id, c.state == stateAwaiting
}

func (c *correlator) current() pendingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
