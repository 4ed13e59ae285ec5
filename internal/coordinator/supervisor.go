package coordinator

import (
	"context"
	"time"

	"zigbee-ezsp-host/internal/ezsp"
)

// supervise owns the session after Start. Every EZSP command issued on
// behalf of an event goes through here, never from an event handler.
func (c *Coordinator) supervise(ctx context.Context) {
	defer c.wg.Done()

	poll := time.NewTicker(c.config.PollInterval)
	defer poll.Stop()
	counters := time.NewTicker(c.config.CountersInterval)
	defer counters.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case status := <-c.resetCh:
			c.recoverNCP(ctx, status)
		case <-poll.C:
			c.pollCallbacks(ctx)
		case <-counters.C:
			if _, err := c.Counters(ctx); err != nil {
				c.logger.Warn("counters snapshot", "err", err)
			}
		}
	}
}

// pollCallbacks drains the NCP callback queue when the last frame said it
// had callbacks pending.
func (c *Coordinator) pollCallbacks(ctx context.Context) {
	if !c.isStarted() || !c.engine.CallbacksPending() {
		return
	}
	pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.engine.Callback(pollCtx); err != nil {
		c.logger.Debug("callback poll", "err", err)
	}
}

// recoverNCP tears the session down and brings it up again with an
// exponential backoff until it succeeds or ctx ends.
func (c *Coordinator) recoverNCP(ctx context.Context, status ezsp.Status) {
	n := c.resets.Add(1)
	c.logger.Warn("NCP needs reset, reinitializing", "status", status, "resets", n)
	c.setStarted(false)
	c.emit(EventNetworkState, NetworkStateEvent{State: StateResetting, Reason: status.String()})

	backoff := c.config.ResetBackoff
	for attempt := 1; ; attempt++ {
		c.engine.Stop()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		err := c.bringUp(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("reinitialization failed", "attempt", attempt, "err", err, "retryIn", backoff*2)
		backoff *= 2
		if backoff > c.config.MaxResetBackoff {
			backoff = c.config.MaxResetBackoff
		}
	}

	// Reset requests raised while the old session was failing are stale.
	select {
	case <-c.resetCh:
	default:
	}
	c.logger.Info("NCP reinitialized", "resets", n)
}
