package ezsp

// classify records status and decides whether it escalates to an NCP reset.
// It never calls back into the engine, so it is safe under the correlator lock.
func (e *Engine) classify(status Status) bool {
	switch status {
	case StatusSuccess:
		return false
	case StatusOverflow:
		e.overflows.Add(1)
		e.logger.Warn("ezsp NCP reported memory overflow")
		return false
	case StatusQueueFull:
		e.queueFull.Add(1)
		e.logger.Warn("ezsp NCP callback queue full", "count", e.queueFull.Load())
		return false
	case StatusWrongDirection:
		e.logger.Warn("ezsp frame with wrong direction ignored")
		return false
	case StatusSecurityParametersInvalid:
		e.logger.Warn("ezsp NCP rejected security parameters")
		return false
	}
	e.logger.Error("ezsp error requires NCP reset", "status", status)
	return true
}

// requestReset publishes the reset decision. Must not be called while the
// correlator lock is held.
func (e *Engine) requestReset(status Status) {
	e.resetRequests.Add(1)
	e.events.Emit(Event{Type: EventNCPNeedsReset, Data: NCPNeedsResetEvent{Status: status}})
}
