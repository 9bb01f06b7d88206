package policy

import "github.com/example/trafficsim/core"

// Breaker is the per-edge circuit breaker state machine:
// Closed -> Open after FailureThreshold consecutive failures, Open ->
// Half-Open once the cool-down elapses, Half-Open -> Closed on a trial
// success or back to Open on a trial failure.
type Breaker struct {
	cfg core.BreakerParams

	state       core.BreakerState
	consecutive int
	openedAtMs  float64
	trialTaken  bool
}

// NewBreaker creates a closed breaker with the given parameters.
func NewBreaker(cfg core.BreakerParams) *Breaker {
	return &Breaker{cfg: cfg, state: core.BreakerClosed}
}

// State returns the current breaker state.
func (b *Breaker) State() core.BreakerState {
	return b.state
}

// advance moves Open to Half-Open once the cool-down from the open
// timestamp has elapsed.
func (b *Breaker) advance(nowMs float64) {
	if b.state == core.BreakerOpen && nowMs-b.openedAtMs >= b.cfg.CooldownMs {
		b.state = core.BreakerHalfOpen
		b.trialTaken = false
	}
}

// Allow reports whether an attempt may proceed now. Open blocks everything;
// Half-Open admits exactly one trial attempt per cool-down window.
func (b *Breaker) Allow(nowMs float64) bool {
	b.advance(nowMs)
	switch b.state {
	case core.BreakerOpen:
		return false
	case core.BreakerHalfOpen:
		if b.trialTaken {
			return false
		}
		b.trialTaken = true
		return true
	}
	return true
}

// RecordSuccess feeds a successful attempt back into the breaker.
func (b *Breaker) RecordSuccess() {
	switch b.state {
	case core.BreakerHalfOpen:
		b.state = core.BreakerClosed
		b.consecutive = 0
	case core.BreakerClosed:
		b.consecutive = 0
	}
}

// RecordFailure feeds a failed attempt back into the breaker.
func (b *Breaker) RecordFailure(nowMs float64) {
	switch b.state {
	case core.BreakerHalfOpen:
		b.state = core.BreakerOpen
		b.openedAtMs = nowMs
	case core.BreakerClosed:
		b.consecutive++
		if b.consecutive >= b.cfg.FailureThreshold {
			b.state = core.BreakerOpen
			b.openedAtMs = nowMs
			b.consecutive = 0
		}
	}
}
