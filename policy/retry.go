package policy

import "github.com/example/trafficsim/core"

// maxBackoffShift caps the exponential strategy so the delay never
// overflows: 2^20 ticks of a base interval is already beyond any
// practical simulation horizon.
const maxBackoffShift = 20

// NextRetryDelay computes the delay in simulated milliseconds before the
// retryCount-th re-attempt over the edge.
func NextRetryDelay(e *core.Edge, retryCount int) float64 {
	base := e.Retry.IntervalMs
	switch e.Retry.Strategy {
	case core.RetryLinear:
		return base * float64(retryCount+1)
	case core.RetryExponential:
		shift := retryCount
		if shift > maxBackoffShift {
			shift = maxBackoffShift
		}
		return base * float64(int64(1)<<uint(shift))
	case core.RetryConstant:
		return base
	}
	return base
}
