package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/trafficsim/core"
)

func edgeWithStrategy(strategy core.RetryStrategy, intervalMs float64) *core.Edge {
	return &core.Edge{
		ID:    "e1",
		Retry: core.RetryPolicy{Strategy: strategy, IntervalMs: intervalMs, MaxRetries: 5},
	}
}

func TestNextRetryDelayLinear(t *testing.T) {
	e := edgeWithStrategy(core.RetryLinear, 100)
	assert.Equal(t, 100.0, NextRetryDelay(e, 0))
	assert.Equal(t, 200.0, NextRetryDelay(e, 1))
	assert.Equal(t, 500.0, NextRetryDelay(e, 4))
}

func TestNextRetryDelayExponential(t *testing.T) {
	e := edgeWithStrategy(core.RetryExponential, 100)
	assert.Equal(t, 100.0, NextRetryDelay(e, 0))
	assert.Equal(t, 200.0, NextRetryDelay(e, 1))
	assert.Equal(t, 1600.0, NextRetryDelay(e, 4))
}

func TestNextRetryDelayExponentialCapped(t *testing.T) {
	e := edgeWithStrategy(core.RetryExponential, 1)
	capped := NextRetryDelay(e, maxBackoffShift)
	assert.Equal(t, capped, NextRetryDelay(e, maxBackoffShift+1))
	assert.Equal(t, capped, NextRetryDelay(e, 1000))
	assert.Greater(t, capped, 0.0)
}

func TestNextRetryDelayConstant(t *testing.T) {
	e := edgeWithStrategy(core.RetryConstant, 50)
	for count := 0; count < 4; count++ {
		assert.Equal(t, 50.0, NextRetryDelay(e, count))
	}
}
