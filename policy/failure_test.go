package policy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trafficsim/core"
)

func newTestEngine(seed int64) *Engine {
	return NewEngine(rand.New(rand.NewSource(seed)))
}

func TestAttemptEdgeAlwaysSucceedsWithZeroProbabilities(t *testing.T) {
	en := newTestEngine(1)
	e := &core.Edge{ID: "e1"}
	for i := 0; i < 100; i++ {
		assert.Equal(t, OutcomeSuccess, en.AttemptEdge(e, 0))
	}
}

func TestAttemptEdgeTotalPacketLossAlwaysFails(t *testing.T) {
	en := newTestEngine(1)
	e := &core.Edge{ID: "e1", PacketLossRate: 1.0}
	for i := 0; i < 100; i++ {
		assert.Equal(t, OutcomeTransientFailure, en.AttemptEdge(e, 0))
	}
}

func TestAttemptEdgeCertainFailureProbability(t *testing.T) {
	en := newTestEngine(1)
	e := &core.Edge{ID: "e1", FailureProbability: 1.0}
	assert.Equal(t, OutcomeTransientFailure, en.AttemptEdge(e, 0))
}

func TestAttemptNodeUnhealthyFailsWithoutConsumingStream(t *testing.T) {
	en := newTestEngine(7)
	unhealthy := false
	n := &core.Node{ID: "n1", Healthy: &unhealthy}
	assert.Equal(t, OutcomeTransientFailure, en.AttemptNode(n))

	// The stream was untouched: the next draw matches a fresh generator.
	fresh := rand.New(rand.NewSource(7))
	assert.Equal(t, fresh.Float64(), en.Float64())
}

func TestAttemptEdgeOpenBreakerShortCircuits(t *testing.T) {
	en := newTestEngine(42)
	e := &core.Edge{
		ID:             "e1",
		PacketLossRate: 1.0,
		Breaker:        &core.BreakerParams{Enabled: true, FailureThreshold: 2, CooldownMs: 10000},
	}

	require.Equal(t, OutcomeTransientFailure, en.AttemptEdge(e, 0))
	require.Equal(t, OutcomeTransientFailure, en.AttemptEdge(e, 0))
	require.Equal(t, core.BreakerOpen, en.BreakerState("e1"))

	// Two draws were consumed so far (one per packet-loss sample).
	fresh := rand.New(rand.NewSource(42))
	fresh.Float64()
	fresh.Float64()

	// Fail-fast must not consume the stream.
	assert.Equal(t, OutcomePermanentFailure, en.AttemptEdge(e, 0))
	assert.Equal(t, OutcomePermanentFailure, en.AttemptEdge(e, 0))
	assert.Equal(t, fresh.Float64(), en.Float64())
}

func TestAttemptOutcomesAreDeterministicPerSeed(t *testing.T) {
	e := &core.Edge{ID: "e1", PacketLossRate: 0.3, FailureProbability: 0.2}
	runs := make([][]Outcome, 2)
	for run := 0; run < 2; run++ {
		en := newTestEngine(99)
		for i := 0; i < 50; i++ {
			runs[run] = append(runs[run], en.AttemptEdge(e, 0))
		}
	}
	assert.Equal(t, runs[0], runs[1])
}

func TestBreakerStateDefaultsClosed(t *testing.T) {
	en := newTestEngine(1)
	assert.Equal(t, core.BreakerClosed, en.BreakerState("unknown"))
}
