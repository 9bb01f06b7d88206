package policy

import (
	"math/rand"

	"github.com/example/trafficsim/core"
)

// Outcome is the result of a single delivery or processing attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransientFailure
	OutcomePermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransientFailure:
		return "transient-failure"
	case OutcomePermanentFailure:
		return "permanent-failure"
	}
	return "unknown"
}

// Engine samples attempt outcomes from a shared seeded generator and owns
// the per-edge circuit breakers. One Engine instance belongs to one
// simulation run; identical seeds reproduce identical outcome streams.
type Engine struct {
	rng      *rand.Rand
	breakers map[string]*Breaker
}

// NewEngine creates a policy engine over the given generator. Breakers are
// registered lazily for edges that enable them.
func NewEngine(rng *rand.Rand) *Engine {
	return &Engine{
		rng:      rng,
		breakers: make(map[string]*Breaker),
	}
}

// Breaker returns the circuit breaker for an edge, creating it on first use.
// Edges without breaker configuration return nil.
func (en *Engine) Breaker(e *core.Edge) *Breaker {
	if e == nil || e.Breaker == nil || !e.Breaker.Enabled {
		return nil
	}
	b, ok := en.breakers[e.ID]
	if !ok {
		b = NewBreaker(*e.Breaker)
		en.breakers[e.ID] = b
	}
	return b
}

// BreakerState reports the breaker state of an edge for snapshots; edges
// without a breaker report Closed.
func (en *Engine) BreakerState(edgeID string) core.BreakerState {
	if b, ok := en.breakers[edgeID]; ok {
		return b.State()
	}
	return core.BreakerClosed
}

// AdvanceBreakers flips Open breakers whose cool-down elapsed to Half-Open.
// The engine calls it once per tick, in edge creation order, before any
// attempt is sampled.
func (en *Engine) AdvanceBreakers(g *core.Graph, nowMs float64) {
	for _, e := range g.Edges {
		if b, ok := en.breakers[e.ID]; ok {
			b.advance(nowMs)
		}
	}
}

// AttemptEdge samples the outcome of delivering a request over an edge.
// While the edge's breaker is open the attempt short-circuits to
// PermanentFailure without consuming the random stream.
func (en *Engine) AttemptEdge(e *core.Edge, nowMs float64) Outcome {
	b := en.Breaker(e)
	if b != nil && !b.Allow(nowMs) {
		return OutcomePermanentFailure
	}
	if en.rng.Float64() < e.PacketLossRate {
		if b != nil {
			b.RecordFailure(nowMs)
		}
		return OutcomeTransientFailure
	}
	if en.rng.Float64() < e.FailureProbability {
		if b != nil {
			b.RecordFailure(nowMs)
		}
		return OutcomeTransientFailure
	}
	if b != nil {
		b.RecordSuccess()
	}
	return OutcomeSuccess
}

// AttemptNode samples node-intrinsic failure after processing completes.
// An unhealthy node fails deterministically without consuming the stream.
func (en *Engine) AttemptNode(n *core.Node) Outcome {
	if !n.IsHealthy() {
		return OutcomeTransientFailure
	}
	if en.rng.Float64() < n.FailureProbability {
		return OutcomeTransientFailure
	}
	return OutcomeSuccess
}

// Float64 exposes the shared stream for collaborators that must draw from
// the same deterministic sequence (weighted routing).
func (en *Engine) Float64() float64 {
	return en.rng.Float64()
}
