package engine

import "github.com/example/trafficsim/core"

// waitKind marks what a queued request is waiting for.
type waitKind int

const (
	waitNone waitKind = iota
	waitEdgeSlot
	waitNodeSlot
)

// tracked wraps a request with the runtime bookkeeping the lifecycle needs
// and the snapshot must not expose.
type tracked struct {
	req *core.Request

	// currentEdge is the edge being traversed, retried or waited on; it is
	// the edge whose retry policy and timeout govern the request.
	currentEdge *core.Edge

	// fromNodeID is the node the request last departed (or is departing)
	// from; retries re-run routing resolution from here.
	fromNodeID string

	// procNodeID is set while processing or waiting for a processing slot.
	procNodeID string

	// enteredEdgeTick prevents a request from advancing on the tick it
	// entered an edge, so a traversal always takes at least one tick.
	enteredEdgeTick int64

	// attemptStartMs is when the current attempt (traversal or wait)
	// began, in simulated milliseconds; timeouts compare against it.
	attemptStartMs float64

	waiting waitKind

	// queuedTick is when the request joined an admission queue; queued
	// requests re-attempt admission only on subsequent ticks.
	queuedTick int64
}

// registry holds all live and recently-terminal requests in creation
// order. Creation order drives every per-request iteration in a tick,
// which keeps runs reproducible for a fixed seed.
type registry struct {
	ordered []*tracked
	byID    map[int64]*tracked
}

func newRegistry() *registry {
	return &registry{byID: make(map[int64]*tracked)}
}

func (r *registry) add(t *tracked) {
	r.ordered = append(r.ordered, t)
	r.byID[t.req.ID] = t
}

func (r *registry) get(id int64) *tracked {
	return r.byID[id]
}

// prune removes terminal requests whose visibility window has elapsed.
func (r *registry) prune(tick, visibilityTicks int64) {
	kept := r.ordered[:0]
	for _, t := range r.ordered {
		if t.req.Status.Terminal() && tick-t.req.FinishedAt > visibilityTicks {
			delete(r.byID, t.req.ID)
			continue
		}
		kept = append(kept, t)
	}
	r.ordered = kept
}

func (r *registry) inFlightCount() int {
	n := 0
	for _, t := range r.ordered {
		if t.req.InFlight() {
			n++
		}
	}
	return n
}

func (r *registry) reset() {
	r.ordered = nil
	r.byID = make(map[int64]*tracked)
}
