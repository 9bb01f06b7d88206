package admission

import (
	"math"

	"github.com/example/trafficsim/core"
)

// Decision is the outcome of an admission check.
type Decision int

const (
	Admitted Decision = iota
	Queued
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Admitted:
		return "admitted"
	case Queued:
		return "queued"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// DefaultQueueBound caps each admission queue; beyond it requests are
// rejected and fed to the retry policy as transient failures.
const DefaultQueueBound = 64

// gate enforces a concurrency ceiling plus a requests-per-second counter
// that resets each simulated second.
type gate struct {
	inFlight    int
	queued      int
	windowStart int64
	windowCount int
}

func (g *gate) roll(nowMs float64) {
	window := int64(nowMs) / 1000
	if window != g.windowStart {
		g.windowStart = window
		g.windowCount = 0
	}
}

// Controller enforces per-node and per-edge capacity ceilings. It owns the
// shared counters the lifecycle consults each tick; all mutation happens
// inside a tick, so no locking is required.
type Controller struct {
	queueBound int
	nodes      map[string]*gate
	edges      map[string]*gate
}

// NewController creates a controller with the given queue bound
// (DefaultQueueBound when zero or negative).
func NewController(queueBound int) *Controller {
	if queueBound <= 0 {
		queueBound = DefaultQueueBound
	}
	return &Controller{
		queueBound: queueBound,
		nodes:      make(map[string]*gate),
		edges:      make(map[string]*gate),
	}
}

func (c *Controller) nodeGate(id string) *gate {
	g, ok := c.nodes[id]
	if !ok {
		g = &gate{windowStart: -1}
		c.nodes[id] = g
	}
	return g
}

func (c *Controller) edgeGate(id string) *gate {
	g, ok := c.edges[id]
	if !ok {
		g = &gate{windowStart: -1}
		c.edges[id] = g
	}
	return g
}

// AdmitNode decides whether a request may start processing at a node now.
// alreadyQueued marks a re-attempt by a request that already holds a queue
// slot; such requests never get rejected, they keep waiting until their
// timeout expires.
func (c *Controller) AdmitNode(n *core.Node, nowMs float64, alreadyQueued bool) Decision {
	g := c.nodeGate(n.ID)
	g.roll(nowMs)
	if g.inFlight < n.MaxConcurrent && g.windowCount < n.MaxRPS {
		g.inFlight++
		g.windowCount++
		if alreadyQueued {
			g.queued--
		}
		return Admitted
	}
	if alreadyQueued {
		return Queued
	}
	if g.queued >= c.queueBound {
		return Rejected
	}
	g.queued++
	return Queued
}

// ReleaseNode returns a processing slot after completion or failure.
func (c *Controller) ReleaseNode(nodeID string) {
	g := c.nodeGate(nodeID)
	if g.inFlight > 0 {
		g.inFlight--
	}
}

// UnqueueNode gives back a queue slot when a queued request times out.
func (c *Controller) UnqueueNode(nodeID string) {
	g := c.nodeGate(nodeID)
	if g.queued > 0 {
		g.queued--
	}
}

// AdmitEdge decides whether a request may enter an edge now, enforcing the
// throughput ceiling derived from the edge's declared limits and the
// request payload.
func (c *Controller) AdmitEdge(e *core.Edge, payloadBytes int, nowMs float64, alreadyQueued bool) Decision {
	g := c.edgeGate(e.ID)
	g.roll(nowMs)
	if g.windowCount < throughputCeiling(e, payloadBytes) {
		g.windowCount++
		g.inFlight++
		if alreadyQueued {
			g.queued--
		}
		return Admitted
	}
	if alreadyQueued {
		return Queued
	}
	if g.queued >= c.queueBound {
		return Rejected
	}
	g.queued++
	return Queued
}

// UnqueueEdge gives back an edge queue slot when a queued request times out.
func (c *Controller) UnqueueEdge(edgeID string) {
	g := c.edgeGate(edgeID)
	if g.queued > 0 {
		g.queued--
	}
}

// EndTraversal marks a request as having left an edge.
func (c *Controller) EndTraversal(edgeID string) {
	g := c.edgeGate(edgeID)
	if g.inFlight > 0 {
		g.inFlight--
	}
}

// EdgeInFlight reports how many requests currently traverse an edge. It
// implements routing.LoadReporter for least-connections balancing.
func (c *Controller) EdgeInFlight(edgeID string) int {
	return c.edgeGate(edgeID).inFlight
}

// NodeInFlight reports how many requests a node is processing.
func (c *Controller) NodeInFlight(nodeID string) int {
	return c.nodeGate(nodeID).inFlight
}

// EdgeUtilization reports the fraction of the edge's throughput ceiling
// consumed in the current one-second window; unbounded edges report 0.
func (c *Controller) EdgeUtilization(e *core.Edge, payloadBytes int) float64 {
	ceiling := throughputCeiling(e, payloadBytes)
	if ceiling <= 0 || ceiling == math.MaxInt32 {
		return 0
	}
	return float64(c.edgeGate(e.ID).windowCount) / float64(ceiling)
}

// throughputCeiling converts the edge's declared limits into requests per
// simulated second. MaxThroughputRPS wins when set; otherwise the ceiling
// derives from bandwidth and payload size; with neither set the edge is
// unbounded.
func throughputCeiling(e *core.Edge, payloadBytes int) int {
	if e.MaxThroughputRPS > 0 {
		return e.MaxThroughputRPS
	}
	if e.BandwidthMbps > 0 && payloadBytes > 0 {
		bytesPerSec := e.BandwidthMbps * 1e6 / 8
		ceiling := int(bytesPerSec / float64(payloadBytes))
		if ceiling < 1 {
			ceiling = 1
		}
		return ceiling
	}
	return math.MaxInt32
}
