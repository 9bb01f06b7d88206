package engine

import "github.com/example/trafficsim/core"

// Marker is one in-flight (or recently terminal) request as the rendering
// layer sees it: parked at a node or part-way along an edge.
type Marker struct {
	RequestID  int64       `json:"requestId"`
	NodeID     string      `json:"nodeId,omitempty"`
	EdgeID     string      `json:"edgeId,omitempty"`
	Progress   float64     `json:"progress"`
	RetryCount int         `json:"retryCount"`
	Status     core.Status `json:"status"`
	Reason     core.Reason `json:"reason,omitempty"`
}

// Stats is the aggregate metrics feed published alongside each snapshot.
type Stats struct {
	Emitted           int64                        `json:"emitted"`
	Succeeded         int64                        `json:"succeeded"`
	Dropped           int64                        `json:"dropped"`
	Retries           int64                        `json:"retries"`
	DuplicateArrivals int64                        `json:"duplicateArrivals"`
	DroppedByReason   map[core.Reason]int64        `json:"droppedByReason"`
	AvgLatencyMs      float64                      `json:"avgLatencyMs"`
	EdgeUtilization   map[string]float64           `json:"edgeUtilization"`
	BreakerStates     map[string]core.BreakerState `json:"breakerStates"`
}

// Snapshot is the read-only per-tick projection of engine state. It is the
// only state the rendering layer may read; it never aliases scheduler or
// registry internals.
type Snapshot struct {
	RunID         string   `json:"runId"`
	Tick          int64    `json:"tick"`
	SimTimeMs     float64  `json:"simTimeMs"`
	InFlightCount int      `json:"inFlightCount"`
	Markers       []Marker `json:"markers"`
	Stats         Stats    `json:"stats"`
}

// buildSnapshot projects the registry into a frame after all transitions
// of the tick have settled. Markers come out in request creation order.
func (e *Engine) buildSnapshot() *Snapshot {
	markers := make([]Marker, 0, len(e.registry.ordered))
	for _, t := range e.registry.ordered {
		m := Marker{
			RequestID:  t.req.ID,
			Progress:   t.req.Loc.Progress,
			RetryCount: t.req.RetryCount,
			Status:     t.req.Status,
			Reason:     t.req.Reason,
		}
		if t.req.Loc.EdgeID != "" {
			m.EdgeID = t.req.Loc.EdgeID
		} else {
			m.NodeID = t.req.Loc.NodeID
		}
		markers = append(markers, m)
	}

	stats := e.stats
	stats.DroppedByReason = make(map[core.Reason]int64, len(e.droppedByReason))
	for reason, n := range e.droppedByReason {
		stats.DroppedByReason[reason] = n
	}
	if e.succeededCount > 0 {
		stats.AvgLatencyMs = e.latencySumMs / float64(e.succeededCount)
	}
	stats.EdgeUtilization = make(map[string]float64, len(e.graph.Edges))
	stats.BreakerStates = make(map[string]core.BreakerState, len(e.graph.Edges))
	for _, edge := range e.graph.Edges {
		stats.EdgeUtilization[edge.ID] = e.admit.EdgeUtilization(edge, core.DefaultPayloadBytes)
		stats.BreakerStates[edge.ID] = e.policy.BreakerState(edge.ID)
	}

	return &Snapshot{
		RunID:         e.runID,
		Tick:          e.tick,
		SimTimeMs:     float64(e.tick) * e.opts.TickMs,
		InFlightCount: e.registry.inFlightCount(),
		Markers:       markers,
		Stats:         stats,
	}
}
