package engine

import (
	"math"

	"github.com/example/trafficsim/admission"
	"github.com/example/trafficsim/core"
	"github.com/example/trafficsim/policy"
)

// The lifecycle state machine. All transitions mutate only the request's
// own state plus the shared admission/breaker counters; every method runs
// inside a tick on the engine goroutine.

func (e *Engine) nowMs() float64 {
	return float64(e.tick) * e.opts.TickMs
}

func (e *Engine) delayTicks(delayMs float64) int64 {
	ticks := int64(math.Ceil(delayMs / e.opts.TickMs))
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

func (e *Engine) processingTicks(n *core.Node) int64 {
	return e.delayTicks(n.ProcessingMs)
}

// createRequest emits one request from a client node and immediately tries
// to put it on its first edge.
func (e *Engine) createRequest(client *core.Node) {
	c := client.Client
	req := &core.Request{
		ID:           e.ids.Allocate(),
		Origin:       client.ID,
		TargetID:     c.TargetID,
		DestKind:     c.DestinationKind,
		ClientKey:    client.ID,
		PayloadBytes: c.PayloadBytes,
		CreatedAt:    e.tick,
		Status:       core.StatusCreated,
		Loc:          core.AtNode(client.ID),
	}
	t := &tracked{req: req, fromNodeID: client.ID}
	e.registry.add(t)
	e.stats.Emitted++
	e.collector.RecordEmitted(1)
	e.depart(t)
}

// depart runs routing resolution and edge admission out of t.fromNodeID.
// Retries funnel through here too, so a load-balanced retry may resolve a
// different replica than the failed attempt.
func (e *Engine) depart(t *tracked) {
	edge, err := e.resolver.NextHop(t.fromNodeID, t.req)
	if err != nil {
		e.drop(t, core.ReasonNoRoute)
		return
	}
	t.currentEdge = edge
	t.req.MaxRetries = edge.Retry.MaxRetries

	// An open breaker fails fast: no traversal latency, no random draw.
	if b := e.policy.Breaker(edge); b != nil && b.State() == core.BreakerOpen {
		e.drop(t, core.ReasonBreakerOpen)
		return
	}

	switch e.admit.AdmitEdge(edge, t.req.PayloadBytes, e.nowMs(), false) {
	case admission.Admitted:
		e.startTraversal(t, edge)
	case admission.Queued:
		e.parkWaiting(t, waitEdgeSlot)
	case admission.Rejected:
		e.transientFailure(t, edge)
	}
}

func (e *Engine) startTraversal(t *tracked, edge *core.Edge) {
	t.waiting = waitNone
	t.req.Status = core.StatusInTransit
	t.req.Loc = core.OnEdge(edge.ID, 0)
	t.enteredEdgeTick = e.tick
	t.attemptStartMs = e.nowMs()
}

func (e *Engine) parkWaiting(t *tracked, kind waitKind) {
	t.waiting = kind
	t.queuedTick = e.tick
	t.attemptStartMs = e.nowMs()
	t.req.Loc = core.AtNode(t.fromNodeID)
	e.waitFIFO = append(e.waitFIFO, t.req.ID)
}

// advanceTransit moves an in-transit request along its edge by one tick
// and handles arrival once progress reaches 1.
func (e *Engine) advanceTransit(t *tracked) {
	edge := t.currentEdge
	if edge.TimeoutMs > 0 && e.nowMs()-t.attemptStartMs > edge.TimeoutMs {
		e.admit.EndTraversal(edge.ID)
		e.timeoutFailure(t, edge)
		return
	}
	t.req.Loc.Progress += e.opts.TickMs / edge.LatencyMs
	if t.req.Loc.Progress < 1 {
		return
	}
	t.req.Loc.Progress = 1
	e.arrive(t)
}

// arrive consults the failure engine for the completed edge traversal.
func (e *Engine) arrive(t *tracked) {
	edge := t.currentEdge
	e.admit.EndTraversal(edge.ID)

	if edge.Queue != nil && edge.Queue.DeliveryGuarantee == core.DeliveryExactlyOnce && t.req.RetryCount > 0 {
		// A retried arrival over an exactly-once edge would be a duplicate
		// delivery; it is counted and delivered once.
		e.stats.DuplicateArrivals++
	}

	switch e.policy.AttemptEdge(edge, e.nowMs()) {
	case policy.OutcomeSuccess:
		e.enterNode(t, e.graph.NodeByID(edge.Target))
	case policy.OutcomeTransientFailure:
		e.transientFailure(t, edge)
	case policy.OutcomePermanentFailure:
		e.drop(t, core.ReasonBreakerOpen)
	}
}

// enterNode runs node admission at the traversed edge's target.
func (e *Engine) enterNode(t *tracked, node *core.Node) {
	if node == nil {
		e.drop(t, core.ReasonNoRoute)
		return
	}
	t.fromNodeID = node.ID
	t.procNodeID = node.ID
	t.req.Loc = core.AtNode(node.ID)

	switch e.admit.AdmitNode(node, e.nowMs(), false) {
	case admission.Admitted:
		e.beginProcessing(t, node)
	case admission.Queued:
		t.req.Status = core.StatusProcessing
		e.parkWaiting(t, waitNodeSlot)
	case admission.Rejected:
		e.transientFailure(t, t.currentEdge)
	}
}

func (e *Engine) beginProcessing(t *tracked, node *core.Node) {
	t.waiting = waitNone
	t.req.Status = core.StatusProcessing
	t.req.Loc = core.AtNode(node.ID)
	e.timers.schedule(e.tick+e.processingTicks(node), evProcessingDone, t.req.ID)
}

// onProcessingDone fires when a node finishes working on a request.
func (e *Engine) onProcessingDone(t *tracked) {
	if t.req.Status != core.StatusProcessing {
		return
	}
	node := e.graph.NodeByID(t.procNodeID)
	e.admit.ReleaseNode(t.procNodeID)
	if node == nil {
		e.drop(t, core.ReasonNoRoute)
		return
	}

	switch e.policy.AttemptNode(node) {
	case policy.OutcomeSuccess:
		if e.isDestination(t.req, node) {
			e.succeed(t)
			return
		}
		e.depart(t)
	default:
		e.transientFailure(t, t.currentEdge)
	}
}

// isDestination reports whether the request terminates at this node: its
// explicit target, the first node of its destination kind, or any sink
// when no destination was declared.
func (e *Engine) isDestination(req *core.Request, node *core.Node) bool {
	if req.TargetID != "" {
		return req.TargetID == node.ID
	}
	if req.DestKind != "" {
		return node.Kind == req.DestKind
	}
	return len(e.graph.Outgoing(node.ID)) == 0
}

// transientFailure feeds a sampled failure, capacity rejection or timeout
// into the retry policy of the governing edge.
func (e *Engine) transientFailure(t *tracked, edge *core.Edge) {
	if edge == nil {
		e.drop(t, core.ReasonNoRoute)
		return
	}
	if !edge.RetriesAllowed() {
		e.drop(t, core.ReasonRetriesDisabled)
		return
	}
	if t.req.RetryCount >= edge.Retry.MaxRetries {
		e.drop(t, core.ReasonRetriesExhausted)
		return
	}
	delay := policy.NextRetryDelay(edge, t.req.RetryCount)
	t.req.RetryCount++
	t.waiting = waitNone
	t.req.Status = core.StatusRetrying
	t.req.Loc = core.AtNode(t.fromNodeID)
	e.stats.Retries++
	e.collector.RecordRetry()
	e.timers.schedule(e.tick+e.delayTicks(delay), evRetryExpire, t.req.ID)
}

// timeoutFailure is a transient failure that drops immediately when the
// governing edge cannot retry, recording the timeout reason.
func (e *Engine) timeoutFailure(t *tracked, edge *core.Edge) {
	if edge == nil || !edge.RetriesAllowed() || t.req.RetryCount >= edge.Retry.MaxRetries {
		e.drop(t, core.ReasonTimeout)
		return
	}
	e.transientFailure(t, edge)
}

// onRetryExpire re-enters the routing/admission path unless the governing
// edge's breaker opened while the request was waiting.
func (e *Engine) onRetryExpire(t *tracked) {
	if t.req.Status != core.StatusRetrying {
		return
	}
	if b := e.policy.Breaker(t.currentEdge); b != nil && b.State() == core.BreakerOpen {
		e.drop(t, core.ReasonBreakerOpen)
		return
	}
	e.depart(t)
}

func (e *Engine) succeed(t *tracked) {
	t.req.Status = core.StatusSucceeded
	t.req.Reason = core.ReasonCompleted
	t.req.FinishedAt = e.tick
	e.stats.Succeeded++
	e.succeededCount++
	e.latencySumMs += t.req.LatencyMs
	e.collector.RecordSucceeded(t.req.LatencyMs)
}

func (e *Engine) drop(t *tracked, reason core.Reason) {
	switch t.waiting {
	case waitEdgeSlot:
		if t.currentEdge != nil {
			e.admit.UnqueueEdge(t.currentEdge.ID)
		}
	case waitNodeSlot:
		e.admit.UnqueueNode(t.procNodeID)
	}
	t.waiting = waitNone
	t.req.Status = core.StatusDropped
	t.req.Reason = reason
	t.req.FinishedAt = e.tick
	e.stats.Dropped++
	e.droppedByReason[reason]++
	e.collector.RecordDropped(string(reason))
}
