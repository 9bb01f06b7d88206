package core

// Status is the lifecycle state of a request.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInTransit  Status = "in-transit"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusDropped    Status = "dropped"
)

// Terminal reports whether the status ends the request lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusDropped || s == StatusFailed
}

// Reason records why a request reached a terminal status.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonCompleted        Reason = "completed"
	ReasonNoRoute          Reason = "no-route"
	ReasonRetriesExhausted Reason = "retries-exhausted"
	ReasonRetriesDisabled  Reason = "retries-disabled"
	ReasonBreakerOpen      Reason = "breaker-open"
	ReasonTimeout          Reason = "timeout"
	ReasonQueueOverflow    Reason = "queue-overflow"
	ReasonUnhealthyTarget  Reason = "unhealthy-target"
)

// Location is where a request currently sits: at a node, or on an edge at
// a fractional traversal progress in [0,1].
type Location struct {
	NodeID   string
	EdgeID   string
	Progress float64
}

// AtNode returns a location parked at a node.
func AtNode(nodeID string) Location {
	return Location{NodeID: nodeID}
}

// OnEdge returns a location traversing an edge.
func OnEdge(edgeID string, progress float64) Location {
	return Location{EdgeID: edgeID, Progress: progress}
}

// Request is the mutable simulation entity. It is created by the scheduler
// on a client emission tick and mutated exclusively by the lifecycle state
// machine.
type Request struct {
	ID     int64
	Origin string

	// Destination: explicit node ID, or a node kind, or neither (first sink).
	TargetID string
	DestKind NodeKind

	// ClientKey is the stable identity used by sticky (ip-hash) balancing.
	ClientKey string

	PayloadBytes int

	CreatedAt  int64 // tick of creation
	FinishedAt int64 // tick of terminal transition, 0 while in flight

	Status Status
	Loc    Location
	Reason Reason

	RetryCount int
	MaxRetries int

	// LatencyMs accumulates simulated end-to-end latency, including retry
	// wait and queue wait.
	LatencyMs float64
}

// InFlight reports whether the request still participates in the simulation.
func (r *Request) InFlight() bool {
	return !r.Status.Terminal()
}

// RequestIDAllocator hands out sequential request IDs. Sequential IDs keep
// snapshot output reproducible for a fixed seed.
type RequestIDAllocator struct {
	next int64
}

// NewRequestIDAllocator starts allocation at 1.
func NewRequestIDAllocator() *RequestIDAllocator {
	return &RequestIDAllocator{next: 1}
}

// Allocate returns the next request ID.
func (a *RequestIDAllocator) Allocate() int64 {
	id := a.next
	a.next++
	return id
}
