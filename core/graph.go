package core

// NodeKind identifies the architectural role of a node in the design graph.
type NodeKind string

const (
	NodeClient       NodeKind = "client"
	NodeServer       NodeKind = "server"
	NodeLoadBalancer NodeKind = "load-balancer"
	NodeCache        NodeKind = "cache"
	NodeDatabase     NodeKind = "database"
	NodeBroker       NodeKind = "message-broker"
)

// Protocol classifies the link type between two nodes.
type Protocol string

const (
	ProtocolHTTP        Protocol = "http"
	ProtocolGRPC        Protocol = "grpc"
	ProtocolTCP         Protocol = "tcp"
	ProtocolUDP         Protocol = "udp"
	ProtocolWebSocket   Protocol = "websocket"
	ProtocolKafka       Protocol = "kafka"
	ProtocolMQTT        Protocol = "mqtt"
	ProtocolAMQP        Protocol = "amqp"
	ProtocolDatabase    Protocol = "database"
	ProtocolEventStream Protocol = "event-stream"
)

// IsQueueFamily reports whether the protocol is a message-queue style link,
// which carries a delivery guarantee.
func (p Protocol) IsQueueFamily() bool {
	switch p {
	case ProtocolKafka, ProtocolMQTT, ProtocolAMQP, ProtocolEventStream:
		return true
	}
	return false
}

// LBAlgorithm selects how a load balancer spreads requests over its
// outgoing edges.
type LBAlgorithm string

const (
	LBRoundRobin       LBAlgorithm = "round-robin"
	LBLeastConnections LBAlgorithm = "least-connections"
	LBIPHash           LBAlgorithm = "ip-hash"
	LBWeighted         LBAlgorithm = "weighted"
)

// RetryStrategy selects the backoff curve for retry delays.
type RetryStrategy string

const (
	RetryLinear      RetryStrategy = "linear"
	RetryExponential RetryStrategy = "exponential"
	RetryConstant    RetryStrategy = "constant"
)

// Reliability is the reliability contract declared on an edge.
type Reliability string

const (
	ReliabilityBestEffort  Reliability = "best-effort"
	ReliabilityAtLeastOnce Reliability = "at-least-once"
	ReliabilityExactlyOnce Reliability = "exactly-once"
	ReliabilityACID        Reliability = "acid"
)

// DeliveryGuarantee is the delivery contract of a queue-family edge.
type DeliveryGuarantee string

const (
	DeliveryAtMostOnce  DeliveryGuarantee = "at-most-once"
	DeliveryAtLeastOnce DeliveryGuarantee = "at-least-once"
	DeliveryExactlyOnce DeliveryGuarantee = "exactly-once"
)

// BreakerState is the runtime state of an edge's circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// EmissionPattern selects how a client node spaces request emissions.
type EmissionPattern string

const (
	PatternSteady   EmissionPattern = "steady"
	PatternBursty   EmissionPattern = "bursty"
	PatternPeriodic EmissionPattern = "periodic"
	PatternRandom   EmissionPattern = "random"
)

// ClientParams configures request emission for client nodes.
// Only nodes with Kind == NodeClient carry this section.
type ClientParams struct {
	Pattern EmissionPattern `yaml:"pattern"`

	// RatePerTick is requests emitted per tick for the steady pattern and
	// the per-tick emission probability for the random pattern.
	RatePerTick float64 `yaml:"ratePerTick"`

	// Bursty pattern: BurstSize requests every BurstEveryTicks ticks.
	BurstSize       int `yaml:"burstSize"`
	BurstEveryTicks int `yaml:"burstEveryTicks"`

	// Periodic pattern: one request every PeriodTicks ticks, or, when
	// CronSpec is set, emissions at the cron schedule mapped onto the
	// simulated timeline.
	PeriodTicks int    `yaml:"periodTicks"`
	CronSpec    string `yaml:"cronSpec"`

	// Destination: either an explicit node ID or a node kind. When both
	// are empty the request terminates at the first sink it reaches.
	TargetID        string   `yaml:"targetId"`
	DestinationKind NodeKind `yaml:"destinationKind"`

	PayloadBytes int `yaml:"payloadBytes"`
}

// BalancerParams configures routing for load-balancer nodes.
type BalancerParams struct {
	Algorithm LBAlgorithm `yaml:"algorithm"`
}

// Node is one vertex of the design graph. Capacity and reliability fields
// apply to every kind; the variant sections apply per kind and validation
// rejects a section attached to the wrong kind.
type Node struct {
	ID    string   `yaml:"id"`
	Kind  NodeKind `yaml:"kind"`
	Label string   `yaml:"label"`

	// capacity
	MaxConcurrent int     `yaml:"maxConcurrent"`
	MaxRPS        int     `yaml:"maxRps"`
	ProcessingMs  float64 `yaml:"processingMs"`

	// reliability
	FailureProbability float64 `yaml:"failureProbability"`
	Healthy            *bool   `yaml:"healthy"`

	Client   *ClientParams   `yaml:"client,omitempty"`
	Balancer *BalancerParams `yaml:"balancer,omitempty"`
}

// IsHealthy reports the node health-check state; nodes default to healthy.
func (n *Node) IsHealthy() bool {
	return n.Healthy == nil || *n.Healthy
}

// RetryPolicy is the resilience contract governing attempts over an edge.
type RetryPolicy struct {
	Enabled    *bool         `yaml:"enabled"`
	Strategy   RetryStrategy `yaml:"strategy"`
	MaxRetries int           `yaml:"maxRetries"`
	IntervalMs float64       `yaml:"intervalMs"`
}

// IsEnabled reports whether retries are on; policies default to enabled.
func (p RetryPolicy) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// BreakerParams configures the per-edge circuit breaker.
type BreakerParams struct {
	Enabled          bool    `yaml:"enabled"`
	FailureThreshold int     `yaml:"failureThreshold"`
	CooldownMs       float64 `yaml:"cooldownMs"`
}

// QueueParams is present only on queue-family edges.
type QueueParams struct {
	DeliveryGuarantee DeliveryGuarantee `yaml:"deliveryGuarantee"`
}

// Edge is one directed link of the design graph.
type Edge struct {
	ID     string   `yaml:"id"`
	Source string   `yaml:"source"`
	Target string   `yaml:"target"`
	Proto  Protocol `yaml:"protocol"`

	// performance
	LatencyMs        float64 `yaml:"latencyMs"`
	BandwidthMbps    float64 `yaml:"bandwidthMbps"`
	MaxThroughputRPS int     `yaml:"maxThroughputRps"`

	// reliability
	PacketLossRate     float64     `yaml:"packetLossRate"`
	FailureProbability float64     `yaml:"failureProbability"`
	Reliability        Reliability `yaml:"reliability"`

	// resilience
	Retry     RetryPolicy    `yaml:"retry"`
	TimeoutMs float64        `yaml:"timeoutMs"`
	Breaker   *BreakerParams `yaml:"breaker,omitempty"`

	// routing
	Weight int          `yaml:"weight"`
	Queue  *QueueParams `yaml:"queue,omitempty"`
}

// RetriesAllowed reports whether a failed attempt over this edge may retry.
// At-most-once delivery suppresses retries regardless of the retry policy.
func (e *Edge) RetriesAllowed() bool {
	if e.Queue != nil && e.Queue.DeliveryGuarantee == DeliveryAtMostOnce {
		return false
	}
	return e.Retry.IsEnabled()
}

// Graph is the immutable-per-run design graph consumed by the engine.
type Graph struct {
	Nodes []*Node `yaml:"nodes"`
	Edges []*Edge `yaml:"edges"`

	nodeByID map[string]*Node
	edgeByID map[string]*Edge
	outgoing map[string][]*Edge
}

// Index builds the lookup tables. It must be called once after the graph is
// assembled and before any resolver or engine use.
func (g *Graph) Index() {
	g.nodeByID = make(map[string]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		g.nodeByID[n.ID] = n
	}
	g.edgeByID = make(map[string]*Edge, len(g.Edges))
	g.outgoing = make(map[string][]*Edge, len(g.Nodes))
	for _, e := range g.Edges {
		g.edgeByID[e.ID] = e
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
	}
}

// NodeByID returns the node with the given ID, or nil.
func (g *Graph) NodeByID(id string) *Node {
	return g.nodeByID[id]
}

// EdgeByID returns the edge with the given ID, or nil.
func (g *Graph) EdgeByID(id string) *Edge {
	return g.edgeByID[id]
}

// Outgoing returns the outgoing edges of a node in creation order.
func (g *Graph) Outgoing(nodeID string) []*Edge {
	return g.outgoing[nodeID]
}
