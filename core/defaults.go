package core

// Documented defaults applied to omitted node/edge fields. The diagram
// editor may leave most fields empty; ApplyDefaults fills them before
// validation so the engine never sees a zero ceiling or a zero latency.
const (
	DefaultLatencyMs        = 100.0
	DefaultProcessingMs     = 50.0
	DefaultMaxConcurrent    = 100
	DefaultMaxRPS           = 1000
	DefaultTimeoutMs        = 5000.0
	DefaultRetryIntervalMs  = 100.0
	DefaultMaxRetries       = 3
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 5000.0
	DefaultPayloadBytes     = 1024
	DefaultEmissionRate     = 1.0
	DefaultBurstSize        = 5
	DefaultBurstEvery       = 10
	DefaultPeriodTicks      = 10
)

// ApplyDefaults fills omitted fields on every node and edge in place.
func ApplyDefaults(g *Graph) {
	for _, n := range g.Nodes {
		applyNodeDefaults(n)
	}
	for _, e := range g.Edges {
		applyEdgeDefaults(e)
	}
}

func applyNodeDefaults(n *Node) {
	if n.MaxConcurrent == 0 {
		n.MaxConcurrent = DefaultMaxConcurrent
	}
	if n.MaxRPS == 0 {
		n.MaxRPS = DefaultMaxRPS
	}
	if n.ProcessingMs == 0 {
		n.ProcessingMs = DefaultProcessingMs
	}
	if n.Kind == NodeClient {
		if n.Client == nil {
			n.Client = &ClientParams{}
		}
		c := n.Client
		if c.Pattern == "" {
			c.Pattern = PatternSteady
		}
		if c.RatePerTick == 0 {
			c.RatePerTick = DefaultEmissionRate
		}
		if c.BurstSize == 0 {
			c.BurstSize = DefaultBurstSize
		}
		if c.BurstEveryTicks == 0 {
			c.BurstEveryTicks = DefaultBurstEvery
		}
		if c.PeriodTicks == 0 {
			c.PeriodTicks = DefaultPeriodTicks
		}
		if c.PayloadBytes == 0 {
			c.PayloadBytes = DefaultPayloadBytes
		}
	}
	if n.Kind == NodeLoadBalancer {
		if n.Balancer == nil {
			n.Balancer = &BalancerParams{}
		}
		if n.Balancer.Algorithm == "" {
			n.Balancer.Algorithm = LBRoundRobin
		}
	}
}

func applyEdgeDefaults(e *Edge) {
	if e.LatencyMs == 0 {
		e.LatencyMs = DefaultLatencyMs
	}
	if e.Reliability == "" {
		e.Reliability = ReliabilityBestEffort
	}
	if e.Retry.Strategy == "" {
		e.Retry.Strategy = RetryExponential
	}
	if e.Retry.MaxRetries == 0 {
		e.Retry.MaxRetries = DefaultMaxRetries
	}
	if e.Retry.IntervalMs == 0 {
		e.Retry.IntervalMs = DefaultRetryIntervalMs
	}
	if e.TimeoutMs == 0 {
		e.TimeoutMs = DefaultTimeoutMs
	}
	if e.Weight == 0 {
		e.Weight = 1
	}
	if e.Breaker != nil && e.Breaker.Enabled {
		if e.Breaker.FailureThreshold == 0 {
			e.Breaker.FailureThreshold = DefaultBreakerThreshold
		}
		if e.Breaker.CooldownMs == 0 {
			e.Breaker.CooldownMs = DefaultBreakerCooldown
		}
	}
	if e.Proto.IsQueueFamily() {
		if e.Queue == nil {
			e.Queue = &QueueParams{}
		}
		if e.Queue.DeliveryGuarantee == "" {
			e.Queue.DeliveryGuarantee = DeliveryAtLeastOnce
		}
	}
}
