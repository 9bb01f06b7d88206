package core

import (
	"errors"
	"fmt"
)

// Validate applies structural checks to a graph. It is called by the engine
// at start, after ApplyDefaults, and rejects malformed input before any
// ticking begins.
func Validate(g *Graph) error {
	if g == nil {
		return errors.New("graph is nil")
	}
	if len(g.Nodes) == 0 {
		return errors.New("graph has no nodes")
	}

	seenNodes := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return errors.New("node with empty id")
		}
		if seenNodes[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seenNodes[n.ID] = true
		if err := validateNode(n); err != nil {
			return err
		}
	}

	seenEdges := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.ID == "" {
			return errors.New("edge with empty id")
		}
		if seenEdges[e.ID] {
			return fmt.Errorf("duplicate edge id %q", e.ID)
		}
		seenEdges[e.ID] = true
		if !seenNodes[e.Source] {
			return fmt.Errorf("edge %q references unknown source node %q", e.ID, e.Source)
		}
		if !seenNodes[e.Target] {
			return fmt.Errorf("edge %q references unknown target node %q", e.ID, e.Target)
		}
		if err := validateEdge(e); err != nil {
			return err
		}
	}

	if err := checkBalancerCycles(g); err != nil {
		return err
	}
	return nil
}

func validateNode(n *Node) error {
	if n.FailureProbability < 0 || n.FailureProbability > 1 {
		return fmt.Errorf("node %q: failureProbability must be within [0,1], got %.3f", n.ID, n.FailureProbability)
	}
	if n.MaxConcurrent < 0 {
		return fmt.Errorf("node %q: maxConcurrent must be non-negative", n.ID)
	}
	if n.MaxRPS < 0 {
		return fmt.Errorf("node %q: maxRps must be non-negative", n.ID)
	}
	if n.ProcessingMs < 0 {
		return fmt.Errorf("node %q: processingMs must be non-negative", n.ID)
	}
	switch n.Kind {
	case NodeClient, NodeServer, NodeLoadBalancer, NodeCache, NodeDatabase, NodeBroker:
	default:
		return fmt.Errorf("node %q: unknown kind %q", n.ID, n.Kind)
	}
	if n.Client != nil && n.Kind != NodeClient {
		return fmt.Errorf("node %q: client section on non-client kind %q", n.ID, n.Kind)
	}
	if n.Balancer != nil && n.Kind != NodeLoadBalancer {
		return fmt.Errorf("node %q: balancer section on non-balancer kind %q", n.ID, n.Kind)
	}
	if n.Client != nil {
		switch n.Client.Pattern {
		case PatternSteady, PatternBursty, PatternPeriodic, PatternRandom:
		default:
			return fmt.Errorf("node %q: unknown emission pattern %q", n.ID, n.Client.Pattern)
		}
		if n.Client.RatePerTick < 0 {
			return fmt.Errorf("node %q: ratePerTick must be non-negative", n.ID)
		}
	}
	if n.Balancer != nil {
		switch n.Balancer.Algorithm {
		case LBRoundRobin, LBLeastConnections, LBIPHash, LBWeighted:
		default:
			return fmt.Errorf("node %q: unknown balancing algorithm %q", n.ID, n.Balancer.Algorithm)
		}
	}
	return nil
}

func validateEdge(e *Edge) error {
	if e.Source == e.Target {
		return fmt.Errorf("edge %q: self loop on node %q", e.ID, e.Source)
	}
	if e.LatencyMs <= 0 {
		return fmt.Errorf("edge %q: latencyMs must be positive", e.ID)
	}
	if e.PacketLossRate < 0 || e.PacketLossRate > 1 {
		return fmt.Errorf("edge %q: packetLossRate must be within [0,1], got %.3f", e.ID, e.PacketLossRate)
	}
	if e.FailureProbability < 0 || e.FailureProbability > 1 {
		return fmt.Errorf("edge %q: failureProbability must be within [0,1], got %.3f", e.ID, e.FailureProbability)
	}
	if e.Retry.MaxRetries < 0 {
		return fmt.Errorf("edge %q: maxRetries must be non-negative", e.ID)
	}
	if e.Retry.IntervalMs < 0 {
		return fmt.Errorf("edge %q: retryIntervalMs must be non-negative", e.ID)
	}
	if e.TimeoutMs < 0 {
		return fmt.Errorf("edge %q: timeoutMs must be non-negative", e.ID)
	}
	switch e.Retry.Strategy {
	case RetryLinear, RetryExponential, RetryConstant:
	default:
		return fmt.Errorf("edge %q: unknown retry strategy %q", e.ID, e.Retry.Strategy)
	}
	if e.Queue != nil && !e.Proto.IsQueueFamily() {
		return fmt.Errorf("edge %q: queue section on non-queue protocol %q", e.ID, e.Proto)
	}
	if e.Weight < 0 {
		return fmt.Errorf("edge %q: weight must be non-negative", e.ID)
	}
	return nil
}

// checkBalancerCycles rejects graphs where load balancers route into each
// other in a cycle, which would let a request spin forever without reaching
// a processing node.
func checkBalancerCycles(g *Graph) error {
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		src := findNode(g, e.Source)
		dst := findNode(g, e.Target)
		if src != nil && dst != nil && src.Kind == NodeLoadBalancer && dst.Kind == NodeLoadBalancer {
			adj[e.Source] = append(adj[e.Source], e.Target)
		}
	}
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)
	var visit func(id string) error
	visit = func(id string) error {
		state[id] = inStack
		for _, next := range adj[id] {
			switch state[next] {
			case inStack:
				return fmt.Errorf("load-balancer cycle involving node %q", next)
			case unvisited:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		state[id] = done
		return nil
	}
	for id := range adj {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func findNode(g *Graph, id string) *Node {
	if g.nodeByID != nil {
		return g.nodeByID[id]
	}
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
