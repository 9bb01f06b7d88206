package routing

import (
	"errors"
	"hash/fnv"

	"github.com/example/trafficsim/core"
)

// ErrNoRoute is returned when a node has no usable outgoing edge for a
// request. The lifecycle drops such requests with a no-route reason and
// never retries them.
var ErrNoRoute = errors.New("no route")

// LoadReporter exposes the per-edge in-flight count used by
// least-connections balancing. The engine implements it over its registry.
type LoadReporter interface {
	EdgeInFlight(edgeID string) int
}

// Resolver selects the next edge for a request leaving a node. It is
// deterministic for a fixed graph, load state and random stream: round
// robin keeps a cyclic index per node, ip-hash uses a stable hash of the
// client identity, and only the weighted algorithm consumes randomness.
type Resolver struct {
	graph     *core.Graph
	loads     LoadReporter
	randFloat func() float64
	rrIndex   map[string]int
}

// New creates a resolver over an indexed graph. randFloat must draw from
// the simulation's seeded stream so weighted selection stays reproducible.
func New(g *core.Graph, loads LoadReporter, randFloat func() float64) *Resolver {
	return &Resolver{
		graph:     g,
		loads:     loads,
		randFloat: randFloat,
		rrIndex:   make(map[string]int),
	}
}

// NextHop resolves the edge a request should take out of the given node.
func (r *Resolver) NextHop(nodeID string, req *core.Request) (*core.Edge, error) {
	node := r.graph.NodeByID(nodeID)
	if node == nil {
		return nil, ErrNoRoute
	}
	candidates := r.candidates(nodeID, req)
	if len(candidates) == 0 {
		return nil, ErrNoRoute
	}
	if node.Kind == core.NodeLoadBalancer {
		return r.balance(node, candidates, req), nil
	}
	// Non-branching nodes forward on their single matching edge; with
	// several candidates the first in creation order wins.
	return candidates[0], nil
}

// candidates returns the outgoing edges of a node in creation order,
// narrowed toward the request's destination when one is declared.
func (r *Resolver) candidates(nodeID string, req *core.Request) []*core.Edge {
	out := r.graph.Outgoing(nodeID)
	if len(out) == 0 {
		return nil
	}
	if req.TargetID != "" {
		if direct := filterEdges(out, func(e *core.Edge) bool {
			return e.Target == req.TargetID
		}); len(direct) > 0 {
			return direct
		}
	}
	if req.DestKind != "" {
		if matching := filterEdges(out, func(e *core.Edge) bool {
			n := r.graph.NodeByID(e.Target)
			return n != nil && n.Kind == req.DestKind
		}); len(matching) > 0 {
			return matching
		}
	}
	return out
}

func (r *Resolver) balance(node *core.Node, candidates []*core.Edge, req *core.Request) *core.Edge {
	if len(candidates) == 1 {
		return candidates[0]
	}
	switch node.Balancer.Algorithm {
	case core.LBLeastConnections:
		return r.leastConnections(candidates)
	case core.LBIPHash:
		return candidates[stickyIndex(req.ClientKey, len(candidates))]
	case core.LBWeighted:
		return r.weighted(candidates)
	default: // round robin
		idx := r.rrIndex[node.ID] % len(candidates)
		r.rrIndex[node.ID]++
		return candidates[idx]
	}
}

func (r *Resolver) leastConnections(candidates []*core.Edge) *core.Edge {
	best := candidates[0]
	bestLoad := r.loads.EdgeInFlight(best.ID)
	for _, e := range candidates[1:] {
		if load := r.loads.EdgeInFlight(e.ID); load < bestLoad {
			best, bestLoad = e, load
		}
	}
	return best
}

func (r *Resolver) weighted(candidates []*core.Edge) *core.Edge {
	total := 0
	for _, e := range candidates {
		total += e.Weight
	}
	if total <= 0 {
		return candidates[0]
	}
	pick := r.randFloat() * float64(total)
	acc := 0.0
	for _, e := range candidates {
		acc += float64(e.Weight)
		if pick < acc {
			return e
		}
	}
	return candidates[len(candidates)-1]
}

// stickyIndex maps a client identity onto a replica slot.
func stickyIndex(clientKey string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(clientKey))
	return int(h.Sum32() % uint32(n))
}

func filterEdges(edges []*core.Edge, keep func(*core.Edge) bool) []*core.Edge {
	var res []*core.Edge
	for _, e := range edges {
		if keep(e) {
			res = append(res, e)
		}
	}
	return res
}
