package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/trafficsim/admission"
	"github.com/example/trafficsim/core"
	"github.com/example/trafficsim/logging"
	"github.com/example/trafficsim/metrics"
	"github.com/example/trafficsim/policy"
	"github.com/example/trafficsim/routing"
	"github.com/example/trafficsim/traffic"
	"github.com/example/trafficsim/visual"
)

// Options configures a simulation engine instance.
type Options struct {
	// TickMs is the simulated duration of one tick in milliseconds.
	TickMs float64

	// TickRateHz paces the background run loop against the wall clock. It
	// never affects simulated time.
	TickRateHz float64

	// QueueBound caps admission queues (admission.DefaultQueueBound if 0).
	QueueBound int

	// VisibilityTicks keeps terminal requests in snapshots for this many
	// ticks before the registry forgets them.
	VisibilityTicks int64

	// MaxTicks stops the run loop after this many ticks; 0 is unbounded.
	MaxTicks int64

	// Headless arms the engine without spawning the paced run loop; the
	// caller drives time with StepOnce.
	Headless bool

	Collector *metrics.Collector
	Logger    *logging.Logger
	Publisher visual.Publisher
}

func (o *Options) fill() {
	if o.TickMs <= 0 {
		o.TickMs = 100
	}
	if o.TickRateHz <= 0 {
		o.TickRateHz = 10
	}
	if o.VisibilityTicks <= 0 {
		o.VisibilityTicks = 10
	}
	if o.Logger == nil {
		o.Logger = logging.GetLogger()
	}
}

var (
	// ErrAlreadyRunning is returned by Start on a running engine.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrNotRunning is returned by control calls before Start.
	ErrNotRunning = errors.New("engine not running")
)

type clientGen struct {
	node *core.Node
	gen  traffic.Generator
}

// Engine is one simulation run: it owns the graph, the registries, the
// timers and the seeded random stream. Construct one per test for
// isolation; there are no package-level singletons.
type Engine struct {
	mu   sync.Mutex
	opts Options

	graph      *core.Graph
	seed       int64
	runID      string
	rng        *rand.Rand
	policy     *policy.Engine
	admit      *admission.Controller
	resolver   *routing.Resolver
	generators []clientGen

	ids      *core.RequestIDAllocator
	registry *registry
	timers   *timerQueue
	waitFIFO []int64
	tick     int64

	stats           Stats
	droppedByReason map[core.Reason]int64
	latencySumMs    float64
	succeededCount  int64

	collector *metrics.Collector
	log       *logging.Logger
	publisher visual.Publisher

	running bool
	paused  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	latest  *Snapshot
}

// New creates an engine with the given options.
func New(opts Options) *Engine {
	opts.fill()
	return &Engine{
		opts:      opts,
		collector: opts.Collector,
		log:       opts.Logger,
		publisher: opts.Publisher,
	}
}

// Start validates the graph and begins the simulation. A zero seed picks a
// wall-clock seed; pass an explicit seed for reproducible runs. Malformed
// graphs are rejected here, before any ticking begins.
func (e *Engine) Start(g *core.Graph, seed int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}

	core.ApplyDefaults(g)
	g.Index()
	if err := core.Validate(g); err != nil {
		return fmt.Errorf("invalid graph: %w", err)
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e.graph = g
	e.seed = seed
	e.runID = uuid.New().String()
	e.rng = rand.New(rand.NewSource(seed))
	e.policy = policy.NewEngine(e.rng)
	e.admit = admission.NewController(e.opts.QueueBound)
	e.resolver = routing.New(g, e.admit, e.rng.Float64)

	e.generators = e.generators[:0]
	for _, n := range g.Nodes {
		if n.Kind != core.NodeClient {
			continue
		}
		gen, err := traffic.NewGenerator(n.Client, e.rng, e.opts.TickMs)
		if err != nil {
			return fmt.Errorf("client %q: %w", n.ID, err)
		}
		e.generators = append(e.generators, clientGen{node: n, gen: gen})
	}

	e.ids = core.NewRequestIDAllocator()
	e.registry = newRegistry()
	e.timers = newTimerQueue()
	e.waitFIFO = nil
	e.tick = -1
	e.stats = Stats{}
	e.droppedByReason = make(map[core.Reason]int64)
	e.latencySumMs = 0
	e.succeededCount = 0
	e.latest = nil

	e.running = true
	e.paused = false
	e.log.Infof("simulation %s started: %d nodes, %d edges, seed %d",
		e.runID, len(g.Nodes), len(g.Edges), seed)

	if !e.opts.Headless {
		e.stopCh = make(chan struct{})
		e.doneCh = make(chan struct{})
		go e.loop(e.stopCh, e.doneCh)
	}
	return nil
}

// Pause suspends ticking; state is retained and timers resume relative to
// simulated time, not the wall clock.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}
	e.paused = true
	return nil
}

// Resume continues a paused simulation.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}
	e.paused = false
	return nil
}

// Stop ends the run and drains all registries and timers. No scheduled
// callback survives a Stop.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopCh, doneCh := e.stopCh, e.doneCh
	e.registry.reset()
	e.timers.drain()
	e.waitFIFO = nil
	e.log.Infof("simulation %s stopped at tick %d", e.runID, e.tick)
	e.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
}

// SetTickRate adjusts the wall-clock pacing of the run loop.
func (e *Engine) SetTickRate(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("tick rate must be positive, got %.2f", hz)
	}
	e.mu.Lock()
	e.opts.TickRateHz = hz
	e.mu.Unlock()
	return nil
}

// TickRate returns the current wall-clock pacing.
func (e *Engine) TickRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts.TickRateHz
}

// Running reports whether the engine is started and not stopped.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Paused reports whether ticking is suspended.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// StepOnce advances simulated time by one tick. It works while paused,
// which is what the UI's step button uses.
func (e *Engine) StepOnce() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}
	e.step()
	return nil
}

// Snapshot returns the latest settled frame, or nil before the first tick.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// RunID identifies the current run.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// SetPublisher attaches a frame publisher. It must be called before Start;
// typically the web server, which cannot exist before the engine does.
func (e *Engine) SetPublisher(p visual.Publisher) {
	e.mu.Lock()
	e.publisher = p
	e.mu.Unlock()
}

// loop paces steps against the wall clock until stopped or MaxTicks.
func (e *Engine) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	for {
		e.mu.Lock()
		hz := e.opts.TickRateHz
		e.mu.Unlock()

		select {
		case <-stopCh:
			return
		case <-time.After(time.Duration(float64(time.Second) / hz)):
		}

		e.mu.Lock()
		if !e.running {
			e.mu.Unlock()
			return
		}
		if !e.paused {
			e.step()
		}
		finished := e.opts.MaxTicks > 0 && e.tick >= e.opts.MaxTicks-1
		if finished {
			e.running = false
			e.log.Infof("simulation %s finished after %d ticks", e.runID, e.tick+1)
		}
		e.mu.Unlock()
		if finished {
			return
		}
	}
}

// step is one atomic simulation tick. A tick always completes and produces
// a snapshot; no single request's failure escapes it.
func (e *Engine) step() {
	e.tick++
	nowMs := e.nowMs()

	// Latency accrues for everything alive since the previous tick.
	for _, t := range e.registry.ordered {
		if t.req.InFlight() {
			t.req.LatencyMs += e.opts.TickMs
		}
	}

	e.policy.AdvanceBreakers(e.graph, nowMs)

	for ev, ok := e.timers.popDue(e.tick); ok; ev, ok = e.timers.popDue(e.tick) {
		t := e.registry.get(ev.reqID)
		if t == nil {
			continue
		}
		switch ev.kind {
		case evRetryExpire:
			e.onRetryExpire(t)
		case evProcessingDone:
			e.onProcessingDone(t)
		}
	}

	for _, cg := range e.generators {
		n := cg.gen.Emissions(e.tick)
		for i := 0; i < n; i++ {
			e.createRequest(cg.node)
		}
	}

	for _, t := range e.registry.ordered {
		if t.req.Status == core.StatusInTransit && t.enteredEdgeTick < e.tick {
			e.advanceTransit(t)
		}
	}

	e.pumpQueues(nowMs)

	e.registry.prune(e.tick, e.opts.VisibilityTicks)

	e.latest = e.buildSnapshot()
	e.collector.ObserveTick(e.tick, e.latest.InFlightCount)
	if e.publisher != nil {
		e.publisher.Publish(e.latest)
	}
}

// pumpQueues re-attempts admission for queued requests in FIFO order and
// times out the ones that waited past their governing edge's timeout.
func (e *Engine) pumpQueues(nowMs float64) {
	keep := e.waitFIFO[:0]
	for _, id := range e.waitFIFO {
		t := e.registry.get(id)
		if t == nil || t.waiting == waitNone {
			continue
		}
		if t.queuedTick >= e.tick {
			keep = append(keep, id)
			continue
		}
		edge := t.currentEdge
		if edge != nil && edge.TimeoutMs > 0 && nowMs-t.attemptStartMs > edge.TimeoutMs {
			switch t.waiting {
			case waitEdgeSlot:
				e.admit.UnqueueEdge(edge.ID)
			case waitNodeSlot:
				e.admit.UnqueueNode(t.procNodeID)
			}
			t.waiting = waitNone
			e.timeoutFailure(t, edge)
			continue
		}
		admitted := false
		switch t.waiting {
		case waitEdgeSlot:
			if e.admit.AdmitEdge(edge, t.req.PayloadBytes, nowMs, true) == admission.Admitted {
				e.startTraversal(t, edge)
				admitted = true
			}
		case waitNodeSlot:
			node := e.graph.NodeByID(t.procNodeID)
			if node != nil && e.admit.AdmitNode(node, nowMs, true) == admission.Admitted {
				e.beginProcessing(t, node)
				admitted = true
			}
		}
		if !admitted {
			keep = append(keep, id)
		}
	}
	e.waitFIFO = keep
}
