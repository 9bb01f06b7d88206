package traffic

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/trafficsim/core"
)

// Generator decides how many requests a client node emits at a given tick.
// Implementations must be deterministic for a fixed seed and tick sequence.
type Generator interface {
	Emissions(tick int64) int
	Reset()
}

// simEpoch anchors the simulated wall clock for cron-driven schedules.
// A fixed epoch keeps cron emissions identical across runs.
var simEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewGenerator builds the generator matching the client's emission pattern.
func NewGenerator(c *core.ClientParams, rng *rand.Rand, tickMs float64) (Generator, error) {
	switch c.Pattern {
	case core.PatternSteady:
		return &steadyGenerator{rate: c.RatePerTick}, nil
	case core.PatternBursty:
		return &burstyGenerator{size: c.BurstSize, every: int64(c.BurstEveryTicks)}, nil
	case core.PatternPeriodic:
		if c.CronSpec != "" {
			return newCronGenerator(c.CronSpec, tickMs)
		}
		return &periodicGenerator{period: int64(c.PeriodTicks)}, nil
	case core.PatternRandom:
		return &randomGenerator{prob: c.RatePerTick, rng: rng}, nil
	}
	return nil, fmt.Errorf("unknown emission pattern %q", c.Pattern)
}

// steadyGenerator emits rate requests per tick; fractional rates carry a
// remainder across ticks so 0.5 means one request every other tick.
type steadyGenerator struct {
	rate float64
	acc  float64
}

func (g *steadyGenerator) Emissions(tick int64) int {
	g.acc += g.rate
	n := int(math.Floor(g.acc))
	g.acc -= float64(n)
	return n
}

func (g *steadyGenerator) Reset() { g.acc = 0 }

type burstyGenerator struct {
	size  int
	every int64
}

func (g *burstyGenerator) Emissions(tick int64) int {
	if g.every <= 0 {
		return 0
	}
	if tick%g.every == 0 {
		return g.size
	}
	return 0
}

func (g *burstyGenerator) Reset() {}

type periodicGenerator struct {
	period int64
}

func (g *periodicGenerator) Emissions(tick int64) int {
	if g.period <= 0 {
		return 0
	}
	if tick%g.period == 0 {
		return 1
	}
	return 0
}

func (g *periodicGenerator) Reset() {}

type randomGenerator struct {
	prob float64
	rng  *rand.Rand
}

func (g *randomGenerator) Emissions(tick int64) int {
	if g.rng.Float64() < g.prob {
		return 1
	}
	return 0
}

func (g *randomGenerator) Reset() {}

// cronGenerator maps a cron schedule onto the simulated timeline: tick t
// corresponds to simEpoch + t*tickMs, and one request is emitted for every
// schedule fire inside the tick's time window.
type cronGenerator struct {
	schedule cron.Schedule
	tickMs   float64
	next     time.Time
}

func newCronGenerator(spec string, tickMs float64) (*cronGenerator, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return &cronGenerator{
		schedule: schedule,
		tickMs:   tickMs,
		next:     schedule.Next(simEpoch),
	}, nil
}

func (g *cronGenerator) Emissions(tick int64) int {
	end := simEpoch.Add(time.Duration(float64(tick+1) * g.tickMs * float64(time.Millisecond)))
	count := 0
	for !g.next.After(end) && !g.next.IsZero() {
		count++
		g.next = g.schedule.Next(g.next)
	}
	return count
}

func (g *cronGenerator) Reset() {
	g.next = g.schedule.Next(simEpoch)
}
