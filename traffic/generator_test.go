package traffic

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trafficsim/core"
)

func mustGenerator(t *testing.T, c *core.ClientParams, seed int64, tickMs float64) Generator {
	t.Helper()
	g, err := NewGenerator(c, rand.New(rand.NewSource(seed)), tickMs)
	require.NoError(t, err)
	return g
}

func TestSteadyWholeRate(t *testing.T) {
	g := mustGenerator(t, &core.ClientParams{Pattern: core.PatternSteady, RatePerTick: 2}, 1, 100)
	for tick := int64(0); tick < 5; tick++ {
		assert.Equal(t, 2, g.Emissions(tick))
	}
}

func TestSteadyFractionalRateCarriesRemainder(t *testing.T) {
	g := mustGenerator(t, &core.ClientParams{Pattern: core.PatternSteady, RatePerTick: 0.5}, 1, 100)
	var emitted []int
	for tick := int64(0); tick < 6; tick++ {
		emitted = append(emitted, g.Emissions(tick))
	}
	// One request every other tick.
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1}, emitted)
}

func TestSteadyResetClearsAccumulator(t *testing.T) {
	g := mustGenerator(t, &core.ClientParams{Pattern: core.PatternSteady, RatePerTick: 0.5}, 1, 100)
	g.Emissions(0)
	g.Reset()
	assert.Equal(t, 0, g.Emissions(0))
	assert.Equal(t, 1, g.Emissions(1))
}

func TestBurstyEmitsOnBurstTicks(t *testing.T) {
	g := mustGenerator(t, &core.ClientParams{Pattern: core.PatternBursty, BurstSize: 5, BurstEveryTicks: 3}, 1, 100)
	var emitted []int
	for tick := int64(0); tick < 7; tick++ {
		emitted = append(emitted, g.Emissions(tick))
	}
	assert.Equal(t, []int{5, 0, 0, 5, 0, 0, 5}, emitted)
}

func TestPeriodicEmitsOnePerPeriod(t *testing.T) {
	g := mustGenerator(t, &core.ClientParams{Pattern: core.PatternPeriodic, PeriodTicks: 4}, 1, 100)
	var emitted []int
	for tick := int64(0); tick < 9; tick++ {
		emitted = append(emitted, g.Emissions(tick))
	}
	assert.Equal(t, []int{1, 0, 0, 0, 1, 0, 0, 0, 1}, emitted)
}

func TestRandomIsDeterministicPerSeed(t *testing.T) {
	emit := func() []int {
		g := mustGenerator(t, &core.ClientParams{Pattern: core.PatternRandom, RatePerTick: 0.4}, 21, 100)
		var res []int
		for tick := int64(0); tick < 50; tick++ {
			res = append(res, g.Emissions(tick))
		}
		return res
	}
	assert.Equal(t, emit(), emit())
}

func TestRandomExtremes(t *testing.T) {
	always := mustGenerator(t, &core.ClientParams{Pattern: core.PatternRandom, RatePerTick: 1.0}, 1, 100)
	never := mustGenerator(t, &core.ClientParams{Pattern: core.PatternRandom, RatePerTick: 0}, 1, 100)
	for tick := int64(0); tick < 20; tick++ {
		assert.Equal(t, 1, always.Emissions(tick))
		assert.Equal(t, 0, never.Emissions(tick))
	}
}

func TestCronScheduleFiresOnSimulatedMinutes(t *testing.T) {
	// Every minute; at 100ms per tick a minute is 600 ticks.
	g := mustGenerator(t, &core.ClientParams{Pattern: core.PatternPeriodic, CronSpec: "* * * * *"}, 1, 100)

	total := 0
	for tick := int64(0); tick < 1200; tick++ {
		total += g.Emissions(tick)
	}
	assert.Equal(t, 2, total)
}

func TestCronResetReplaysSchedule(t *testing.T) {
	g := mustGenerator(t, &core.ClientParams{Pattern: core.PatternPeriodic, CronSpec: "* * * * *"}, 1, 100)
	first := 0
	for tick := int64(0); tick < 600; tick++ {
		first += g.Emissions(tick)
	}
	g.Reset()
	second := 0
	for tick := int64(0); tick < 600; tick++ {
		second += g.Emissions(tick)
	}
	assert.Equal(t, first, second)
}

func TestCronInvalidSpecFails(t *testing.T) {
	_, err := NewGenerator(&core.ClientParams{Pattern: core.PatternPeriodic, CronSpec: "not a cron"},
		rand.New(rand.NewSource(1)), 100)
	assert.Error(t, err)
}

func TestUnknownPatternFails(t *testing.T) {
	_, err := NewGenerator(&core.ClientParams{Pattern: "trickle"}, rand.New(rand.NewSource(1)), 100)
	assert.Error(t, err)
}
