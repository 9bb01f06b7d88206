package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/example/trafficsim/core"
)

// Scenario bundles a graph with run settings so a simulation is fully
// reproducible from one file.
type Scenario struct {
	Seed            int64   `yaml:"seed"`
	TickMs          float64 `yaml:"tickMs"`
	TickRateHz      float64 `yaml:"tickRateHz"`
	Ticks           int64   `yaml:"ticks"`
	QueueBound      int     `yaml:"queueBound"`
	VisibilityTicks int64   `yaml:"visibilityTicks"`
	Listen          string  `yaml:"listen"`
	Headless        bool    `yaml:"headless"`

	Graph *core.Graph `yaml:"graph"`
}

// Load reads and decodes a scenario file. Graph defaults and validation
// are the engine's concern; Load only rejects unreadable documents.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scenario %s", path)
	}
	return Parse(data)
}

// Parse decodes a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Wrap(err, "parse scenario")
	}
	if sc.Graph == nil {
		return nil, errors.New("scenario has no graph")
	}
	if sc.Listen == "" {
		sc.Listen = ":8080"
	}
	return &sc, nil
}
