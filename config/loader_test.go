package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trafficsim/core"
)

const sampleScenario = `
seed: 42
tickMs: 100
tickRateHz: 10
ticks: 200
listen: ":9090"
graph:
  nodes:
    - id: c1
      kind: client
      client:
        pattern: steady
        ratePerTick: 1
        destinationKind: server
    - id: lb1
      kind: load-balancer
      balancer:
        algorithm: round-robin
    - id: s1
      kind: server
      maxConcurrent: 50
  edges:
    - id: e1
      source: c1
      target: lb1
      protocol: http
      latencyMs: 20
    - id: e2
      source: lb1
      target: s1
      protocol: http
      latencyMs: 50
      retry:
        strategy: exponential
        maxRetries: 2
        intervalMs: 50
`

func TestParseScenario(t *testing.T) {
	sc, err := Parse([]byte(sampleScenario))
	require.NoError(t, err)

	assert.Equal(t, int64(42), sc.Seed)
	assert.Equal(t, 100.0, sc.TickMs)
	assert.Equal(t, int64(200), sc.Ticks)
	assert.Equal(t, ":9090", sc.Listen)

	require.NotNil(t, sc.Graph)
	require.Len(t, sc.Graph.Nodes, 3)
	require.Len(t, sc.Graph.Edges, 2)

	c1 := sc.Graph.Nodes[0]
	assert.Equal(t, core.NodeClient, c1.Kind)
	require.NotNil(t, c1.Client)
	assert.Equal(t, core.PatternSteady, c1.Client.Pattern)
	assert.Equal(t, core.NodeServer, c1.Client.DestinationKind)

	lb := sc.Graph.Nodes[1]
	require.NotNil(t, lb.Balancer)
	assert.Equal(t, core.LBRoundRobin, lb.Balancer.Algorithm)

	e2 := sc.Graph.Edges[1]
	assert.Equal(t, 50.0, e2.LatencyMs)
	assert.Equal(t, core.RetryExponential, e2.Retry.Strategy)
	assert.Equal(t, 2, e2.Retry.MaxRetries)
}

func TestParseDefaultsListenAddress(t *testing.T) {
	sc, err := Parse([]byte("graph:\n  nodes:\n    - id: n1\n      kind: server\n"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", sc.Listen)
}

func TestParseRejectsMissingGraph(t *testing.T) {
	_, err := Parse([]byte("seed: 1\n"))
	assert.Error(t, err)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("graph: [unclosed"))
	assert.Error(t, err)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleScenario), 0o644))

	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sc.Seed)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
