package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trafficsim/core"
	"github.com/example/trafficsim/engine"
	"github.com/example/trafficsim/logging"
	"github.com/example/trafficsim/metrics"
)

func testGraph() *core.Graph {
	return &core.Graph{
		Nodes: []*core.Node{
			{
				ID:   "c1",
				Kind: core.NodeClient,
				Client: &core.ClientParams{
					Pattern:     core.PatternSteady,
					RatePerTick: 1,
				},
			},
			{ID: "s1", Kind: core.NodeServer},
		},
		Edges: []*core.Edge{
			{ID: "e1", Source: "c1", Target: "s1", Proto: core.ProtocolHTTP, LatencyMs: 100},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *engine.Engine, *httptest.Server) {
	t.Helper()
	eng := engine.New(engine.Options{Headless: true, Logger: logging.NewNop()})
	srv := NewServer(":0", eng, metrics.NewCollector())
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(func() {
		ts.Close()
		eng.Stop()
	})
	return srv, eng, ts
}

func postControl(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/control", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestFrameEndpointBeforeFirstTick(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/frame")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFrameEndpointServesLatestSnapshot(t *testing.T) {
	_, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))
	require.NoError(t, eng.StepOnce())
	require.NoError(t, eng.StepOnce())

	resp, err := http.Get(ts.URL + "/api/frame")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var frame engine.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&frame))
	assert.Equal(t, int64(1), frame.Tick)
	assert.Equal(t, eng.RunID(), frame.RunID)
	assert.NotEmpty(t, frame.Markers)
}

func TestFrameEndpointRejectsPost(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/frame", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	_, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))
	require.NoError(t, eng.StepOnce())

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats engine.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.Emitted)
}

func TestControlPauseResume(t *testing.T) {
	_, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))

	resp := postControl(t, ts, `{"type":"pause"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, eng.Paused())

	resp = postControl(t, ts, `{"type":"resume"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, eng.Paused())
}

func TestControlStepRequiresPause(t *testing.T) {
	_, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))

	resp := postControl(t, ts, `{"type":"step"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	postControl(t, ts, `{"type":"pause"}`)
	resp = postControl(t, ts, `{"type":"step"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotNil(t, eng.Snapshot())
	assert.Equal(t, int64(0), eng.Snapshot().Tick)
}

func TestControlSetRate(t *testing.T) {
	_, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))

	resp := postControl(t, ts, `{"type":"set-rate","tickRateHz":25}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 25.0, eng.TickRate())

	resp = postControl(t, ts, `{"type":"set-rate","tickRateHz":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestControlStop(t *testing.T) {
	_, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))

	resp := postControl(t, ts, `{"type":"stop"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, eng.Running())
}

func TestControlRejectsGarbage(t *testing.T) {
	_, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))

	resp := postControl(t, ts, `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postControl(t, ts, `{"type":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/control")
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))
	require.NoError(t, eng.StepOnce())

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketSendsLatestFrameOnConnect(t *testing.T) {
	_, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))
	require.NoError(t, eng.StepOnce())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame engine.Snapshot
	require.NoError(t, json.Unmarshal(msg, &frame))
	assert.Equal(t, int64(0), frame.Tick)
}

func TestWebSocketBroadcastsPublishedFrames(t *testing.T) {
	srv, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))
	require.NoError(t, eng.StepOnce())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage() // late-joiner frame
	require.NoError(t, err)

	require.NoError(t, eng.StepOnce())
	srv.Publish(eng.Snapshot())

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "broadcast frame never arrived")
		conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame engine.Snapshot
		require.NoError(t, json.Unmarshal(msg, &frame))
		if frame.Tick == 1 {
			return
		}
	}
}

func TestWebSocketAcceptsControlCommands(t *testing.T) {
	_, eng, ts := newTestServer(t)
	require.NoError(t, eng.Start(testGraph(), 1))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pause"}`)))

	require.Eventually(t, func() bool {
		return eng.Paused()
	}, 2*time.Second, 10*time.Millisecond)
}
