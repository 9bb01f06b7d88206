package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/example/trafficsim/engine"
	"github.com/example/trafficsim/metrics"
	"github.com/example/trafficsim/visual"
)

// Server exposes the engine's snapshots and control surface over HTTP and
// WebSocket. The rendering layer reads frames from here and never touches
// engine internals.
type Server struct {
	engine *engine.Engine
	hub    *wsHub
	server *http.Server
}

// NewServer creates a server bound to one engine instance. The optional
// collector adds a Prometheus /metrics endpoint.
func NewServer(addr string, eng *engine.Engine, collector *metrics.Collector) *Server {
	s := &Server{
		engine: eng,
		hub:    newHub(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/frame", s.handleFrame)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/control", s.handleControl)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.hub.handle(s, w, r)
	})
	if collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}

	s.server = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Publish implements visual.Publisher: each settled frame is broadcast to
// connected WebSocket clients.
func (s *Server) Publish(frame any) {
	s.hub.broadcastFrame(frame)
}

// Start runs the HTTP server in the background.
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(errors.Wrap(err, "web server failed"))
		}
	}()
	return nil
}

// Close shuts the HTTP listener down.
func (s *Server) Close() error {
	return s.server.Close()
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	frame := s.engine.Snapshot()
	if frame == nil {
		http.Error(w, "No frame available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(frame); err != nil {
		http.Error(w, "Failed to encode frame", http.StatusInternalServerError)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	frame := s.engine.Snapshot()
	if frame == nil {
		http.Error(w, "No stats available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(frame.Stats); err != nil {
		http.Error(w, "Failed to encode stats", http.StatusInternalServerError)
	}
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var cmd visual.ControlCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.apply(cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("Command accepted"))
}

// apply translates a control command into engine calls.
func (s *Server) apply(cmd visual.ControlCommand) error {
	switch cmd.Type {
	case visual.CommandPause:
		return s.engine.Pause()
	case visual.CommandResume:
		return s.engine.Resume()
	case visual.CommandStop:
		s.engine.Stop()
		return nil
	case visual.CommandStep:
		if !s.engine.Paused() {
			return fmt.Errorf("step requires a paused simulation")
		}
		return s.engine.StepOnce()
	case visual.CommandSetRate:
		return s.engine.SetTickRate(cmd.TickRateHz)
	}
	return fmt.Errorf("invalid command type %q", cmd.Type)
}
