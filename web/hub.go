package web

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/example/trafficsim/logging"
	"github.com/example/trafficsim/visual"
)

type wsHub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	register  chan *websocket.Conn
	remove    chan *websocket.Conn
	broadcast chan []byte
}

func newHub() *wsHub {
	hub := &wsHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		register:  make(chan *websocket.Conn),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan []byte, 16),
	}
	go hub.run()
	return hub
}

func (h *wsHub) run() {
	for {
		select {
		case conn := <-h.register:
			h.clients[conn] = true
		case conn := <-h.remove:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		case msg := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					logging.GetLogger().Warnf("failed to send frame to WebSocket client: %v", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
		}
	}
}

func (h *wsHub) handle(s *Server, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.GetLogger().Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	h.register <- conn

	// Late joiners get the latest frame immediately.
	if frame := s.engine.Snapshot(); frame != nil {
		if data, err := json.Marshal(frame); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
	}

	go func() {
		defer func() { h.remove <- conn }()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logging.GetLogger().Warnf("WebSocket error: %v", err)
				}
				break
			}

			var cmd visual.ControlCommand
			if err := json.Unmarshal(message, &cmd); err == nil {
				if err := s.apply(cmd); err != nil {
					logging.GetLogger().Warnf("control command %q rejected: %v", cmd.Type, err)
				}
			}
		}
	}()
}

func (h *wsHub) broadcastFrame(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		logging.GetLogger().Errorf("failed to marshal frame for WebSocket: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Slow consumers drop frames rather than stalling the engine.
	}
}
