package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pixelvault/vault/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The gallery frontend is served from a different origin in
		// development.
		return true
	},
}

// Server handles WebSocket upgrades
type Server struct {
	hub *Hub
	log *logger.Logger
}

// NewServer creates a new Server instance
func NewServer(hub *Hub, log *logger.Logger) *Server {
	return &Server{
		hub: hub,
		log: log,
	}
}

// HandleWebSocket upgrades the connection and binds it to an owner
// URL: /ws?owner=alice (or X-User-ID header)
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = r.Header.Get("X-User-ID")
	}
	if owner == "" {
		http.Error(w, "owner query parameter or X-User-ID header required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade error", "error", err)
		return
	}

	client := NewClient(s.hub, conn, owner)
	s.hub.register <- client

	s.log.Info("new websocket connection", "owner", owner, "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}

// HandleStats reports connection counts
// GET /stats
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"connections": s.hub.ConnectionCount(),
	})
}
