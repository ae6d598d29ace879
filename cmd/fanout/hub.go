package main

import (
	"sync"

	"github.com/pixelvault/vault/common/logger"
)

// Hub maintains active WebSocket connections and routes events to the
// owner they belong to. A single owner can hold several connections
// (multiple gallery tabs).
type Hub struct {
	connections map[string][]*Client
	mutex       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	log *logger.Logger
}

// Message is one event payload destined for a specific owner
type Message struct {
	Owner string
	Data  []byte
}

// NewHub creates a new Hub instance
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		connections: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		log:         log,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.log.Info("hub started")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToOwner(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.connections[client.owner] = append(h.connections[client.owner], client)
	h.log.Info("client registered",
		"owner", client.owner,
		"total_for_owner", len(h.connections[client.owner]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.removeClientLocked(client)
}

// removeClientLocked drops the client from its owner's connection list and
// closes its send channel. Membership in the map owns the close: a client
// already removed is never closed a second time, whether it left through
// unregister or through a stalled broadcast.
func (h *Hub) removeClientLocked(client *Client) {
	clients := h.connections[client.owner]
	for i, c := range clients {
		if c != client {
			continue
		}

		h.connections[client.owner] = append(clients[:i], clients[i+1:]...)
		close(client.send)

		if len(h.connections[client.owner]) == 0 {
			delete(h.connections, client.owner)
		}

		h.log.Info("client unregistered",
			"owner", client.owner,
			"remaining_for_owner", len(h.connections[client.owner]))
		return
	}
}

// broadcastToOwner sends a message to every connection the owner holds.
// Clients whose send buffer is full have stopped reading and are dropped
// from the hub entirely, so later broadcasts never touch their channel.
func (h *Hub) broadcastToOwner(message *Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients := h.connections[message.Owner]
	if len(clients) == 0 {
		return
	}

	var stalled []*Client
	for _, client := range clients {
		select {
		case client.send <- message.Data:
		default:
			stalled = append(stalled, client)
		}
	}

	for _, client := range stalled {
		h.log.Warn("client send buffer full, dropping connection", "owner", client.owner)
		h.removeClientLocked(client)
	}
}

// ConnectionCount returns the total number of active connections
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	count := 0
	for _, clients := range h.connections {
		count += len(clients)
	}
	return count
}
