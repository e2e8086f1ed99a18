// Package eventstream relays the coordinator's event bus to WebSocket
// subscribers, grouped by topic (event type prefix, e.g. "task", "agent",
// "consensus", "topology").
package eventstream

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kooshapari/swarmcoordinator/internal/swarm"
)

// Message is the envelope delivered to a connected client.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
}

// Hub fans swarm events out to connected WebSocket clients, filtered by
// each client's topic subscriptions.
type Hub struct {
	events *swarm.EventBus
	logger *logrus.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	unsubscribe func()
	done        chan struct{}
}

// NewHub constructs a hub relaying events from bus to connected clients.
func NewHub(bus *swarm.EventBus, logger *logrus.Logger) *Hub {
	return &Hub{
		events:     bus,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Start subscribes to the event bus and begins fanning events to clients.
// Blocks until Stop is called; run it in its own goroutine.
func (h *Hub) Start() {
	ch, unsub := h.events.Subscribe("eventstream-hub")
	h.unsubscribe = unsub
	h.logger.Info("starting event stream hub")

	for {
		select {
		case <-h.done:
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.WithField("clientId", client.id).Info("event stream client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(evt)
		}
	}
}

// Stop halts the hub and closes all client connections.
func (h *Hub) Stop() {
	close(h.done)
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// RegisterClient adds a new client connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient removes a client connection from the hub.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	default:
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(evt swarm.Event) {
	msg := Message{Type: evt.Type, Data: evt.Data, Timestamp: evt.Timestamp.UnixMilli(), ID: evt.ID}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var failed []*Client
	for client := range h.clients {
		if !client.interestedIn(evt.Type) {
			continue
		}
		select {
		case client.send <- msg:
		default:
			failed = append(failed, client)
		}
	}
	if len(failed) > 0 {
		h.logger.WithField("count", len(failed)).Warn("dropped event for unresponsive event stream clients")
	}

	if b, err := json.Marshal(msg); err == nil {
		h.logger.WithFields(logrus.Fields{"eventType": evt.Type, "size": len(b)}).Debug("relayed event to stream clients")
	}
}
