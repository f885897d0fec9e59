// Package hub implements the topic-based publish/subscribe bus that fans
// state-change events out to connected WebSocket observers.
//
// Delivery is at-most-once and best-effort: an observer that is not connected
// at publish time never receives that event, and a slow observer has events
// dropped rather than delaying the publisher. The audit trail in the store is
// the durable source of truth; the bus only keeps live views fresh.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"equipment-tracker-backend/config"
)

// TopicEquipmentUpdates is the single topic this system publishes to.
const TopicEquipmentUpdates = "equipment_updates"

// EventStateChanged is the event type carried by transition broadcasts.
const EventStateChanged = "equipment_state_changed"

// Message types understood on a hub connection.
const (
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypePing        = "ping"
	MsgTypePong        = "pong"
	MsgTypeEvent       = "event"
	MsgTypeResponse    = "response"
	MsgTypeError       = "error"
)

// Message is the frame exchanged with WebSocket clients.
type Message struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Event     string          `json:"event,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Hub maintains the set of connected clients and broadcasts events to the
// subset subscribed to a topic.
type Hub struct {
	cfg     config.HubConfig
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// New creates a hub with no connected clients.
func New(cfg config.HubConfig) *Hub {
	return &Hub{
		cfg:     cfg,
		clients: make(map[*Client]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// register adds a client to the hub.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Printf("hub: client connected (%d active)", h.ClientCount())
}

// unregister removes a client. Only the goroutine that actually removes the
// client from the map closes its send channel, preventing a double close
// when shutdown and a read error race.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	log.Printf("hub: client disconnected (%d active)", h.ClientCount())
}

// Broadcast sends an event to every client subscribed to the topic.
// The hub lock is released before any per-client work so one client can
// never stall the rest; sends are non-blocking per client.
func (h *Hub) Broadcast(topic, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("hub: failed to marshal broadcast payload: %v", err)
		return
	}
	msg := Message{
		Type:      MsgTypeEvent,
		Topic:     topic,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   raw,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("hub: failed to marshal broadcast message: %v", err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.isSubscribed(topic) {
			c.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range clients {
		if c.isSubscribed(topic) {
			n++
		}
	}
	return n
}

// closeAll disconnects every client so their write pumps exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}
