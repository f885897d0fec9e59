package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one connected WebSocket observer.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]struct{}
	mu     sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// No credentialed state on the socket; origin filtering is left
		// to the deployment's reverse proxy.
		return true
	},
}

// ServeWS upgrades an HTTP request and registers the connection with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: websocket upgrade failed: %v", err)
		return
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBufferSize),
		topics: make(map[string]struct{}),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

// readPump reads client messages until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	pingInterval := time.Duration(c.hub.cfg.PingIntervalSeconds) * time.Second
	pongWait := time.Duration(c.hub.cfg.PongTimeoutSeconds) * time.Second

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("hub: websocket read error: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(data)
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with protocol pings.
func (c *Client) writePump() {
	pingInterval := time.Duration(c.hub.cfg.PingIntervalSeconds) * time.Second
	pongWait := time.Duration(c.hub.cfg.PongTimeoutSeconds) * time.Second

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound frame.
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid JSON message")
		return
	}

	switch msg.Type {
	case MsgTypeSubscribe:
		if msg.Topic == "" {
			c.sendError("topic is required")
			return
		}
		c.mu.Lock()
		c.topics[msg.Topic] = struct{}{}
		c.mu.Unlock()
		c.sendResponse(MsgTypeResponse, msg.Topic)
	case MsgTypeUnsubscribe:
		if msg.Topic == "" {
			c.sendError("topic is required")
			return
		}
		c.mu.Lock()
		delete(c.topics, msg.Topic)
		c.mu.Unlock()
		c.sendResponse(MsgTypeResponse, msg.Topic)
	case MsgTypePing:
		c.sendResponse(MsgTypePong, "")
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// trySend queues data for the client without blocking. Dropped when the
// buffer is full or the channel already closed.
func (c *Client) trySend(data []byte) {
	defer func() {
		recover() // absorb send on closed channel during disconnect
	}()

	select {
	case c.send <- data:
	default:
		// Slow client; skip this event.
	}
}

func (c *Client) isSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *Client) sendResponse(msgType, topic string) {
	msg := Message{
		Type:      msgType,
		Topic:     topic,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Client) sendError(text string) {
	msg := Message{Type: MsgTypeError, Error: text}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}
