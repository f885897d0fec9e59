// Package subscriber provides an observer handle for the equipment-updates
// topic. The client dials the hub's WebSocket endpoint, subscribes, and
// transparently reconnects and resubscribes when the connection drops.
//
// There is no replay: events published while disconnected are gone, and a
// consumer that needs to resynchronize should refetch current state through
// the equipment API.
package subscriber

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"equipment-tracker-backend/internal/hub"
)

// reconnectDelays is the wait schedule between reconnect attempts. The last
// entry repeats for every attempt after it.
var reconnectDelays = []time.Duration{
	0,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Event is one received broadcast.
type Event struct {
	Topic   string
	Event   string
	Payload json.RawMessage
}

// Client is a reconnecting subscriber for a single topic.
type Client struct {
	url    string
	topic  string
	dialer *websocket.Dialer
	events chan Event
}

// New creates a client for the given ws:// URL and topic. Run must be called
// for events to flow.
func New(url, topic string) *Client {
	return &Client{
		url:    url,
		topic:  topic,
		dialer: websocket.DefaultDialer,
		events: make(chan Event, 64),
	}
}

// Events returns the channel on which received broadcasts are delivered.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Run connects and consumes events until the context is cancelled. Each
// connection loss triggers a reconnect following reconnectDelays; a
// successful subscribe resets the schedule.
func (c *Client) Run(ctx context.Context) {
	defer close(c.events)

	attempt := 0
	for {
		if !c.waitBeforeAttempt(ctx, attempt) {
			return
		}

		conn, err := c.connect(ctx)
		if err != nil {
			log.Printf("subscriber: connect to %s failed: %v", c.url, err)
			attempt++
			continue
		}
		attempt = 0

		if err := c.consume(ctx, conn); err != nil {
			log.Printf("subscriber: connection lost: %v", err)
		}
		conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
			// Connection was established and then lost: start a fresh
			// reconnect sequence, first attempt immediate.
		}
	}
}

// waitBeforeAttempt sleeps per the reconnect schedule. Returns false when the
// context was cancelled while waiting.
func (c *Client) waitBeforeAttempt(ctx context.Context, attempt int) bool {
	idx := attempt
	if idx >= len(reconnectDelays) {
		idx = len(reconnectDelays) - 1
	}
	delay := reconnectDelays[idx]
	if delay == 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// connect dials the hub and sends the subscribe frame.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	sub := hub.Message{Type: hub.MsgTypeSubscribe, Topic: c.topic}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// consume reads frames until the connection fails or the context is
// cancelled, forwarding event frames to the events channel.
func (c *Client) consume(ctx context.Context, conn *websocket.Conn) error {
	// Unblock the read loop on cancellation.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var msg hub.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case hub.MsgTypeEvent:
			ev := Event{Topic: msg.Topic, Event: msg.Event, Payload: msg.Payload}
			select {
			case c.events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case hub.MsgTypeResponse, hub.MsgTypePong, hub.MsgTypeError:
			// Acknowledgements and server-side complaints; nothing to forward.
		}
	}
}
