// Package gateway maintains live client connections and their channel
// subscriptions, and fans events out to them.
package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chatwire/chat-platform/internal/model"
)

// UserChannel returns the private per-user channel name. Every authenticated
// connection is auto-joined to it so server push always has a target.
func UserChannel(userID string) string {
	return "user:" + userID
}

// ConversationChannel returns the per-conversation broadcast channel name.
func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}

// Conn is one authenticated client connection. The transport write loop
// drains Outbound; everything else goes through the Gateway API.
type Conn struct {
	id       string
	userID   string
	username string

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewConn creates a connection owned by the given principal.
func NewConn(userID, username string, sendBuffer int) *Conn {
	return &Conn{
		id:       uuid.Must(uuid.NewV7()).String(),
		userID:   userID,
		username: username,
		send:     make(chan []byte, sendBuffer),
		closed:   make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// UserID returns the owning user's id.
func (c *Conn) UserID() string {
	return c.userID
}

// Username returns the authenticated username.
func (c *Conn) Username() string {
	return c.username
}

// Emit marshals an event envelope and queues it for delivery. A full send
// buffer drops the frame rather than blocking fan-out for other recipients.
func (c *Conn) Emit(event string, payload any) error {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.queue(data)
	return nil
}

func (c *Conn) queue(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Outbound returns the channel the transport write loop drains.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Close marks the connection closed. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func marshalEnvelope(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		data = raw
	}
	return json.Marshal(model.Envelope{Event: event, Data: data})
}
