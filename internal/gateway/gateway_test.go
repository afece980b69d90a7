package gateway

import (
	"encoding/json"
	"testing"

	"github.com/chatwire/chat-platform/internal/model"
	"github.com/chatwire/chat-platform/pkg/logger"
)

func newTestGateway() *Gateway {
	return New(logger.NewNop())
}

// drain collects all frames currently queued on a connection.
func drain(t *testing.T, c *Conn) []model.Envelope {
	t.Helper()
	var frames []model.Envelope
	for {
		select {
		case data := <-c.Outbound():
			var env model.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("failed to decode frame: %v", err)
			}
			frames = append(frames, env)
		default:
			return frames
		}
	}
}

func TestRegisterAutoJoinsUserChannel(t *testing.T) {
	g := newTestGateway()
	c := NewConn("user-1", "alice", 16)
	g.Register(c)

	g.EmitToChannel(UserChannel("user-1"), "ping", nil)

	frames := drain(t, c)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame on user channel, got %d", len(frames))
	}
	if frames[0].Event != "ping" {
		t.Errorf("expected event 'ping', got %q", frames[0].Event)
	}
}

func TestEmitToUserReachesAllConnections(t *testing.T) {
	g := newTestGateway()
	c1 := NewConn("user-1", "alice", 16)
	c2 := NewConn("user-1", "alice", 16)
	other := NewConn("user-2", "bob", 16)
	g.Register(c1)
	g.Register(c2)
	g.Register(other)

	g.EmitToUser("user-1", "hello", map[string]string{"k": "v"})

	if got := len(drain(t, c1)); got != 1 {
		t.Errorf("first device: expected 1 frame, got %d", got)
	}
	if got := len(drain(t, c2)); got != 1 {
		t.Errorf("second device: expected 1 frame, got %d", got)
	}
	if got := len(drain(t, other)); got != 0 {
		t.Errorf("other user: expected 0 frames, got %d", got)
	}
}

func TestEmitToChannelExceptExcludesSender(t *testing.T) {
	g := newTestGateway()
	sender := NewConn("user-1", "alice", 16)
	receiver := NewConn("user-2", "bob", 16)
	g.Register(sender)
	g.Register(receiver)

	channel := ConversationChannel("conv-1")
	g.Join(sender, channel)
	g.Join(receiver, channel)

	g.EmitToChannelExcept(channel, sender.ID(), "typing", nil)

	if got := len(drain(t, sender)); got != 0 {
		t.Errorf("sender: expected 0 frames, got %d", got)
	}
	if got := len(drain(t, receiver)); got != 1 {
		t.Errorf("receiver: expected 1 frame, got %d", got)
	}
}

func TestLeaveStopsChannelDelivery(t *testing.T) {
	g := newTestGateway()
	c := NewConn("user-1", "alice", 16)
	g.Register(c)

	channel := ConversationChannel("conv-1")
	g.Join(c, channel)
	g.Leave(c, channel)

	g.EmitToChannel(channel, "typing", nil)

	if got := len(drain(t, c)); got != 0 {
		t.Errorf("expected 0 frames after leave, got %d", got)
	}
}

func TestUnregisterTearsDownMembership(t *testing.T) {
	g := newTestGateway()
	c := NewConn("user-1", "alice", 16)
	g.Register(c)
	g.Join(c, ConversationChannel("conv-1"))

	g.Unregister(c)

	if g.Count() != 0 {
		t.Fatalf("expected 0 registered connections, got %d", g.Count())
	}
	if g.UserConnectionCount("user-1") != 0 {
		t.Errorf("expected 0 user connections after unregister")
	}

	g.EmitToUser("user-1", "hello", nil)
	g.EmitToChannel(ConversationChannel("conv-1"), "typing", nil)
	if got := len(drain(t, c)); got != 0 {
		t.Errorf("expected no delivery after unregister, got %d frames", got)
	}

	select {
	case <-c.Done():
	default:
		t.Error("expected connection to be closed after unregister")
	}
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	g := newTestGateway()
	conns := []*Conn{
		NewConn("user-1", "alice", 16),
		NewConn("user-2", "bob", 16),
		NewConn("user-3", "carol", 16),
	}
	for _, c := range conns {
		g.Register(c)
	}

	g.Broadcast(model.EventUserOnline, model.PresencePayload{UserID: "user-1", Username: "alice"})

	for i, c := range conns {
		frames := drain(t, c)
		if len(frames) != 1 {
			t.Fatalf("conn %d: expected 1 frame, got %d", i, len(frames))
		}
		var payload model.PresencePayload
		if err := json.Unmarshal(frames[0].Data, &payload); err != nil {
			t.Fatalf("conn %d: failed to decode payload: %v", i, err)
		}
		if payload.UserID != "user-1" {
			t.Errorf("conn %d: expected user-1, got %q", i, payload.UserID)
		}
	}
}

func TestFullSendBufferDropsFrame(t *testing.T) {
	g := newTestGateway()
	c := NewConn("user-1", "alice", 1)
	g.Register(c)

	g.EmitToUser("user-1", "a", nil)
	g.EmitToUser("user-1", "b", nil) // buffer full, dropped

	frames := drain(t, c)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame with a full buffer, got %d", len(frames))
	}
	if frames[0].Event != "a" {
		t.Errorf("expected oldest frame to survive, got %q", frames[0].Event)
	}
}
