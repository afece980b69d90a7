package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/chatwire/chat-platform/internal/cache"
	"github.com/chatwire/chat-platform/internal/gateway"
	"github.com/chatwire/chat-platform/internal/model"
)

func countEvent(t *testing.T, conn *gateway.Conn, event string) int {
	t.Helper()
	n := 0
	for _, env := range recv(t, conn) {
		if env.Event == event {
			n++
		}
	}
	return n
}

func TestFirstConnectionBroadcastsOnline(t *testing.T) {
	e := newTestEnv()
	seedUsers(e)
	ctx := context.Background()

	watcher := e.connect(t, "user-b")
	recv(t, watcher)

	conn := gateway.NewConn("user-a", "alice", 16)
	e.gw.Register(conn)
	e.presence.Connected(ctx, conn)

	if !e.presence.IsOnline(ctx, "user-a") {
		t.Fatal("user not online after connect")
	}

	envs := recv(t, watcher)
	var online *model.PresencePayload
	for _, env := range envs {
		if env.Event == model.EventUserOnline {
			var p model.PresencePayload
			if err := json.Unmarshal(env.Data, &p); err != nil {
				t.Fatalf("bad presence payload: %v", err)
			}
			online = &p
		}
	}
	if online == nil {
		t.Fatal("no user_online broadcast")
	}
	if online.UserID != "user-a" || online.Username != "alice" {
		t.Fatalf("unexpected presence payload: %+v", online)
	}

	e.store.mu.Lock()
	persisted := e.store.online["user-a"]
	e.store.mu.Unlock()
	if !persisted {
		t.Fatal("online flag not persisted")
	}
}

func TestSecondDeviceDoesNotRebroadcastOnline(t *testing.T) {
	e := newTestEnv()
	seedUsers(e)
	ctx := context.Background()

	watcher := e.connect(t, "user-b")

	first := gateway.NewConn("user-a", "alice", 16)
	second := gateway.NewConn("user-a", "alice", 16)
	e.gw.Register(first)
	e.gw.Register(second)
	e.presence.Connected(ctx, first)
	recv(t, watcher)
	e.presence.Connected(ctx, second)

	if got := countEvent(t, watcher, model.EventUserOnline); got != 0 {
		t.Fatalf("second device rebroadcast user_online %d times", got)
	}
	members, err := e.cache.Members(ctx, cache.OnlineConnsKey("user-a"))
	if err != nil || len(members) != 2 {
		t.Fatalf("connection set has %d members (err %v), want 2", len(members), err)
	}
}

func TestDisconnectKeepsUserOnlineWhileDevicesRemain(t *testing.T) {
	e := newTestEnv()
	seedUsers(e)
	ctx := context.Background()

	watcher := e.connect(t, "user-b")

	first := gateway.NewConn("user-a", "alice", 16)
	second := gateway.NewConn("user-a", "alice", 16)
	e.gw.Register(first)
	e.gw.Register(second)
	e.presence.Connected(ctx, first)
	e.presence.Connected(ctx, second)
	recv(t, watcher)

	e.gw.Unregister(first)
	e.presence.Disconnected(ctx, first)

	if !e.presence.IsOnline(ctx, "user-a") {
		t.Fatal("user went offline while a device remained")
	}
	if got := countEvent(t, watcher, model.EventUserOffline); got != 0 {
		t.Fatalf("user_offline broadcast %d times with a device remaining", got)
	}

	e.gw.Unregister(second)
	e.presence.Disconnected(ctx, second)

	if e.presence.IsOnline(ctx, "user-a") {
		t.Fatal("user still online after last disconnect")
	}
	if got := countEvent(t, watcher, model.EventUserOffline); got != 1 {
		t.Fatalf("user_offline broadcast %d times, want 1", got)
	}
	if _, err := e.cache.Get(ctx, cache.UserOnlineKey("user-a")); err != cache.ErrMiss {
		t.Fatal("presence blob survived the last disconnect")
	}
	e.store.mu.Lock()
	persisted := e.store.online["user-a"]
	e.store.mu.Unlock()
	if persisted {
		t.Fatal("offline flag not persisted")
	}
}

func TestHeartbeatRestoresEvictedConnectionSet(t *testing.T) {
	e := newTestEnv()
	seedUsers(e)
	ctx := context.Background()

	watcher := e.connect(t, "user-b")

	first := gateway.NewConn("user-a", "alice", 16)
	second := gateway.NewConn("user-a", "alice", 16)
	e.gw.Register(first)
	e.gw.Register(second)
	e.presence.Connected(ctx, first)
	e.presence.Connected(ctx, second)
	recv(t, watcher)

	// Redis dropping the whole set after an unrefreshed TTL.
	e.cache.evictSet(cache.OnlineConnsKey("user-a"))
	if e.presence.IsOnline(ctx, "user-a") {
		t.Fatal("evicted set still reported online")
	}

	e.presence.Heartbeat(ctx, second)

	if !e.presence.IsOnline(ctx, "user-a") {
		t.Fatal("heartbeat did not restore online state")
	}

	// The first device disconnecting must not take the user offline while
	// the heartbeating device remains in the set.
	e.gw.Unregister(first)
	e.presence.Disconnected(ctx, first)

	if !e.presence.IsOnline(ctx, "user-a") {
		t.Fatal("user went offline while a device remained after eviction")
	}
	if got := countEvent(t, watcher, model.EventUserOffline); got != 0 {
		t.Fatalf("user_offline broadcast %d times with a device remaining", got)
	}
}

func TestHeartbeatRewritesPresenceBlob(t *testing.T) {
	e := newTestEnv()
	seedUsers(e)
	ctx := context.Background()

	conn := gateway.NewConn("user-a", "alice", 16)
	e.gw.Register(conn)
	e.presence.Connected(ctx, conn)

	// Blob expiry partway through the session.
	e.cache.Del(ctx, cache.UserOnlineKey("user-a"))

	e.presence.Heartbeat(ctx, conn)

	if _, err := e.cache.Get(ctx, cache.UserOnlineKey("user-a")); err != nil {
		t.Fatalf("presence blob not rewritten by heartbeat: %v", err)
	}
}

func TestStaleDisplaySetDoesNotSuppressOffline(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	// A crashed gateway's leftover: display-set membership with no live
	// connection set behind it.
	if err := e.cache.AddMember(ctx, cache.OnlineUsersKey, "ghost"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if e.presence.IsOnline(ctx, "ghost") {
		t.Fatal("stale display-set membership reported online")
	}
}

func TestIsOnlineDefaultsToOfflineForUnknownUser(t *testing.T) {
	e := newTestEnv()
	if e.presence.IsOnline(context.Background(), "ghost") {
		t.Fatal("unknown user reported online")
	}
}
