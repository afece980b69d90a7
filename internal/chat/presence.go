// Package chat implements the real-time conversation coordination core:
// socket event handling, membership-gated fan-out, presence tracking, and the
// cache-invalidation pipeline around message events.
package chat

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/chatwire/chat-platform/internal/cache"
	"github.com/chatwire/chat-platform/internal/gateway"
	"github.com/chatwire/chat-platform/internal/model"
	"github.com/chatwire/chat-platform/internal/search"
	"github.com/chatwire/chat-platform/internal/store"
	"github.com/chatwire/chat-platform/pkg/logger"
	"github.com/chatwire/chat-platform/pkg/metrics"
)

// Presence tracks which users are reachable by at least one live connection.
// Connections are reference-counted per user in a cache set keyed by
// connection id, so a multi-device user stays online until the last
// connection drops.
type Presence struct {
	store   store.Store
	cache   cache.Cache
	search  search.Indexer
	gw      *gateway.Gateway
	logger  *logger.Logger
	setTTL  time.Duration
	blobTTL time.Duration
}

// NewPresence creates a presence coordinator.
func NewPresence(st store.Store, c cache.Cache, idx search.Indexer, gw *gateway.Gateway, log *logger.Logger, setTTL, blobTTL time.Duration) *Presence {
	return &Presence{
		store:   st,
		cache:   c,
		search:  idx,
		gw:      gw,
		logger:  log,
		setTTL:  setTTL,
		blobTTL: blobTTL,
	}
}

type presenceBlob struct {
	Username string    `json:"username"`
	Since    time.Time `json:"since"`
}

// Connected records a new live connection for the user. The user_online
// broadcast and durable/online-index writes happen only on the transition
// from zero connections to one.
func (p *Presence) Connected(ctx context.Context, conn *gateway.Conn) {
	userID := conn.UserID()
	connsKey := cache.OnlineConnsKey(userID)

	// The connection set is the source of truth for "online": it carries a
	// TTL so a gateway that dies without cleanup ages out instead of leaving
	// its users online forever.
	remaining, err := p.cache.Cardinality(ctx, connsKey)
	if err != nil {
		p.logger.Warn("connection-set lookup failed, treating user as offline",
			zap.String("user_id", userID), zap.Error(err))
		remaining = 0
	}
	wasOnline := remaining > 0

	p.refreshMarkers(ctx, conn)

	if wasOnline {
		return
	}

	now := time.Now()
	if err := p.store.SetUserOnline(ctx, userID, true, now); err != nil {
		p.logger.Error("failed to persist online status",
			zap.String("user_id", userID), zap.Error(err))
	}

	go p.mirrorOnlineFlag(userID, true)

	p.gw.Broadcast(model.EventUserOnline, model.PresencePayload{
		UserID:   userID,
		Username: conn.Username(),
	})
	metrics.OnlineUsers.Inc()
}

// Disconnected removes a live connection for the user. Only when the last
// connection is gone does the user leave the online set and user_offline
// broadcast.
func (p *Presence) Disconnected(ctx context.Context, conn *gateway.Conn) {
	userID := conn.UserID()
	connsKey := cache.OnlineConnsKey(userID)

	if err := p.cache.RemoveMember(ctx, connsKey, conn.ID()); err != nil {
		p.logger.Warn("failed to remove connection from online set",
			zap.String("user_id", userID), zap.Error(err))
	}

	remaining, err := p.cache.Cardinality(ctx, connsKey)
	if err != nil {
		p.logger.Warn("connection-set lookup failed, treating user as offline",
			zap.String("user_id", userID), zap.Error(err))
		remaining = 0
	}
	if remaining > 0 {
		return
	}

	if err := p.cache.RemoveMember(ctx, cache.OnlineUsersKey, userID); err != nil {
		p.logger.Warn("failed to remove user from online set",
			zap.String("user_id", userID), zap.Error(err))
	}
	if err := p.cache.Del(ctx, cache.UserOnlineKey(userID)); err != nil {
		p.logger.Warn("failed to delete presence blob", zap.Error(err))
	}

	now := time.Now()
	if err := p.store.SetUserOnline(ctx, userID, false, now); err != nil {
		p.logger.Error("failed to persist offline status",
			zap.String("user_id", userID), zap.Error(err))
	}

	go p.mirrorOnlineFlag(userID, false)

	p.gw.Broadcast(model.EventUserOffline, model.PresencePayload{
		UserID:   userID,
		Username: conn.Username(),
	})
	metrics.OnlineUsers.Dec()
}

// Heartbeat re-asserts the connection's liveness markers. The transport ping
// loop calls it so the TTL-bounded keys survive sessions longer than their
// TTLs; it also restores the set after an eviction.
func (p *Presence) Heartbeat(ctx context.Context, conn *gateway.Conn) {
	p.refreshMarkers(ctx, conn)
}

// refreshMarkers writes the connection into its user's connection set,
// renews the set TTL, keeps the display set current, and rewrites the
// short-TTL presence blob.
func (p *Presence) refreshMarkers(ctx context.Context, conn *gateway.Conn) {
	userID := conn.UserID()
	connsKey := cache.OnlineConnsKey(userID)

	if err := p.cache.AddMember(ctx, connsKey, conn.ID()); err != nil {
		p.logger.Warn("failed to record connection in online set",
			zap.String("user_id", userID), zap.Error(err))
	}
	if err := p.cache.Expire(ctx, connsKey, p.setTTL); err != nil {
		p.logger.Warn("failed to set connection-set TTL", zap.Error(err))
	}

	// SADD is idempotent: a second device for an already-online user leaves
	// the membership unchanged.
	if err := p.cache.AddMember(ctx, cache.OnlineUsersKey, userID); err != nil {
		p.logger.Warn("failed to add user to online set",
			zap.String("user_id", userID), zap.Error(err))
	}

	blob, _ := json.Marshal(presenceBlob{Username: conn.Username(), Since: time.Now()})
	if err := p.cache.Set(ctx, cache.UserOnlineKey(userID), blob, p.blobTTL); err != nil {
		p.logger.Warn("failed to set presence blob", zap.Error(err))
	}
}

// IsOnline reports whether the user has at least one live connection. It
// reads the TTL-bounded connection set, not the display set, so entries left
// by a crashed gateway cannot suppress offline notifications indefinitely.
// Cache failure is treated as offline; a spurious notification beats a
// swallowed one.
func (p *Presence) IsOnline(ctx context.Context, userID string) bool {
	remaining, err := p.cache.Cardinality(ctx, cache.OnlineConnsKey(userID))
	if err != nil {
		p.logger.Warn("connection-set lookup failed",
			zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return remaining > 0
}

func (p *Presence) mirrorOnlineFlag(userID string, online bool) {
	if err := p.search.UpdateUserOnline(context.Background(), userID, online); err != nil {
		metrics.SearchIndexErrorsTotal.Inc()
		p.logger.Warn("failed to mirror online flag to search index",
			zap.String("user_id", userID), zap.Error(err))
	}
}
