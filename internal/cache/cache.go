// Package cache provides the key-value and set cache used for conversation
// caches and online-user tracking. The cache is a performance layer only:
// callers treat every failure as a miss and recompute from the durable store.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache: miss")

// Cache is the contract consumed by the coordination layer.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelByPrefix(ctx context.Context, prefix string) error

	// Set operations, used for the online-users set and per-user
	// connection sets.
	AddMember(ctx context.Context, key string, members ...string) error
	RemoveMember(ctx context.Context, key string, members ...string) error
	IsMember(ctx context.Context, key, member string) (bool, error)
	Members(ctx context.Context, key string) ([]string, error)
	Cardinality(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
