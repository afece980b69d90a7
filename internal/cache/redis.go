package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatwire/chat-platform/pkg/logger"
	"github.com/chatwire/chat-platform/pkg/metrics"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Redis implements Cache on a Redis instance.
type Redis struct {
	client *redis.Client
	logger *logger.Logger
}

// NewRedis creates a Redis-backed cache.
func NewRedis(cfg RedisConfig, log *logger.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	return &Redis{
		client: client,
		logger: log,
	}
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Get returns the value at key or ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheOp("get", "miss")
		return nil, ErrMiss
	}
	if err != nil {
		metrics.RecordCacheOp("get", "error")
		return nil, err
	}
	metrics.RecordCacheOp("get", "hit")
	return data, nil
}

// Set stores value at key with a TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := r.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		metrics.RecordCacheOp("set", "error")
		return err
	}
	metrics.RecordCacheOp("set", "ok")
	return nil
}

// Del deletes the given keys. Deleting an absent key is not an error.
func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := r.client.Del(ctx, keys...).Err()
	if err != nil {
		metrics.RecordCacheOp("del", "error")
		return err
	}
	metrics.RecordCacheOp("del", "ok")
	return nil
}

// DelByPrefix deletes every key matching prefix. Uses SCAN to avoid blocking
// the server on large keyspaces.
func (r *Redis) DelByPrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

// AddMember adds members to the set at key.
func (r *Redis) AddMember(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.SAdd(ctx, key, args...).Err()
}

// RemoveMember removes members from the set at key.
func (r *Redis) RemoveMember(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.SRem(ctx, key, args...).Err()
}

// IsMember reports whether member is in the set at key.
func (r *Redis) IsMember(ctx context.Context, key, member string) (bool, error) {
	return r.client.SIsMember(ctx, key, member).Result()
}

// Members returns all members of the set at key.
func (r *Redis) Members(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

// Cardinality returns the size of the set at key.
func (r *Redis) Cardinality(ctx context.Context, key string) (int64, error) {
	return r.client.SCard(ctx, key).Result()
}

// Expire sets a TTL on key.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}
