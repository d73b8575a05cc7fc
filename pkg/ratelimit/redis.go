package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore backs the limiter with Redis so counters are shared across
// server instances. INCR provides the atomic increment-and-check; the key
// expires when the window elapses.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed counter store
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Incr atomically increments the counter for key. The expiry is set when the
// window opens, not refreshed on later increments, so the window stays fixed
// rather than sliding with each call. A key that somehow lost its TTL (a
// failed EXPIRE after a committed INCR) is given one again instead of
// counting up forever.
func (s *RedisStore) Incr(ctx context.Context, key string, windowLen time.Duration, _ time.Time) (int64, error) {
	redisKey := s.redisKey(key)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	count := incr.Val()
	if count == 1 || ttl.Val() < 0 {
		if err := s.client.Expire(ctx, redisKey, windowLen).Err(); err != nil {
			return 0, fmt.Errorf("redis expire: %w", err)
		}
	}
	return count, nil
}

// Get returns the current count for key
func (s *RedisStore) Get(ctx context.Context, key string, _ time.Duration, _ time.Time) (int64, error) {
	count, err := s.client.Get(ctx, s.redisKey(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return count, nil
}

// Reset clears the counter for key
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.redisKey(key)).Err()
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":" + key
}
