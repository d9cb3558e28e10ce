package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/lens-onboard/ports"
)

// RedisStore is a Redis-backed KeyValueStore. Keys are namespaced by prefix and
// expire after ttl when ttl is positive.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ ports.KeyValueStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// GetItem returns the value stored at key
func (s *RedisStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, true, nil
}

// SetItem overwrites the value at key
func (s *RedisStore) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key
func (s *RedisStore) RemoveItem(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
