package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore persists cache entries in Redis with no expiry. Entries are
// never invalidated automatically; staleness is the operator's concern.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

func redisKey(namespace, key string) string {
	return fmt.Sprintf("researchd:cache:%s:%s", namespace, key)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %s/%s: %w", namespace, key, err)
	}
	return val, true, nil
}

// Put implements Store. Writes carry no TTL: cached responses are
// deterministic given identical inputs and stay valid indefinitely.
func (s *RedisStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKey(namespace, key), value, 0).Err(); err != nil {
		return fmt.Errorf("cache put %s/%s: %w", namespace, key, err)
	}
	return nil
}
