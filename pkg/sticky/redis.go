package sticky

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "paygate:sticky:"

// RedisStore keeps pins in Redis so a gateway fleet shares one sticky view and
// memory is bounded by key TTL on the Redis side.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// NewRedisStoreWithClient is used by tests to point the store at miniredis.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	peerID, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sticky get: %w", err)
	}
	return peerID, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, peerID string) error {
	if key == "" || peerID == "" {
		return nil
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, peerID, s.ttl).Err(); err != nil {
		return fmt.Errorf("sticky put: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
