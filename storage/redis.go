package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage is a Redis-backed Storage implementation.
type RedisStorage struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewRedisStorage creates a Redis-backed storage. Individual operations are
// bounded by a short timeout so a slow Redis cannot stall cache callers.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{
		client:    client,
		opTimeout: 250 * time.Millisecond,
	}
}

func (s *RedisStorage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *RedisStorage) Read(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStorage) Write(ctx context.Context, key string, value []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// No Redis-side expiry: records carry their own TTL and are pruned by
	// Clear or on expired reads.
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStorage) Remove(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStorage) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Delete in chunks so a large invalidation doesn't block Redis.
	const chunk = 100
	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStorage) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		result = append(result, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return result, nil
}
