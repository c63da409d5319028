package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func redisAvailable(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:6379",
		DialTimeout: 100 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func cleanupKeys(t *testing.T, client *redis.Client, prefix string) {
	t.Helper()
	ctx := context.Background()
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
}

func TestRedisStorageRoundTrip(t *testing.T) {
	client := redisAvailable(t)
	defer client.Close()
	defer cleanupKeys(t, client, "test:storage:")

	s := NewRedisStorage(client)
	ctx := context.Background()

	if _, err := s.Read(ctx, "test:storage:missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.Write(ctx, "test:storage:k1", []byte("payload")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := s.Read(ctx, "test:storage:k1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("expected payload, got %s", data)
	}

	removed, err := s.Remove(ctx, "test:storage:k1")
	if err != nil || !removed {
		t.Errorf("expected removal, got removed=%v err=%v", removed, err)
	}
}

func TestRedisStorageListAndRemoveMany(t *testing.T) {
	client := redisAvailable(t)
	defer client.Close()
	defer cleanupKeys(t, client, "test:storage:")

	s := NewRedisStorage(client)
	ctx := context.Background()

	s.Write(ctx, "test:storage:a", []byte("1"))
	s.Write(ctx, "test:storage:b", []byte("2"))

	keys, err := s.ListKeys(ctx, "test:storage:")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %v", keys)
	}

	if err := s.RemoveMany(ctx, keys); err != nil {
		t.Fatalf("remove many failed: %v", err)
	}
	keys, _ = s.ListKeys(ctx, "test:storage:")
	if len(keys) != 0 {
		t.Errorf("expected no keys after removal, got %v", keys)
	}
}
