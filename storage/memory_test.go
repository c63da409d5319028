package storage

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func TestMemoryStorageReadWrite(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	if _, err := s.Read(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.Write(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := s.Read(ctx, "k1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("expected v1, got %s", data)
	}

	// Mutating the returned slice must not affect the stored record.
	data[0] = 'x'
	data2, _ := s.Read(ctx, "k1")
	if string(data2) != "v1" {
		t.Errorf("stored record mutated via returned slice: %s", data2)
	}
}

func TestMemoryStorageRemove(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	s.Write(ctx, "k1", []byte("v1"))

	removed, err := s.Remove(ctx, "k1")
	if err != nil || !removed {
		t.Errorf("expected removal, got removed=%v err=%v", removed, err)
	}

	removed, err = s.Remove(ctx, "k1")
	if err != nil || removed {
		t.Errorf("expected no-op removal, got removed=%v err=%v", removed, err)
	}
}

func TestMemoryStorageListKeysPrefix(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	s.Write(ctx, "cache:geo:a", []byte("1"))
	s.Write(ctx, "cache:geo:b", []byte("2"))
	s.Write(ctx, "session:x", []byte("3"))

	keys, err := s.ListKeys(ctx, "cache:geo:")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "cache:geo:a" || keys[1] != "cache:geo:b" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestMemoryStorageRemoveMany(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	s.Write(ctx, "a", []byte("1"))
	s.Write(ctx, "b", []byte("2"))
	s.Write(ctx, "c", []byte("3"))

	if err := s.RemoveMany(ctx, []string{"a", "b", "nope"}); err != nil {
		t.Fatalf("remove many failed: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 remaining record, got %d", s.Len())
	}
}
