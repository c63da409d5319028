// Package storage provides the durable key/value backends the cache
// manager mirrors entries to. Backends are expected to degrade gracefully:
// callers treat read failures as misses and write failures as reported
// errors, never as fatal conditions.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when the key has no durable record.
var ErrNotFound = errors.New("storage: key not found")

// Storage abstracts a durable key/value store.
type Storage interface {
	// Read returns the blob stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores the blob under key, replacing any existing record.
	Write(ctx context.Context, key string, value []byte) error

	// Remove deletes the record under key. It reports whether a record
	// existed.
	Remove(ctx context.Context, key string) (bool, error)

	// RemoveMany deletes all the given keys. Missing keys are not an error.
	RemoveMany(ctx context.Context, keys []string) error

	// ListKeys returns every stored key with the given prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
