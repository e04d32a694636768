// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"errors"

	"github.com/huangsam/digitaldiary/schema"
)

// ErrCacheMiss is returned by a CacheStorage when no entry matches.
var ErrCacheMiss = errors.New("cache miss")

// ErrGenerationNotFound is returned by Put when the entry's generation does not exist.
var ErrGenerationNotFound = errors.New("cache generation not found")

// CacheStorage defines the durable, generation-indexed store of response snapshots.
// A generation is addressed by its name, which embeds the version tag.
// This allows the store to be mocked for testing.
type CacheStorage interface {
	// Keys returns the names of all generations in the store.
	Keys(ctx context.Context) ([]string, error)

	// Delete removes a generation and every entry in it. It reports whether
	// the generation existed.
	Delete(ctx context.Context, name string) (bool, error)

	// Match returns the entry stored under generation name for method and url,
	// or ErrCacheMiss.
	Match(ctx context.Context, name, method, url string) (schema.CachedEntry, error)

	// Put creates or overwrites a single entry in an existing generation.
	// It returns ErrGenerationNotFound when the generation is absent, so a
	// deleted generation is never brought back by a late write.
	Put(ctx context.Context, entry schema.CachedEntry) error

	// PutAll writes every entry into generation name atomically: either all
	// of them are stored or none are.
	PutAll(ctx context.Context, name string, entries []schema.CachedEntry) error

	// Entries lists the entries of a generation ordered by URL.
	Entries(ctx context.Context, name string) ([]schema.CachedEntry, error)

	// Generations summarizes every generation in the store.
	Generations(ctx context.Context) ([]schema.GenerationInfo, error)

	// GetStatus returns status information about the store.
	GetStatus(ctx context.Context) (schema.CacheStatus, error)

	Close() error
}

// CacheManager defines the interface for reaching the configured cache store.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetCacheStorage() CacheStorage
}
