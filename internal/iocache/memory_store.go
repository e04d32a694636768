package iocache

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/schema"
)

// MemoryStorage is a process-local CacheStorage. It does not survive restarts
// and is meant for tests and throwaway workers.
type MemoryStorage struct {
	mu          sync.RWMutex
	generations map[string]*memGeneration
}

type memGeneration struct {
	createdAt time.Time
	entries   map[string]schema.CachedEntry
}

var _ contract.CacheStorage = &MemoryStorage{} // Compile-time check

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{generations: make(map[string]*memGeneration)}
}

// cloneEntry copies the mutable parts of an entry so callers never share buffers with the store.
func cloneEntry(e schema.CachedEntry) schema.CachedEntry {
	e.Header = e.Header.Clone()
	e.Body = bytes.Clone(e.Body)
	return e
}

// Keys returns the names of all generations.
func (ms *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	names := make([]string, 0, len(ms.generations))
	for name := range ms.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a generation.
func (ms *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	_, ok := ms.generations[name]
	delete(ms.generations, name)
	return ok, nil
}

// Match returns a copy of the stored entry.
func (ms *MemoryStorage) Match(_ context.Context, name, method, url string) (schema.CachedEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	gen, ok := ms.generations[name]
	if !ok {
		return schema.CachedEntry{}, contract.ErrCacheMiss
	}
	entry, ok := gen.entries[EntryKey(method, url)]
	if !ok {
		return schema.CachedEntry{}, contract.ErrCacheMiss
	}
	return cloneEntry(entry), nil
}

// Put creates or overwrites a single entry of an existing generation.
func (ms *MemoryStorage) Put(_ context.Context, entry schema.CachedEntry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	gen, ok := ms.generations[entry.Generation]
	if !ok {
		return fmt.Errorf("%w: %s", contract.ErrGenerationNotFound, entry.Generation)
	}
	gen.store(entry.Generation, []schema.CachedEntry{entry}, time.Now())
	return nil
}

// PutAll stores every entry under one lock, so readers see all or none of them.
func (ms *MemoryStorage) PutAll(_ context.Context, name string, entries []schema.CachedEntry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	now := time.Now()
	gen, ok := ms.generations[name]
	if !ok {
		gen = &memGeneration{createdAt: now, entries: make(map[string]schema.CachedEntry)}
		ms.generations[name] = gen
	}
	gen.store(name, entries, now)
	return nil
}

func (g *memGeneration) store(name string, entries []schema.CachedEntry, now time.Time) {
	for _, e := range entries {
		e = cloneEntry(e)
		e.Generation = name
		e.Method = strings.ToUpper(e.Method)
		if e.StoredAt.IsZero() {
			e.StoredAt = now
		}
		g.entries[EntryKey(e.Method, e.URL)] = e
	}
}

// Entries lists the entries of a generation ordered by URL.
func (ms *MemoryStorage) Entries(_ context.Context, name string) ([]schema.CachedEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	gen, ok := ms.generations[name]
	if !ok {
		return nil, nil
	}
	entries := make([]schema.CachedEntry, 0, len(gen.entries))
	for _, e := range gen.entries {
		entries = append(entries, cloneEntry(e))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].URL == entries[j].URL {
			return entries[i].Method < entries[j].Method
		}
		return entries[i].URL < entries[j].URL
	})
	return entries, nil
}

// Generations summarizes every generation.
func (ms *MemoryStorage) Generations(_ context.Context) ([]schema.GenerationInfo, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	infos := make([]schema.GenerationInfo, 0, len(ms.generations))
	for name, gen := range ms.generations {
		info := schema.GenerationInfo{Name: name, CreatedAt: gen.createdAt, Entries: len(gen.entries)}
		for _, e := range gen.entries {
			info.SizeBytes += int64(len(e.Body))
			if e.StoredAt.After(info.LastStored) {
				info.LastStored = e.StoredAt
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// GetStatus returns status information about the store.
func (ms *MemoryStorage) GetStatus(_ context.Context) (schema.CacheStatus, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	status := schema.CacheStatus{
		Backend:     string(schema.MemoryBackend),
		Connected:   true,
		Generations: len(ms.generations),
	}
	for _, gen := range ms.generations {
		for _, e := range gen.entries {
			status.TotalEntries++
			status.TableSizeBytes += int64(len(e.Body))
			if e.StoredAt.After(status.LastEntryTime) {
				status.LastEntryTime = e.StoredAt
			}
			if status.OldestEntryTime.IsZero() || e.StoredAt.Before(status.OldestEntryTime) {
				status.OldestEntryTime = e.StoredAt
			}
		}
	}
	return status, nil
}

// Close is a no-op.
func (ms *MemoryStorage) Close() error {
	return nil
}
