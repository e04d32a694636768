// Package schema has shared models and constants for all parts of digitaldiary.
package schema

import (
	"net/http"
	"time"
)

// CachedEntry is a stored response snapshot keyed by generation, method and absolute URL.
type CachedEntry struct {
	Generation string
	Method     string
	URL        string
	Status     int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// EntryInfo is the metadata of a CachedEntry without its body.
type EntryInfo struct {
	Generation  string    `json:"generation"`
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StoredAt    time.Time `json:"stored_at"`
}

// Info strips the body from a CachedEntry.
func (e CachedEntry) Info() EntryInfo {
	info := EntryInfo{
		Generation: e.Generation,
		Method:     e.Method,
		URL:        e.URL,
		Status:     e.Status,
		SizeBytes:  int64(len(e.Body)),
		StoredAt:   e.StoredAt,
	}
	if e.Header != nil {
		info.ContentType = e.Header.Get("Content-Type")
	}
	return info
}

// GenerationInfo summarizes one cache generation.
type GenerationInfo struct {
	Name       string    `json:"name"`
	Entries    int       `json:"entries"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	Current    bool      `json:"current"`
	LastStored time.Time `json:"last_stored"`
}

// CacheStatus holds status information about the cache store.
type CacheStatus struct {
	Backend         string    `json:"backend"`
	Connected       bool      `json:"connected"`
	Generations     int       `json:"generations"`
	TotalEntries    int       `json:"total_entries"`
	LastEntryTime   time.Time `json:"last_entry_time"`
	OldestEntryTime time.Time `json:"oldest_entry_time"`
	TableSizeBytes  int64     `json:"table_size_bytes"`
}

// WorkerStatus is the externally visible snapshot of a worker.
type WorkerStatus struct {
	Version     string      `json:"version"`
	CacheName   string      `json:"cache_name"`
	State       WorkerState `json:"state"`
	SkipWaiting bool        `json:"skip_waiting"`
}
