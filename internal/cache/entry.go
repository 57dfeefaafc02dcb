// Package cache provides the TTL+LRU key-value stores backing Kenko's
// response, vector-result, and embedding caches, plus a manager that
// aggregates them and persists snapshots to SQLite.
package cache

import "time"

// Entry is a single cached value with its TTL and access bookkeeping.
// Invariant: ExpiresAt is strictly after CreatedAt.
type Entry struct {
	Key          string
	Value        any
	CreatedAt    time.Time
	ExpiresAt    time.Time
	AccessCount  int
	LastAccessed time.Time
	Metadata     map[string]any
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
