package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // cgo-free sqlite driver
)

// SnapshotStore persists cache contents across restarts: one JSON document
// per store in a local SQLite file. Timestamps are serialized as ISO-8601
// (RFC 3339); entries that have expired by load time are silently dropped.
type SnapshotStore struct {
	db *sql.DB
}

// EntrySnapshot is the wire form of a cache entry inside a snapshot document.
// Value is kept as raw JSON so each store can decode it into its own type.
type EntrySnapshot struct {
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	AccessCount  int             `json:"access_count"`
	LastAccessed time.Time       `json:"last_accessed"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// OpenSnapshotStore opens (creating if necessary) the snapshot database.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open snapshot db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_snapshots (
			store    TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			saved_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create snapshot table: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Save writes the snapshot document for one store, replacing any previous one.
func (ss *SnapshotStore) Save(storeName string, document []byte) error {
	_, err := ss.db.Exec(`
		INSERT INTO cache_snapshots (store, document, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(store) DO UPDATE SET document = excluded.document, saved_at = excluded.saved_at
	`, storeName, string(document), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache: save snapshot for %q: %w", storeName, err)
	}
	return nil
}

// Load reads the snapshot document for one store. Returns ok=false when no
// snapshot has been saved for it.
func (ss *SnapshotStore) Load(storeName string) ([]byte, bool, error) {
	var document string
	err := ss.db.QueryRow(
		`SELECT document FROM cache_snapshots WHERE store = ?`, storeName,
	).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: load snapshot for %q: %w", storeName, err)
	}
	return []byte(document), true, nil
}

// Close closes the underlying database.
func (ss *SnapshotStore) Close() error {
	return ss.db.Close()
}

// exportSnapshots converts a store's live entries into their wire form.
func exportSnapshots(s *Store) ([]EntrySnapshot, error) {
	entries := s.Export()
	out := make([]EntrySnapshot, 0, len(entries))
	for _, e := range entries {
		value, err := json.Marshal(e.Value)
		if err != nil {
			// An unencodable value poisons only its own entry.
			continue
		}
		out = append(out, EntrySnapshot{
			Key:          e.Key,
			Value:        value,
			CreatedAt:    e.CreatedAt,
			ExpiresAt:    e.ExpiresAt,
			AccessCount:  e.AccessCount,
			LastAccessed: e.LastAccessed,
			Metadata:     e.Metadata,
		})
	}
	return out, nil
}

// importSnapshots restores snapshotted entries into a store, decoding each
// value as T. Expired entries are dropped by ImportEntry; entries whose value
// no longer decodes are skipped.
func importSnapshots[T any](s *Store, snaps []EntrySnapshot) int {
	restored := 0
	for _, snap := range snaps {
		var value T
		if err := json.Unmarshal(snap.Value, &value); err != nil {
			continue
		}
		before := s.Len()
		s.ImportEntry(&Entry{
			Key:          snap.Key,
			Value:        value,
			CreatedAt:    snap.CreatedAt,
			ExpiresAt:    snap.ExpiresAt,
			AccessCount:  snap.AccessCount,
			LastAccessed: snap.LastAccessed,
			Metadata:     snap.Metadata,
		})
		if s.Len() > before {
			restored++
		}
	}
	return restored
}
