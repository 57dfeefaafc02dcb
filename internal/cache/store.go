package cache

import (
	"container/list"
	"sync"
	"time"
)

// Store is a bounded TTL+LRU cache. A mutex guards a key-to-entry map and a
// recency list whose front is the least recently used key; every mutation
// happens lock-held, and iteration copies under the lock before processing.
//
// Eviction is strict recency-based LRU: inserting a new key at capacity
// evicts exactly the front of the recency list, never more.
type Store struct {
	name       string
	maxSize    int
	defaultTTL time.Duration

	mu      sync.Mutex
	entries map[string]*list.Element // element value is *Entry
	order   *list.List               // front = LRU, back = MRU

	now func() time.Time // stubbed in tests
}

// Stats is a point-in-time summary of a store's contents.
type Stats struct {
	Name               string  `json:"name"`
	TotalEntries       int     `json:"total_entries"`
	ExpiredEntries     int     `json:"expired_entries"`
	ActiveEntries      int     `json:"active_entries"`
	AverageAccessCount float64 `json:"average_access_count"`
	// HitRate is the fraction of entries accessed more than once, 0-100.
	HitRate     float64 `json:"hit_rate"`
	MaxSize     int     `json:"max_size"`
	Utilization float64 `json:"utilization"`
}

// NewStore creates a store holding at most maxSize entries. Entries stored
// without an explicit TTL expire after defaultTTL.
func NewStore(name string, maxSize int, defaultTTL time.Duration) *Store {
	if maxSize < 1 {
		maxSize = 1
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Store{
		name:       name,
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the value for key. A missing or expired key is a miss; an
// expired entry is evicted on the spot. A hit bumps the entry's access count
// and recency. Get never panics and has no failure mode beyond a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*Entry)

	now := s.now()
	if entry.Expired(now) {
		s.removeLocked(key, el)
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessed = now
	s.order.MoveToBack(el)
	return entry.Value, true
}

// Set stores value under key with the given TTL (defaultTTL when ttl <= 0).
// If key is new and the store is at capacity, the single least recently used
// key is evicted first. Setting an existing key replaces its entry in place.
func (s *Store) Set(key string, value any, ttl time.Duration, metadata map[string]any) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := &Entry{
		Key:          key,
		Value:        value,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		AccessCount:  1,
		LastAccessed: now,
		Metadata:     metadata,
	}

	if el, ok := s.entries[key]; ok {
		el.Value = entry
		s.order.MoveToBack(el)
		return
	}

	if len(s.entries) >= s.maxSize {
		if front := s.order.Front(); front != nil {
			s.removeLocked(front.Value.(*Entry).Key, front)
		}
	}
	s.entries[key] = s.order.PushBack(entry)
}

// Remove deletes key if present.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		s.removeLocked(key, el)
	}
}

// removeLocked must be called with s.mu held.
func (s *Store) removeLocked(key string, el *list.Element) {
	s.order.Remove(el)
	delete(s.entries, key)
}

// Len returns the number of entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*list.Element)
	s.order.Init()
}

// PurgeExpired removes all expired entries and returns how many were removed.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	purged := 0
	for key, el := range s.entries {
		if el.Value.(*Entry).Expired(now) {
			s.removeLocked(key, el)
			purged++
		}
	}
	return purged
}

// Stats summarizes the store's contents.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := Stats{
		Name:         s.name,
		TotalEntries: len(s.entries),
		MaxSize:      s.maxSize,
	}

	var totalAccess, reaccessed int
	for _, el := range s.entries {
		entry := el.Value.(*Entry)
		if entry.Expired(now) {
			st.ExpiredEntries++
		}
		totalAccess += entry.AccessCount
		if entry.AccessCount > 1 {
			reaccessed++
		}
	}
	st.ActiveEntries = st.TotalEntries - st.ExpiredEntries
	if st.TotalEntries > 0 {
		st.AverageAccessCount = float64(totalAccess) / float64(st.TotalEntries)
		st.HitRate = float64(reaccessed) / float64(st.TotalEntries) * 100
	}
	st.Utilization = float64(st.TotalEntries) / float64(s.maxSize) * 100
	return st
}

// Export copies all non-expired entries for snapshot persistence, ordered
// LRU-first so an import replaying them in order reproduces the recency list.
func (s *Store) Export() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]*Entry, 0, len(s.entries))
	for el := s.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*Entry)
		if entry.Expired(now) {
			continue
		}
		cp := *entry
		out = append(out, &cp)
	}
	return out
}

// ImportEntry restores a snapshotted entry, preserving its original
// timestamps and access count. Already-expired entries are dropped.
func (s *Store) ImportEntry(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Expired(s.now()) {
		return
	}
	if el, ok := s.entries[entry.Key]; ok {
		el.Value = entry
		s.order.MoveToBack(el)
		return
	}
	if len(s.entries) >= s.maxSize {
		if front := s.order.Front(); front != nil {
			s.removeLocked(front.Value.(*Entry).Key, front)
		}
	}
	s.entries[entry.Key] = s.order.PushBack(entry)
}
