// Package store provides the server-side cache store: get-or-set with named
// invalidation groups, per-entry TTL, and coalesced computation on miss.
package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is one cached value. Entries are replaced wholesale on every write;
// they are never partially updated.
type Entry struct {
	Key       string
	Payload   any
	Group     string
	WrittenAt time.Time
	TTL       time.Duration
}

// expired reports whether the entry is past its TTL at the given instant.
// A read exactly at WrittenAt+TTL is a miss.
func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.WrittenAt) >= e.TTL
}

// Stats summarizes store activity.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc func(ctx context.Context) (any, error)

// TaggedComputeFunc produces the value for a key on a cache miss along with
// the group the entry belongs to, for callers that only learn the grouping
// dimension from the computed value itself.
type TaggedComputeFunc func(ctx context.Context) (any, string, error)

// Store is a process-shared cache keyed by canonical strings, with entries
// tagged into named groups for bulk invalidation. Concurrent misses on the
// same key coalesce into a single computation.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	groups  map[string]map[string]struct{}
	flight  singleflight.Group
	hits    atomic.Int64
	misses  atomic.Int64

	maxEntries int
	now        func() time.Time
}

// New creates an empty store. maxEntries <= 0 means unbounded.
func New(maxEntries int) *Store {
	return &Store{
		entries:    make(map[string]*Entry),
		groups:     make(map[string]map[string]struct{}),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the live payload for key, if any. Expired entries are treated
// as absent and are left for Purge to collect.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	now := s.now()
	s.mu.RUnlock()

	if !exists || entry.expired(now) {
		s.misses.Add(1)
		return nil, false
	}

	s.hits.Add(1)
	return entry.Payload, true
}

// GetOrSet returns the cached payload for key, computing and storing it on a
// miss. Concurrent callers missing on the same key share one computation. If
// compute fails nothing is written, any prior valid entry is left untouched,
// and the error is returned to every coalesced caller.
func (s *Store) GetOrSet(ctx context.Context, key, group string, ttl time.Duration, compute ComputeFunc) (any, error) {
	return s.GetOrSetTagged(ctx, key, ttl, func(ctx context.Context) (any, string, error) {
		value, err := compute(ctx)
		return value, group, err
	})
}

// GetOrSetTagged is GetOrSet for callers whose group tag is a property of the
// computed value rather than of the key.
func (s *Store) GetOrSetTagged(ctx context.Context, key string, ttl time.Duration, compute TaggedComputeFunc) (any, error) {
	if payload, found := s.Get(key); found {
		return payload, nil
	}

	payload, err, _ := s.flight.Do(key, func() (any, error) {
		// A coalesced caller may arrive after the first one stored the value.
		s.mu.RLock()
		entry, exists := s.entries[key]
		now := s.now()
		s.mu.RUnlock()
		if exists && !entry.expired(now) {
			return entry.Payload, nil
		}

		value, group, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		s.set(key, group, ttl, value)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// set writes an entry and tags it into its group, replacing any prior entry.
func (s *Store) set(key, group string, ttl time.Duration, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, exists := s.entries[key]; exists && prior.Group != group {
		s.removeFromGroupLocked(prior.Group, key)
	}

	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}

	s.entries[key] = &Entry{
		Key:       key,
		Payload:   payload,
		Group:     group,
		WrittenAt: s.now(),
		TTL:       ttl,
	}

	if s.groups[group] == nil {
		s.groups[group] = make(map[string]struct{})
	}
	s.groups[group][key] = struct{}{}
}

// Invalidate removes a single entry.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.entries[key]; exists {
		s.removeFromGroupLocked(entry.Group, key)
		delete(s.entries, key)
	}
}

// InvalidateGroup removes every entry tagged with the group label. Entries in
// other groups are unaffected.
func (s *Store) InvalidateGroup(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.groups[label] {
		delete(s.entries, key)
	}
	delete(s.groups, label)
}

// InvalidateAll drops every entry.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	s.groups = make(map[string]map[string]struct{})
}

// Purge removes entries whose TTL has elapsed. Correctness does not depend on
// it; expired entries already read as absent.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if entry.expired(now) {
			s.removeFromGroupLocked(entry.Group, key)
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// GetStats returns a snapshot of store activity.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Entries: len(s.entries)}
}

func (s *Store) removeFromGroupLocked(group, key string) {
	if keys, exists := s.groups[group]; exists {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.groups, group)
		}
	}
}

// evictOldestLocked drops the entry with the earliest write time to make room.
func (s *Store) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time

	for key, entry := range s.entries {
		if oldestKey == "" || entry.WrittenAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.WrittenAt
		}
	}

	if oldestKey != "" {
		s.removeFromGroupLocked(s.entries[oldestKey].Group, oldestKey)
		delete(s.entries, oldestKey)
	}
}
