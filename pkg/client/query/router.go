// Package query routes client reads through the segmented cache: canonical
// key construction, fetch-on-miss, stale fallback, and ordering between
// invalidations and in-flight fetches.
package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/PerkCity/perkcity-go/pkg/client/cache"
)

// FetchFunc loads fresh data from the API on a cache miss.
type FetchFunc func(ctx context.Context) (any, error)

// CanonicalKey builds a deterministic logical key from a resource name and
// its parameters. Parameters are normalized and sorted so equivalent queries
// always share one cache entry.
func CanonicalKey(resource string, params map[string]string) string {
	if len(params) == 0 {
		return resource
	}

	parts := make([]string, 0, len(params))
	for name, value := range params {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		parts = append(parts, strings.ToLower(strings.TrimSpace(name))+"_"+value)
	}
	sort.Strings(parts)

	if len(parts) == 0 {
		return resource
	}
	return resource + ":" + strings.Join(parts, ":")
}

type fastEntry struct {
	logical   string
	data      []byte
	expiresAt time.Time
}

type invalidation struct {
	pattern string
	at      time.Time
}

// Router serves reads cache-first with a decoded in-memory fast path in
// front of the persisted segmented cache. Both layers are dropped
// synchronously on Invalidate, and a fetch that was already in flight when a
// matching invalidation arrived never writes its result back.
type Router struct {
	cache  *cache.SegmentedCache
	logger *slog.Logger

	mu            sync.Mutex
	fast          map[string]fastEntry
	invalidations []invalidation

	now func() time.Time
}

// NewRouter creates a router over a segmented cache. logger receives
// routing events, tolerated stale reads in particular. Nil discards them.
func NewRouter(segmented *cache.SegmentedCache, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		cache:  segmented,
		logger: logger,
		fast:   make(map[string]fastEntry),
		now:    time.Now,
	}
}

// Get resolves a read: fast path, then persisted cache, then fetch. On fetch
// failure an expired persisted entry is served as a fallback if one exists.
// dest must be a pointer to the value's type.
func (r *Router) Get(ctx context.Context, tier cache.Tier, resource string, params map[string]string, dest any, fetch FetchFunc) error {
	key := CanonicalKey(resource, params)
	fastKey := string(tier) + ":" + r.cache.BuildKey(tier, key)

	r.mu.Lock()
	entry, ok := r.fast[fastKey]
	if ok && r.now().Before(entry.expiresAt) {
		r.mu.Unlock()
		return msgpack.Unmarshal(entry.data, dest)
	}
	delete(r.fast, fastKey)
	r.mu.Unlock()

	hit, stale, err := r.cache.Get(tier, key, dest)
	if err != nil {
		return err
	}
	if hit {
		r.storeFast(fastKey, key, dest, tier)
		return nil
	}

	fetchStart := r.now()
	value, fetchErr := fetch(ctx)
	if fetchErr != nil {
		if stale {
			// dest already holds the expired entry's payload.
			r.logger.Warn("stale read tolerated", "key", key, "error", fetchErr.Error())
			return nil
		}
		return fmt.Errorf("fetch failed for %s: %w", key, fetchErr)
	}

	value = cache.AdaptValue(value, r.cache.Scope().Plan)
	if err := assign(dest, value); err != nil {
		return err
	}

	if r.invalidatedSince(key, fetchStart) {
		// The server told us this data changed while the fetch was in
		// flight. Serve the response but do not persist it.
		return nil
	}

	if err := r.cache.Set(tier, key, value); err != nil {
		return err
	}
	r.storeFast(fastKey, key, dest, tier)
	return nil
}

// Invalidate drops every cached entry matching the patterns from both the
// fast path and the persisted cache before returning.
func (r *Router) Invalidate(patterns []string) error {
	now := r.now()

	r.mu.Lock()
	for _, pattern := range patterns {
		r.invalidations = append(r.invalidations, invalidation{pattern: pattern, at: now})
	}
	for fastKey, entry := range r.fast {
		if matchesAny(patterns, entry.logical) {
			delete(r.fast, fastKey)
		}
	}
	r.pruneInvalidationsLocked(now)
	r.mu.Unlock()

	_, err := r.cache.Invalidate(patterns)
	return err
}

// Reset drops the fast path, for scope changes.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fast = make(map[string]fastEntry)
}

func (r *Router) storeFast(fastKey, logical string, value any, tier cache.Tier) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fast[fastKey] = fastEntry{
		logical:   logical,
		data:      data,
		expiresAt: r.now().Add(r.cache.TTLFor(tier)),
	}
}

func (r *Router) invalidatedSince(key string, since time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invalidations {
		if inv.at.After(since) && matchesAny([]string{inv.pattern}, key) {
			return true
		}
	}
	return false
}

// pruneInvalidationsLocked bounds the ordering log; anything older than the
// longest tier TTL can no longer race an in-flight fetch that matters.
func (r *Router) pruneInvalidationsLocked(now time.Time) {
	cutoff := now.Add(-6 * time.Hour)
	kept := r.invalidations[:0]
	for _, inv := range r.invalidations {
		if inv.at.After(cutoff) {
			kept = append(kept, inv)
		}
	}
	r.invalidations = kept
}

// assign copies value into dest through the cache codec, so the fast path
// and fetch results behave identically to persisted reads.
func assign(dest, value any) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	if err := msgpack.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	return nil
}

func matchesAny(patterns []string, key string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			return true
		}
	}
	return false
}
