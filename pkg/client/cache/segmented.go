package cache

import (
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Tier determines how widely a cached entry can be shared and how long it
// lives. Global entries are plan-independent, segment entries are shared by
// everyone on the same plan and city, user entries belong to one account.
type Tier string

const (
	TierGlobal  Tier = "global"
	TierSegment Tier = "segment"
	TierUser    Tier = "user"
)

// SchemaVersion is baked into every key. Bumping it orphans all previously
// persisted entries, which New detects and clears in one sweep.
const SchemaVersion = 1

const (
	keyNamespace     = "perkcity"
	versionMarkerKey = keyNamespace + ":schema"
)

// Scope is the identity context entries are written under.
type Scope struct {
	Plan   Plan
	City   string
	UserID string
}

// persistedEntry wraps a cached payload with the metadata cleanup and stale
// fallback need.
type persistedEntry struct {
	Key       string        `msgpack:"key"`
	Payload   []byte        `msgpack:"payload"`
	WrittenAt time.Time     `msgpack:"writtenAt"`
	TTL       time.Duration `msgpack:"ttl"`
	Tier      Tier          `msgpack:"tier"`
	Plan      Plan          `msgpack:"plan,omitempty"`
	City      string        `msgpack:"city,omitempty"`
	UserID    string        `msgpack:"userId,omitempty"`
}

func (e *persistedEntry) expired(now time.Time) bool {
	return now.Sub(e.WrittenAt) >= e.TTL
}

// SegmentedCache is the client's persisted cache. All writes pass through
// plan adaptation so an entry read back later can never leak a discount the
// current plan is not entitled to.
type SegmentedCache struct {
	storage Storage

	mu    sync.RWMutex
	scope Scope

	now func() time.Time
}

// New opens a segmented cache over a storage backend. A schema version
// mismatch from a previous release clears the backend before first use.
func New(storage Storage, scope Scope) (*SegmentedCache, error) {
	return NewWithClock(storage, scope, time.Now)
}

// NewWithClock is New with an injectable clock for tests that exercise
// expiry.
func NewWithClock(storage Storage, scope Scope, now func() time.Time) (*SegmentedCache, error) {
	sc := &SegmentedCache{
		storage: storage,
		scope:   scope,
		now:     now,
	}

	marker, found, err := storage.Read(versionMarkerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema marker: %w", err)
	}
	current := fmt.Sprintf("v%d", SchemaVersion)
	if !found || string(marker) != current {
		if err := storage.Clear(); err != nil {
			return nil, fmt.Errorf("failed to clear outdated cache: %w", err)
		}
		if err := storage.Write(versionMarkerKey, []byte(current)); err != nil {
			return nil, fmt.Errorf("failed to write schema marker: %w", err)
		}
	}
	return sc, nil
}

// Scope returns the current identity context.
func (sc *SegmentedCache) Scope() Scope {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.scope
}

// SetScope replaces the identity context, typically after a plan change or
// login. Entries written under the old scope stop resolving immediately
// because scope qualifiers are part of the key; SmartCleanup reclaims them.
func (sc *SegmentedCache) SetScope(scope Scope) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.scope = scope
}

// BuildKey produces the full storage key for a logical key in a tier. Scope
// qualifiers are appended per tier so entries can never be read under the
// wrong identity.
func (sc *SegmentedCache) BuildKey(tier Tier, key string) string {
	scope := sc.Scope()
	full := fmt.Sprintf("%s:v%d:%s:%s", keyNamespace, SchemaVersion, tier, key)
	switch tier {
	case TierSegment:
		full += ":plan_" + string(scope.Plan)
		if scope.City != "" {
			full += ":city_" + scope.City
		}
	case TierUser:
		full += ":user_" + scope.UserID
	}
	return full
}

// TTLFor returns the tier's entry lifetime under the current scope. Paying
// tiers see fresher segment data because their discounts change the most.
func (sc *SegmentedCache) TTLFor(tier Tier) time.Duration {
	switch tier {
	case TierGlobal:
		return 6 * time.Hour
	case TierSegment:
		switch sc.Scope().Plan {
		case PlanSuper, PlanPremium:
			return 15 * time.Minute
		default:
			return 30 * time.Minute
		}
	default:
		return 5 * time.Minute
	}
}

// Set writes a value into a tier, adapting discount payloads to the current
// plan first.
func (sc *SegmentedCache) Set(tier Tier, key string, value any) error {
	scope := sc.Scope()

	payload, err := msgpack.Marshal(AdaptValue(value, scope.Plan))
	if err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}

	entry := persistedEntry{
		Key:       key,
		Payload:   payload,
		WrittenAt: sc.now().UTC(),
		TTL:       sc.TTLFor(tier),
		Tier:      tier,
	}
	switch tier {
	case TierSegment:
		entry.Plan = scope.Plan
		entry.City = scope.City
	case TierUser:
		entry.UserID = scope.UserID
	}

	data, err := msgpack.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return sc.storage.Write(sc.BuildKey(tier, key), data)
}

// Get reads a value from a tier. A live entry decodes into dest and reports
// hit. An expired entry still decodes into dest but reports stale instead of
// hit, so callers can fall back to it when a refresh fails.
func (sc *SegmentedCache) Get(tier Tier, key string, dest any) (hit bool, stale bool, err error) {
	data, found, err := sc.storage.Read(sc.BuildKey(tier, key))
	if err != nil || !found {
		return false, false, err
	}

	var entry persistedEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		// Undecodable entries are dropped rather than surfaced.
		sc.storage.Delete(sc.BuildKey(tier, key))
		return false, false, nil
	}

	if err := msgpack.Unmarshal(entry.Payload, dest); err != nil {
		sc.storage.Delete(sc.BuildKey(tier, key))
		return false, false, nil
	}

	if entry.expired(sc.now()) {
		return false, true, nil
	}
	return true, false, nil
}

// Delete removes one entry.
func (sc *SegmentedCache) Delete(tier Tier, key string) error {
	return sc.storage.Delete(sc.BuildKey(tier, key))
}

// Invalidate removes every entry whose logical key matches one of the glob
// patterns, across all tiers and scopes. It is synchronous: when it returns,
// no matching entry remains readable.
func (sc *SegmentedCache) Invalidate(patterns []string) (int, error) {
	keys, err := sc.storage.Keys()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, storageKey := range keys {
		if storageKey == versionMarkerKey {
			continue
		}
		entry, ok := sc.readEntry(storageKey)
		if !ok {
			continue
		}
		if matchesAny(patterns, entry.Key) {
			if err := sc.storage.Delete(storageKey); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// CleanupOptions selects which tiers SmartCleanup leaves alone. A kept tier
// is never evicted, even expired, unless ForceExpired is also set.
type CleanupOptions struct {
	KeepGlobal   bool
	KeepSegment  bool
	KeepUser     bool
	ForceExpired bool
}

func (o CleanupOptions) keeps(tier Tier) bool {
	switch tier {
	case TierGlobal:
		return o.KeepGlobal
	case TierSegment:
		return o.KeepSegment
	case TierUser:
		return o.KeepUser
	}
	return false
}

// SmartCleanup reclaims storage: expired entries go, and so do entries bound
// to a plan or user other than the current scope. Tiers flagged keep in opts
// survive unless ForceExpired is set and the entry is expired.
func (sc *SegmentedCache) SmartCleanup(opts CleanupOptions) (int, error) {
	scope := sc.Scope()
	now := sc.now()

	keys, err := sc.storage.Keys()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, storageKey := range keys {
		if storageKey == versionMarkerKey {
			continue
		}
		entry, ok := sc.readEntry(storageKey)
		if !ok {
			// Unreadable entries are reclaimed too.
			if err := sc.storage.Delete(storageKey); err != nil {
				return removed, err
			}
			removed++
			continue
		}

		expired := entry.expired(now)
		if opts.keeps(entry.Tier) && !(opts.ForceExpired && expired) {
			continue
		}

		foreignScope := (entry.Plan != "" && entry.Plan != scope.Plan) ||
			(entry.UserID != "" && entry.UserID != scope.UserID)
		if expired || foreignScope {
			if err := sc.storage.Delete(storageKey); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (sc *SegmentedCache) readEntry(storageKey string) (*persistedEntry, bool) {
	data, found, err := sc.storage.Read(storageKey)
	if err != nil || !found {
		return nil, false
	}
	var entry persistedEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

func matchesAny(patterns []string, key string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			return true
		}
	}
	return false
}
