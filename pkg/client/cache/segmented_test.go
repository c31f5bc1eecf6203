package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, scope Scope) *SegmentedCache {
	t.Helper()
	sc, err := New(NewMemoryStorage(), scope)
	require.NoError(t, err)
	return sc
}

func TestSetAdaptsPartnerToPlanOnWrite(t *testing.T) {
	sc := newTestCache(t, Scope{Plan: PlanBasic, City: "paris", UserID: "u1"})

	partner := Partner{ID: "p1", Name: "Boulangerie", City: "paris", OfferedDiscount: 20}
	require.NoError(t, sc.Set(TierSegment, "partner:p1", partner))

	var cached Partner
	hit, stale, err := sc.Get(TierSegment, "partner:p1", &cached)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.False(t, stale)
	assert.Equal(t, 20, cached.OfferedDiscount)
	assert.Equal(t, 5, cached.EffectiveDiscount, "persisted entry must carry the plan-clamped discount")
	assert.False(t, cached.NeedsUpgrade)
}

func TestSetAdaptsPartnerSlices(t *testing.T) {
	sc := newTestCache(t, Scope{Plan: PlanFree, UserID: "u1"})

	partners := []Partner{
		{ID: "p1", OfferedDiscount: 10},
		{ID: "p2", OfferedDiscount: 0},
	}
	require.NoError(t, sc.Set(TierSegment, "partner:list", partners))

	var cached []Partner
	hit, _, err := sc.Get(TierSegment, "partner:list", &cached)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 0, cached[0].EffectiveDiscount)
	assert.True(t, cached[0].NeedsUpgrade)
	assert.False(t, cached[1].NeedsUpgrade, "no discount means nothing to unlock")
}

func TestScopeChangeIsolatesSegmentEntries(t *testing.T) {
	sc := newTestCache(t, Scope{Plan: PlanBasic, City: "paris", UserID: "u1"})

	require.NoError(t, sc.Set(TierSegment, "partner:p1", Partner{ID: "p1", OfferedDiscount: 20}))

	sc.SetScope(Scope{Plan: PlanSuper, City: "paris", UserID: "u1"})

	var cached Partner
	hit, stale, err := sc.Get(TierSegment, "partner:p1", &cached)
	require.NoError(t, err)
	assert.False(t, hit, "entries written under another plan must not resolve")
	assert.False(t, stale)
}

func TestGlobalTierIgnoresScope(t *testing.T) {
	sc := newTestCache(t, Scope{Plan: PlanBasic, UserID: "u1"})

	require.NoError(t, sc.Set(TierGlobal, "cities", []string{"paris", "lyon"}))
	sc.SetScope(Scope{Plan: PlanPremium, UserID: "u2"})

	var cities []string
	hit, _, err := sc.Get(TierGlobal, "cities", &cities)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"paris", "lyon"}, cities)
}

func TestTTLForTierAndPlan(t *testing.T) {
	free := newTestCache(t, Scope{Plan: PlanFree})
	premium := newTestCache(t, Scope{Plan: PlanPremium})

	assert.Equal(t, 6*time.Hour, free.TTLFor(TierGlobal))
	assert.Equal(t, 30*time.Minute, free.TTLFor(TierSegment))
	assert.Equal(t, 15*time.Minute, premium.TTLFor(TierSegment))
	assert.Equal(t, 5*time.Minute, free.TTLFor(TierUser))
}

func TestExpiredEntryReportsStale(t *testing.T) {
	sc := newTestCache(t, Scope{Plan: PlanFree, UserID: "u1"})

	base := time.Now()
	sc.now = func() time.Time { return base }
	require.NoError(t, sc.Set(TierUser, "features", Features{Plan: PlanFree}))

	sc.now = func() time.Time { return base.Add(5*time.Minute + time.Millisecond) }

	var features Features
	hit, stale, err := sc.Get(TierUser, "features", &features)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, stale, "expired entries stay readable for fallback")
	assert.Equal(t, PlanFree, features.Plan)
}

func TestInvalidateByPattern(t *testing.T) {
	sc := newTestCache(t, Scope{Plan: PlanBasic, City: "paris", UserID: "u1"})

	require.NoError(t, sc.Set(TierSegment, "partner:list:paris", []Partner{{ID: "p1"}}))
	require.NoError(t, sc.Set(TierSegment, "partner:detail:p1", Partner{ID: "p1"}))
	require.NoError(t, sc.Set(TierUser, "features", Features{Plan: PlanBasic}))

	removed, err := sc.Invalidate([]string{"partner:*"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	var partner Partner
	hit, stale, err := sc.Get(TierSegment, "partner:detail:p1", &partner)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, stale, "invalidated entries must not survive even as stale")

	var features Features
	hit, _, err = sc.Get(TierUser, "features", &features)
	require.NoError(t, err)
	assert.True(t, hit, "non-matching entries survive invalidation")
}

func TestSmartCleanupRemovesExpiredAndForeignScope(t *testing.T) {
	sc := newTestCache(t, Scope{Plan: PlanBasic, City: "paris", UserID: "u1"})

	base := time.Now()
	sc.now = func() time.Time { return base }
	require.NoError(t, sc.Set(TierSegment, "partner:old", Partner{ID: "old"}))
	require.NoError(t, sc.Set(TierUser, "features", Features{Plan: PlanBasic}))

	// Fresh entry written later.
	sc.now = func() time.Time { return base.Add(29 * time.Minute) }
	require.NoError(t, sc.Set(TierSegment, "partner:new", Partner{ID: "new"}))

	// Move past partner:old's TTL, then switch user: u1's feature entry is
	// now foreign scope.
	sc.now = func() time.Time { return base.Add(31 * time.Minute) }
	sc.SetScope(Scope{Plan: PlanBasic, City: "paris", UserID: "u2"})

	removed, err := sc.SmartCleanup(CleanupOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	var partner Partner
	hit, _, err := sc.Get(TierSegment, "partner:new", &partner)
	require.NoError(t, err)
	assert.True(t, hit, "fresh same-scope entries survive cleanup")
}

func TestSmartCleanupKeepTierFlags(t *testing.T) {
	sc := newTestCache(t, Scope{Plan: PlanBasic, UserID: "u1"})

	base := time.Now()
	sc.now = func() time.Time { return base }
	require.NoError(t, sc.Set(TierGlobal, "cities", []string{"paris"}))
	require.NoError(t, sc.Set(TierSegment, "partner:list", []Partner{{ID: "p"}}))
	require.NoError(t, sc.Set(TierUser, "features", Features{Plan: PlanBasic}))

	// Past every tier's TTL.
	sc.now = func() time.Time { return base.Add(7 * time.Hour) }

	removed, err := sc.SmartCleanup(CleanupOptions{KeepGlobal: true})
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "a kept tier survives while others are evicted")

	var cities []string
	_, stale, err := sc.Get(TierGlobal, "cities", &cities)
	require.NoError(t, err)
	assert.True(t, stale, "the kept global entry is still readable")

	removed, err = sc.SmartCleanup(CleanupOptions{KeepGlobal: true, ForceExpired: true})
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "ForceExpired reclaims even kept tiers once expired")
}

func TestSchemaVersionBumpClearsStorage(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Write(versionMarkerKey, []byte("v0")))
	require.NoError(t, storage.Write("perkcity:v0:global:cities", []byte("stale-bytes")))

	_, err := New(storage, Scope{Plan: PlanFree})
	require.NoError(t, err)

	keys, err := storage.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{versionMarkerKey}, keys)

	marker, found, err := storage.Read(versionMarkerKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fmt.Sprintf("v%d", SchemaVersion), string(marker))
}
