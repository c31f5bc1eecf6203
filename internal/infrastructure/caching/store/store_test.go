package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrSetStoresOnMiss(t *testing.T) {
	s := New(0)

	value, err := s.GetOrSet(context.Background(), "k1", "catalog", time.Minute, func(ctx context.Context) (any, error) {
		return "computed", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "computed", value)

	cached, found := s.Get("k1")
	require.True(t, found)
	assert.Equal(t, "computed", cached)
}

func TestGetOrSetHitSkipsCompute(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	_, err := s.GetOrSet(ctx, "k1", "catalog", time.Minute, func(ctx context.Context) (any, error) {
		return 1, nil
	})
	require.NoError(t, err)

	value, err := s.GetOrSet(ctx, "k1", "catalog", time.Minute, func(ctx context.Context) (any, error) {
		t.Fatal("compute must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, value)
}

func TestGetOrSetCoalescesConcurrentMisses(t *testing.T) {
	s := New(0)
	var computes int64
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := s.GetOrSet(context.Background(), "hot", "catalog", time.Minute, func(ctx context.Context) (any, error) {
				atomic.AddInt64(&computes, 1)
				<-release
				return "shared", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "shared", value)
		}()
	}

	// Give the goroutines time to pile onto the in-flight computation.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&computes))
}

func TestGroupInvalidationIsolation(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	_, err := s.GetOrSet(ctx, "partner:1", "catalog", time.Minute, func(ctx context.Context) (any, error) { return "a", nil })
	require.NoError(t, err)
	_, err = s.GetOrSet(ctx, "features:u1", "features", time.Minute, func(ctx context.Context) (any, error) { return "b", nil })
	require.NoError(t, err)

	s.InvalidateGroup("catalog")

	_, found := s.Get("partner:1")
	assert.False(t, found, "catalog entry must be gone")

	value, found := s.Get("features:u1")
	require.True(t, found, "features entry must survive")
	assert.Equal(t, "b", value)
}

func TestTTLBoundary(t *testing.T) {
	s := New(0)
	base := time.Now()
	s.now = func() time.Time { return base }

	_, err := s.GetOrSet(context.Background(), "k", "g", 10*time.Second, func(ctx context.Context) (any, error) {
		return "v", nil
	})
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(10*time.Second - time.Millisecond) }
	_, found := s.Get("k")
	assert.True(t, found, "1ms before expiry must be a hit")

	s.now = func() time.Time { return base.Add(10*time.Second + time.Millisecond) }
	_, found = s.Get("k")
	assert.False(t, found, "1ms after expiry must be a miss")
}

func TestComputeFailureWritesNothing(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	boom := errors.New("fetch failed")

	_, err := s.GetOrSet(ctx, "k", "g", time.Minute, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, found := s.Get("k")
	assert.False(t, found)
}

func TestComputeFailureKeepsPriorEntry(t *testing.T) {
	s := New(0)
	base := time.Now()
	s.now = func() time.Time { return base }
	ctx := context.Background()

	_, err := s.GetOrSet(ctx, "k", "g", 10*time.Second, func(ctx context.Context) (any, error) { return "good", nil })
	require.NoError(t, err)

	// Expire the entry, then fail the recompute: the error surfaces and the
	// stale entry is not clobbered with a poisoned value.
	s.now = func() time.Time { return base.Add(time.Minute) }
	_, err = s.GetOrSet(ctx, "k", "g", 10*time.Second, func(ctx context.Context) (any, error) {
		return nil, errors.New("down")
	})
	assert.Error(t, err)

	s.mu.RLock()
	entry := s.entries["k"]
	s.mu.RUnlock()
	require.NotNil(t, entry, "prior entry must still be present for stale fallback")
	assert.Equal(t, "good", entry.Payload)
}

func TestPurgeRemovesOnlyExpired(t *testing.T) {
	s := New(0)
	base := time.Now()
	s.now = func() time.Time { return base }
	ctx := context.Background()

	_, _ = s.GetOrSet(ctx, "short", "g", time.Second, func(ctx context.Context) (any, error) { return 1, nil })
	_, _ = s.GetOrSet(ctx, "long", "g", time.Hour, func(ctx context.Context) (any, error) { return 2, nil })

	s.now = func() time.Time { return base.Add(time.Minute) }
	removed := s.Purge()

	assert.Equal(t, 1, removed)
	_, found := s.Get("long")
	assert.True(t, found)
	assert.Equal(t, 1, s.GetStats().Entries)
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	s := New(2)
	base := time.Now()
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }
	ctx := context.Background()

	_, _ = s.GetOrSet(ctx, "a", "g", time.Hour, func(ctx context.Context) (any, error) { return 1, nil })
	_, _ = s.GetOrSet(ctx, "b", "g", time.Hour, func(ctx context.Context) (any, error) { return 2, nil })
	_, _ = s.GetOrSet(ctx, "c", "g", time.Hour, func(ctx context.Context) (any, error) { return 3, nil })

	_, found := s.Get("a")
	assert.False(t, found, "oldest entry must be evicted at capacity")
	_, found = s.Get("c")
	assert.True(t, found)
}
