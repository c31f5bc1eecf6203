// Package monitoring tracks cache effectiveness over time so operators can
// see whether invalidation pressure is eroding the hit ratio.
package monitoring

import (
	"sync"
	"time"

	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/store"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
)

const maxSamples = 288 // one day at a five minute interval

// Sample is one point-in-time reading of the store's counters.
type Sample struct {
	At       time.Time `json:"at"`
	Hits     int64     `json:"hits"`
	Misses   int64     `json:"misses"`
	Entries  int       `json:"entries"`
	HitRatio float64   `json:"hitRatio"`
}

// CacheMonitor periodically samples store statistics and keeps a bounded
// history for the health endpoint.
type CacheMonitor struct {
	store  *store.Store
	logger *logging.ChanneledLogger

	mu      sync.RWMutex
	samples []Sample
}

// NewCacheMonitor wires a monitor to a store.
func NewCacheMonitor(cacheStore *store.Store, logger *logging.ChanneledLogger) *CacheMonitor {
	return &CacheMonitor{store: cacheStore, logger: logger}
}

// Record takes a sample now. Called on the cleanup worker's cadence.
func (m *CacheMonitor) Record() Sample {
	stats := m.store.GetStats()
	sample := Sample{
		At:      time.Now().UTC(),
		Hits:    stats.Hits,
		Misses:  stats.Misses,
		Entries: stats.Entries,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		sample.HitRatio = float64(stats.Hits) / float64(total)
	}

	m.mu.Lock()
	m.samples = append(m.samples, sample)
	if len(m.samples) > maxSamples {
		m.samples = m.samples[len(m.samples)-maxSamples:]
	}
	m.mu.Unlock()

	m.logger.Cache().Debug("Cache sample recorded",
		"hits", sample.Hits, "misses", sample.Misses,
		"entries", sample.Entries, "hitRatio", sample.HitRatio)
	return sample
}

// Latest returns the most recent sample, if any.
func (m *CacheMonitor) Latest() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.samples) == 0 {
		return Sample{}, false
	}
	return m.samples[len(m.samples)-1], true
}

// History returns up to n recent samples, oldest first.
func (m *CacheMonitor) History(n int) []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.samples) {
		n = len(m.samples)
	}
	out := make([]Sample, n)
	copy(out, m.samples[len(m.samples)-n:])
	return out
}
