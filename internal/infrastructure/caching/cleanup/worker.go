// Package cleanup provides the background maintenance worker.
package cleanup

import (
	"context"
	"time"

	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/store"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/messaging"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/monitoring"
	"github.com/PerkCity/perkcity-go/pkg/config"
)

// Worker periodically purges expired cache entries and prunes realtime
// connection records that have gone quiet. Neither pass is load-bearing;
// expired entries already read as absent and dead connections are also
// pruned lazily on failed delivery.
type Worker struct {
	store    *store.Store
	registry messaging.ConnectionRegistry
	monitor  *monitoring.CacheMonitor
	logger   *logging.ChanneledLogger

	cacheInterval    time.Duration
	registryInterval time.Duration
	staleAfter       time.Duration
	verbose          bool
}

// NewWorker creates a maintenance worker with intervals from configuration.
func NewWorker(cacheStore *store.Store, registry messaging.ConnectionRegistry, monitor *monitoring.CacheMonitor, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		store:            cacheStore,
		registry:         registry,
		monitor:          monitor,
		logger:           logger,
		cacheInterval:    config.CacheCleanupInterval,
		registryInterval: config.RegistryCleanupInterval,
		staleAfter:       config.ConnectionStaleAfter,
		verbose:          config.RegistryCleanupVerbose,
	}
}

// Start runs the worker until the context is canceled.
func (w *Worker) Start(ctx context.Context) {
	cacheTicker := time.NewTicker(w.cacheInterval)
	defer cacheTicker.Stop()
	registryTicker := time.NewTicker(w.registryInterval)
	defer registryTicker.Stop()

	w.logger.Cache().Info("Cleanup worker started",
		"cacheInterval", w.cacheInterval,
		"registryInterval", w.registryInterval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Cache().Info("Cleanup worker stopping")
			return
		case <-cacheTicker.C:
			w.purgeCache()
			w.monitor.Record()
		case <-registryTicker.C:
			w.pruneRegistry(ctx)
		}
	}
}

func (w *Worker) purgeCache() {
	start := time.Now()
	removed := w.store.Purge()

	if removed > 0 {
		w.logger.Cache().Info("Purged expired cache entries",
			"removed", removed,
			"duration", time.Since(start))
	} else if w.verbose {
		w.logger.Cache().Debug("Cache purge found nothing to remove",
			"duration", time.Since(start))
	}
}

func (w *Worker) pruneRegistry(ctx context.Context) {
	start := time.Now()
	cutoff := time.Now().UTC().Add(-w.staleAfter)

	pruned, err := w.registry.PruneStale(ctx, cutoff)
	if err != nil {
		w.logger.Realtime().Error("Registry prune failed", "error", err.Error())
		return
	}

	if pruned > 0 {
		w.logger.Realtime().Info("Pruned stale connections",
			"pruned", pruned,
			"staleAfter", w.staleAfter,
			"duration", time.Since(start))
	} else if w.verbose {
		w.logger.Realtime().Debug("Registry prune found no stale connections",
			"duration", time.Since(start))
	}
}
