package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/store"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/messaging"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/monitoring"
)

// HealthHandlers exposes liveness and operational stats.
type HealthHandlers struct {
	cacheStore *store.Store
	registry   messaging.ConnectionRegistry
	monitor    *monitoring.CacheMonitor
	startedAt  time.Time
}

// NewHealthHandlers creates health handlers.
func NewHealthHandlers(cacheStore *store.Store, registry messaging.ConnectionRegistry, monitor *monitoring.CacheMonitor) *HealthHandlers {
	return &HealthHandlers{
		cacheStore: cacheStore,
		registry:   registry,
		monitor:    monitor,
		startedAt:  time.Now().UTC(),
	}
}

// Health reports process liveness with cache and registry stats.
func (h *HealthHandlers) Health(c *gin.Context) {
	connections, err := h.registry.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "degraded", "error": err.Error()})
		return
	}

	payload := gin.H{
		"status":      "ok",
		"uptime":      time.Since(h.startedAt).String(),
		"cache":       h.cacheStore.GetStats(),
		"connections": connections,
	}
	if sample, ok := h.monitor.Latest(); ok {
		payload["cacheSample"] = sample
	}
	c.JSON(http.StatusOK, payload)
}
