// Package container provides dependency injection for all singleton services
package container

import (
	"github.com/PerkCity/perkcity-go/internal/application/services"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/store"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/strategies"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/messaging"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/monitoring"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/catalog"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/database"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/subscriptions"
	"github.com/PerkCity/perkcity-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services
	CatalogService      *services.CatalogService
	SubscriptionService *services.SubscriptionService

	// Infrastructure
	Logger       *logging.ChanneledLogger
	DB           *database.DB
	CacheStore   *store.Store
	CacheMonitor *monitoring.CacheMonitor
	Registry     messaging.ConnectionRegistry
	Transport    *messaging.WebSocketTransport
	Broadcaster  *messaging.Broadcaster
}

// NewContainer creates and wires all singleton services. The connection
// registry lives in the same database as the catalog so records survive
// restarts.
func NewContainer(logger *logging.ChanneledLogger, db *database.DB) (*Container, error) {
	cacheStore := store.New(config.CacheMaxEntries)
	registry, err := messaging.NewSQLiteRegistry(db.DB)
	if err != nil {
		return nil, err
	}
	transport := messaging.NewWebSocketTransport()
	broadcaster := messaging.NewBroadcaster(registry, transport, logger)
	monitor := monitoring.NewCacheMonitor(cacheStore, logger)

	partnerRepo := catalog.NewPartnerRepository(db.DB, logger)
	subscriptionRepo := subscriptions.NewSubscriptionRepository(db.DB, logger)

	return &Container{
		CatalogService: services.NewCatalogService(
			partnerRepo,
			strategies.NewCatalogStrategy(cacheStore, logger),
			broadcaster,
			logger,
		),
		SubscriptionService: services.NewSubscriptionService(
			subscriptionRepo,
			strategies.NewFeatureStrategy(cacheStore, logger),
			broadcaster,
			logger,
		),

		Logger:       logger,
		DB:           db,
		CacheStore:   cacheStore,
		CacheMonitor: monitor,
		Registry:     registry,
		Transport:    transport,
		Broadcaster:  broadcaster,
	}, nil
}
