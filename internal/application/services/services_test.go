package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/catalog"
	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/store"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/strategies"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/messaging"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	catalogrepo "github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/catalog"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/database"
	subsrepo "github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/subscriptions"
)

type recordingTransport struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func (rt *recordingTransport) Send(ctx context.Context, connectionID string, payload []byte) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.payloads == nil {
		rt.payloads = make(map[string][][]byte)
	}
	rt.payloads[connectionID] = append(rt.payloads[connectionID], payload)
	return nil
}

func (rt *recordingTransport) CloseConnection(connectionID string) {}

func (rt *recordingTransport) count(connectionID string) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.payloads[connectionID])
}

type fixture struct {
	catalogSvc   *CatalogService
	subscription *SubscriptionService
	registry     messaging.ConnectionRegistry
	transport    *recordingTransport
	cacheStore   *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db := &database.DB{DB: conn}
	require.NoError(t, db.EnsureSchema(context.Background()))

	logger := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	cacheStore := store.New(0)
	registry := messaging.NewMemoryRegistry()
	transport := &recordingTransport{}
	broadcaster := messaging.NewBroadcaster(registry, transport, logger)

	return &fixture{
		catalogSvc: NewCatalogService(
			catalogrepo.NewPartnerRepository(conn, logger),
			strategies.NewCatalogStrategy(cacheStore, logger),
			broadcaster, logger),
		subscription: NewSubscriptionService(
			subsrepo.NewSubscriptionRepository(conn, logger),
			strategies.NewFeatureStrategy(cacheStore, logger),
			broadcaster, logger),
		registry:   registry,
		transport:  transport,
		cacheStore: cacheStore,
	}
}

func newPartner(id, city string, offered int) *catalog.Partner {
	return &catalog.Partner{
		ID:              id,
		Name:            "Partner " + id,
		Slug:            "partner-" + id,
		City:            city,
		Category:        "food",
		OfferedDiscount: offered,
		Active:          true,
	}
}

func TestGetPartnerClampsDiscountToPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.catalogSvc.CreatePartner(ctx, newPartner("p1", "paris", 20)))

	adapted, err := f.catalogSvc.GetPartner(ctx, "p1", subscription.PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, 20, adapted.OfferedDiscount)
	assert.Equal(t, 5, adapted.EffectiveDiscount)
	assert.False(t, adapted.NeedsUpgrade)

	premium, err := f.catalogSvc.GetPartner(ctx, "p1", subscription.PlanPremium)
	require.NoError(t, err)
	assert.Equal(t, 20, premium.EffectiveDiscount)
}

func TestUpdatePartnerInvalidatesCachedReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	partner := newPartner("p1", "paris", 10)
	require.NoError(t, f.catalogSvc.CreatePartner(ctx, partner))

	before, err := f.catalogSvc.GetPartner(ctx, "p1", subscription.PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, 5, before.EffectiveDiscount)

	partner.OfferedDiscount = 20
	require.NoError(t, f.catalogSvc.UpdatePartner(ctx, partner))

	after, err := f.catalogSvc.GetPartner(ctx, "p1", subscription.PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, 20, after.OfferedDiscount, "stale cached detail must not survive the update")
	assert.Equal(t, 5, after.EffectiveDiscount, "basic plan stays clamped at its ceiling")
}

func TestListPartnersScopedInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.catalogSvc.CreatePartner(ctx, newPartner("p1", "paris", 10)))
	require.NoError(t, f.catalogSvc.CreatePartner(ctx, newPartner("p2", "lyon", 15)))

	parisList, err := f.catalogSvc.ListPartners(ctx, strategies.ListParams{City: "paris", Plan: subscription.PlanSuper})
	require.NoError(t, err)
	require.Len(t, parisList, 1)
	assert.Equal(t, 10, parisList[0].EffectiveDiscount)

	lyonList, err := f.catalogSvc.ListPartners(ctx, strategies.ListParams{City: "lyon", Plan: subscription.PlanSuper})
	require.NoError(t, err)
	require.Len(t, lyonList, 1)

	p2, err := f.catalogSvc.GetPartner(ctx, "p2", subscription.PlanPremium)
	require.NoError(t, err)
	assert.Equal(t, 15, p2.EffectiveDiscount)

	hitsBefore := f.cacheStore.GetStats().Hits
	list, err := f.catalogSvc.ListPartners(ctx, strategies.ListParams{City: "paris", Plan: subscription.PlanSuper})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Greater(t, f.cacheStore.GetStats().Hits, hitsBefore, "paris list should still be served from cache")
}

func TestDeletePartnerRemovesAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.registry.Register(ctx, &messaging.ConnectionRecord{
		ConnectionID: "conn-1",
		UserID:       "user-1",
		Topics:       []string{"partner_paris"},
		LastSeenAt:   time.Now().UTC(),
	}))

	require.NoError(t, f.catalogSvc.CreatePartner(ctx, newPartner("p1", "paris", 10)))
	require.NoError(t, f.catalogSvc.DeletePartner(ctx, "p1"))

	_, err := f.catalogSvc.GetPartner(ctx, "p1", subscription.PlanFree)
	assert.ErrorIs(t, err, catalogrepo.ErrNotFound)

	// Create and delete both target partner_paris.
	assert.Equal(t, 2, f.transport.count("conn-1"))
}

func TestGetFeaturesDefaultsToFree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	features, err := f.subscription.GetFeatures(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanFree, features.Plan)
	assert.Equal(t, 0, features.DiscountCeiling)
	assert.False(t, features.CanRedeem)
}

func TestChangePlanInvalidatesFeatures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	features, err := f.subscription.GetFeatures(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanFree, features.Plan)

	_, err = f.subscription.ChangePlan(ctx, "user-1", subscription.PlanSuper, nil)
	require.NoError(t, err)

	features, err = f.subscription.GetFeatures(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanSuper, features.Plan)
	assert.Equal(t, 10, features.DiscountCeiling)
	assert.True(t, features.CanRedeem)
}

func TestChangePlanRejectsUnknownPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.subscription.ChangePlan(ctx, "user-1", subscription.Plan("platinum"), nil)
	assert.ErrorIs(t, err, subscription.ErrUnknownPlan)
}

func TestChangePlanNotifiesUserTopic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.registry.Register(ctx, &messaging.ConnectionRecord{
		ConnectionID: "conn-u1",
		UserID:       "user-1",
		Topics:       []string{messaging.SubscriptionTopic("user-1")},
		LastSeenAt:   time.Now().UTC(),
	}))

	_, err := f.subscription.ChangePlan(ctx, "user-1", subscription.PlanBasic, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.transport.count("conn-u1"))
}

func TestCancelSubscriptionRevertsToFree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.subscription.ChangePlan(ctx, "user-1", subscription.PlanPremium, nil)
	require.NoError(t, err)

	require.NoError(t, f.subscription.CancelSubscription(ctx, "user-1"))

	features, err := f.subscription.GetFeatures(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanFree, features.Plan)
}
