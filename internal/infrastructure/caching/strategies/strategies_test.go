package strategies

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/catalog"
	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/store"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
)

func testLogger() *logging.ChanneledLogger {
	return logging.NewChanneledLogger(nil)
}

func TestListKeyNormalization(t *testing.T) {
	cs := NewCatalogStrategy(store.New(0), testLogger())

	a := cs.ListKey(ListParams{City: " Paris ", Category: "Food", Plan: subscription.PlanBasic})
	b := cs.ListKey(ListParams{City: "paris", Category: "food", Plan: subscription.PlanBasic})
	assert.Equal(t, a, b, "equivalent queries must share one key")

	c := cs.ListKey(ListParams{City: "paris", Category: "food", Plan: subscription.PlanSuper})
	assert.NotEqual(t, a, c, "plan is part of the key")
}

func TestListKeyBoundsRounding(t *testing.T) {
	cs := NewCatalogStrategy(store.New(0), testLogger())

	a := cs.ListKey(ListParams{City: "paris", Plan: subscription.PlanFree,
		Bounds: &GeoBounds{MinLat: 48.8501, MinLng: 2.3501, MaxLat: 48.9001, MaxLng: 2.4001}})
	b := cs.ListKey(ListParams{City: "paris", Plan: subscription.PlanFree,
		Bounds: &GeoBounds{MinLat: 48.85012, MinLng: 2.35011, MaxLat: 48.90013, MaxLng: 2.40014}})
	assert.Equal(t, a, b, "sub-100m bound jitter must not change the key")
}

func TestInvalidatePartnerScopesToCity(t *testing.T) {
	s := store.New(0)
	cs := NewCatalogStrategy(s, testLogger())
	ctx := context.Background()

	_, err := cs.GetOrSetList(ctx, ListParams{City: "paris", Plan: subscription.PlanBasic},
		func(ctx context.Context) (any, error) { return "paris-list", nil })
	require.NoError(t, err)
	_, err = cs.GetOrSetList(ctx, ListParams{City: "lyon", Plan: subscription.PlanBasic},
		func(ctx context.Context) (any, error) { return "lyon-list", nil })
	require.NoError(t, err)

	cs.InvalidatePartner(&catalog.Partner{ID: "p1", City: "Paris"})

	_, found := s.Get(cs.ListKey(ListParams{City: "paris", Plan: subscription.PlanBasic}))
	assert.False(t, found, "paris entries must be invalidated")

	_, found = s.Get(cs.ListKey(ListParams{City: "lyon", Plan: subscription.PlanBasic}))
	assert.True(t, found, "lyon entries must survive a paris mutation")
}

func TestFeatureStrategyUserInvalidation(t *testing.T) {
	s := store.New(0)
	fsStrategy := NewFeatureStrategy(s, testLogger())
	ctx := context.Background()

	computes := 0
	load := func(ctx context.Context) (any, error) {
		computes++
		return &subscription.Features{Plan: subscription.PlanSuper}, nil
	}

	_, err := fsStrategy.GetOrSetUser(ctx, "u1", load)
	require.NoError(t, err)
	_, err = fsStrategy.GetOrSetUser(ctx, "u1", load)
	require.NoError(t, err)
	assert.Equal(t, 1, computes)

	fsStrategy.InvalidateUser("u1")

	_, err = fsStrategy.GetOrSetUser(ctx, "u1", load)
	require.NoError(t, err)
	assert.Equal(t, 2, computes, "invalidation must force a recompute")
}
