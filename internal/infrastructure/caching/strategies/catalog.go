// Package strategies owns canonical cache-key construction, group tagging,
// and TTL selection for the two cached entity families: catalog partners and
// subscription-derived features.
package strategies

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/catalog"
	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/store"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	"github.com/PerkCity/perkcity-go/pkg/config"
)

// GroupCatalog tags catalog entries with no geographic scope.
const GroupCatalog = "catalog"

// GeoBounds is an optional bounding box filter for catalog list queries.
type GeoBounds struct {
	MinLat float64
	MinLng float64
	MaxLat float64
	MaxLng float64
}

// ListParams identifies a catalog list query. Key construction normalizes all
// fields so equivalent requests share one cache entry.
type ListParams struct {
	City     string
	Category string
	Plan     subscription.Plan
	Bounds   *GeoBounds
}

// CatalogStrategy builds keys, selects TTLs, and drives invalidation for
// cached catalog reads. Detail entries are shared by every consumer on the
// same plan, so they carry the longer TTL.
type CatalogStrategy struct {
	store     *store.Store
	logger    *logging.ChanneledLogger
	detailTTL time.Duration
	listTTL   time.Duration
}

// NewCatalogStrategy creates a catalog strategy over the shared store.
func NewCatalogStrategy(cacheStore *store.Store, logger *logging.ChanneledLogger) *CatalogStrategy {
	return &CatalogStrategy{
		store:     cacheStore,
		logger:    logger,
		detailTTL: config.CatalogDetailTTL,
		listTTL:   config.CatalogListTTL,
	}
}

// GroupForCity returns the invalidation group for a city's catalog entries.
func GroupForCity(city string) string {
	city = normalize(city)
	if city == "" {
		return GroupCatalog
	}
	return GroupCatalog + "_" + city
}

// DetailKey is the canonical key for one partner shaped for one plan.
func (cs *CatalogStrategy) DetailKey(partnerID string, plan subscription.Plan) string {
	return fmt.Sprintf("partner:detail:%s:plan_%s", partnerID, plan)
}

// ListKey is the canonical key for a catalog list query.
func (cs *CatalogStrategy) ListKey(params ListParams) string {
	key := fmt.Sprintf("partner:list:city_%s:cat_%s:plan_%s",
		normalize(params.City), normalize(params.Category), params.Plan)
	if params.Bounds != nil {
		// Round to ~100m so map panning reuses entries.
		key += fmt.Sprintf(":bounds_%.3f_%.3f_%.3f_%.3f",
			params.Bounds.MinLat, params.Bounds.MinLng, params.Bounds.MaxLat, params.Bounds.MaxLng)
	}
	return key
}

// GetOrSetDetail reads a plan-shaped partner detail through the cache. The
// entry is tagged into its city's group, which compute reports alongside the
// value since the city is only known once the partner is loaded.
func (cs *CatalogStrategy) GetOrSetDetail(ctx context.Context, partnerID string, plan subscription.Plan, compute func(ctx context.Context) (*catalog.AdaptedPartner, error)) (*catalog.AdaptedPartner, error) {
	value, err := cs.store.GetOrSetTagged(ctx, cs.DetailKey(partnerID, plan), cs.detailTTL,
		func(ctx context.Context) (any, string, error) {
			adapted, err := compute(ctx)
			if err != nil {
				return nil, "", err
			}
			return adapted, GroupForCity(adapted.City), nil
		})
	if err != nil {
		return nil, err
	}
	return value.(*catalog.AdaptedPartner), nil
}

// GetOrSetList reads a catalog list through the cache. Entries are tagged
// with the city group when the query is city-scoped.
func (cs *CatalogStrategy) GetOrSetList(ctx context.Context, params ListParams, compute store.ComputeFunc) (any, error) {
	return cs.store.GetOrSet(ctx, cs.ListKey(params), GroupForCity(params.City), cs.listTTL, compute)
}

// InvalidatePartner drops every cached entry a partner mutation can have made
// stale. It must complete before the mutation's response is returned.
func (cs *CatalogStrategy) InvalidatePartner(partner *catalog.Partner) {
	cs.store.InvalidateGroup(GroupForCity(partner.City))
	cs.store.InvalidateGroup(GroupCatalog)
	cs.logger.Cache().Debug("Invalidated catalog groups",
		"partnerId", partner.ID, "city", normalize(partner.City))
}

// InvalidateCity drops every cached entry scoped to one city plus the
// city-less lists that may include its partners.
func (cs *CatalogStrategy) InvalidateCity(city string) {
	cs.store.InvalidateGroup(GroupForCity(city))
	cs.store.InvalidateGroup(GroupCatalog)
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
