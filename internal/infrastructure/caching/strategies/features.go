package strategies

import (
	"context"
	"fmt"
	"time"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/store"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	"github.com/PerkCity/perkcity-go/pkg/config"
)

// GroupFeatures tags subscription-feature entries.
const GroupFeatures = "features"

// FeatureStrategy builds keys and drives invalidation for subscription
// feature lookups. These gate monetized access, so the TTL stays short.
type FeatureStrategy struct {
	store  *store.Store
	logger *logging.ChanneledLogger
	ttl    time.Duration
}

// NewFeatureStrategy creates a feature strategy over the shared store.
func NewFeatureStrategy(cacheStore *store.Store, logger *logging.ChanneledLogger) *FeatureStrategy {
	return &FeatureStrategy{
		store:  cacheStore,
		logger: logger,
		ttl:    config.FeatureTTL,
	}
}

// UserKey is the canonical key for one user's feature set.
func (fs *FeatureStrategy) UserKey(userID string) string {
	return fmt.Sprintf("features:user_%s", userID)
}

// PlanKey is the canonical key for a plan's feature template.
func (fs *FeatureStrategy) PlanKey(plan subscription.Plan) string {
	return fmt.Sprintf("features:plan_%s", plan)
}

// GetOrSetUser reads a user's feature set through the cache.
func (fs *FeatureStrategy) GetOrSetUser(ctx context.Context, userID string, compute store.ComputeFunc) (any, error) {
	return fs.store.GetOrSet(ctx, fs.UserKey(userID), GroupFeatures, fs.ttl, compute)
}

// GetOrSetPlan reads a plan's feature template through the cache.
func (fs *FeatureStrategy) GetOrSetPlan(ctx context.Context, plan subscription.Plan, compute store.ComputeFunc) (any, error) {
	return fs.store.GetOrSet(ctx, fs.PlanKey(plan), GroupFeatures, fs.ttl, compute)
}

// InvalidateUser drops one user's cached feature set after a subscription
// mutation, before the mutation's response is returned.
func (fs *FeatureStrategy) InvalidateUser(userID string) {
	fs.store.Invalidate(fs.UserKey(userID))
	fs.logger.Cache().Debug("Invalidated user features", "userId", userID)
}

// InvalidateAll drops every cached feature entry. Used when plan definitions
// themselves change.
func (fs *FeatureStrategy) InvalidateAll() {
	fs.store.InvalidateGroup(GroupFeatures)
}
