package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
	"github.com/PerkCity/perkcity-go/internal/domain/plans"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/strategies"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/messaging"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	subsrepo "github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/subscriptions"
	"github.com/oklog/ulid/v2"
)

// SubscriptionService serves plan features through the cache and pushes
// per-user invalidations when a subscription changes.
type SubscriptionService struct {
	repo        *subsrepo.SubscriptionRepository
	strategy    *strategies.FeatureStrategy
	broadcaster *messaging.Broadcaster
	logger      *logging.ChanneledLogger
}

func NewSubscriptionService(repo *subsrepo.SubscriptionRepository, strategy *strategies.FeatureStrategy, broadcaster *messaging.Broadcaster, logger *logging.ChanneledLogger) *SubscriptionService {
	return &SubscriptionService{
		repo:        repo,
		strategy:    strategy,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// GetFeatures returns the feature set for a user, cache-first. A user with no
// subscription record gets the free plan's features.
func (s *SubscriptionService) GetFeatures(ctx context.Context, userID string) (*subscription.Features, error) {
	value, err := s.strategy.GetOrSetUser(ctx, userID, func(ctx context.Context) (any, error) {
		sub, err := s.repo.FindByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, subsrepo.ErrNotFound) {
				return plans.FeaturesFor(subscription.PlanFree), nil
			}
			return nil, err
		}
		return plans.FeaturesFor(sub.Plan), nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*subscription.Features), nil
}

// GetSubscription returns the raw subscription record for a user.
func (s *SubscriptionService) GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	return s.repo.FindByUserID(ctx, userID)
}

// ChangePlan writes the user's new plan, drops their cached features, and
// notifies the user's realtime topic. The cache entry is gone before the
// mutation response is returned, so the next feature read reflects the new
// plan.
func (s *SubscriptionService) ChangePlan(ctx context.Context, userID string, plan subscription.Plan, city *string) (*subscription.Subscription, error) {
	if !plan.Valid() {
		return nil, subscription.ErrUnknownPlan
	}

	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, subsrepo.ErrNotFound) {
			return nil, err
		}
		sub = &subscription.Subscription{
			ID:     ulid.Make().String(),
			UserID: userID,
		}
	}
	sub.Plan = plan
	if city != nil {
		sub.City = city
	}

	if err := s.repo.Upsert(ctx, sub); err != nil {
		return nil, err
	}

	s.strategy.InvalidateUser(userID)
	s.publishSubscriptionChange(ctx, userID, plan)
	return sub, nil
}

// CancelSubscription removes the user's record, reverting them to free.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}

	s.strategy.InvalidateUser(userID)
	s.publishSubscriptionChange(ctx, userID, subscription.PlanFree)
	return nil
}

func (s *SubscriptionService) publishSubscriptionChange(ctx context.Context, userID string, plan subscription.Plan) {
	data, err := json.Marshal(map[string]any{
		"userId": userID,
		"plan":   plan,
	})
	if err != nil {
		data = nil
	}

	topic := messaging.SubscriptionTopic(userID)
	notification := messaging.NewNotification(messaging.EntitySubscription, messaging.ActionUpdated, data)
	notification.Topic = topic

	if err := s.broadcaster.Publish(ctx, []string{topic}, notification); err != nil {
		s.logger.Subscription().Warn("Failed to publish subscription change",
			"userId", userID,
			"error", err.Error())
	}
}
