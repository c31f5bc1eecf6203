// Package services provides application-level services that orchestrate
// business logic between repositories, cache strategies, and the broadcaster.
package services

import (
	"context"
	"encoding/json"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/catalog"
	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
	"github.com/PerkCity/perkcity-go/internal/domain/plans"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/strategies"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/messaging"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	catalogrepo "github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/catalog"
)

// CatalogService serves plan-adapted partner reads through the cache and
// pushes invalidation notifications after every mutation.
type CatalogService struct {
	repo        *catalogrepo.PartnerRepository
	strategy    *strategies.CatalogStrategy
	broadcaster *messaging.Broadcaster
	logger      *logging.ChanneledLogger
}

func NewCatalogService(repo *catalogrepo.PartnerRepository, strategy *strategies.CatalogStrategy, broadcaster *messaging.Broadcaster, logger *logging.ChanneledLogger) *CatalogService {
	return &CatalogService{
		repo:        repo,
		strategy:    strategy,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// GetPartner returns one partner adapted to the caller's plan, cache-first.
func (s *CatalogService) GetPartner(ctx context.Context, partnerID string, plan subscription.Plan) (*catalog.AdaptedPartner, error) {
	return s.strategy.GetOrSetDetail(ctx, partnerID, plan, func(ctx context.Context) (*catalog.AdaptedPartner, error) {
		partner, err := s.repo.FindByID(ctx, partnerID)
		if err != nil {
			return nil, err
		}
		return plans.AdaptPartner(partner, plan), nil
	})
}

// ListPartners returns active partners for a city and category, adapted to
// the caller's plan, cache-first.
func (s *CatalogService) ListPartners(ctx context.Context, params strategies.ListParams) ([]*catalog.AdaptedPartner, error) {
	value, err := s.strategy.GetOrSetList(ctx, params, func(ctx context.Context) (any, error) {
		partners, err := s.repo.FindActive(ctx, params.City, params.Category)
		if err != nil {
			return nil, err
		}
		return plans.AdaptPartners(partners, params.Plan), nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]*catalog.AdaptedPartner), nil
}

// Cities lists browsable cities.
func (s *CatalogService) Cities(ctx context.Context) ([]string, error) {
	return s.repo.Cities(ctx)
}

// CreatePartner persists a new partner, invalidates the affected cache
// groups, and broadcasts the change to subscribed connections. Invalidation
// happens before the mutation response is returned.
func (s *CatalogService) CreatePartner(ctx context.Context, partner *catalog.Partner) error {
	if err := s.repo.Create(ctx, partner); err != nil {
		return err
	}
	s.strategy.InvalidatePartner(partner)
	s.publishPartnerChange(ctx, messaging.ActionCreated, partner)
	return nil
}

// UpdatePartner persists changes to a partner and pushes the invalidation.
// When a partner moves between cities both the old and new city groups are
// invalidated and both sets of topics are notified.
func (s *CatalogService) UpdatePartner(ctx context.Context, partner *catalog.Partner) error {
	previous, err := s.repo.FindByID(ctx, partner.ID)
	if err != nil {
		return err
	}

	if err := s.repo.Update(ctx, partner); err != nil {
		return err
	}

	s.strategy.InvalidatePartner(partner)
	if previous.City != partner.City {
		s.strategy.InvalidateCity(previous.City)
	}
	s.publishPartnerChange(ctx, messaging.ActionUpdated, partner)
	if previous.City != partner.City || previous.Category != partner.Category {
		s.publishPartnerChange(ctx, messaging.ActionUpdated, previous)
	}
	return nil
}

// DeletePartner removes a partner and pushes the invalidation.
func (s *CatalogService) DeletePartner(ctx context.Context, partnerID string) error {
	partner, err := s.repo.FindByID(ctx, partnerID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, partnerID); err != nil {
		return err
	}

	s.strategy.InvalidatePartner(partner)
	s.publishPartnerChange(ctx, messaging.ActionDeleted, partner)
	return nil
}

func (s *CatalogService) publishPartnerChange(ctx context.Context, action messaging.Action, partner *catalog.Partner) {
	data, err := json.Marshal(map[string]any{
		"id":       partner.ID,
		"city":     partner.City,
		"category": partner.Category,
	})
	if err != nil {
		data = nil
	}

	topics := messaging.PartnerTopics(partner.City, partner.Category)
	notification := messaging.NewNotification(messaging.EntityPartner, action, data)
	notification.Topic = topics[len(topics)-1]
	notification.City = partner.City
	notification.Category = partner.Category

	if err := s.broadcaster.Publish(ctx, topics, notification); err != nil {
		s.logger.Catalog().Warn("Failed to publish partner change",
			"partnerId", partner.ID,
			"action", action,
			"error", err.Error())
	}
}
