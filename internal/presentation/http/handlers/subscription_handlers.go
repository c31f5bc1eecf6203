package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PerkCity/perkcity-go/internal/application/services"
	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	subsrepo "github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/subscriptions"
	"github.com/PerkCity/perkcity-go/internal/presentation/http/middleware"
)

// ChangePlanRequest is the request body for a plan change.
type ChangePlanRequest struct {
	Plan string  `json:"plan" binding:"required"`
	City *string `json:"city,omitempty"`
}

// SubscriptionHandlers contains subscription and feature HTTP handlers
type SubscriptionHandlers struct {
	subscriptionService *services.SubscriptionService
	logger              *logging.ChanneledLogger
}

// NewSubscriptionHandlers creates subscription handlers with injected dependencies
func NewSubscriptionHandlers(subscriptionService *services.SubscriptionService, logger *logging.ChanneledLogger) *SubscriptionHandlers {
	return &SubscriptionHandlers{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

// GetFeatures returns the caller's plan-derived feature set, cache-first.
func (h *SubscriptionHandlers) GetFeatures(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	features, err := h.subscriptionService.GetFeatures(c.Request.Context(), identity.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, features)
}

// GetSubscription returns the caller's raw subscription record.
func (h *SubscriptionHandlers) GetSubscription(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	sub, err := h.subscriptionService.GetSubscription(c.Request.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, subsrepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no subscription"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sub)
}

// ChangePlan moves the caller to a new plan. Their cached features are gone
// before this responds, so the next read reflects the new plan.
func (h *SubscriptionHandlers) ChangePlan(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	sub, err := h.subscriptionService.ChangePlan(c.Request.Context(), identity.UserID, subscription.Plan(req.Plan), req.City)
	if err != nil {
		if errors.Is(err, subscription.ErrUnknownPlan) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sub)
}

// CancelSubscription reverts the caller to the free plan.
func (h *SubscriptionHandlers) CancelSubscription(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	if err := h.subscriptionService.CancelSubscription(c.Request.Context(), identity.UserID); err != nil {
		if errors.Is(err, subsrepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no subscription"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"canceled": true})
}
