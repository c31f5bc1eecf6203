// Package handlers provides HTTP handlers for the public API.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PerkCity/perkcity-go/internal/application/services"
	"github.com/PerkCity/perkcity-go/internal/domain/entities/catalog"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/caching/strategies"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	catalogrepo "github.com/PerkCity/perkcity-go/internal/infrastructure/persistence/catalog"
	"github.com/PerkCity/perkcity-go/internal/presentation/http/middleware"
)

// CatalogHandlers contains all partner catalog HTTP handlers
type CatalogHandlers struct {
	catalogService *services.CatalogService
	logger         *logging.ChanneledLogger
}

// NewCatalogHandlers creates catalog handlers with injected dependencies
func NewCatalogHandlers(catalogService *services.CatalogService, logger *logging.ChanneledLogger) *CatalogHandlers {
	return &CatalogHandlers{
		catalogService: catalogService,
		logger:         logger,
	}
}

// ListPartners returns active partners for the caller's plan, cache-first.
// Supports city, category, and bounding box query filters.
func (h *CatalogHandlers) ListPartners(c *gin.Context) {
	start := time.Now()
	identity := middleware.GetIdentity(c)

	params := strategies.ListParams{
		City:     c.Query("city"),
		Category: c.Query("category"),
		Plan:     identity.Plan,
	}
	if bounds, ok, err := boundsFromQuery(c); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bounds", "details": err.Error()})
		return
	} else if ok {
		params.Bounds = bounds
	}

	partners, err := h.catalogService.ListPartners(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Catalog().Debug("List partners request completed",
		"city", params.City, "count", len(partners), "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"partners": partners,
		"count":    len(partners),
	})
}

// GetPartner returns one partner shaped for the caller's plan.
func (h *CatalogHandlers) GetPartner(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	partner, err := h.catalogService.GetPartner(c.Request.Context(), c.Param("id"), identity.Plan)
	if err != nil {
		if errors.Is(err, catalogrepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "partner not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, partner)
}

// GetCities lists cities with active partners.
func (h *CatalogHandlers) GetCities(c *gin.Context) {
	cities, err := h.catalogService.Cities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cities": cities})
}

// CreatePartner adds a partner to the catalog.
func (h *CatalogHandlers) CreatePartner(c *gin.Context) {
	var partner catalog.Partner
	if err := c.ShouldBindJSON(&partner); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if partner.ID == "" || partner.Name == "" || partner.City == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id, name, and city are required"})
		return
	}

	if err := h.catalogService.CreatePartner(c.Request.Context(), &partner); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, partner)
}

// UpdatePartner persists partner changes and pushes invalidation to clients.
func (h *CatalogHandlers) UpdatePartner(c *gin.Context) {
	var partner catalog.Partner
	if err := c.ShouldBindJSON(&partner); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	partner.ID = c.Param("id")

	if err := h.catalogService.UpdatePartner(c.Request.Context(), &partner); err != nil {
		if errors.Is(err, catalogrepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "partner not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, partner)
}

// DeletePartner removes a partner from the catalog.
func (h *CatalogHandlers) DeletePartner(c *gin.Context) {
	if err := h.catalogService.DeletePartner(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, catalogrepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "partner not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func boundsFromQuery(c *gin.Context) (*strategies.GeoBounds, bool, error) {
	raw := [4]string{c.Query("minLat"), c.Query("minLng"), c.Query("maxLat"), c.Query("maxLng")}
	if raw[0] == "" && raw[1] == "" && raw[2] == "" && raw[3] == "" {
		return nil, false, nil
	}

	var values [4]float64
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false, err
		}
		values[i] = v
	}
	return &strategies.GeoBounds{
		MinLat: values[0], MinLng: values[1], MaxLat: values[2], MaxLng: values[3],
	}, true, nil
}
