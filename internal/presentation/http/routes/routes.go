// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/PerkCity/perkcity-go/internal/application/container"
	"github.com/PerkCity/perkcity-go/internal/presentation/http/handlers"
	"github.com/PerkCity/perkcity-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.IdentityMiddleware())

	// Initialize handlers
	catalogHandlers := handlers.NewCatalogHandlers(container.CatalogService, container.Logger)
	subscriptionHandlers := handlers.NewSubscriptionHandlers(container.SubscriptionService, container.Logger)
	realtimeHandlers := handlers.NewRealtimeHandlers(container.Registry, container.Transport, container.Logger)
	healthHandlers := handlers.NewHealthHandlers(container.CacheStore, container.Registry, container.CacheMonitor)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthHandlers.Health)

		partners := v1.Group("/partners")
		{
			partners.GET("", catalogHandlers.ListPartners)
			partners.GET("/:id", catalogHandlers.GetPartner)
			partners.POST("", middleware.RequireUser(), catalogHandlers.CreatePartner)
			partners.PUT("/:id", middleware.RequireUser(), catalogHandlers.UpdatePartner)
			partners.DELETE("/:id", middleware.RequireUser(), catalogHandlers.DeletePartner)
		}

		v1.GET("/cities", catalogHandlers.GetCities)

		subs := v1.Group("/subscription")
		subs.Use(middleware.RequireUser())
		{
			subs.GET("/features", subscriptionHandlers.GetFeatures)
			subs.GET("", subscriptionHandlers.GetSubscription)
			subs.PUT("/plan", subscriptionHandlers.ChangePlan)
			subs.DELETE("", subscriptionHandlers.CancelSubscription)
		}
	}

	r.GET("/ws", middleware.RequireUser(), realtimeHandlers.HandleWebSocket)

	return r
}
