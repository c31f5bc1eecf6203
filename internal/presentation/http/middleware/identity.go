package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/security"
	"github.com/PerkCity/perkcity-go/pkg/config"
)

const identityKey = "identity"

// anonymous is the identity given to unauthenticated callers. They browse
// the catalog on the free plan.
var anonymous = &security.Identity{UserID: "", Plan: subscription.PlanFree}

// IdentityMiddleware resolves the caller's identity from a bearer token and
// stores it in the request context. Requests without a token proceed as
// anonymous free-plan callers; requests with a bad token are rejected.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Set(identityKey, anonymous)
			c.Next()
			return
		}

		identity, err := security.ValidateToken(token, config.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireUser rejects anonymous callers. It must run after IdentityMiddleware.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := GetIdentity(c)
		if identity.UserID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetIdentity returns the caller's identity, resolving to anonymous when the
// middleware did not run.
func GetIdentity(c *gin.Context) *security.Identity {
	if value, exists := c.Get(identityKey); exists {
		if identity, ok := value.(*security.Identity); ok {
			return identity
		}
	}
	return anonymous
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Browsers cannot set headers on websocket upgrades, so the token may
	// arrive as a query parameter instead.
	return c.Query("token")
}
