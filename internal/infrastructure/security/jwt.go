// Package security provides JWT token utilities.
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
)

// ErrHandshakeRejected marks an identity that could not be established from
// the presented credentials.
var ErrHandshakeRejected = errors.New("handshake rejected")

// Identity is the authenticated caller extracted from a token.
type Identity struct {
	UserID string
	Plan   subscription.Plan
}

// ValidateToken parses and verifies a signed token, returning the caller's
// identity. Tokens missing a subject, carrying an unknown plan, or signed
// with anything but HMAC are rejected.
func ValidateToken(tokenString, jwtSecret string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeRejected, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrHandshakeRejected)
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrHandshakeRejected)
	}

	plan := subscription.PlanFree
	if rawPlan, ok := claims["plan"].(string); ok && rawPlan != "" {
		plan = subscription.Plan(rawPlan)
		if !plan.Valid() {
			return nil, fmt.Errorf("%w: unknown plan %q", ErrHandshakeRejected, rawPlan)
		}
	}

	return &Identity{UserID: userID, Plan: plan}, nil
}

// GenerateToken creates a signed token for a user. Used by tests and by
// operator tooling; production tokens come from the identity provider.
func GenerateToken(userID string, plan subscription.Plan, jwtSecret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"plan": string(plan),
		"iat":  time.Now().UTC().Unix(),
		"exp":  time.Now().UTC().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}
