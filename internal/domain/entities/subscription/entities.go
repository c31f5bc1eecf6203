// Package subscription defines subscription and plan domain entities.
package subscription

import (
	"errors"
	"time"
)

// ErrUnknownPlan is returned when a plan name is not recognized.
var ErrUnknownPlan = errors.New("unknown plan")

// Plan is the consumer's subscription level.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanBasic   Plan = "basic"
	PlanSuper   Plan = "super"
	PlanPremium Plan = "premium"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanBasic, PlanSuper, PlanPremium:
		return true
	}
	return false
}

// Subscription is a consumer's current subscription record.
type Subscription struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Plan      Plan       `json:"plan"`
	City      *string    `json:"city,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Created   time.Time  `json:"created"`
	Changed   *time.Time `json:"changed,omitempty"`
}

// Features is the plan-derived access set gating monetized behavior.
type Features struct {
	Plan             Plan `json:"plan"`
	DiscountCeiling  int  `json:"discountCeiling"` // -1 means unlimited
	CanRedeem        bool `json:"canRedeem"`
	CanFavorite      bool `json:"canFavorite"`
	MaxDailyRedemptn int  `json:"maxDailyRedemptions"`
}
