// Package plans applies subscription-plan shaping to raw catalog records.
//
// The discount a consumer actually sees is the offered discount clamped to
// their plan's ceiling. Adaptation happens on every read path that crosses a
// plan boundary; an adapted value is never shared between plans.
package plans

import (
	"github.com/PerkCity/perkcity-go/internal/domain/entities/catalog"
	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
)

// Unlimited marks a plan ceiling with no clamp.
const Unlimited = -1

// Ceiling returns the maximum discount percentage a plan entitles the
// consumer to see. Unknown plans are treated as free.
func Ceiling(plan subscription.Plan) int {
	switch plan {
	case subscription.PlanBasic:
		return 5
	case subscription.PlanSuper:
		return 10
	case subscription.PlanPremium:
		return Unlimited
	default:
		return 0
	}
}

// EffectiveDiscount clamps an offered discount to the plan ceiling.
func EffectiveDiscount(offered int, plan subscription.Plan) int {
	ceiling := Ceiling(plan)
	if ceiling == Unlimited || offered <= ceiling {
		return offered
	}
	return ceiling
}

// NeedsUpgrade reports whether a free-plan consumer is looking at a discount
// they cannot use without upgrading.
func NeedsUpgrade(offered int, plan subscription.Plan) bool {
	return plan == subscription.PlanFree && offered > 0
}

// AdaptPartner shapes a raw partner record for one consumer's plan. Applying
// it twice yields the same result as applying it once.
func AdaptPartner(partner *catalog.Partner, plan subscription.Plan) *catalog.AdaptedPartner {
	return &catalog.AdaptedPartner{
		Partner:           *partner,
		EffectiveDiscount: EffectiveDiscount(partner.OfferedDiscount, plan),
		NeedsUpgrade:      NeedsUpgrade(partner.OfferedDiscount, plan),
	}
}

// AdaptPartners shapes a collection of raw partner records for one plan.
func AdaptPartners(partners []*catalog.Partner, plan subscription.Plan) []*catalog.AdaptedPartner {
	adapted := make([]*catalog.AdaptedPartner, 0, len(partners))
	for _, partner := range partners {
		adapted = append(adapted, AdaptPartner(partner, plan))
	}
	return adapted
}

// FeaturesFor derives the feature set a plan grants.
func FeaturesFor(plan subscription.Plan) *subscription.Features {
	features := &subscription.Features{
		Plan:            plan,
		DiscountCeiling: Ceiling(plan),
	}
	switch plan {
	case subscription.PlanBasic:
		features.CanRedeem = true
		features.MaxDailyRedemptn = 1
	case subscription.PlanSuper:
		features.CanRedeem = true
		features.CanFavorite = true
		features.MaxDailyRedemptn = 3
	case subscription.PlanPremium:
		features.CanRedeem = true
		features.CanFavorite = true
		features.MaxDailyRedemptn = Unlimited
	}
	return features
}
