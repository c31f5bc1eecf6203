// Package cache implements the client-side segmented cache: three tiers of
// persisted entries keyed by how widely they can be shared, with plan-aware
// adaptation applied as values are written.
package cache

// Plan mirrors the server's subscription levels.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanBasic   Plan = "basic"
	PlanSuper   Plan = "super"
	PlanPremium Plan = "premium"
)

// Unlimited marks a plan with no discount ceiling.
const Unlimited = -1

// Ceiling returns the maximum discount percentage a plan may redeem.
// Unknown plans are treated as free.
func Ceiling(plan Plan) int {
	switch plan {
	case PlanBasic:
		return 5
	case PlanSuper:
		return 10
	case PlanPremium:
		return Unlimited
	default:
		return 0
	}
}

// EffectiveDiscount clamps a partner's offered discount to the plan ceiling.
func EffectiveDiscount(offered int, plan Plan) int {
	ceiling := Ceiling(plan)
	if ceiling == Unlimited || offered <= ceiling {
		return offered
	}
	return ceiling
}

// NeedsUpgrade reports whether a higher plan would unlock a better discount.
func NeedsUpgrade(offered int, plan Plan) bool {
	return plan == PlanFree && offered > 0
}

// Partner is the client's view of a catalog partner.
type Partner struct {
	ID                string  `json:"id" msgpack:"id"`
	Name              string  `json:"name" msgpack:"name"`
	Slug              string  `json:"slug" msgpack:"slug"`
	City              string  `json:"city" msgpack:"city"`
	Category          string  `json:"category" msgpack:"category"`
	OfferedDiscount   int     `json:"offeredDiscount" msgpack:"offeredDiscount"`
	EffectiveDiscount int     `json:"effectiveDiscount" msgpack:"effectiveDiscount"`
	NeedsUpgrade      bool    `json:"needsUpgrade" msgpack:"needsUpgrade"`
	Latitude          float64 `json:"latitude,omitempty" msgpack:"latitude,omitempty"`
	Longitude         float64 `json:"longitude,omitempty" msgpack:"longitude,omitempty"`
}

// Adapt reshapes the partner for a plan. Applied on every cache write so a
// persisted entry never carries another plan's effective discount.
func (p Partner) Adapt(plan Plan) Partner {
	p.EffectiveDiscount = EffectiveDiscount(p.OfferedDiscount, plan)
	p.NeedsUpgrade = NeedsUpgrade(p.OfferedDiscount, plan)
	return p
}

// Features is the client's view of its plan-derived feature set.
type Features struct {
	Plan                Plan `json:"plan" msgpack:"plan"`
	DiscountCeiling     int  `json:"discountCeiling" msgpack:"discountCeiling"`
	CanRedeem           bool `json:"canRedeem" msgpack:"canRedeem"`
	CanFavorite         bool `json:"canFavorite" msgpack:"canFavorite"`
	MaxDailyRedemptions int  `json:"maxDailyRedemptions" msgpack:"maxDailyRedemptions"`
}

// AdaptValue applies plan adaptation to the payload shapes that carry
// discounts. Other values pass through untouched.
func AdaptValue(value any, plan Plan) any {
	switch v := value.(type) {
	case Partner:
		return v.Adapt(plan)
	case *Partner:
		adapted := v.Adapt(plan)
		return &adapted
	case []Partner:
		adapted := make([]Partner, len(v))
		for i, p := range v {
			adapted[i] = p.Adapt(plan)
		}
		return adapted
	default:
		return value
	}
}
