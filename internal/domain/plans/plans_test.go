package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/catalog"
	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
)

func TestEffectiveDiscountClamp(t *testing.T) {
	cases := []struct {
		plan     subscription.Plan
		offered  int
		expected int
	}{
		{subscription.PlanFree, 20, 0},
		{subscription.PlanBasic, 20, 5},
		{subscription.PlanBasic, 3, 3},
		{subscription.PlanSuper, 20, 10},
		{subscription.PlanSuper, 8, 8},
		{subscription.PlanPremium, 20, 20},
		{subscription.PlanPremium, 0, 0},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, EffectiveDiscount(tc.offered, tc.plan),
			"plan=%s offered=%d", tc.plan, tc.offered)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	assert.False(t, NeedsUpgrade(0, subscription.PlanFree))
	assert.True(t, NeedsUpgrade(8, subscription.PlanFree))
	assert.False(t, NeedsUpgrade(8, subscription.PlanBasic))
	assert.False(t, NeedsUpgrade(20, subscription.PlanPremium))
}

func TestAdaptPartnerIdempotent(t *testing.T) {
	raw := &catalog.Partner{ID: "p1", Name: "Chez Nous", City: "paris", Category: "food", OfferedDiscount: 20}

	once := AdaptPartner(raw, subscription.PlanBasic)
	twice := AdaptPartner(&once.Partner, subscription.PlanBasic)

	assert.Equal(t, once, twice)
	assert.Equal(t, 5, once.EffectiveDiscount)
	assert.Equal(t, 20, once.OfferedDiscount, "raw offered discount must survive adaptation")
}

func TestAdaptPartnersKeepsOrder(t *testing.T) {
	raws := []*catalog.Partner{
		{ID: "a", OfferedDiscount: 10},
		{ID: "b", OfferedDiscount: 2},
	}

	adapted := AdaptPartners(raws, subscription.PlanSuper)

	assert.Len(t, adapted, 2)
	assert.Equal(t, "a", adapted[0].ID)
	assert.Equal(t, 10, adapted[0].EffectiveDiscount)
	assert.Equal(t, 2, adapted[1].EffectiveDiscount)
}

func TestFeaturesFor(t *testing.T) {
	free := FeaturesFor(subscription.PlanFree)
	assert.False(t, free.CanRedeem)
	assert.Equal(t, 0, free.DiscountCeiling)

	premium := FeaturesFor(subscription.PlanPremium)
	assert.True(t, premium.CanRedeem)
	assert.Equal(t, Unlimited, premium.DiscountCeiling)
	assert.Equal(t, Unlimited, premium.MaxDailyRedemptn)
}
