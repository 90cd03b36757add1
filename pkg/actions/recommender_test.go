package actions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func floatPtr(v float64) *float64 { return &v }

func fullCustomer() *models.Customer {
	return &models.Customer{
		CustomerID:              "cust-1",
		CustomerSegment:         models.CustomerSegmentResidential,
		MonthlyRecurringRevenue: floatPtr(80),
		LifetimeValue:           floatPtr(2400),
	}
}

func offerDetails(t *testing.T, candidate models.ActionCandidate) map[string]any {
	t.Helper()
	var details map[string]any
	require.NoError(t, json.Unmarshal(candidate.OfferDetails, &details))
	return details
}

func TestRecommendCritical(t *testing.T) {
	candidates := Recommend(fullCustomer(), 0.9, models.RiskLevelCritical)

	require.Len(t, candidates, 3)

	// Discount carries the highest predicted impact at this tier.
	assert.Equal(t, models.ActionTypeDiscount, candidates[0].ActionType)
	assert.Equal(t, 0.30, candidates[0].PredictedImpact)
	assert.Equal(t, models.ActionTypeServiceCall, candidates[1].ActionType)
	assert.Equal(t, models.ActionTypeLoyaltyReward, candidates[2].ActionType)

	// 0.9 * 30 = 27, capped at 25%. Cost = 80 * 25% * 6 months.
	details := offerDetails(t, candidates[0])
	assert.Equal(t, 25.0, details["discount_percent"])
	assert.Equal(t, 6.0, details["duration_months"])
	assert.Equal(t, 120.0, candidates[0].EstimatedCost)

	assert.Equal(t, true, offerDetails(t, candidates[1])["escalation"])
}

func TestRecommendCriticalNoRevenue(t *testing.T) {
	customer := fullCustomer()
	customer.MonthlyRecurringRevenue = nil
	customer.LifetimeValue = floatPtr(500)

	candidates := Recommend(customer, 0.85, models.RiskLevelCritical)

	// No MRR means no discount; LTV under the bar means no reward.
	require.Len(t, candidates, 1)
	assert.Equal(t, models.ActionTypeServiceCall, candidates[0].ActionType)
	assert.Equal(t, 0.25, candidates[0].PredictedImpact)
	assert.Equal(t, 50.0, candidates[0].EstimatedCost)
}

func TestRecommendHigh(t *testing.T) {
	candidates := Recommend(fullCustomer(), 0.65, models.RiskLevelHigh)

	require.Len(t, candidates, 3)
	assert.Equal(t, models.ActionTypeDiscount, candidates[0].ActionType)
	assert.Equal(t, 0.25, candidates[0].PredictedImpact)
	assert.Equal(t, models.ActionTypeServiceCall, candidates[1].ActionType)
	assert.Equal(t, models.ActionTypeUpgrade, candidates[2].ActionType)

	// 0.65 * 20 = 13%, under the 15% cap. Cost = 80 * 13% * 3 months.
	details := offerDetails(t, candidates[0])
	assert.InDelta(t, 13.0, details["discount_percent"].(float64), 1e-9)
	assert.Equal(t, 3.0, details["duration_months"])
	assert.InDelta(t, 31.2, candidates[0].EstimatedCost, 1e-9)
}

func TestRecommendHighEnterpriseNoUpgrade(t *testing.T) {
	customer := fullCustomer()
	customer.CustomerSegment = models.CustomerSegmentEnterprise

	candidates := Recommend(customer, 0.7, models.RiskLevelHigh)

	for _, candidate := range candidates {
		assert.NotEqual(t, models.ActionTypeUpgrade, candidate.ActionType)
	}
}

func TestRecommendMedium(t *testing.T) {
	candidates := Recommend(fullCustomer(), 0.45, models.RiskLevelMedium)

	require.Len(t, candidates, 2)
	assert.Equal(t, models.ActionTypeDiscount, candidates[0].ActionType)
	assert.Equal(t, 0.15, candidates[0].PredictedImpact)
	assert.Equal(t, models.ActionTypeCustomOffer, candidates[1].ActionType)

	// 0.45 * 15 = 6.75%, under the 10% cap.
	details := offerDetails(t, candidates[0])
	assert.InDelta(t, 6.75, details["discount_percent"].(float64), 1e-9)
}

func TestRecommendLow(t *testing.T) {
	candidates := Recommend(fullCustomer(), 0.1, models.RiskLevelLow)

	require.Len(t, candidates, 1)
	assert.Equal(t, models.ActionTypeCustomOffer, candidates[0].ActionType)
	assert.Equal(t, 0.05, candidates[0].PredictedImpact)
}

func TestRecommendImpactOrdering(t *testing.T) {
	for _, level := range []string{
		models.RiskLevelCritical,
		models.RiskLevelHigh,
		models.RiskLevelMedium,
		models.RiskLevelLow,
	} {
		candidates := Recommend(fullCustomer(), 0.9, level)
		require.NotEmpty(t, candidates, level)
		assert.LessOrEqual(t, len(candidates), 3, level)
		for i := 1; i < len(candidates); i++ {
			assert.GreaterOrEqual(t, candidates[i-1].PredictedImpact, candidates[i].PredictedImpact, level)
		}
	}
}
