package actions

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Recommend builds the candidate interventions for a customer at a
// given risk tier, ranked by predicted impact. At most three candidates
// come back; the engine persists only the top one.
func Recommend(customer *models.Customer, churnProbability float64, riskLevel string) []models.ActionCandidate {
	var candidates []models.ActionCandidate

	switch riskLevel {
	case models.RiskLevelCritical:
		candidates = criticalCandidates(customer, churnProbability)
	case models.RiskLevelHigh:
		candidates = highRiskCandidates(customer, churnProbability)
	case models.RiskLevelMedium:
		candidates = mediumRiskCandidates(customer, churnProbability)
	default:
		candidates = lowRiskCandidates()
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PredictedImpact > candidates[j].PredictedImpact
	})

	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	return candidates
}

func criticalCandidates(customer *models.Customer, churnProbability float64) []models.ActionCandidate {
	candidates := []models.ActionCandidate{
		{
			ActionType:      models.ActionTypeServiceCall,
			Description:     "Immediate proactive service call to address concerns",
			PredictedImpact: 0.25,
			EstimatedCost:   50,
			OfferDetails:    mustDetails(map[string]any{"reason": "Critical churn risk detected", "escalation": true}),
		},
	}

	if customer.MonthlyRecurringRevenue != nil {
		mrr := *customer.MonthlyRecurringRevenue
		discountPct := math.Min(25, churnProbability*30)
		candidates = append(candidates, models.ActionCandidate{
			ActionType:      models.ActionTypeDiscount,
			Description:     fmt.Sprintf("%.0f%% discount for 6 months", discountPct),
			PredictedImpact: 0.30,
			EstimatedCost:   mrr * discountPct / 100 * 6,
			OfferDetails:    mustDetails(map[string]any{"discount_percent": discountPct, "duration_months": 6, "auto_apply": true}),
		})
	}

	if customer.LifetimeValue != nil && *customer.LifetimeValue > 1000 {
		candidates = append(candidates, models.ActionCandidate{
			ActionType:      models.ActionTypeLoyaltyReward,
			Description:     "Exclusive loyalty reward for long-term customers",
			PredictedImpact: 0.15,
			EstimatedCost:   100,
			OfferDetails:    mustDetails(map[string]any{"reward_type": "gift_card", "amount": 100}),
		})
	}

	return candidates
}

func highRiskCandidates(customer *models.Customer, churnProbability float64) []models.ActionCandidate {
	candidates := []models.ActionCandidate{
		{
			ActionType:      models.ActionTypeServiceCall,
			Description:     "Proactive service check-in",
			PredictedImpact: 0.20,
			EstimatedCost:   30,
			OfferDetails:    mustDetails(map[string]any{"reason": "High churn risk", "escalation": false}),
		},
	}

	if customer.MonthlyRecurringRevenue != nil {
		mrr := *customer.MonthlyRecurringRevenue
		discountPct := math.Min(15, churnProbability*20)
		candidates = append(candidates, models.ActionCandidate{
			ActionType:      models.ActionTypeDiscount,
			Description:     fmt.Sprintf("%.0f%% discount for 3 months", discountPct),
			PredictedImpact: 0.25,
			EstimatedCost:   mrr * discountPct / 100 * 3,
			OfferDetails:    mustDetails(map[string]any{"discount_percent": discountPct, "duration_months": 3}),
		})
	}

	if customer.CustomerSegment == models.CustomerSegmentResidential || customer.CustomerSegment == models.CustomerSegmentSmallBusiness {
		candidates = append(candidates, models.ActionCandidate{
			ActionType:      models.ActionTypeUpgrade,
			Description:     "Upgrade to premium plan with special pricing",
			PredictedImpact: 0.18,
			EstimatedCost:   0,
			OfferDetails:    mustDetails(map[string]any{"upgrade_type": "premium", "special_pricing": true}),
		})
	}

	return candidates
}

func mediumRiskCandidates(customer *models.Customer, churnProbability float64) []models.ActionCandidate {
	var candidates []models.ActionCandidate

	if customer.MonthlyRecurringRevenue != nil {
		mrr := *customer.MonthlyRecurringRevenue
		discountPct := math.Min(10, churnProbability*15)
		candidates = append(candidates, models.ActionCandidate{
			ActionType:      models.ActionTypeDiscount,
			Description:     fmt.Sprintf("%.0f%% discount for 2 months", discountPct),
			PredictedImpact: 0.15,
			EstimatedCost:   mrr * discountPct / 100 * 2,
			OfferDetails:    mustDetails(map[string]any{"discount_percent": discountPct, "duration_months": 2}),
		})
	}

	candidates = append(candidates, models.ActionCandidate{
		ActionType:      models.ActionTypeCustomOffer,
		Description:     "Personalized retention email with special offer",
		PredictedImpact: 0.10,
		EstimatedCost:   5,
		OfferDetails:    mustDetails(map[string]any{"channel": "email", "personalized": true}),
	})

	return candidates
}

func lowRiskCandidates() []models.ActionCandidate {
	return []models.ActionCandidate{
		{
			ActionType:      models.ActionTypeCustomOffer,
			Description:     "Engagement email with tips and benefits",
			PredictedImpact: 0.05,
			EstimatedCost:   2,
			OfferDetails:    mustDetails(map[string]any{"channel": "email", "type": "engagement"}),
		},
	}
}

func mustDetails(details map[string]any) json.RawMessage {
	b, err := json.Marshal(details)
	if err != nil {
		panic(err)
	}
	return b
}
