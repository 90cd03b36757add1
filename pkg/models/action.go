package models

import (
	"encoding/json"
	"time"
)

// ActionStatus constants. Pending is the only non-terminal state.
const (
	ActionStatusPending  = "pending"
	ActionStatusExecuted = "executed"
	ActionStatusRejected = "rejected"
	ActionStatusExpired  = "expired"
)

// ActionType constants
const (
	ActionTypeDiscount      = "discount"
	ActionTypeUpgrade       = "upgrade"
	ActionTypeServiceCall   = "service_call"
	ActionTypeLoyaltyReward = "loyalty_reward"
	ActionTypeCustomOffer   = "custom_offer"
)

// RetentionAction is a recommended retention intervention. It moves
// through pending -> executed | rejected | expired and is never deleted.
type RetentionAction struct {
	ActionID        string          `json:"action_id" db:"action_id"`
	CustomerID      string          `json:"customer_id" db:"customer_id"`
	ActionType      string          `json:"action_type" db:"action_type"`
	RecommendedAt   time.Time       `json:"recommended_at" db:"recommended_at"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty" db:"executed_at"`
	Status          string          `json:"status" db:"status"`
	OfferDetails    json.RawMessage `json:"offer_details,omitempty" db:"offer_details"`
	PredictedImpact float64         `json:"predicted_impact" db:"predicted_impact"`
	ActualOutcome   *string         `json:"actual_outcome,omitempty" db:"actual_outcome"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Terminal reports whether the action can accept further transitions.
func (a *RetentionAction) Terminal() bool {
	return a.Status != ActionStatusPending
}

// ActionCandidate is one recommendation produced by the catalog before
// the dedup/cooldown invariant picks at most one to persist.
type ActionCandidate struct {
	ActionType      string          `json:"action_type"`
	Description     string          `json:"description"`
	PredictedImpact float64         `json:"predicted_impact"`
	EstimatedCost   float64         `json:"estimated_cost"`
	OfferDetails    json.RawMessage `json:"offer_details"`
}

// ActionOutcomeRequest drives the externally-fulfilled terminal
// transitions (executed / rejected) and records the observed outcome.
type ActionOutcomeRequest struct {
	Status        string  `json:"status" validate:"required,oneof=executed rejected"`
	ActualOutcome *string `json:"actual_outcome,omitempty" validate:"omitempty,oneof=retained churned unknown"`
}
