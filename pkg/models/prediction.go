package models

import "time"

// RiskLevel constants
const (
	RiskLevelLow      = "low"
	RiskLevelMedium   = "medium"
	RiskLevelHigh     = "high"
	RiskLevelCritical = "critical"
)

// RiskFactor is one named contributor to a prediction, ranked by the
// absolute magnitude of its contribution.
type RiskFactor struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Prediction is an immutable scoring result.
type Prediction struct {
	PredictionID        string       `json:"prediction_id" db:"prediction_id"`
	CustomerID          string       `json:"customer_id" db:"customer_id"`
	PredictionTimestamp time.Time    `json:"prediction_timestamp" db:"prediction_timestamp"`
	ChurnProbability    float64      `json:"churn_probability" db:"churn_probability"`
	RiskLevel           string       `json:"risk_level" db:"risk_level"`
	HorizonDays         int          `json:"prediction_horizon_days" db:"prediction_horizon_days"`
	ModelVersion        string       `json:"model_version" db:"model_version"`
	TopRiskFactors      []RiskFactor `json:"top_risk_factors" db:"-"`

	// StaleFeatures marks a degraded prediction computed from an expired
	// snapshot. Downstream policy decides what to do with it.
	StaleFeatures bool `json:"stale_features"`
}

// ScoreRequest asks the scorer for a prediction.
type ScoreRequest struct {
	CustomerID  string `json:"customer_id" validate:"required"`
	HorizonDays int    `json:"prediction_horizon_days" validate:"omitempty,gte=1,lte=90"`
}

// BatchScoreRequest scores many customers in one call.
type BatchScoreRequest struct {
	CustomerIDs []string `json:"customer_ids" validate:"required,min=1"`
	HorizonDays int      `json:"prediction_horizon_days" validate:"omitempty,gte=1,lte=90"`
}
