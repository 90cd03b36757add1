package models

import (
	"encoding/json"
	"time"
)

// QualityStatus constants
const (
	QualityStatusPass    = "pass"
	QualityStatusFail    = "fail"
	QualityStatusWarning = "warning"
)

// QualityMetricName constants
const (
	QualityMetricCompleteness = "completeness"
	QualityMetricFreshness    = "freshness_lag"
	QualityMetricSchemaErrors = "schema_violation_rate"
	QualityMetricDrift        = "data_drift"
)

// DataQualityMetric is an immutable quality observation for a source.
type DataQualityMetric struct {
	MetricID       string          `json:"metric_id" db:"metric_id"`
	DataSource     string          `json:"data_source" db:"data_source"`
	MetricName     string          `json:"metric_name" db:"metric_name"`
	MetricValue    float64         `json:"metric_value" db:"metric_value"`
	ThresholdValue float64         `json:"threshold_value" db:"threshold_value"`
	Status         string          `json:"status" db:"status"`
	ComputedAt     time.Time       `json:"computed_at" db:"computed_at"`
	Details        json.RawMessage `json:"details,omitempty" db:"details"`
}

// QuarantinedEvent is a raw event held back from the pipeline while its
// source is suspended. Quarantined events are replayable, never dropped.
type QuarantinedEvent struct {
	ID            string          `json:"id" db:"id"`
	DataSource    string          `json:"data_source" db:"data_source"`
	CustomerID    string          `json:"customer_id" db:"customer_id"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	QuarantinedAt time.Time       `json:"quarantined_at" db:"quarantined_at"`
	ReplayedAt    *time.Time      `json:"replayed_at,omitempty" db:"replayed_at"`
}
