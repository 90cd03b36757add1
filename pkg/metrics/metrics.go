// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngestedTotal tracks raw events ingested by source and outcome
	EventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "pipeline",
			Name:      "events_ingested_total",
			Help:      "Total number of raw events ingested by source and outcome",
		},
		[]string{"source", "result"},
	)

	// SnapshotsEmittedTotal tracks feature snapshots emitted downstream
	SnapshotsEmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "pipeline",
			Name:      "snapshots_emitted_total",
			Help:      "Total number of feature snapshots emitted",
		},
	)

	// PredictionsTotal tracks churn predictions by risk level and model version
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "scoring",
			Name:      "predictions_total",
			Help:      "Total number of churn predictions by risk level and model version",
		},
		[]string{"risk_level", "model_version"},
	)

	// ScoringDuration tracks end-to-end scoring duration in seconds
	ScoringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "scoring",
			Name:      "duration_seconds",
			Help:      "Duration of churn scoring in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// ScoringTimeoutsTotal tracks predictions that missed the scoring deadline
	ScoringTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "scoring",
			Name:      "timeouts_total",
			Help:      "Total number of predictions that missed the scoring deadline",
		},
	)

	// ActionsCreatedTotal tracks retention actions created by type
	ActionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "actions",
			Name:      "created_total",
			Help:      "Total number of retention actions created by type",
		},
		[]string{"action_type"},
	)

	// ActionRateLimitHits tracks predictions rejected by the action rate limit
	ActionRateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "actions",
			Name:      "rate_limit_hits_total",
			Help:      "Total number of predictions rejected by the action rate limit",
		},
	)

	// QualityChecksTotal tracks data quality evaluations by source, metric and status
	QualityChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "quality",
			Name:      "checks_total",
			Help:      "Total number of data quality evaluations by source, metric and status",
		},
		[]string{"source", "metric", "status"},
	)

	// SourceSuspensionsTotal tracks quality-gate suspensions by source
	SourceSuspensionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "quality",
			Name:      "suspensions_total",
			Help:      "Total number of quality-gate suspensions by source",
		},
		[]string{"source"},
	)
)

// RecordEventIngested records a raw event ingestion outcome
func RecordEventIngested(source, result string) {
	EventsIngestedTotal.WithLabelValues(source, result).Inc()
}

// RecordSnapshotEmitted records a feature snapshot emission
func RecordSnapshotEmitted() {
	SnapshotsEmittedTotal.Inc()
}

// RecordPrediction records a churn prediction
func RecordPrediction(riskLevel, modelVersion string, durationSeconds float64) {
	PredictionsTotal.WithLabelValues(riskLevel, modelVersion).Inc()
	ScoringDuration.Observe(durationSeconds)
}

// RecordScoringTimeout records a prediction that missed the deadline
func RecordScoringTimeout() {
	ScoringTimeoutsTotal.Inc()
}

// RecordActionCreated records a retention action creation
func RecordActionCreated(actionType string) {
	ActionsCreatedTotal.WithLabelValues(actionType).Inc()
}

// RecordRateLimitHit records a prediction rejected by the action rate limit
func RecordRateLimitHit() {
	ActionRateLimitHits.Inc()
}

// RecordQualityCheck records a data quality evaluation
func RecordQualityCheck(source, metric, status string) {
	QualityChecksTotal.WithLabelValues(source, metric, status).Inc()
}

// RecordSourceSuspension records a quality-gate suspension
func RecordSourceSuspension(source string) {
	SourceSuspensionsTotal.WithLabelValues(source).Inc()
}
