package quality

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config holds the gate thresholds.
type Config struct {
	// CompletenessThreshold is the minimum fraction of complete records.
	CompletenessThreshold float64
	// FreshnessThreshold is the maximum allowed ingestion lag.
	FreshnessThreshold time.Duration
	// DriftThreshold is the maximum allowed population stability index.
	DriftThreshold float64
}

// MetricSink persists quality observations.
type MetricSink interface {
	Create(ctx context.Context, metric *models.DataQualityMetric) error
}

// QuarantineStore holds back events for suspended sources so they can
// be replayed after remediation.
type QuarantineStore interface {
	Create(ctx context.Context, event *models.QuarantinedEvent) error
	ListUnreplayed(ctx context.Context, dataSource string, limit int) ([]*models.QuarantinedEvent, error)
	MarkReplayed(ctx context.Context, id string, replayedAt time.Time) error
}

type sourceState struct {
	suspended   bool
	lastEventAt time.Time

	// Counters for the current evaluation window.
	valid      int
	violations int
}

// Gate evaluates per-source quality metrics against thresholds. A fail
// suspends that source's contribution to feature computation; its
// events are quarantined, never dropped. A warning is recorded but does
// not suspend anything.
type Gate struct {
	cfg        Config
	metrics    MetricSink
	quarantine QuarantineStore
	logger     ectologger.Logger

	mu      sync.RWMutex
	sources map[string]*sourceState

	now func() time.Time
}

// NewGate creates a data quality gate. All sources start unsuspended.
func NewGate(cfg Config, metrics MetricSink, quarantine QuarantineStore, logger ectologger.Logger) *Gate {
	return &Gate{
		cfg:        cfg,
		metrics:    metrics,
		quarantine: quarantine,
		logger:     logger,
		sources:    make(map[string]*sourceState),
		now:        time.Now,
	}
}

func (g *Gate) state(dataSource string) *sourceState {
	if s, ok := g.sources[dataSource]; ok {
		return s
	}
	s := &sourceState{}
	g.sources[dataSource] = s
	return s
}

// Suspended reports whether a source is currently quarantined.
func (g *Gate) Suspended(dataSource string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sources[dataSource]
	return ok && s.suspended
}

// Observe records a successfully normalized event for freshness
// tracking and the schema violation rate.
func (g *Gate) Observe(dataSource string, eventTime time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.state(dataSource)
	s.valid++
	if eventTime.After(s.lastEventAt) {
		s.lastEventAt = eventTime
	}
}

// RecordViolation records a malformed event for the schema violation
// rate.
func (g *Gate) RecordViolation(dataSource string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state(dataSource).violations++
}

// EvaluateAll runs the per-source checks over the counters accumulated
// since the last evaluation, then resets them. Drift is evaluated
// separately because it needs a baseline distribution.
func (g *Gate) EvaluateAll(ctx context.Context) error {
	g.mu.Lock()
	counts := make(map[string][2]int, len(g.sources))
	for name, s := range g.sources {
		counts[name] = [2]int{s.valid, s.violations}
		s.valid = 0
		s.violations = 0
	}
	g.mu.Unlock()

	for name, c := range counts {
		valid, violations := c[0], c[1]
		if _, err := g.EvaluateSchemaViolations(ctx, name, violations, valid+violations); err != nil {
			return err
		}
		if _, err := g.EvaluateFreshness(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateCompleteness checks the fraction of complete records against
// the completeness threshold. A fail suspends the source.
func (g *Gate) EvaluateCompleteness(ctx context.Context, dataSource string, completeRecords, totalRecords int) (*models.DataQualityMetric, error) {
	completeness := 0.0
	if totalRecords > 0 {
		completeness = float64(completeRecords) / float64(totalRecords)
	}

	status := models.QualityStatusFail
	if completeness >= g.cfg.CompletenessThreshold {
		status = models.QualityStatusPass
	} else if completeness >= g.cfg.CompletenessThreshold-0.05 {
		status = models.QualityStatusWarning
	}

	details, _ := json.Marshal(map[string]any{
		"complete_records": completeRecords,
		"total_records":    totalRecords,
	})

	return g.record(ctx, dataSource, models.QualityMetricCompleteness, completeness, g.cfg.CompletenessThreshold, status, details)
}

// EvaluateFreshness checks the source's ingestion lag against the
// freshness threshold. The metric value is the lag in minutes.
func (g *Gate) EvaluateFreshness(ctx context.Context, dataSource string) (*models.DataQualityMetric, error) {
	g.mu.RLock()
	var lastEventAt time.Time
	if s, ok := g.sources[dataSource]; ok {
		lastEventAt = s.lastEventAt
	}
	g.mu.RUnlock()

	thresholdMinutes := g.cfg.FreshnessThreshold.Minutes()

	if lastEventAt.IsZero() {
		// Nothing observed yet. Surface a warning rather than suspending
		// a source that may simply be quiet.
		details, _ := json.Marshal(map[string]any{"message": "no events observed"})
		return g.record(ctx, dataSource, models.QualityMetricFreshness, 0, thresholdMinutes, models.QualityStatusWarning, details)
	}

	lagMinutes := g.now().UTC().Sub(lastEventAt).Minutes()
	status := models.QualityStatusPass
	if lagMinutes > thresholdMinutes {
		status = models.QualityStatusFail
	}

	details, _ := json.Marshal(map[string]any{
		"latest_timestamp": lastEventAt.Format(time.RFC3339),
	})

	return g.record(ctx, dataSource, models.QualityMetricFreshness, lagMinutes, thresholdMinutes, status, details)
}

// EvaluateSchemaViolations checks the fraction of malformed events
// against the completeness threshold's inverse. A fail suspends the
// source.
func (g *Gate) EvaluateSchemaViolations(ctx context.Context, dataSource string, violations, total int) (*models.DataQualityMetric, error) {
	rate := 0.0
	if total > 0 {
		rate = float64(violations) / float64(total)
	}

	threshold := 1.0 - g.cfg.CompletenessThreshold
	status := models.QualityStatusPass
	if rate > threshold {
		status = models.QualityStatusFail
	}

	details, _ := json.Marshal(map[string]any{
		"violations": violations,
		"total":      total,
	})

	return g.record(ctx, dataSource, models.QualityMetricSchemaErrors, rate, threshold, status, details)
}

// EvaluateDrift compares the current feature distribution against a
// baseline using a population stability index.
func (g *Gate) EvaluateDrift(ctx context.Context, dataSource string, current, baseline map[string]float64) (*models.DataQualityMetric, error) {
	psi := populationStabilityIndex(current, baseline)

	status := models.QualityStatusPass
	if psi > g.cfg.DriftThreshold {
		status = models.QualityStatusFail
	} else if psi > g.cfg.DriftThreshold*0.75 {
		status = models.QualityStatusWarning
	}

	details, _ := json.Marshal(map[string]any{"psi": psi})

	return g.record(ctx, dataSource, models.QualityMetricDrift, psi, g.cfg.DriftThreshold, status, details)
}

func populationStabilityIndex(current, baseline map[string]float64) float64 {
	keys := make(map[string]struct{}, len(current)+len(baseline))
	for k := range current {
		keys[k] = struct{}{}
	}
	for k := range baseline {
		keys[k] = struct{}{}
	}

	const floor = 0.0001
	psi := 0.0
	for k := range keys {
		c, ok := current[k]
		if !ok || c == 0 {
			c = floor
		}
		b, ok := baseline[k]
		if !ok || b == 0 {
			b = floor
		}
		psi += (c - b) * math.Log(c/b)
	}
	return psi
}

func (g *Gate) record(ctx context.Context, dataSource, metricName string, value, threshold float64, status string, details json.RawMessage) (*models.DataQualityMetric, error) {
	ctx, span := tracing.StartSpan(ctx, "Gate.record")
	defer span.End()

	metric := &models.DataQualityMetric{
		MetricID:       uuid.NewString(),
		DataSource:     dataSource,
		MetricName:     metricName,
		MetricValue:    value,
		ThresholdValue: threshold,
		Status:         status,
		ComputedAt:     g.now().UTC(),
		Details:        details,
	}

	if err := g.metrics.Create(ctx, metric); err != nil {
		return nil, err
	}

	log := g.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"data_source": dataSource,
		"metric":      metricName,
		"value":       value,
		"status":      status,
	})

	metrics.RecordQualityCheck(dataSource, metricName, status)

	switch status {
	case models.QualityStatusFail:
		g.suspend(dataSource)
		metrics.RecordSourceSuspension(dataSource)
		log.Warn("quality check failed, source suspended")
	case models.QualityStatusWarning:
		log.Warn("quality check warning")
	default:
		log.Debug("quality check passed")
	}

	return metric, nil
}

func (g *Gate) suspend(dataSource string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state(dataSource).suspended = true
}

// Quarantine holds back an event from a suspended source.
func (g *Gate) Quarantine(ctx context.Context, dataSource, customerID string, payload json.RawMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Gate.Quarantine")
	defer span.End()

	return g.quarantine.Create(ctx, &models.QuarantinedEvent{
		ID:            uuid.NewString(),
		DataSource:    dataSource,
		CustomerID:    customerID,
		Payload:       payload,
		QuarantinedAt: g.now().UTC(),
	})
}

// ReplayFunc reprocesses one quarantined payload through the pipeline.
type ReplayFunc func(ctx context.Context, dataSource string, payload json.RawMessage) error

// Resume lifts a source's suspension and replays its quarantined
// events in quarantine order. Events that fail to replay stay
// quarantined for the next attempt.
func (g *Gate) Resume(ctx context.Context, dataSource string, replay ReplayFunc) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "Gate.Resume")
	defer span.End()

	g.mu.Lock()
	g.state(dataSource).suspended = false
	g.mu.Unlock()

	replayed := 0
	for {
		events, err := g.quarantine.ListUnreplayed(ctx, dataSource, 100)
		if err != nil {
			return replayed, err
		}
		if len(events) == 0 {
			return replayed, nil
		}

		for _, event := range events {
			if err := replay(ctx, event.DataSource, event.Payload); err != nil {
				g.logger.WithContext(ctx).WithError(err).WithField("event_id", event.ID).Error("failed to replay quarantined event")
				return replayed, err
			}
			if err := g.quarantine.MarkReplayed(ctx, event.ID, g.now().UTC()); err != nil {
				return replayed, err
			}
			replayed++
		}
	}
}
