package quality

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

var gateTestTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeMetricSink struct {
	metrics []*models.DataQualityMetric
	err     error
}

func (f *fakeMetricSink) Create(_ context.Context, metric *models.DataQualityMetric) error {
	if f.err != nil {
		return f.err
	}
	f.metrics = append(f.metrics, metric)
	return nil
}

type fakeQuarantineStore struct {
	events   []*models.QuarantinedEvent
	replayed []string
	listErr  error
}

func (f *fakeQuarantineStore) Create(_ context.Context, event *models.QuarantinedEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeQuarantineStore) ListUnreplayed(_ context.Context, dataSource string, limit int) ([]*models.QuarantinedEvent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	unreplayed := make([]*models.QuarantinedEvent, 0)
	for _, event := range f.events {
		if event.DataSource == dataSource && event.ReplayedAt == nil {
			unreplayed = append(unreplayed, event)
		}
		if len(unreplayed) == limit {
			break
		}
	}
	return unreplayed, nil
}

func (f *fakeQuarantineStore) MarkReplayed(_ context.Context, id string, replayedAt time.Time) error {
	for _, event := range f.events {
		if event.ID == id {
			event.ReplayedAt = &replayedAt
			f.replayed = append(f.replayed, id)
			return nil
		}
	}
	return errors.New("quarantined event not found")
}

func testGate(sink MetricSink, store QuarantineStore) *Gate {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	g := NewGate(Config{
		CompletenessThreshold: 0.95,
		FreshnessThreshold:    30 * time.Minute,
		DriftThreshold:        0.2,
	}, sink, store, logger)
	g.now = func() time.Time { return gateTestTime }
	return g
}

func TestEvaluateCompleteness(t *testing.T) {
	tests := []struct {
		name     string
		complete int
		total    int
		status   string
		suspends bool
	}{
		{"pass", 98, 100, models.QualityStatusPass, false},
		{"pass at threshold", 95, 100, models.QualityStatusPass, false},
		{"warning band", 92, 100, models.QualityStatusWarning, false},
		{"fail", 80, 100, models.QualityStatusFail, true},
		{"empty source fails", 0, 0, models.QualityStatusFail, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeMetricSink{}
			g := testGate(sink, &fakeQuarantineStore{})

			metric, err := g.EvaluateCompleteness(context.Background(), "billing", tt.complete, tt.total)
			require.NoError(t, err)

			assert.Equal(t, tt.status, metric.Status)
			assert.Equal(t, models.QualityMetricCompleteness, metric.MetricName)
			assert.Equal(t, 0.95, metric.ThresholdValue)
			assert.Equal(t, tt.suspends, g.Suspended("billing"))
			require.Len(t, sink.metrics, 1)
		})
	}
}

func TestEvaluateFreshness(t *testing.T) {
	sink := &fakeMetricSink{}
	g := testGate(sink, &fakeQuarantineStore{})

	g.Observe("billing", gateTestTime.Add(-10*time.Minute))
	metric, err := g.EvaluateFreshness(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, models.QualityStatusPass, metric.Status)
	assert.InDelta(t, 10.0, metric.MetricValue, 1e-9)
	assert.Equal(t, 30.0, metric.ThresholdValue)
}

func TestEvaluateFreshnessLagFail(t *testing.T) {
	sink := &fakeMetricSink{}
	g := testGate(sink, &fakeQuarantineStore{})

	g.Observe("billing", gateTestTime.Add(-2*time.Hour))
	metric, err := g.EvaluateFreshness(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, models.QualityStatusFail, metric.Status)
	assert.True(t, g.Suspended("billing"))
}

func TestEvaluateFreshnessNoEvents(t *testing.T) {
	sink := &fakeMetricSink{}
	g := testGate(sink, &fakeQuarantineStore{})

	// A quiet source warns without suspending.
	metric, err := g.EvaluateFreshness(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, models.QualityStatusWarning, metric.Status)
	assert.False(t, g.Suspended("billing"))
}

func TestEvaluateSchemaViolations(t *testing.T) {
	sink := &fakeMetricSink{}
	g := testGate(sink, &fakeQuarantineStore{})

	// 2% violations against a 5% budget.
	metric, err := g.EvaluateSchemaViolations(context.Background(), "billing", 2, 100)
	require.NoError(t, err)
	assert.Equal(t, models.QualityStatusPass, metric.Status)
	assert.InDelta(t, 0.02, metric.MetricValue, 1e-9)
	assert.InDelta(t, 0.05, metric.ThresholdValue, 1e-9)

	metric, err = g.EvaluateSchemaViolations(context.Background(), "billing", 10, 100)
	require.NoError(t, err)
	assert.Equal(t, models.QualityStatusFail, metric.Status)
	assert.True(t, g.Suspended("billing"))
}

func TestEvaluateDrift(t *testing.T) {
	sink := &fakeMetricSink{}
	g := testGate(sink, &fakeQuarantineStore{})

	baseline := map[string]float64{"low": 0.5, "high": 0.5}

	metric, err := g.EvaluateDrift(context.Background(), "billing", map[string]float64{"low": 0.5, "high": 0.5}, baseline)
	require.NoError(t, err)
	assert.Equal(t, models.QualityStatusPass, metric.Status)
	assert.InDelta(t, 0.0, metric.MetricValue, 1e-9)

	metric, err = g.EvaluateDrift(context.Background(), "billing", map[string]float64{"low": 0.1, "high": 0.9}, baseline)
	require.NoError(t, err)
	assert.Equal(t, models.QualityStatusFail, metric.Status)
	assert.Greater(t, metric.MetricValue, 0.2)
	assert.True(t, g.Suspended("billing"))
}

func TestEvaluateDriftWarning(t *testing.T) {
	sink := &fakeMetricSink{}
	g := testGate(sink, &fakeQuarantineStore{})

	baseline := map[string]float64{"low": 0.5, "high": 0.5}

	// PSI between 0.15 (0.75 * threshold) and 0.2 warns without suspending.
	metric, err := g.EvaluateDrift(context.Background(), "billing", map[string]float64{"low": 0.3, "high": 0.7}, baseline)
	require.NoError(t, err)
	assert.Equal(t, models.QualityStatusWarning, metric.Status)
	assert.False(t, g.Suspended("billing"))
}

func TestEvaluateAllResetsCounters(t *testing.T) {
	sink := &fakeMetricSink{}
	g := testGate(sink, &fakeQuarantineStore{})

	g.Observe("billing", gateTestTime.Add(-time.Minute))
	g.RecordViolation("billing")

	require.NoError(t, g.EvaluateAll(context.Background()))
	assert.Len(t, sink.metrics, 2)

	g.mu.RLock()
	s := g.sources["billing"]
	g.mu.RUnlock()
	assert.Zero(t, s.valid)
	assert.Zero(t, s.violations)
}

func TestQuarantine(t *testing.T) {
	store := &fakeQuarantineStore{}
	g := testGate(&fakeMetricSink{}, store)

	err := g.Quarantine(context.Background(), "billing", "cust-1", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)

	require.Len(t, store.events, 1)
	assert.Equal(t, "billing", store.events[0].DataSource)
	assert.Equal(t, "cust-1", store.events[0].CustomerID)
	assert.Equal(t, gateTestTime, store.events[0].QuarantinedAt)
	assert.NotEmpty(t, store.events[0].ID)
}

func TestResumeReplaysQuarantined(t *testing.T) {
	store := &fakeQuarantineStore{}
	g := testGate(&fakeMetricSink{}, store)

	g.suspend("billing")
	require.NoError(t, g.Quarantine(context.Background(), "billing", "cust-1", json.RawMessage(`{"n":1}`)))
	require.NoError(t, g.Quarantine(context.Background(), "billing", "cust-2", json.RawMessage(`{"n":2}`)))
	require.NoError(t, g.Quarantine(context.Background(), "web_analytics", "cust-3", json.RawMessage(`{"n":3}`)))

	var replayedPayloads []string
	replayed, err := g.Resume(context.Background(), "billing", func(_ context.Context, dataSource string, payload json.RawMessage) error {
		assert.Equal(t, "billing", dataSource)
		replayedPayloads = append(replayedPayloads, string(payload))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, replayed)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, replayedPayloads)
	assert.False(t, g.Suspended("billing"))
	assert.Len(t, store.replayed, 2)

	// The other source's events stay quarantined.
	remaining, err := store.ListUnreplayed(context.Background(), "web_analytics", 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestResumeStopsOnReplayError(t *testing.T) {
	store := &fakeQuarantineStore{}
	g := testGate(&fakeMetricSink{}, store)

	require.NoError(t, g.Quarantine(context.Background(), "billing", "cust-1", json.RawMessage(`{"n":1}`)))
	require.NoError(t, g.Quarantine(context.Background(), "billing", "cust-2", json.RawMessage(`{"n":2}`)))

	calls := 0
	replayed, err := g.Resume(context.Background(), "billing", func(_ context.Context, _ string, _ json.RawMessage) error {
		calls++
		if calls == 2 {
			return errors.New("pipeline rejected the event")
		}
		return nil
	})
	require.Error(t, err)

	// The first event replayed; the failed one stays quarantined.
	assert.Equal(t, 1, replayed)
	remaining, listErr := store.ListUnreplayed(context.Background(), "billing", 100)
	require.NoError(t, listErr)
	assert.Len(t, remaining, 1)
}

func TestRecordSinkFailure(t *testing.T) {
	sink := &fakeMetricSink{err: errors.New("db down")}
	g := testGate(sink, &fakeQuarantineStore{})

	_, err := g.EvaluateCompleteness(context.Background(), "billing", 100, 100)
	assert.Error(t, err)
}
