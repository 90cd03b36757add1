package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

var aggTestTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testAggregator() *Aggregator {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	a := NewAggregator(NewWindows([]int{7, 30, 90}), logger)
	a.now = func() time.Time { return aggTestTime }
	return a
}

func interactionEnvelope(id string, ts time.Time, attrs string) *models.Envelope {
	return &models.Envelope{
		EventID:    id,
		CustomerID: "cust-1",
		EventType:  models.EventTypeServiceInteraction,
		Timestamp:  ts,
		Attributes: json.RawMessage(attrs),
	}
}

func TestApplyDuplicateIsNoOp(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()

	env := interactionEnvelope("int-1", aggTestTime.Add(-time.Hour),
		`{"channel": "phone", "sentiment_score": -0.5}`)

	result := a.Apply(ctx, env)
	assert.False(t, result.Duplicate)

	result = a.Apply(ctx, env)
	assert.True(t, result.Duplicate)

	features, ok := a.Vector(ctx, "cust-1")
	require.True(t, ok)
	assert.Equal(t, 1.0, features["service_calls_30d"])
}

func TestApplyOutOfOrderConverges(t *testing.T) {
	ctx := context.Background()

	forward := testAggregator()
	reversed := testAggregator()

	envs := []*models.Envelope{
		interactionEnvelope("int-1", aggTestTime.Add(-72*time.Hour), `{"sentiment_score": -0.8}`),
		interactionEnvelope("int-2", aggTestTime.Add(-48*time.Hour), `{"sentiment_score": -0.6}`),
		interactionEnvelope("int-3", aggTestTime.Add(-24*time.Hour), `{"sentiment_score": -0.9}`),
	}

	for _, env := range envs {
		result := forward.Apply(ctx, env)
		assert.False(t, result.OutOfOrder)
	}
	for i := len(envs) - 1; i >= 0; i-- {
		result := reversed.Apply(ctx, envs[i])
		assert.Equal(t, i != len(envs)-1, result.OutOfOrder)
	}

	forwardFeatures, ok := forward.Vector(ctx, "cust-1")
	require.True(t, ok)
	reversedFeatures, ok := reversed.Vector(ctx, "cust-1")
	require.True(t, ok)

	assert.Equal(t, 3.0, forwardFeatures["service_calls_30d"])
	assert.InDelta(t, -0.7667, forwardFeatures["avg_sentiment_30d"].(float64), 0.001)
	assert.Equal(t, forwardFeatures["service_calls_30d"], reversedFeatures["service_calls_30d"])
	assert.Equal(t, forwardFeatures["avg_sentiment_30d"], reversedFeatures["avg_sentiment_30d"])
}

func TestApplyBeyondHorizon(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()

	env := interactionEnvelope("int-old", aggTestTime.Add(-120*24*time.Hour), `{}`)
	result := a.Apply(ctx, env)
	assert.True(t, result.LateUncorrected)

	env = interactionEnvelope("int-new", aggTestTime.Add(-time.Hour), `{}`)
	a.Apply(ctx, env)

	features, ok := a.Vector(ctx, "cust-1")
	require.True(t, ok)
	assert.Equal(t, 1.0, features["service_calls_30d"])
	assert.Equal(t, 1.0, features["late_uncorrected_events"])
}

func TestVectorUnknownCustomer(t *testing.T) {
	a := testAggregator()

	_, ok := a.Vector(context.Background(), "nobody")
	assert.False(t, ok)
}

func TestVectorWindowCounts(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()

	// Two calls inside 7d, one more inside 30d, one more inside 90d.
	a.Apply(ctx, interactionEnvelope("int-1", aggTestTime.Add(-2*24*time.Hour), `{}`))
	a.Apply(ctx, interactionEnvelope("int-2", aggTestTime.Add(-5*24*time.Hour), `{}`))
	a.Apply(ctx, interactionEnvelope("int-3", aggTestTime.Add(-20*24*time.Hour), `{}`))
	a.Apply(ctx, interactionEnvelope("int-4", aggTestTime.Add(-60*24*time.Hour), `{}`))

	features, ok := a.Vector(ctx, "cust-1")
	require.True(t, ok)

	assert.Equal(t, 2.0, features["interaction_count_7d"])
	assert.Equal(t, 3.0, features["interaction_count_30d"])
	assert.Equal(t, 4.0, features["interaction_count_90d"])
	assert.Equal(t, 3.0, features["service_calls_30d"])
}

func TestVectorServiceFeatures(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()

	a.Apply(ctx, interactionEnvelope("int-1", aggTestTime.Add(-48*time.Hour),
		`{"sentiment_score": -0.4, "duration_seconds": 600, "resolution_status": "unresolved"}`))
	a.Apply(ctx, interactionEnvelope("int-2", aggTestTime.Add(-24*time.Hour),
		`{"sentiment_score": -0.2, "duration_seconds": 300, "resolution_status": "resolved"}`))

	features, ok := a.Vector(ctx, "cust-1")
	require.True(t, ok)

	assert.InDelta(t, -0.3, features["avg_sentiment_30d"].(float64), 0.0001)
	assert.Equal(t, 450.0, features["avg_call_duration_30d"])
	assert.Equal(t, 1.0, features["unresolved_calls_30d"])
	assert.Equal(t, 1.0, features["days_since_last_call"])
}

func TestVectorTelemetryFeatures(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()

	apply := func(id, attrs string) {
		a.Apply(ctx, &models.Envelope{
			EventID:    id,
			CustomerID: "cust-1",
			EventType:  models.EventTypeTelemetry,
			Timestamp:  aggTestTime.Add(-24 * time.Hour),
			Attributes: json.RawMessage(attrs),
		})
	}

	apply("t-1", `{"event_type": "error", "network_quality": 40, "buffer_events": 3}`)
	apply("t-2", `{"event_type": "view_stop", "network_quality": 80, "viewing_duration_seconds": 7200, "buffer_events": 1}`)

	features, ok := a.Vector(ctx, "cust-1")
	require.True(t, ok)

	assert.Equal(t, 1.0, features["stb_errors_30d"])
	assert.Equal(t, 60.0, features["avg_network_quality_30d"])
	assert.Equal(t, 4.0, features["total_buffer_events_30d"])
	assert.Equal(t, 2.0, features["total_viewing_hours_30d"])
}

func TestVectorNetworkQualityDefault(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()

	a.Apply(ctx, interactionEnvelope("int-1", aggTestTime.Add(-time.Hour), `{}`))

	features, ok := a.Vector(ctx, "cust-1")
	require.True(t, ok)

	// No telemetry observed means quality is assumed healthy, not zero.
	assert.Equal(t, 100.0, features["avg_network_quality_30d"])
	assert.Equal(t, float64(noActivityDays), features["days_since_last_web_activity"])
}

func TestVectorWebFeatures(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()

	apply := func(id, attrs string, age time.Duration) {
		a.Apply(ctx, &models.Envelope{
			EventID:    id,
			CustomerID: "cust-1",
			EventType:  models.EventTypeWebAnalytics,
			Timestamp:  aggTestTime.Add(-age),
			Attributes: json.RawMessage(attrs),
		})
	}

	apply("w-1", `{"session_id": "sess-1", "engagement_time_msec": 60000}`, 48*time.Hour)
	apply("w-2", `{"session_id": "sess-1", "engagement_time_msec": 120000}`, 47*time.Hour)
	apply("w-3", `{"session_id": "sess-2", "engagement_time_msec": 30000}`, 24*time.Hour)

	features, ok := a.Vector(ctx, "cust-1")
	require.True(t, ok)

	// Two distinct sessions despite three events.
	assert.Equal(t, 2.0, features["web_sessions_30d"])
	assert.Equal(t, 3.5, features["total_engagement_minutes_30d"])
	assert.Equal(t, 1.0, features["days_since_last_web_activity"])
}

func TestVectorBillingStanding(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()

	apply := func(id, attrs string, age time.Duration) {
		a.Apply(ctx, &models.Envelope{
			EventID:    id,
			CustomerID: "cust-1",
			EventType:  models.EventTypeBilling,
			Timestamp:  aggTestTime.Add(-age),
			Attributes: json.RawMessage(attrs),
		})
	}

	// Newest standing arrives first; the older event must not overwrite it.
	apply("b-2", `{"event_type": "payment_failed", "days_overdue": 30, "account_balance": 250.0}`, 24*time.Hour)
	apply("b-1", `{"event_type": "dispute_opened", "days_overdue": 10, "account_balance": 100.0}`, 48*time.Hour)

	features, ok := a.Vector(ctx, "cust-1")
	require.True(t, ok)

	assert.Equal(t, 1.0, features["payment_failures_90d"])
	assert.Equal(t, 1.0, features["disputes_90d"])
	assert.Equal(t, 30.0, features["days_overdue"])
	assert.Equal(t, 250.0, features["account_balance"])
}

func TestPruneDropsExpiredState(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()

	clock := aggTestTime
	a.now = func() time.Time { return clock }

	a.Apply(ctx, interactionEnvelope("int-old", aggTestTime.Add(-85*24*time.Hour), `{}`))

	s := a.state("cust-1")
	assert.Len(t, s.seen, 1)

	// Ten days later a new event advances the watermark far enough that
	// the old identity falls out of the dedup horizon.
	clock = aggTestTime.Add(10 * 24 * time.Hour)
	a.Apply(ctx, interactionEnvelope("int-new", clock.Add(-time.Hour), `{}`))
	assert.NotContains(t, s.seen, "int-old")
	assert.Contains(t, s.seen, "int-new")
}

func TestWindows(t *testing.T) {
	w := NewWindows([]int{90, 7, 30})

	require.Len(t, w, 3)
	assert.Equal(t, "7d", w[0].ID)
	assert.Equal(t, "90d", w[2].ID)
	assert.Equal(t, 90*24*time.Hour, w.Horizon())

	now := aggTestTime
	assert.True(t, w[0].Covers(now, now.Add(-3*24*time.Hour)))
	assert.False(t, w[0].Covers(now, now.Add(-10*24*time.Hour)))
	assert.False(t, w[0].Covers(now, now.Add(time.Hour)))
}

func TestEpochDayBucketing(t *testing.T) {
	s := newCustomerState()

	morning := time.Date(2024, 6, 15, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 6, 15, 23, 0, 0, 0, time.UTC)
	nextDay := time.Date(2024, 6, 16, 0, 30, 0, 0, time.UTC)

	assert.Same(t, s.bucket(morning), s.bucket(evening))
	assert.NotSame(t, s.bucket(morning), s.bucket(nextDay))
	assert.Len(t, s.buckets, 2)
}

func TestConcurrentApply(t *testing.T) {
	a := testAggregator()
	ctx := context.Background()

	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				a.Apply(ctx, interactionEnvelope(
					fmt.Sprintf("int-%d-%d", w, i),
					aggTestTime.Add(-time.Duration(i)*time.Hour),
					`{}`,
				))
			}
		}(w)
	}
	for w := 0; w < 4; w++ {
		<-done
	}

	features, ok := a.Vector(ctx, "cust-1")
	require.True(t, ok)
	assert.Equal(t, 200.0, features["interaction_count_90d"])
}
