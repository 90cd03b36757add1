package normalizer

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

var testTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testNormalizer() *Normalizer {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	n := NewNormalizer(Config{
		MaxFutureSkew:    5 * time.Minute,
		RetentionHorizon: 90 * 24 * time.Hour,
	}, logger)
	n.now = func() time.Time { return testTime }
	return n
}

func interactionPayload(overrides map[string]any) json.RawMessage {
	payload := map[string]any{
		"interaction_id": "int-1",
		"customer_id":    "cust-1",
		"timestamp":      testTime.Add(-time.Hour).Format(time.RFC3339),
		"channel":        "phone",
	}
	for k, v := range overrides {
		if v == nil {
			delete(payload, k)
			continue
		}
		payload[k] = v
	}
	b, _ := json.Marshal(payload)
	return b
}

func TestNormalizeServiceInteraction(t *testing.T) {
	n := testNormalizer()

	env, err := n.Normalize(context.Background(), models.EventTypeServiceInteraction, interactionPayload(nil))
	require.NoError(t, err)

	assert.Equal(t, "int-1", env.EventID)
	assert.Equal(t, "cust-1", env.CustomerID)
	assert.Equal(t, models.EventTypeServiceInteraction, env.EventType)
	assert.Equal(t, testTime.Add(-time.Hour), env.Timestamp)
	assert.False(t, env.Late)
}

func TestNormalizeServiceInteractionMalformed(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name    string
		payload json.RawMessage
		field   string
	}{
		{"invalid json", json.RawMessage(`{not json`), "payload"},
		{"missing customer id", interactionPayload(map[string]any{"customer_id": nil}), "customer_id"},
		{"unknown channel", interactionPayload(map[string]any{"channel": "carrier_pigeon"}), "channel"},
		{"missing timestamp", interactionPayload(map[string]any{"timestamp": nil}), "timestamp"},
		{"non rfc3339 timestamp", interactionPayload(map[string]any{"timestamp": "06/15/2024 12:00"}), "timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(context.Background(), models.EventTypeServiceInteraction, tt.payload)
			require.Error(t, err)

			var malformed *MalformedEventError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestNormalizeFutureEvent(t *testing.T) {
	n := testNormalizer()

	payload := interactionPayload(map[string]any{
		"timestamp": testTime.Add(10 * time.Minute).Format(time.RFC3339),
	})
	_, err := n.Normalize(context.Background(), models.EventTypeServiceInteraction, payload)
	require.Error(t, err)

	var future *FutureEventError
	require.ErrorAs(t, err, &future)
	assert.Equal(t, "timestamp", future.Field)
}

func TestNormalizeFutureEventWithinSkew(t *testing.T) {
	n := testNormalizer()

	payload := interactionPayload(map[string]any{
		"timestamp": testTime.Add(2 * time.Minute).Format(time.RFC3339),
	})
	env, err := n.Normalize(context.Background(), models.EventTypeServiceInteraction, payload)
	require.NoError(t, err)
	assert.Equal(t, testTime.Add(2*time.Minute), env.Timestamp)
}

func TestNormalizeLateEvent(t *testing.T) {
	n := testNormalizer()

	payload := interactionPayload(map[string]any{
		"timestamp": testTime.Add(-100 * 24 * time.Hour).Format(time.RFC3339),
	})
	env, err := n.Normalize(context.Background(), models.EventTypeServiceInteraction, payload)
	require.NoError(t, err)
	assert.True(t, env.Late)
}

func TestNormalizeTelemetry(t *testing.T) {
	n := testNormalizer()

	payload := json.RawMessage(fmt.Sprintf(`{
		"event_id": "evt-1",
		"device_id": "stb-9",
		"customer_id": "cust-1",
		"timestamp": %q,
		"event_type": "error"
	}`, testTime.Add(-time.Hour).Format(time.RFC3339)))

	env, err := n.Normalize(context.Background(), models.EventTypeTelemetry, payload)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", env.EventID)
	assert.Equal(t, models.EventTypeTelemetry, env.EventType)
}

func TestNormalizeTelemetryMalformed(t *testing.T) {
	n := testNormalizer()
	ts := testTime.Add(-time.Hour).Format(time.RFC3339)

	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{
			"missing device id",
			fmt.Sprintf(`{"event_id": "e", "customer_id": "c", "timestamp": %q, "event_type": "error"}`, ts),
			"device_id",
		},
		{
			"unknown event type",
			fmt.Sprintf(`{"event_id": "e", "device_id": "d", "customer_id": "c", "timestamp": %q, "event_type": "reboot"}`, ts),
			"event_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(context.Background(), models.EventTypeTelemetry, json.RawMessage(tt.payload))
			require.Error(t, err)

			var malformed *MalformedEventError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestNormalizeWebAnalytics(t *testing.T) {
	n := testNormalizer()
	ts := testTime.Add(-time.Hour).Format(time.RFC3339)

	payload := json.RawMessage(fmt.Sprintf(`{
		"event_id": "evt-2",
		"customer_id": "cust-1",
		"session_id": "sess-1",
		"timestamp": %q,
		"event_name": "page_view"
	}`, ts))

	env, err := n.Normalize(context.Background(), models.EventTypeWebAnalytics, payload)
	require.NoError(t, err)
	assert.Equal(t, "evt-2", env.EventID)

	_, err = n.Normalize(context.Background(), models.EventTypeWebAnalytics,
		json.RawMessage(fmt.Sprintf(`{"event_id": "e", "customer_id": "c", "timestamp": %q, "event_name": "page_view"}`, ts)))
	var malformed *MalformedEventError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "session_id", malformed.Field)

	_, err = n.Normalize(context.Background(), models.EventTypeWebAnalytics,
		json.RawMessage(fmt.Sprintf(`{"event_id": "e", "customer_id": "c", "session_id": "s", "timestamp": %q}`, ts)))
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "event_name", malformed.Field)
}

func TestNormalizeBilling(t *testing.T) {
	n := testNormalizer()
	ts := testTime.Add(-time.Hour).Format(time.RFC3339)

	payload := json.RawMessage(fmt.Sprintf(`{
		"customer_id": "cust-1",
		"timestamp": %q,
		"event_type": "payment_failed",
		"transaction_id": "txn-77"
	}`, ts))

	env, err := n.Normalize(context.Background(), models.EventTypeBilling, payload)
	require.NoError(t, err)

	// Without an explicit event id the transaction id is the identity.
	assert.Equal(t, "txn-77", env.EventID)
}

func TestNormalizeBillingMalformed(t *testing.T) {
	n := testNormalizer()
	ts := testTime.Add(-time.Hour).Format(time.RFC3339)

	_, err := n.Normalize(context.Background(), models.EventTypeBilling,
		json.RawMessage(fmt.Sprintf(`{"customer_id": "c", "timestamp": %q, "event_type": "payment_failed"}`, ts)))
	var malformed *MalformedEventError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "transaction_id", malformed.Field)

	_, err = n.Normalize(context.Background(), models.EventTypeBilling,
		json.RawMessage(fmt.Sprintf(`{"customer_id": "c", "timestamp": %q, "event_type": "refund", "transaction_id": "t"}`, ts)))
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "event_type", malformed.Field)
}

func TestNormalizeUnknownSource(t *testing.T) {
	n := testNormalizer()

	_, err := n.Normalize(context.Background(), models.EventType("carrier_pigeon"), json.RawMessage(`{}`))
	var malformed *MalformedEventError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "event_type", malformed.Field)
}

func TestNormalizeAssignsEventID(t *testing.T) {
	n := testNormalizer()

	payload := interactionPayload(map[string]any{"interaction_id": nil})
	env, err := n.Normalize(context.Background(), models.EventTypeServiceInteraction, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
}
