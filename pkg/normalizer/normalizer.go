// Package normalizer reduces the four raw source shapes to the canonical
// event envelope. Validation only; nothing here mutates state.
package normalizer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config bounds the normalizer's clock policies.
type Config struct {
	// MaxFutureSkew is how far ahead of the intake clock an event
	// timestamp may be before it is rejected as a future event.
	MaxFutureSkew time.Duration

	// RetentionHorizon is the largest aggregation window span. Events
	// older than this are accepted but flagged late.
	RetentionHorizon time.Duration
}

// Normalizer validates raw events and produces canonical envelopes.
type Normalizer struct {
	config Config
	logger ectologger.Logger
	now    func() time.Time
}

// NewNormalizer creates a new Normalizer.
func NewNormalizer(config Config, logger ectologger.Logger) *Normalizer {
	return &Normalizer{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

var validChannels = map[string]bool{
	"phone": true, "chat": true, "email": true, "store": true,
}

var validTelemetryTypes = map[string]bool{
	models.TelemetryEventError:     true,
	models.TelemetryEventViewStart: true,
	models.TelemetryEventViewStop:  true,
	models.TelemetryEventHeartbeat: true,
}

var validBillingTypes = map[string]bool{
	models.BillingEventPaymentSuccess: true,
	models.BillingEventPaymentFailed:  true,
	models.BillingEventDisputeOpened:  true,
	models.BillingEventInvoiceIssued:  true,
}

// Normalize validates a raw payload of the given source type and returns
// the canonical envelope. Malformed payloads return MalformedEventError;
// timestamps beyond the skew bound return FutureEventError.
func (n *Normalizer) Normalize(ctx context.Context, eventType models.EventType, payload json.RawMessage) (*models.Envelope, error) {
	_, span := tracing.StartSpan(ctx, "normalizer.Normalize")
	defer span.End()

	switch eventType {
	case models.EventTypeServiceInteraction:
		return n.normalizeServiceInteraction(payload)
	case models.EventTypeTelemetry:
		return n.normalizeTelemetry(payload)
	case models.EventTypeWebAnalytics:
		return n.normalizeWebAnalytics(payload)
	case models.EventTypeBilling:
		return n.normalizeBilling(payload)
	default:
		return nil, &MalformedEventError{Field: "event_type", Reason: "is not a known source type"}
	}
}

func (n *Normalizer) normalizeServiceInteraction(payload json.RawMessage) (*models.Envelope, error) {
	var raw struct {
		InteractionID string `json:"interaction_id"`
		CustomerID    string `json:"customer_id"`
		Timestamp     string `json:"timestamp"`
		Channel       string `json:"channel"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &MalformedEventError{Field: "payload", Reason: "is not valid JSON"}
	}
	if raw.CustomerID == "" {
		return nil, &MalformedEventError{Field: "customer_id", Reason: "is required"}
	}
	if !validChannels[raw.Channel] {
		return nil, &MalformedEventError{Field: "channel", Reason: "is not a known channel"}
	}

	ts, err := n.checkTimestamp(raw.Timestamp)
	if err != nil {
		return nil, err
	}

	return n.envelope(raw.InteractionID, raw.CustomerID, models.EventTypeServiceInteraction, ts, payload), nil
}

func (n *Normalizer) normalizeTelemetry(payload json.RawMessage) (*models.Envelope, error) {
	var raw struct {
		EventID    string `json:"event_id"`
		DeviceID   string `json:"device_id"`
		CustomerID string `json:"customer_id"`
		Timestamp  string `json:"timestamp"`
		EventType  string `json:"event_type"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &MalformedEventError{Field: "payload", Reason: "is not valid JSON"}
	}
	if raw.CustomerID == "" {
		return nil, &MalformedEventError{Field: "customer_id", Reason: "is required"}
	}
	if raw.DeviceID == "" {
		return nil, &MalformedEventError{Field: "device_id", Reason: "is required"}
	}
	if !validTelemetryTypes[raw.EventType] {
		return nil, &MalformedEventError{Field: "event_type", Reason: "is not a known telemetry event type"}
	}

	ts, err := n.checkTimestamp(raw.Timestamp)
	if err != nil {
		return nil, err
	}

	return n.envelope(raw.EventID, raw.CustomerID, models.EventTypeTelemetry, ts, payload), nil
}

func (n *Normalizer) normalizeWebAnalytics(payload json.RawMessage) (*models.Envelope, error) {
	var raw struct {
		EventID    string `json:"event_id"`
		CustomerID string `json:"customer_id"`
		SessionID  string `json:"session_id"`
		Timestamp  string `json:"timestamp"`
		EventName  string `json:"event_name"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &MalformedEventError{Field: "payload", Reason: "is not valid JSON"}
	}
	if raw.CustomerID == "" {
		return nil, &MalformedEventError{Field: "customer_id", Reason: "is required"}
	}
	if raw.SessionID == "" {
		return nil, &MalformedEventError{Field: "session_id", Reason: "is required"}
	}
	if raw.EventName == "" {
		return nil, &MalformedEventError{Field: "event_name", Reason: "is required"}
	}

	ts, err := n.checkTimestamp(raw.Timestamp)
	if err != nil {
		return nil, err
	}

	return n.envelope(raw.EventID, raw.CustomerID, models.EventTypeWebAnalytics, ts, payload), nil
}

func (n *Normalizer) normalizeBilling(payload json.RawMessage) (*models.Envelope, error) {
	var raw struct {
		EventID       string `json:"event_id"`
		CustomerID    string `json:"customer_id"`
		Timestamp     string `json:"timestamp"`
		EventType     string `json:"event_type"`
		TransactionID string `json:"transaction_id"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &MalformedEventError{Field: "payload", Reason: "is not valid JSON"}
	}
	if raw.CustomerID == "" {
		return nil, &MalformedEventError{Field: "customer_id", Reason: "is required"}
	}
	if raw.TransactionID == "" {
		return nil, &MalformedEventError{Field: "transaction_id", Reason: "is required"}
	}
	if !validBillingTypes[raw.EventType] {
		return nil, &MalformedEventError{Field: "event_type", Reason: "is not a known billing event type"}
	}

	ts, err := n.checkTimestamp(raw.Timestamp)
	if err != nil {
		return nil, err
	}

	// The transaction id is the natural dedup identity for billing events
	id := raw.EventID
	if id == "" {
		id = raw.TransactionID
	}

	return n.envelope(id, raw.CustomerID, models.EventTypeBilling, ts, payload), nil
}

func (n *Normalizer) checkTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &MalformedEventError{Field: "timestamp", Reason: "is required"}
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &MalformedEventError{Field: "timestamp", Reason: "is not RFC3339"}
	}

	now := n.now().UTC()
	if skew := ts.Sub(now); skew > n.config.MaxFutureSkew {
		return time.Time{}, &FutureEventError{Field: "timestamp", Skew: skew.Round(time.Second).String()}
	}

	return ts.UTC(), nil
}

func (n *Normalizer) envelope(id, customerID string, eventType models.EventType, ts time.Time, payload json.RawMessage) *models.Envelope {
	if id == "" {
		id = uuid.New().String()
	}

	env := &models.Envelope{
		EventID:    id,
		CustomerID: customerID,
		EventType:  eventType,
		Timestamp:  ts,
		Attributes: payload,
	}

	if n.now().UTC().Sub(ts) > n.config.RetentionHorizon {
		env.Late = true
	}

	return env
}
