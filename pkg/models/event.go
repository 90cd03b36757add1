package models

import (
	"encoding/json"
	"time"
)

// EventType identifies which source stream an event came from
type EventType string

const (
	EventTypeServiceInteraction EventType = "service_interaction"
	EventTypeTelemetry          EventType = "stb_telemetry"
	EventTypeWebAnalytics       EventType = "web_analytics"
	EventTypeBilling            EventType = "billing"
)

// SourceTopics maps event types to their data source names used by the
// quality gate and quarantine store.
var SourceNames = map[EventType]string{
	EventTypeServiceInteraction: "customer_service",
	EventTypeTelemetry:          "stb_telemetry",
	EventTypeWebAnalytics:       "web_analytics",
	EventTypeBilling:            "billing",
}

// Envelope is the canonical normalized event. Every raw shape is reduced
// to this before it touches the aggregator.
type Envelope struct {
	EventID    string          `json:"event_id"`
	CustomerID string          `json:"customer_id"`
	EventType  EventType       `json:"event_type"`
	Timestamp  time.Time       `json:"timestamp"`
	Attributes json.RawMessage `json:"attributes"`

	// Late is set when the event timestamp predates the aggregator's
	// retention horizon at normalization time.
	Late bool `json:"late,omitempty"`
}

// ServiceInteraction is a customer service call-center interaction fact.
type ServiceInteraction struct {
	InteractionID    string    `json:"interaction_id" db:"interaction_id"`
	CustomerID       string    `json:"customer_id" db:"customer_id"`
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
	Channel          string    `json:"channel" db:"channel"`
	DurationSeconds  *int      `json:"duration_seconds,omitempty" db:"duration_seconds"`
	ReasonCategory   *string   `json:"reason_category,omitempty" db:"reason_category"`
	ResolutionStatus *string   `json:"resolution_status,omitempty" db:"resolution_status"`
	AgentID          *string   `json:"agent_id,omitempty" db:"agent_id"`
	SentimentScore   *float64  `json:"sentiment_score,omitempty" db:"sentiment_score"`
	TransferCount    int       `json:"transfer_count" db:"transfer_count"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// TelemetryEvent is a set-top box telemetry fact.
type TelemetryEvent struct {
	EventID                string    `json:"event_id" db:"event_id"`
	DeviceID               string    `json:"device_id" db:"device_id"`
	CustomerID             string    `json:"customer_id" db:"customer_id"`
	Timestamp              time.Time `json:"timestamp" db:"timestamp"`
	EventType              string    `json:"event_type" db:"event_type"`
	ChannelID              *string   `json:"channel_id,omitempty" db:"channel_id"`
	ContentID              *string   `json:"content_id,omitempty" db:"content_id"`
	ViewingDurationSeconds *int      `json:"viewing_duration_seconds,omitempty" db:"viewing_duration_seconds"`
	ErrorCode              *string   `json:"error_code,omitempty" db:"error_code"`
	BufferEvents           int       `json:"buffer_events" db:"buffer_events"`
	NetworkQuality         *float64  `json:"network_quality,omitempty" db:"network_quality"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}

// WebAnalyticsEvent is a web/mobile app analytics fact.
type WebAnalyticsEvent struct {
	EventID            string    `json:"event_id" db:"event_id"`
	CustomerID         string    `json:"customer_id" db:"customer_id"`
	SessionID          string    `json:"session_id" db:"session_id"`
	Timestamp          time.Time `json:"timestamp" db:"timestamp"`
	EventName          string    `json:"event_name" db:"event_name"`
	PageURL            *string   `json:"page_url,omitempty" db:"page_url"`
	DeviceCategory     *string   `json:"device_category,omitempty" db:"device_category"`
	AppVersion         *string   `json:"app_version,omitempty" db:"app_version"`
	EngagementTimeMsec *int      `json:"engagement_time_msec,omitempty" db:"engagement_time_msec"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// BillingEvent is a billing/payment fact.
type BillingEvent struct {
	EventID         string    `json:"event_id" db:"event_id"`
	EventType       string    `json:"event_type" db:"event_type"`
	CustomerID      string    `json:"customer_id" db:"customer_id"`
	Timestamp       time.Time `json:"timestamp" db:"timestamp"`
	TransactionID   string    `json:"transaction_id" db:"transaction_id"`
	Amount          *float64  `json:"amount,omitempty" db:"amount"`
	PaymentMethod   *string   `json:"payment_method,omitempty" db:"payment_method"`
	BillingCycleDay *int      `json:"billing_cycle_day,omitempty" db:"billing_cycle_day"`
	AccountBalance  *float64  `json:"account_balance,omitempty" db:"account_balance"`
	DaysOverdue     int       `json:"days_overdue" db:"days_overdue"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// BillingEventType constants for the billing discriminator
const (
	BillingEventPaymentSuccess = "payment_success"
	BillingEventPaymentFailed  = "payment_failed"
	BillingEventDisputeOpened  = "dispute_opened"
	BillingEventInvoiceIssued  = "invoice_issued"
)

// TelemetryEventType constants for the telemetry discriminator
const (
	TelemetryEventError     = "error"
	TelemetryEventViewStart = "view_start"
	TelemetryEventViewStop  = "view_stop"
	TelemetryEventHeartbeat = "heartbeat"
)
