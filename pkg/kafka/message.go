package kafka

import (
	"time"
)

// IncomingMessage wraps a raw Kafka message with parsed headers and the
// source event type derived from the topic it arrived on.
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// EventType is the canonical source name for the topic this message
	// came from (service_interaction, stb_telemetry, web_analytics,
	// billing).
	EventType string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string
}

// GetCustomerID returns the partition key, which upstream producers set
// to the customer identifier so one customer's events stay ordered.
func (m *IncomingMessage) GetCustomerID() string {
	return m.Key
}
