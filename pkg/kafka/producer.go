package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Producer emits prediction and action lifecycle events downstream.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PredictionEvent is the downstream notification for a new prediction.
type PredictionEvent struct {
	EventType        string              `json:"event_type"` // prediction.created
	CustomerID       string              `json:"customer_id"`
	PredictionID     string              `json:"prediction_id"`
	ChurnProbability float64             `json:"churn_probability"`
	RiskLevel        string              `json:"risk_level"`
	ModelVersion     string              `json:"model_version"`
	StaleFeatures    bool                `json:"stale_features"`
	TopRiskFactors   []models.RiskFactor `json:"top_risk_factors,omitempty"`
	Timestamp        time.Time           `json:"timestamp"`
}

// ActionEvent is the downstream notification for an action lifecycle
// transition (created, executed, rejected, expired).
type ActionEvent struct {
	EventType       string          `json:"event_type"`
	CustomerID      string          `json:"customer_id"`
	ActionID        string          `json:"action_id"`
	ActionType      string          `json:"action_type"`
	Status          string          `json:"status"`
	PredictedImpact float64         `json:"predicted_impact"`
	OfferDetails    json.RawMessage `json:"offer_details,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// PublishPrediction publishes a prediction.created event, keyed by
// customer so one customer's events stay ordered.
func (p *Producer) PublishPrediction(ctx context.Context, prediction *models.Prediction) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishPrediction")
	defer span.End()

	event := &PredictionEvent{
		EventType:        "prediction.created",
		CustomerID:       prediction.CustomerID,
		PredictionID:     prediction.PredictionID,
		ChurnProbability: prediction.ChurnProbability,
		RiskLevel:        prediction.RiskLevel,
		ModelVersion:     prediction.ModelVersion,
		StaleFeatures:    prediction.StaleFeatures,
		TopRiskFactors:   prediction.TopRiskFactors,
		Timestamp:        time.Now().UTC(),
	}

	return p.publish(ctx, event.CustomerID, event.EventType, event)
}

// PublishAction publishes an action lifecycle event. The event type is
// derived from the action's current status.
func (p *Producer) PublishAction(ctx context.Context, action *models.RetentionAction) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishAction")
	defer span.End()

	eventType := "action.created"
	switch action.Status {
	case models.ActionStatusExecuted:
		eventType = "action.executed"
	case models.ActionStatusRejected:
		eventType = "action.rejected"
	case models.ActionStatusExpired:
		eventType = "action.expired"
	}

	event := &ActionEvent{
		EventType:       eventType,
		CustomerID:      action.CustomerID,
		ActionID:        action.ActionID,
		ActionType:      action.ActionType,
		Status:          action.Status,
		PredictedImpact: action.PredictedImpact,
		OfferDetails:    action.OfferDetails,
		Timestamp:       time.Now().UTC(),
	}

	return p.publish(ctx, event.CustomerID, event.EventType, event)
}

func (p *Producer) publish(ctx context.Context, key, eventType string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "schema_version", Value: []byte("1.0")},
		},
	}

	if traceParent := tracing.GetTraceParent(ctx); traceParent != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "traceparent", Value: []byte(traceParent)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
		}).Error("Failed to publish event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  eventType,
		"customer_id": key,
	}).Debug("Published event")

	return nil
}
