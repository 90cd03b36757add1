package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/aggregator"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ServiceInteractionRepo is the fact table surface for service
// interactions.
type ServiceInteractionRepo interface {
	Insert(ctx context.Context, fact *models.ServiceInteraction) error
	ListSince(ctx context.Context, since time.Time) ([]models.ServiceInteraction, error)
}

// TelemetryRepo is the fact table surface for set-top box telemetry.
type TelemetryRepo interface {
	Insert(ctx context.Context, fact *models.TelemetryEvent) error
	ListSince(ctx context.Context, since time.Time) ([]models.TelemetryEvent, error)
}

// WebEventRepo is the fact table surface for web analytics.
type WebEventRepo interface {
	Insert(ctx context.Context, fact *models.WebAnalyticsEvent) error
	ListSince(ctx context.Context, since time.Time) ([]models.WebAnalyticsEvent, error)
}

// BillingRepo is the fact table surface for billing events.
type BillingRepo interface {
	Insert(ctx context.Context, fact *models.BillingEvent) error
	ListSince(ctx context.Context, since time.Time) ([]models.BillingEvent, error)
}

// Facts bundles the four fact repositories behind the FactStore
// interface and drives startup hydration.
type Facts struct {
	ServiceInteractions ServiceInteractionRepo
	Telemetry           TelemetryRepo
	WebEvents           WebEventRepo
	Billing             BillingRepo
}

func (f *Facts) InsertServiceInteraction(ctx context.Context, fact *models.ServiceInteraction) error {
	return f.ServiceInteractions.Insert(ctx, fact)
}

func (f *Facts) InsertTelemetry(ctx context.Context, fact *models.TelemetryEvent) error {
	return f.Telemetry.Insert(ctx, fact)
}

func (f *Facts) InsertWebEvent(ctx context.Context, fact *models.WebAnalyticsEvent) error {
	return f.WebEvents.Insert(ctx, fact)
}

func (f *Facts) InsertBilling(ctx context.Context, fact *models.BillingEvent) error {
	return f.Billing.Insert(ctx, fact)
}

// Hydrate rebuilds aggregation state from the fact tables after a
// restart. Events replay oldest-first so watermarks land where they
// were; nothing is emitted because the snapshots are already durable.
func Hydrate(ctx context.Context, facts *Facts, agg *aggregator.Aggregator, logger ectologger.Logger) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Hydrate")
	defer span.End()

	since := time.Now().UTC().Add(-agg.Horizon())
	total := 0

	interactions, err := facts.ServiceInteractions.ListSince(ctx, since)
	if err != nil {
		return err
	}
	for i := range interactions {
		fact := &interactions[i]
		agg.Apply(ctx, envelopeFor(fact.InteractionID, fact.CustomerID, models.EventTypeServiceInteraction, fact.Timestamp, fact))
		total++
	}

	telemetry, err := facts.Telemetry.ListSince(ctx, since)
	if err != nil {
		return err
	}
	for i := range telemetry {
		fact := &telemetry[i]
		agg.Apply(ctx, envelopeFor(fact.EventID, fact.CustomerID, models.EventTypeTelemetry, fact.Timestamp, fact))
		total++
	}

	webEvents, err := facts.WebEvents.ListSince(ctx, since)
	if err != nil {
		return err
	}
	for i := range webEvents {
		fact := &webEvents[i]
		agg.Apply(ctx, envelopeFor(fact.EventID, fact.CustomerID, models.EventTypeWebAnalytics, fact.Timestamp, fact))
		total++
	}

	billing, err := facts.Billing.ListSince(ctx, since)
	if err != nil {
		return err
	}
	for i := range billing {
		fact := &billing[i]
		agg.Apply(ctx, envelopeFor(fact.EventID, fact.CustomerID, models.EventTypeBilling, fact.Timestamp, fact))
		total++
	}

	logger.WithContext(ctx).WithField("events", total).Info("aggregation state hydrated from fact tables")
	return nil
}

func envelopeFor(id, customerID string, eventType models.EventType, ts time.Time, fact any) *models.Envelope {
	attrs, _ := json.Marshal(fact)
	return &models.Envelope{
		EventID:    id,
		CustomerID: customerID,
		EventType:  eventType,
		Timestamp:  ts,
		Attributes: attrs,
	}
}
