// Package processor wires the pipeline stages together: normalize,
// gate, persist, aggregate, emit, score, act.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/actions"
	"github.com/Ramsey-B/clover/pkg/aggregator"
	"github.com/Ramsey-B/clover/pkg/featurestore"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizer"
	"github.com/Ramsey-B/clover/pkg/quality"
	"github.com/Ramsey-B/clover/pkg/scorer"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// FactStore persists the typed source facts append-only.
type FactStore interface {
	InsertServiceInteraction(ctx context.Context, fact *models.ServiceInteraction) error
	InsertTelemetry(ctx context.Context, fact *models.TelemetryEvent) error
	InsertWebEvent(ctx context.Context, fact *models.WebAnalyticsEvent) error
	InsertBilling(ctx context.Context, fact *models.BillingEvent) error
}

// SnapshotSink persists emitted snapshots durably alongside the online
// store.
type SnapshotSink interface {
	Upsert(ctx context.Context, snapshot *models.FeatureSnapshot) error
}

// Publisher emits prediction events downstream.
type Publisher interface {
	PublishPrediction(ctx context.Context, prediction *models.Prediction) error
}

// Config holds the processor knobs.
type Config struct {
	// SnapshotTTLSeconds is stamped on every emitted snapshot.
	SnapshotTTLSeconds int
	// HorizonDays is the prediction horizon used for pipeline-triggered
	// scoring.
	HorizonDays int
}

// Processor is the event pipeline orchestrator. One instance handles
// all four source streams.
type Processor struct {
	normalizer *normalizer.Normalizer
	aggregator *aggregator.Aggregator
	emitter    *aggregator.Emitter
	gate       *quality.Gate
	store      *featurestore.Store
	scorer     *scorer.Scorer
	engine     *actions.Engine
	facts      FactStore
	snapshots  SnapshotSink
	publisher  Publisher
	cfg        Config
	logger     ectologger.Logger
}

// New creates a Processor. emitter is attached afterwards through
// SetEmitter because the emitter's flush callback is the processor's
// own emit path.
func New(
	norm *normalizer.Normalizer,
	agg *aggregator.Aggregator,
	gate *quality.Gate,
	store *featurestore.Store,
	scr *scorer.Scorer,
	engine *actions.Engine,
	facts FactStore,
	snapshots SnapshotSink,
	publisher Publisher,
	cfg Config,
	logger ectologger.Logger,
) *Processor {
	return &Processor{
		normalizer: norm,
		aggregator: agg,
		gate:       gate,
		store:      store,
		scorer:     scr,
		engine:     engine,
		facts:      facts,
		snapshots:  snapshots,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetEmitter attaches the debounced emitter once it exists.
func (p *Processor) SetEmitter(emitter *aggregator.Emitter) {
	p.emitter = emitter
}

// HandleMessage is the Kafka consumer entry point. A nil return commits
// the offset; malformed events are counted and committed (retrying
// them cannot help), infrastructure failures are returned so the
// message redelivers.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Processor.HandleMessage")
	defer span.End()

	return p.process(ctx, models.EventType(msg.EventType), msg.Value)
}

// Ingest feeds one raw event through the pipeline. Used by the HTTP
// intake; the Kafka path goes through HandleMessage.
func (p *Processor) Ingest(ctx context.Context, eventType models.EventType, payload json.RawMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Processor.Ingest")
	defer span.End()

	return p.process(ctx, eventType, payload)
}

func (p *Processor) process(ctx context.Context, eventType models.EventType, payload json.RawMessage) error {
	source := models.SourceNames[eventType]
	log := p.logger.WithContext(ctx).WithField("source", source)

	if p.gate.Suspended(source) {
		customerID := peekCustomerID(payload)
		if err := p.gate.Quarantine(ctx, source, customerID, payload); err != nil {
			return err
		}
		metrics.RecordEventIngested(source, "quarantined")
		log.Debug("source suspended, event quarantined")
		return nil
	}

	env, err := p.normalizer.Normalize(ctx, eventType, payload)
	if err != nil {
		var malformed *normalizer.MalformedEventError
		var future *normalizer.FutureEventError
		if errors.As(err, &malformed) || errors.As(err, &future) {
			p.gate.RecordViolation(source)
			metrics.RecordEventIngested(source, "rejected")
			log.WithError(err).Warn("event rejected by normalizer")
			return nil
		}
		return err
	}

	p.gate.Observe(source, env.Timestamp)

	if err := p.persistFact(ctx, env); err != nil {
		return err
	}

	result := p.aggregator.Apply(ctx, env)
	if result.Duplicate {
		metrics.RecordEventIngested(source, "duplicate")
		log.WithField("event_id", env.EventID).Debug("duplicate event ignored")
		return nil
	}

	if p.emitter != nil {
		p.emitter.MarkDirty(env.CustomerID)
	}
	metrics.RecordEventIngested(source, "processed")
	return nil
}

func peekCustomerID(payload json.RawMessage) string {
	var peek struct {
		CustomerID string `json:"customer_id"`
	}
	_ = json.Unmarshal(payload, &peek)
	return peek.CustomerID
}

func (p *Processor) persistFact(ctx context.Context, env *models.Envelope) error {
	switch env.EventType {
	case models.EventTypeServiceInteraction:
		var fact models.ServiceInteraction
		if err := json.Unmarshal(env.Attributes, &fact); err != nil {
			return err
		}
		fact.InteractionID = env.EventID
		fact.Timestamp = env.Timestamp
		return p.facts.InsertServiceInteraction(ctx, &fact)
	case models.EventTypeTelemetry:
		var fact models.TelemetryEvent
		if err := json.Unmarshal(env.Attributes, &fact); err != nil {
			return err
		}
		fact.EventID = env.EventID
		fact.Timestamp = env.Timestamp
		return p.facts.InsertTelemetry(ctx, &fact)
	case models.EventTypeWebAnalytics:
		var fact models.WebAnalyticsEvent
		if err := json.Unmarshal(env.Attributes, &fact); err != nil {
			return err
		}
		fact.EventID = env.EventID
		fact.Timestamp = env.Timestamp
		return p.facts.InsertWebEvent(ctx, &fact)
	case models.EventTypeBilling:
		var fact models.BillingEvent
		if err := json.Unmarshal(env.Attributes, &fact); err != nil {
			return err
		}
		fact.EventID = env.EventID
		fact.Timestamp = env.Timestamp
		return p.facts.InsertBilling(ctx, &fact)
	}
	return nil
}

// EmitSnapshot is the emitter's flush callback: publish the recomputed
// vector to the online store, persist it durably, then run the scoring
// and action path.
func (p *Processor) EmitSnapshot(ctx context.Context, customerID string, vector models.FeatureVector, computedAt time.Time) {
	ctx, span := tracing.StartSpan(ctx, "Processor.EmitSnapshot")
	defer span.End()

	log := p.logger.WithContext(ctx).WithField("customer_id", customerID)

	snapshot := &models.FeatureSnapshot{
		CustomerID: customerID,
		Features:   vector,
		ComputedAt: computedAt,
		TTLSeconds: p.cfg.SnapshotTTLSeconds,
	}

	if !p.store.Put(ctx, snapshot) {
		log.Debug("snapshot superseded by newer computation")
		return
	}

	if err := p.snapshots.Upsert(ctx, snapshot); err != nil {
		log.WithError(err).Error("failed to persist feature snapshot")
	}
	metrics.RecordSnapshotEmitted()

	p.scoreAndAct(ctx, customerID)
}

func (p *Processor) scoreAndAct(ctx context.Context, customerID string) {
	log := p.logger.WithContext(ctx).WithField("customer_id", customerID)

	prediction, err := p.scorer.Score(ctx, customerID, p.cfg.HorizonDays)
	if err != nil {
		switch {
		case errors.Is(err, scorer.ErrNoActiveModel):
			log.Debug("no active model, skipping scoring")
		case errors.Is(err, scorer.ErrFeatureUnavailable):
			log.Debug("no feature snapshot, skipping scoring")
		default:
			log.WithError(err).Error("pipeline scoring failed")
		}
		return
	}

	if p.publisher != nil {
		if err := p.publisher.PublishPrediction(ctx, prediction); err != nil {
			log.WithError(err).Warn("failed to publish prediction event")
		}
	}

	if _, err := p.engine.HandlePrediction(ctx, prediction); err != nil {
		if errors.Is(err, actions.ErrRateLimited) {
			log.Warn("action skipped, rate limit exhausted")
			return
		}
		log.WithError(err).Error("action engine failed")
	}
}

// ReplayQuarantined feeds one quarantined payload back through the
// pipeline. Used as the gate's replay callback when a source resumes.
func (p *Processor) ReplayQuarantined(ctx context.Context, dataSource string, payload json.RawMessage) error {
	for eventType, name := range models.SourceNames {
		if name == dataSource {
			return p.process(ctx, eventType, payload)
		}
	}
	return errors.New("unknown data source: " + dataSource)
}
