package scorer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/featurestore"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var (
	// ErrFeatureUnavailable is returned when no feature snapshot exists
	// for the customer.
	ErrFeatureUnavailable = errors.New("feature snapshot unavailable for customer")
	// ErrNoActiveModel is returned when no model version is active.
	ErrNoActiveModel = errors.New("no active model registered")
	// ErrScoringTimeout is returned when the scoring deadline elapses.
	// No partial prediction is persisted in that case.
	ErrScoringTimeout = errors.New("scoring deadline exceeded")
)

// ModelSource resolves the currently active model metadata.
type ModelSource interface {
	GetActive(ctx context.Context) (*models.ModelMetadata, error)
}

// PredictionSink persists completed predictions.
type PredictionSink interface {
	Create(ctx context.Context, prediction *models.Prediction) error
}

// Thresholds maps a churn probability onto a risk tier.
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// Level returns the risk tier for a probability.
func (t Thresholds) Level(probability float64) string {
	switch {
	case probability >= t.Critical:
		return models.RiskLevelCritical
	case probability >= t.High:
		return models.RiskLevelHigh
	case probability >= t.Medium:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

type activeModel struct {
	metadata *models.ModelMetadata
	model    *LinearModel
}

// Scorer produces churn predictions from the online feature store and
// the active model version.
type Scorer struct {
	store      *featurestore.Store
	modelRepo  ModelSource
	sink       PredictionSink
	thresholds Thresholds
	deadline   time.Duration
	logger     ectologger.Logger

	mu     sync.RWMutex
	active *activeModel

	now func() time.Time
}

// New creates a Scorer. The active model is loaded lazily on the first
// score and refreshed through Refresh after activations.
func New(store *featurestore.Store, modelRepo ModelSource, sink PredictionSink, thresholds Thresholds, deadline time.Duration, logger ectologger.Logger) *Scorer {
	return &Scorer{
		store:      store,
		modelRepo:  modelRepo,
		sink:       sink,
		thresholds: thresholds,
		deadline:   deadline,
		logger:     logger,
		now:        time.Now,
	}
}

// Refresh reloads the active model from the registry. Call it after a
// model activation so in-flight scoring picks up the new version.
func (s *Scorer) Refresh(ctx context.Context) error {
	metadata, err := s.modelRepo.GetActive(ctx)
	if err != nil {
		return err
	}
	if metadata == nil {
		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
		return ErrNoActiveModel
	}

	model, err := ParseModel(metadata.Parameters)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.active = &activeModel{metadata: metadata, model: model}
	s.mu.Unlock()

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"model_id": metadata.ModelID,
		"version":  metadata.ModelVersion,
	}).Info("active model refreshed")
	return nil
}

func (s *Scorer) activeOrLoad(ctx context.Context) (*activeModel, error) {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()
	if active != nil {
		return active, nil
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	active = s.active
	s.mu.RUnlock()
	if active == nil {
		return nil, ErrNoActiveModel
	}
	return active, nil
}

// Score predicts churn probability for one customer over the given
// horizon. Stale features are used as-is with StaleFeatures set on the
// prediction. The whole call is bounded by the configured deadline.
func (s *Scorer) Score(ctx context.Context, customerID string, horizonDays int) (*models.Prediction, error) {
	ctx, span := tracing.StartSpan(ctx, "Scorer.Score")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	start := time.Now()

	prediction, err := s.score(ctx, customerID, horizonDays)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.RecordScoringTimeout()
			return nil, ErrScoringTimeout
		}
		return nil, err
	}

	// The deadline covers persistence too. A prediction that cannot be
	// stored before the deadline is dropped whole rather than returned
	// unrecorded.
	if err := s.sink.Create(ctx, prediction); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			metrics.RecordScoringTimeout()
			return nil, ErrScoringTimeout
		}
		return nil, err
	}

	metrics.RecordPrediction(prediction.RiskLevel, prediction.ModelVersion, time.Since(start).Seconds())

	return prediction, nil
}

func (s *Scorer) score(ctx context.Context, customerID string, horizonDays int) (*models.Prediction, error) {
	active, err := s.activeOrLoad(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.store.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, featurestore.ErrNotFound) {
			return nil, ErrFeatureUnavailable
		}
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	probability, factors := active.model.Score(result.Snapshot.Features)

	if len(factors) > 5 {
		factors = factors[:5]
	}

	prediction := &models.Prediction{
		PredictionID:        uuid.NewString(),
		CustomerID:          customerID,
		PredictionTimestamp: s.now().UTC(),
		ChurnProbability:    probability,
		RiskLevel:           s.thresholds.Level(probability),
		HorizonDays:         horizonDays,
		ModelVersion:        active.metadata.ModelVersion,
		TopRiskFactors:      factors,
		StaleFeatures:       result.Stale,
	}

	if result.Stale {
		s.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"customer_id": customerID,
			"computed_at": result.Snapshot.ComputedAt,
		}).Warn("scoring with stale feature snapshot")
	}

	return prediction, nil
}

// ScoreBatch scores multiple customers. Each customer is scored
// independently; a failure for one does not abort the rest.
func (s *Scorer) ScoreBatch(ctx context.Context, customerIDs []string, horizonDays int) ([]*models.Prediction, map[string]error) {
	ctx, span := tracing.StartSpan(ctx, "Scorer.ScoreBatch")
	defer span.End()

	predictions := make([]*models.Prediction, 0, len(customerIDs))
	failures := make(map[string]error)

	for _, customerID := range customerIDs {
		prediction, err := s.Score(ctx, customerID, horizonDays)
		if err != nil {
			failures[customerID] = err
			continue
		}
		predictions = append(predictions, prediction)
	}

	return predictions, failures
}
