package actions

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var (
	// ErrPendingActionExists means the customer already has an open
	// recommendation; a new one would violate the single-pending rule.
	ErrPendingActionExists = errors.New("customer already has a pending action")
	// ErrCooldownActive means the customer was actioned too recently.
	ErrCooldownActive = errors.New("customer is inside the action cooldown")
	// ErrActionNotFound means no action matches the given id.
	ErrActionNotFound = errors.New("action not found")
	// ErrActionTerminal means the action already reached a terminal
	// state and cannot transition again.
	ErrActionTerminal = errors.New("action is already in a terminal state")
	// ErrRateLimited means the system-wide action budget is exhausted.
	ErrRateLimited = errors.New("action rate limit exceeded")
)

// Repository is the persistence surface the engine needs. CreatePending
// must enforce the single-pending-per-customer rule at the storage
// layer and return ErrPendingActionExists on conflict.
type Repository interface {
	CreatePending(ctx context.Context, action *models.RetentionAction) error
	GetByID(ctx context.Context, actionID string) (*models.RetentionAction, error)
	GetLatestByCustomer(ctx context.Context, customerID string) (*models.RetentionAction, error)
	Transition(ctx context.Context, actionID, status string, executedAt *time.Time, actualOutcome *string) (*models.RetentionAction, error)
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CustomerSource resolves customer master records for the recommender.
type CustomerSource interface {
	GetByID(ctx context.Context, customerID string) (*models.Customer, error)
}

// Publisher emits action lifecycle events downstream.
type Publisher interface {
	PublishAction(ctx context.Context, action *models.RetentionAction) error
}

// Lock is a held per-customer critical-section lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serializes prediction handling per customer.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// RateLimiter bounds system-wide action creation.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redis.RateLimitResult, error)
}

// RedisLocker adapts the redis locker to the engine's Locker interface.
type RedisLocker struct {
	*redis.Locker
}

func (l RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.Locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func (l RedisLocker) TryAcquire(ctx context.Context, key string, ttl, timeout time.Duration) (Lock, error) {
	lock, err := l.Locker.TryAcquire(ctx, key, ttl, timeout)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Config holds the engine policy knobs.
type Config struct {
	// RiskThreshold is the minimum churn probability that triggers a
	// recommendation.
	RiskThreshold float64
	// Cooldown is the minimum gap between consecutive recommendations
	// for the same customer, measured from the previous recommendation.
	Cooldown time.Duration
	// TTL is how long a pending action stays open before the sweeper
	// expires it.
	TTL time.Duration
	// RateLimit / RateWindow bound how many actions the whole system
	// creates per window.
	RateLimit  int64
	RateWindow time.Duration
}

// Engine turns high-risk predictions into retention actions and drives
// action lifecycle transitions.
type Engine struct {
	repo      Repository
	customers CustomerSource
	locker    Locker
	limiter   RateLimiter
	publisher Publisher
	cfg       Config
	logger    ectologger.Logger

	now func() time.Time
}

// NewEngine creates an action engine.
func NewEngine(repo Repository, customers CustomerSource, locker Locker, limiter RateLimiter, publisher Publisher, cfg Config, logger ectologger.Logger) *Engine {
	return &Engine{
		repo:      repo,
		customers: customers,
		locker:    locker,
		limiter:   limiter,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// HandlePrediction evaluates a prediction and creates at most one
// pending action. Predictions below the risk threshold, customers with
// an open action, and customers inside the cooldown are all no-ops.
func (e *Engine) HandlePrediction(ctx context.Context, prediction *models.Prediction) (*models.RetentionAction, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.HandlePrediction")
	defer span.End()

	if prediction.ChurnProbability < e.cfg.RiskThreshold {
		return nil, nil
	}

	log := e.logger.WithContext(ctx).WithField("customer_id", prediction.CustomerID)

	// Per-customer critical section. The storage-layer unique constraint
	// is the real guarantee; the lock just keeps concurrent predictions
	// for the same customer from doing redundant work.
	lock, err := e.locker.Acquire(ctx, "action:"+prediction.CustomerID, 10*time.Second)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			log.Info("another worker is handling this customer, skipping")
			return nil, nil
		}
		return nil, err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redis.ErrLockNotHeld) {
			log.WithError(err).Warn("failed to release action lock")
		}
	}()

	latest, err := e.repo.GetLatestByCustomer(ctx, prediction.CustomerID)
	if err != nil && !errors.Is(err, ErrActionNotFound) {
		return nil, err
	}
	if latest != nil {
		if !latest.Terminal() {
			log.WithField("action_id", latest.ActionID).Info("pending action already open, skipping")
			return nil, nil
		}
		// Only executed actions start a cooldown; a rejected or expired
		// recommendation should not block a fresh attempt.
		if latest.Status == models.ActionStatusExecuted && e.now().Sub(latest.RecommendedAt) < e.cfg.Cooldown {
			log.WithField("action_id", latest.ActionID).Info("customer inside action cooldown, skipping")
			return nil, nil
		}
	}

	result, err := e.limiter.Allow(ctx, "actions", e.cfg.RateLimit, e.cfg.RateWindow)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		metrics.RecordRateLimitHit()
		log.WithField("retry_in", result.RetryIn.String()).Warn("action rate limit exhausted")
		return nil, ErrRateLimited
	}

	customer, err := e.customers.GetByID(ctx, prediction.CustomerID)
	if err != nil {
		return nil, err
	}

	candidates := Recommend(customer, prediction.ChurnProbability, prediction.RiskLevel)
	if len(candidates) == 0 {
		return nil, nil
	}
	top := candidates[0]

	action := &models.RetentionAction{
		ActionID:        uuid.NewString(),
		CustomerID:      prediction.CustomerID,
		ActionType:      top.ActionType,
		RecommendedAt:   e.now().UTC(),
		Status:          models.ActionStatusPending,
		OfferDetails:    top.OfferDetails,
		PredictedImpact: top.PredictedImpact,
	}

	if err := e.repo.CreatePending(ctx, action); err != nil {
		if errors.Is(err, ErrPendingActionExists) {
			// Raced with another creator; the invariant held, nothing to do.
			return nil, nil
		}
		return nil, err
	}

	metrics.RecordActionCreated(action.ActionType)
	log.WithFields(map[string]interface{}{
		"action_id":        action.ActionID,
		"action_type":      action.ActionType,
		"predicted_impact": action.PredictedImpact,
	}).Info("retention action created")

	if e.publisher != nil {
		if err := e.publisher.PublishAction(ctx, action); err != nil {
			log.WithError(err).Warn("failed to publish action event")
		}
	}

	return action, nil
}

// Resolve applies an externally-fulfilled terminal transition
// (executed or rejected) to a pending action.
func (e *Engine) Resolve(ctx context.Context, actionID string, req *models.ActionOutcomeRequest) (*models.RetentionAction, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.Resolve")
	defer span.End()

	action, err := e.repo.GetByID(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if action.Terminal() {
		return nil, ErrActionTerminal
	}

	var executedAt *time.Time
	if req.Status == models.ActionStatusExecuted {
		now := e.now().UTC()
		executedAt = &now
	}

	updated, err := e.repo.Transition(ctx, actionID, req.Status, executedAt, req.ActualOutcome)
	if err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"action_id":   actionID,
		"customer_id": updated.CustomerID,
		"status":      updated.Status,
	}).Info("retention action resolved")

	if e.publisher != nil {
		if err := e.publisher.PublishAction(ctx, updated); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("failed to publish action event")
		}
	}

	return updated, nil
}

// ExpireStale moves pending actions past their TTL to expired. Returns
// how many were expired.
func (e *Engine) ExpireStale(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.ExpireStale")
	defer span.End()

	cutoff := e.now().UTC().Add(-e.cfg.TTL)
	expired, err := e.repo.ExpireBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		e.logger.WithContext(ctx).WithField("count", expired).Info("expired stale pending actions")
	}
	return expired, nil
}
