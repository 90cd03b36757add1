package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
)

var engineTestTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeActionRepo struct {
	actions map[string]*models.RetentionAction

	transitioned  []string
	expireCutoff  time.Time
	expireCount   int64
	createErr     error
	transitionErr error
}

func newFakeActionRepo() *fakeActionRepo {
	return &fakeActionRepo{actions: make(map[string]*models.RetentionAction)}
}

func (r *fakeActionRepo) CreatePending(_ context.Context, action *models.RetentionAction) error {
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.actions {
		if existing.CustomerID == action.CustomerID && !existing.Terminal() {
			return ErrPendingActionExists
		}
	}
	r.actions[action.ActionID] = action
	return nil
}

func (r *fakeActionRepo) GetByID(_ context.Context, actionID string) (*models.RetentionAction, error) {
	action, ok := r.actions[actionID]
	if !ok {
		return nil, ErrActionNotFound
	}
	return action, nil
}

func (r *fakeActionRepo) GetLatestByCustomer(_ context.Context, customerID string) (*models.RetentionAction, error) {
	var latest *models.RetentionAction
	for _, action := range r.actions {
		if action.CustomerID != customerID {
			continue
		}
		if latest == nil || action.RecommendedAt.After(latest.RecommendedAt) {
			latest = action
		}
	}
	if latest == nil {
		return nil, ErrActionNotFound
	}
	return latest, nil
}

func (r *fakeActionRepo) Transition(_ context.Context, actionID, status string, executedAt *time.Time, actualOutcome *string) (*models.RetentionAction, error) {
	if r.transitionErr != nil {
		return nil, r.transitionErr
	}
	action, ok := r.actions[actionID]
	if !ok {
		return nil, ErrActionNotFound
	}
	action.Status = status
	action.ExecutedAt = executedAt
	action.ActualOutcome = actualOutcome
	r.transitioned = append(r.transitioned, actionID)
	return action, nil
}

func (r *fakeActionRepo) ExpireBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.expireCutoff = cutoff
	return r.expireCount, nil
}

type fakeActionPublisher struct {
	published []*models.RetentionAction
	err       error
}

func (p *fakeActionPublisher) PublishAction(_ context.Context, action *models.RetentionAction) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, action)
	return nil
}

type fakeLock struct {
	released int
}

func (l *fakeLock) Release(_ context.Context) error {
	l.released++
	return nil
}

type fakeLocker struct {
	keys []string
	lock *fakeLock
	err  error
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (Lock, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	if l.lock == nil {
		l.lock = &fakeLock{}
	}
	return l.lock, nil
}

type fakeLimiter struct {
	calls   int
	denied  bool
	retryIn time.Duration
	err     error
}

func (l *fakeLimiter) Allow(_ context.Context, _ string, limit int64, _ time.Duration) (*redis.RateLimitResult, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return &redis.RateLimitResult{
		Allowed:   !l.denied,
		Remaining: limit - int64(l.calls),
		RetryIn:   l.retryIn,
	}, nil
}

type fakeCustomerSource struct {
	customers map[string]*models.Customer
	err       error
}

func (s *fakeCustomerSource) GetByID(_ context.Context, customerID string) (*models.Customer, error) {
	if s.err != nil {
		return nil, s.err
	}
	customer, ok := s.customers[customerID]
	if !ok {
		return nil, errors.New("customer not found")
	}
	return customer, nil
}

type engineFakes struct {
	repo      *fakeActionRepo
	customers *fakeCustomerSource
	locker    *fakeLocker
	limiter   *fakeLimiter
	publisher *fakeActionPublisher
}

func newEngineFakes() *engineFakes {
	mrr := 120.0
	return &engineFakes{
		repo: newFakeActionRepo(),
		customers: &fakeCustomerSource{customers: map[string]*models.Customer{
			"cust-1": {
				CustomerID:              "cust-1",
				CustomerSegment:         models.CustomerSegmentEnterprise,
				MonthlyRecurringRevenue: &mrr,
			},
		}},
		locker:    &fakeLocker{},
		limiter:   &fakeLimiter{},
		publisher: &fakeActionPublisher{},
	}
}

func (f *engineFakes) engine() *Engine {
	e := NewEngine(f.repo, f.customers, f.locker, f.limiter, f.publisher, Config{
		RiskThreshold: 0.6,
		Cooldown:      7 * 24 * time.Hour,
		TTL:           72 * time.Hour,
		RateLimit:     100,
		RateWindow:    time.Hour,
	}, testLogger())
	e.now = func() time.Time { return engineTestTime }
	return e
}

func testEngine(repo Repository, publisher Publisher) *Engine {
	f := newEngineFakes()
	e := f.engine()
	e.repo = repo
	e.publisher = publisher
	return e
}

func pendingAction(actionID, customerID string) *models.RetentionAction {
	return &models.RetentionAction{
		ActionID:      actionID,
		CustomerID:    customerID,
		ActionType:    models.ActionTypeDiscount,
		RecommendedAt: engineTestTime.Add(-time.Hour),
		Status:        models.ActionStatusPending,
	}
}

func TestHandlePredictionBelowThreshold(t *testing.T) {
	repo := newFakeActionRepo()
	e := testEngine(repo, &fakeActionPublisher{})

	action, err := e.HandlePrediction(context.Background(), &models.Prediction{
		CustomerID:       "cust-1",
		ChurnProbability: 0.4,
		RiskLevel:        models.RiskLevelMedium,
	})
	require.NoError(t, err)
	assert.Nil(t, action)
	assert.Empty(t, repo.actions)
}

func TestHandlePredictionCreatesAction(t *testing.T) {
	f := newEngineFakes()
	e := f.engine()

	action, err := e.HandlePrediction(context.Background(), &models.Prediction{
		CustomerID:       "cust-1",
		ChurnProbability: 0.9,
		RiskLevel:        models.RiskLevelHigh,
	})
	require.NoError(t, err)
	require.NotNil(t, action)

	assert.Equal(t, "cust-1", action.CustomerID)
	assert.Equal(t, models.ActionStatusPending, action.Status)
	assert.Equal(t, engineTestTime, action.RecommendedAt)
	assert.NotEmpty(t, action.ActionID)
	assert.Greater(t, action.PredictedImpact, 0.0)

	assert.Contains(t, f.repo.actions, action.ActionID)
	assert.Equal(t, []string{"action:cust-1"}, f.locker.keys)
	assert.Equal(t, 1, f.locker.lock.released)
	assert.Equal(t, 1, f.limiter.calls)
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, action.ActionID, f.publisher.published[0].ActionID)
}

func TestHandlePredictionOpenActionSkips(t *testing.T) {
	f := newEngineFakes()
	f.repo.actions["act-1"] = pendingAction("act-1", "cust-1")
	e := f.engine()

	action, err := e.HandlePrediction(context.Background(), &models.Prediction{
		CustomerID:       "cust-1",
		ChurnProbability: 0.9,
		RiskLevel:        models.RiskLevelHigh,
	})
	require.NoError(t, err)
	assert.Nil(t, action)
	assert.Len(t, f.repo.actions, 1)
	assert.Equal(t, 0, f.limiter.calls)
	assert.Equal(t, 1, f.locker.lock.released)
}

func TestHandlePredictionCooldownSkips(t *testing.T) {
	f := newEngineFakes()
	executed := pendingAction("act-1", "cust-1")
	executed.Status = models.ActionStatusExecuted
	executed.RecommendedAt = engineTestTime.Add(-24 * time.Hour)
	f.repo.actions["act-1"] = executed
	e := f.engine()

	action, err := e.HandlePrediction(context.Background(), &models.Prediction{
		CustomerID:       "cust-1",
		ChurnProbability: 0.9,
		RiskLevel:        models.RiskLevelHigh,
	})
	require.NoError(t, err)
	assert.Nil(t, action)
	assert.Len(t, f.repo.actions, 1)
}

func TestHandlePredictionCooldownElapsed(t *testing.T) {
	f := newEngineFakes()
	executed := pendingAction("act-1", "cust-1")
	executed.Status = models.ActionStatusExecuted
	executed.RecommendedAt = engineTestTime.Add(-8 * 24 * time.Hour)
	f.repo.actions["act-1"] = executed
	e := f.engine()

	action, err := e.HandlePrediction(context.Background(), &models.Prediction{
		CustomerID:       "cust-1",
		ChurnProbability: 0.9,
		RiskLevel:        models.RiskLevelHigh,
	})
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Len(t, f.repo.actions, 2)
}

func TestHandlePredictionNoCooldownAfterRejection(t *testing.T) {
	for _, status := range []string{
		models.ActionStatusRejected,
		models.ActionStatusExpired,
	} {
		f := newEngineFakes()
		latest := pendingAction("act-1", "cust-1")
		latest.Status = status
		latest.RecommendedAt = engineTestTime.Add(-24 * time.Hour)
		f.repo.actions["act-1"] = latest
		e := f.engine()

		action, err := e.HandlePrediction(context.Background(), &models.Prediction{
			CustomerID:       "cust-1",
			ChurnProbability: 0.9,
			RiskLevel:        models.RiskLevelHigh,
		})
		require.NoError(t, err, status)
		require.NotNil(t, action, status)
		assert.Len(t, f.repo.actions, 2, status)
	}
}

func TestHandlePredictionRateLimited(t *testing.T) {
	f := newEngineFakes()
	f.limiter.denied = true
	f.limiter.retryIn = 30 * time.Second
	e := f.engine()

	_, err := e.HandlePrediction(context.Background(), &models.Prediction{
		CustomerID:       "cust-1",
		ChurnProbability: 0.9,
		RiskLevel:        models.RiskLevelHigh,
	})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Empty(t, f.repo.actions)
	assert.Equal(t, 1, f.locker.lock.released)
}

func TestHandlePredictionLockContention(t *testing.T) {
	f := newEngineFakes()
	f.locker.err = redis.ErrLockNotAcquired
	e := f.engine()

	action, err := e.HandlePrediction(context.Background(), &models.Prediction{
		CustomerID:       "cust-1",
		ChurnProbability: 0.9,
		RiskLevel:        models.RiskLevelHigh,
	})
	require.NoError(t, err)
	assert.Nil(t, action)
	assert.Empty(t, f.repo.actions)
}

func TestHandlePredictionCreateRace(t *testing.T) {
	f := newEngineFakes()
	f.repo.createErr = ErrPendingActionExists
	e := f.engine()

	action, err := e.HandlePrediction(context.Background(), &models.Prediction{
		CustomerID:       "cust-1",
		ChurnProbability: 0.9,
		RiskLevel:        models.RiskLevelHigh,
	})
	require.NoError(t, err)
	assert.Nil(t, action)
	assert.Empty(t, f.publisher.published)
}

func TestResolveExecuted(t *testing.T) {
	repo := newFakeActionRepo()
	repo.actions["act-1"] = pendingAction("act-1", "cust-1")
	publisher := &fakeActionPublisher{}
	e := testEngine(repo, publisher)

	outcome := "retained"
	updated, err := e.Resolve(context.Background(), "act-1", &models.ActionOutcomeRequest{
		Status:        models.ActionStatusExecuted,
		ActualOutcome: &outcome,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ActionStatusExecuted, updated.Status)
	require.NotNil(t, updated.ExecutedAt)
	assert.Equal(t, engineTestTime, *updated.ExecutedAt)
	require.NotNil(t, updated.ActualOutcome)
	assert.Equal(t, "retained", *updated.ActualOutcome)
	require.Len(t, publisher.published, 1)
}

func TestResolveRejected(t *testing.T) {
	repo := newFakeActionRepo()
	repo.actions["act-1"] = pendingAction("act-1", "cust-1")
	e := testEngine(repo, &fakeActionPublisher{})

	updated, err := e.Resolve(context.Background(), "act-1", &models.ActionOutcomeRequest{
		Status: models.ActionStatusRejected,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ActionStatusRejected, updated.Status)
	assert.Nil(t, updated.ExecutedAt)
}

func TestResolveTerminalAction(t *testing.T) {
	repo := newFakeActionRepo()
	action := pendingAction("act-1", "cust-1")
	action.Status = models.ActionStatusExecuted
	repo.actions["act-1"] = action
	e := testEngine(repo, &fakeActionPublisher{})

	_, err := e.Resolve(context.Background(), "act-1", &models.ActionOutcomeRequest{
		Status: models.ActionStatusRejected,
	})
	assert.ErrorIs(t, err, ErrActionTerminal)
	assert.Empty(t, repo.transitioned)
}

func TestResolveNotFound(t *testing.T) {
	repo := newFakeActionRepo()
	e := testEngine(repo, &fakeActionPublisher{})

	_, err := e.Resolve(context.Background(), "missing", &models.ActionOutcomeRequest{
		Status: models.ActionStatusExecuted,
	})
	assert.ErrorIs(t, err, ErrActionNotFound)
}

func TestResolvePublisherFailureNonFatal(t *testing.T) {
	repo := newFakeActionRepo()
	repo.actions["act-1"] = pendingAction("act-1", "cust-1")
	publisher := &fakeActionPublisher{err: errors.New("broker down")}
	e := testEngine(repo, publisher)

	updated, err := e.Resolve(context.Background(), "act-1", &models.ActionOutcomeRequest{
		Status: models.ActionStatusRejected,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusRejected, updated.Status)
}

func TestExpireStale(t *testing.T) {
	repo := newFakeActionRepo()
	repo.expireCount = 3
	e := testEngine(repo, &fakeActionPublisher{})

	expired, err := e.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), expired)
	assert.Equal(t, engineTestTime.Add(-72*time.Hour), repo.expireCutoff)
}

func TestTerminal(t *testing.T) {
	action := pendingAction("act-1", "cust-1")
	assert.False(t, action.Terminal())

	for _, status := range []string{
		models.ActionStatusExecuted,
		models.ActionStatusRejected,
		models.ActionStatusExpired,
	} {
		action.Status = status
		assert.True(t, action.Terminal(), status)
	}
}
