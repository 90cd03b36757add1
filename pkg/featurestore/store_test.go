package featurestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

var storeTestTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	snapshots map[string]*models.FeatureSnapshot
	err       error
}

func (b *fakeBackend) GetSnapshot(_ context.Context, customerID string) (*models.FeatureSnapshot, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.snapshots[customerID], nil
}

func testStore(backend Backend) *Store {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	s := NewStore(nil, backend, logger)
	s.now = func() time.Time { return storeTestTime }
	return s
}

func snapshot(customerID string, computedAt time.Time, ttlSeconds int) *models.FeatureSnapshot {
	return &models.FeatureSnapshot{
		CustomerID: customerID,
		Features:   models.FeatureVector{"service_calls_30d": 3.0},
		ComputedAt: computedAt,
		TTLSeconds: ttlSeconds,
	}
}

func TestPutAndGet(t *testing.T) {
	s := testStore(nil)
	ctx := context.Background()

	applied := s.Put(ctx, snapshot("cust-1", storeTestTime.Add(-time.Minute), 3600))
	assert.True(t, applied)

	result, err := s.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.False(t, result.Stale)
	assert.Equal(t, 3.0, result.Snapshot.Features["service_calls_30d"])
}

func TestPutLastWriteWins(t *testing.T) {
	s := testStore(nil)
	ctx := context.Background()

	newer := snapshot("cust-1", storeTestTime.Add(-time.Minute), 3600)
	older := snapshot("cust-1", storeTestTime.Add(-10*time.Minute), 3600)
	older.Features = models.FeatureVector{"service_calls_30d": 1.0}

	require.True(t, s.Put(ctx, newer))

	// The reordered older emission must not clobber the newer snapshot.
	assert.False(t, s.Put(ctx, older))

	result, err := s.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.Snapshot.Features["service_calls_30d"])
}

func TestGetStaleSnapshot(t *testing.T) {
	s := testStore(nil)
	ctx := context.Background()

	s.Put(ctx, snapshot("cust-1", storeTestTime.Add(-3700*time.Second), 3600))

	result, err := s.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, result.Stale)
	assert.NotNil(t, result.Snapshot)
}

func TestGetNotFound(t *testing.T) {
	s := testStore(nil)

	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetHydratesFromBackend(t *testing.T) {
	backend := &fakeBackend{snapshots: map[string]*models.FeatureSnapshot{
		"cust-1": snapshot("cust-1", storeTestTime.Add(-time.Minute), 3600),
	}}
	s := testStore(backend)

	result, err := s.Get(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.False(t, result.Stale)
	assert.Equal(t, "cust-1", result.Snapshot.CustomerID)

	// A backend failure after hydration does not matter; the snapshot
	// is now held in process.
	backend.err = errors.New("backend down")
	result, err = s.Get(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", result.Snapshot.CustomerID)
}

func TestGetBackendError(t *testing.T) {
	backendErr := errors.New("pq: connection refused")
	backend := &fakeBackend{err: backendErr}
	s := testStore(backend)

	// An outage must not masquerade as a never-computed customer.
	_, err := s.Get(context.Background(), "cust-1")
	assert.ErrorIs(t, err, backendErr)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGetBackendMiss(t *testing.T) {
	backend := &fakeBackend{}
	s := testStore(backend)

	_, err := s.Get(context.Background(), "cust-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFresh(t *testing.T) {
	snap := snapshot("cust-1", storeTestTime, 3600)

	assert.True(t, snap.Fresh(storeTestTime.Add(time.Hour-time.Second)))
	assert.False(t, snap.Fresh(storeTestTime.Add(time.Hour)))
}
