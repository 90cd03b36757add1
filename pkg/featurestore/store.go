// Package featurestore is the online per-customer snapshot store: the
// single read path for scoring. Snapshots are replaced whole; a reader
// sees either the old snapshot or the new one, never a mix.
package featurestore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ErrNotFound is returned when no snapshot has ever been computed for a
// customer.
var ErrNotFound = errors.New("feature snapshot not found")

// Backend is the durable tier consulted on a process-local miss.
type Backend interface {
	GetSnapshot(ctx context.Context, customerID string) (*models.FeatureSnapshot, error)
}

// Store holds the authoritative in-process snapshot map with a Redis
// write-through cache so restarts and sibling instances can hydrate.
type Store struct {
	cache   *redis.Client
	backend Backend
	logger  ectologger.Logger

	mu        sync.RWMutex
	snapshots map[string]*models.FeatureSnapshot

	now func() time.Time
}

// NewStore creates a new online feature store. cache and backend may be
// nil; the in-process map alone satisfies the contracts.
func NewStore(cache *redis.Client, backend Backend, logger ectologger.Logger) *Store {
	return &Store{
		cache:     cache,
		backend:   backend,
		logger:    logger,
		snapshots: make(map[string]*models.FeatureSnapshot),
		now:       time.Now,
	}
}

func cacheKey(customerID string) string {
	return "features:" + customerID
}

// Put atomically replaces the customer's snapshot. A put whose
// computed_at is older than the stored snapshot is discarded, which
// protects against reordered aggregator emissions. Returns whether the
// snapshot was applied.
func (s *Store) Put(ctx context.Context, snapshot *models.FeatureSnapshot) bool {
	ctx, span := tracing.StartSpan(ctx, "featurestore.Store.Put")
	defer span.End()

	s.mu.Lock()
	current, ok := s.snapshots[snapshot.CustomerID]
	if ok && current.ComputedAt.After(snapshot.ComputedAt) {
		s.mu.Unlock()
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"customer_id":        snapshot.CustomerID,
			"stored_computed_at": current.ComputedAt,
			"put_computed_at":    snapshot.ComputedAt,
		}).Debug("Discarded out-of-date snapshot put")
		return false
	}
	s.snapshots[snapshot.CustomerID] = snapshot
	s.mu.Unlock()

	if s.cache != nil {
		data, err := json.Marshal(snapshot)
		if err == nil {
			// No Redis expiry: staleness is decided at read time so an
			// expired snapshot still serves degraded reads.
			if err := s.cache.Set(ctx, cacheKey(snapshot.CustomerID), data, 0); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("Failed to cache snapshot")
			}
		}
	}

	return true
}

// Get returns the customer's snapshot with its freshness flag. A
// snapshot past its TTL is returned with Stale=true, never swallowed.
func (s *Store) Get(ctx context.Context, customerID string) (*models.SnapshotResult, error) {
	ctx, span := tracing.StartSpan(ctx, "featurestore.Store.Get")
	defer span.End()

	s.mu.RLock()
	snapshot, ok := s.snapshots[customerID]
	s.mu.RUnlock()

	if !ok {
		var err error
		snapshot, err = s.hydrate(ctx, customerID)
		if err != nil {
			return nil, err
		}
	}

	return &models.SnapshotResult{
		Snapshot: snapshot,
		Stale:    !snapshot.Fresh(s.now().UTC()),
	}, nil
}

// hydrate fills the local map from Redis, then the durable backend.
func (s *Store) hydrate(ctx context.Context, customerID string) (*models.FeatureSnapshot, error) {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, cacheKey(customerID))
		if err == nil {
			var snapshot models.FeatureSnapshot
			if err := json.Unmarshal([]byte(data), &snapshot); err == nil {
				s.admit(&snapshot)
				return s.current(customerID), nil
			}
		} else if !errors.Is(err, goredis.Nil) {
			s.logger.WithContext(ctx).WithError(err).Warn("Snapshot cache read failed")
		}
	}

	if s.backend != nil {
		snapshot, err := s.backend.GetSnapshot(ctx, customerID)
		if err != nil {
			// A backend failure is not "never computed": surface it so
			// callers don't mistake an outage for an unknown customer.
			s.logger.WithContext(ctx).WithError(err).WithField("customer_id", customerID).Error("Snapshot backend read failed")
			return nil, err
		}
		if snapshot != nil {
			s.admit(snapshot)
			return s.current(customerID), nil
		}
	}

	return nil, ErrNotFound
}

// admit installs a hydrated snapshot unless a newer one raced in.
func (s *Store) admit(snapshot *models.FeatureSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.snapshots[snapshot.CustomerID]
	if ok && current.ComputedAt.After(snapshot.ComputedAt) {
		return
	}
	s.snapshots[snapshot.CustomerID] = snapshot
}

func (s *Store) current(customerID string) *models.FeatureSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[customerID]
}
