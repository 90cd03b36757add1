package actions

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/redis"
)

// SweepLocker serializes sweeps across instances. TryAcquire waits
// briefly for a sibling to finish instead of skipping the tick.
type SweepLocker interface {
	TryAcquire(ctx context.Context, key string, ttl, timeout time.Duration) (Lock, error)
}

// Sweeper periodically expires pending actions that outlived their TTL.
// A distributed lock keeps only one instance sweeping at a time.
type Sweeper struct {
	engine   *Engine
	locker   SweepLocker
	interval time.Duration
	logger   ectologger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates an action expiry sweeper.
func NewSweeper(engine *Engine, locker SweepLocker, interval time.Duration, logger ectologger.Logger) *Sweeper {
	return &Sweeper{
		engine:   engine,
		locker:   locker,
		interval: interval,
		logger:   logger,
	}
}

func (s *Sweeper) GetName() string {
	return "action-sweeper"
}

func (s *Sweeper) DependsOn() []string {
	return []string{"database", "redis"}
}

func (s *Sweeper) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx)
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	lock, err := s.locker.TryAcquire(ctx, "action-sweep", s.interval, 2*time.Second)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return
		}
		s.logger.WithContext(ctx).WithError(err).Error("failed to acquire sweep lock")
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redis.ErrLockNotHeld) {
			s.logger.WithContext(ctx).WithError(err).Warn("failed to release sweep lock")
		}
	}()

	if _, err := s.engine.ExpireStale(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("action expiry sweep failed")
	}
}
