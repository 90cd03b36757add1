package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
)

// EmitFunc receives a debounced feature vector for a customer.
type EmitFunc func(ctx context.Context, customerID string, vector models.FeatureVector, computedAt time.Time)

// EmitterConfig bounds write amplification from the aggregator to the
// online store.
type EmitterConfig struct {
	// DebounceInterval is the quiet period after the last change before
	// a customer's vector is emitted.
	DebounceInterval time.Duration

	// MaxDelay caps how long a continuously-changing customer can go
	// without an emission.
	MaxDelay time.Duration

	// Tick is how often pending customers are checked.
	Tick time.Duration
}

type pendingEntry struct {
	firstDirty time.Time
	lastDirty  time.Time
}

// Emitter debounces per-customer vector emissions. The processor marks
// customers dirty per event; the emitter flushes them once they go
// quiet or hit the max delay.
type Emitter struct {
	agg    *Aggregator
	config EmitterConfig
	emit   EmitFunc
	logger ectologger.Logger

	mu      sync.Mutex
	pending map[string]*pendingEntry

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewEmitter creates a debounced emitter over the aggregator.
func NewEmitter(agg *Aggregator, config EmitterConfig, emit EmitFunc, logger ectologger.Logger) *Emitter {
	if config.Tick <= 0 {
		config.Tick = 250 * time.Millisecond
	}
	return &Emitter{
		agg:     agg,
		config:  config,
		emit:    emit,
		logger:  logger,
		pending: make(map[string]*pendingEntry),
		now:     time.Now,
	}
}

// MarkDirty records that a customer's windows changed.
func (e *Emitter) MarkDirty(customerID string) {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.pending[customerID]
	if !ok {
		e.pending[customerID] = &pendingEntry{firstDirty: now, lastDirty: now}
		return
	}
	entry.lastDirty = now
}

// Start begins the flush loop.
func (e *Emitter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go e.loop(ctx)
	return nil
}

// Stop flushes everything pending and stops the loop.
func (e *Emitter) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.Flush(context.Background())
	return nil
}

func (e *Emitter) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.flushDue(ctx)
		}
	}
}

func (e *Emitter) flushDue(ctx context.Context) {
	now := e.now()

	e.mu.Lock()
	due := make([]string, 0)
	for customerID, entry := range e.pending {
		quiet := now.Sub(entry.lastDirty) >= e.config.DebounceInterval
		overdue := now.Sub(entry.firstDirty) >= e.config.MaxDelay
		if quiet || overdue {
			due = append(due, customerID)
			delete(e.pending, customerID)
		}
	}
	e.mu.Unlock()

	for _, customerID := range due {
		e.emitCustomer(ctx, customerID)
	}
}

// Flush emits every pending customer immediately.
func (e *Emitter) Flush(ctx context.Context) {
	e.mu.Lock()
	due := make([]string, 0, len(e.pending))
	for customerID := range e.pending {
		due = append(due, customerID)
	}
	e.pending = make(map[string]*pendingEntry)
	e.mu.Unlock()

	for _, customerID := range due {
		e.emitCustomer(ctx, customerID)
	}
}

func (e *Emitter) emitCustomer(ctx context.Context, customerID string) {
	vector, ok := e.agg.Vector(ctx, customerID)
	if !ok {
		return
	}
	e.emit(ctx, customerID, vector, e.now().UTC())
}
