package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type emitRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *emitRecorder) emit(_ context.Context, customerID string, _ models.FeatureVector, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, customerID)
}

func (r *emitRecorder) customers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func testEmitter(recorder *emitRecorder) (*Emitter, *Aggregator, *time.Time) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	agg := testAggregator()

	clock := aggTestTime
	e := NewEmitter(agg, EmitterConfig{
		DebounceInterval: 10 * time.Second,
		MaxDelay:         time.Minute,
	}, recorder.emit, logger)
	e.now = func() time.Time { return clock }
	return e, agg, &clock
}

func TestEmitterDebounce(t *testing.T) {
	recorder := &emitRecorder{}
	e, agg, clock := testEmitter(recorder)
	ctx := context.Background()

	agg.Apply(ctx, interactionEnvelope("int-1", aggTestTime.Add(-time.Hour), `{}`))
	e.MarkDirty("cust-1")

	// Still inside the quiet period: nothing flushes.
	*clock = aggTestTime.Add(5 * time.Second)
	e.flushDue(ctx)
	assert.Empty(t, recorder.customers())

	// Quiet period elapsed.
	*clock = aggTestTime.Add(11 * time.Second)
	e.flushDue(ctx)
	require.Equal(t, []string{"cust-1"}, recorder.customers())

	// Flushed entries are cleared; a second pass emits nothing.
	e.flushDue(ctx)
	assert.Len(t, recorder.customers(), 1)
}

func TestEmitterMaxDelay(t *testing.T) {
	recorder := &emitRecorder{}
	e, agg, clock := testEmitter(recorder)
	ctx := context.Background()

	agg.Apply(ctx, interactionEnvelope("int-1", aggTestTime.Add(-time.Hour), `{}`))

	// Keep the customer continuously dirty so the quiet period never
	// elapses; the max delay must force the flush anyway.
	e.MarkDirty("cust-1")
	for i := 1; i <= 12; i++ {
		*clock = aggTestTime.Add(time.Duration(i*5) * time.Second)
		e.MarkDirty("cust-1")
		e.flushDue(ctx)
	}

	assert.Equal(t, []string{"cust-1"}, recorder.customers())
}

func TestEmitterFlush(t *testing.T) {
	recorder := &emitRecorder{}
	e, agg, _ := testEmitter(recorder)
	ctx := context.Background()

	agg.Apply(ctx, interactionEnvelope("int-1", aggTestTime.Add(-time.Hour), `{}`))
	e.MarkDirty("cust-1")

	e.Flush(ctx)
	assert.Equal(t, []string{"cust-1"}, recorder.customers())
}

func TestEmitterSkipsUnknownCustomer(t *testing.T) {
	recorder := &emitRecorder{}
	e, _, _ := testEmitter(recorder)
	ctx := context.Background()

	// Dirty but never applied to the aggregator; no vector to emit.
	e.MarkDirty("ghost")
	e.Flush(ctx)
	assert.Empty(t, recorder.customers())
}
