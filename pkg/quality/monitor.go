package quality

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
)

// Monitor periodically runs the gate's per-source checks.
type Monitor struct {
	gate     *Gate
	interval time.Duration
	logger   ectologger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a quality evaluation loop.
func NewMonitor(gate *Gate, interval time.Duration, logger ectologger.Logger) *Monitor {
	return &Monitor{
		gate:     gate,
		interval: interval,
		logger:   logger,
	}
}

func (m *Monitor) GetName() string {
	return "quality-monitor"
}

func (m *Monitor) DependsOn() []string {
	return []string{"database"}
}

func (m *Monitor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.loop(runCtx)
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.gate.EvaluateAll(ctx); err != nil {
				m.logger.WithContext(ctx).WithError(err).Error("quality evaluation failed")
			}
		}
	}
}
