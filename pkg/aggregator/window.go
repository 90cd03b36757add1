package aggregator

import (
	"fmt"
	"sort"
	"time"
)

// Window is a trailing span over which aggregate statistics are kept.
type Window struct {
	ID   string
	Span time.Duration
}

// Windows is the configured window set, ordered smallest to largest.
type Windows []Window

// NewWindows builds the window set from day spans (e.g. 7, 30, 90).
func NewWindows(spanDays []int) Windows {
	days := append([]int(nil), spanDays...)
	sort.Ints(days)

	windows := make(Windows, 0, len(days))
	for _, d := range days {
		windows = append(windows, Window{
			ID:   fmt.Sprintf("%dd", d),
			Span: time.Duration(d) * 24 * time.Hour,
		})
	}
	return windows
}

// Horizon returns the largest span. It bounds both event retention and
// the dedup horizon.
func (w Windows) Horizon() time.Duration {
	if len(w) == 0 {
		return 0
	}
	return w[len(w)-1].Span
}

// Covers reports whether an event at ts falls inside the window ending now.
func (win Window) Covers(now, ts time.Time) bool {
	return !ts.Before(now.Add(-win.Span)) && !ts.After(now)
}
