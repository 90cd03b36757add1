package aggregator

import (
	"sync"
	"time"
)

// dayBucket accumulates one customer's events for one UTC day. Buckets
// make out-of-order arrival cheap: an event lands in its own day no
// matter when it is delivered, and window stats are sums over buckets.
type dayBucket struct {
	svcCount        int
	svcSentimentSum float64
	svcSentimentCnt int
	svcUnresolved   int
	svcDurationSum  float64
	svcDurationCnt  int

	stbErrors        int
	stbNetQualitySum float64
	stbNetQualityCnt int
	stbBufferEvents  int
	stbViewSeconds   int

	webEvents       int
	webEngagementMs int

	billingFailures int
	billingDisputes int
}

// customerState is the aggregation state for a single customer. All
// access goes through its mutex; customers share nothing.
type customerState struct {
	mu sync.Mutex

	// buckets keyed by UTC day (unix epoch days)
	buckets map[int64]*dayBucket

	// seen tracks event identities within the dedup horizon
	seen map[string]time.Time

	// sessions tracks distinct web session ids and their last activity
	sessions map[string]time.Time

	// watermark is the latest event timestamp observed
	watermark time.Time

	// recency markers
	lastCallAt time.Time
	lastWebAt  time.Time

	// latest billing standing (from the most recent billing event)
	lastBillingAt  time.Time
	daysOverdue    int
	accountBalance float64

	// events accepted past the horizon, not reflected in any bucket
	lateUncorrected int
}

func newCustomerState() *customerState {
	return &customerState{
		buckets:  make(map[int64]*dayBucket),
		seen:     make(map[string]time.Time),
		sessions: make(map[string]time.Time),
	}
}

func epochDay(ts time.Time) int64 {
	return ts.UTC().Unix() / 86400
}

func (s *customerState) bucket(ts time.Time) *dayBucket {
	day := epochDay(ts)
	b, ok := s.buckets[day]
	if !ok {
		b = &dayBucket{}
		s.buckets[day] = b
	}
	return b
}

// prune drops buckets, seen ids, and sessions older than the horizon
// behind the watermark.
func (s *customerState) prune(horizon time.Duration) {
	if s.watermark.IsZero() {
		return
	}
	cutoff := s.watermark.Add(-horizon)
	cutoffDay := epochDay(cutoff)

	for day := range s.buckets {
		if day < cutoffDay {
			delete(s.buckets, day)
		}
	}
	for id, ts := range s.seen {
		if ts.Before(cutoff) {
			delete(s.seen, id)
		}
	}
	for id, ts := range s.sessions {
		if ts.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
