// Package aggregator maintains per-customer rolling statistics across
// the configured trailing windows. Application is idempotent per event
// identity and commutative within the dedup horizon.
package aggregator

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ApplyResult reports what an event application did.
type ApplyResult struct {
	// Duplicate is set when the event identity was already applied.
	Duplicate bool

	// OutOfOrder is set when the event timestamp predates the customer's
	// watermark. The event is still placed in its correct day bucket.
	OutOfOrder bool

	// LateUncorrected is set when the event fell beyond the dedup
	// horizon; it is recorded as an approximation, not bucketed.
	LateUncorrected bool
}

// Aggregator applies normalized events to customer window state and
// builds feature vectors on demand.
type Aggregator struct {
	windows Windows
	logger  ectologger.Logger

	states sync.Map // customer_id -> *customerState
	now    func() time.Time
}

// NewAggregator creates a new Aggregator over the given windows.
func NewAggregator(windows Windows, logger ectologger.Logger) *Aggregator {
	return &Aggregator{
		windows: windows,
		logger:  logger,
		now:     time.Now,
	}
}

// Horizon is the dedup/retention horizon (largest window span).
func (a *Aggregator) Horizon() time.Duration {
	return a.windows.Horizon()
}

func (a *Aggregator) state(customerID string) *customerState {
	if s, ok := a.states.Load(customerID); ok {
		return s.(*customerState)
	}
	s, _ := a.states.LoadOrStore(customerID, newCustomerState())
	return s.(*customerState)
}

// Apply incorporates one normalized event into the customer's windows.
// Applying the same event identity twice is a no-op.
func (a *Aggregator) Apply(ctx context.Context, env *models.Envelope) ApplyResult {
	_, span := tracing.StartSpan(ctx, "aggregator.Apply")
	defer span.End()

	s := a.state(env.CustomerID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[env.EventID]; dup {
		return ApplyResult{Duplicate: true}
	}

	result := ApplyResult{}
	if !s.watermark.IsZero() && env.Timestamp.Before(s.watermark) {
		result.OutOfOrder = true
	}

	// Events past the horizon cannot be placed in any open window.
	// They are counted, not bucketed; closed windows stay closed.
	horizonCutoff := s.watermark
	if a.now().UTC().After(horizonCutoff) {
		horizonCutoff = a.now().UTC()
	}
	if env.Timestamp.Before(horizonCutoff.Add(-a.windows.Horizon())) {
		s.lateUncorrected++
		result.LateUncorrected = true
		a.logger.WithContext(ctx).WithFields(map[string]any{
			"customer_id": env.CustomerID,
			"event_id":    env.EventID,
			"event_type":  string(env.EventType),
		}).Warn("Event beyond dedup horizon recorded as late-uncorrected")
		return result
	}

	s.seen[env.EventID] = env.Timestamp

	switch env.EventType {
	case models.EventTypeServiceInteraction:
		a.applyServiceInteraction(s, env)
	case models.EventTypeTelemetry:
		a.applyTelemetry(s, env)
	case models.EventTypeWebAnalytics:
		a.applyWebAnalytics(s, env)
	case models.EventTypeBilling:
		a.applyBilling(s, env)
	}

	if env.Timestamp.After(s.watermark) {
		s.watermark = env.Timestamp
	}
	s.prune(a.windows.Horizon())

	return result
}

func (a *Aggregator) applyServiceInteraction(s *customerState, env *models.Envelope) {
	var attrs struct {
		DurationSeconds  *float64 `json:"duration_seconds"`
		ResolutionStatus string   `json:"resolution_status"`
		SentimentScore   *float64 `json:"sentiment_score"`
	}
	_ = json.Unmarshal(env.Attributes, &attrs)

	b := s.bucket(env.Timestamp)
	b.svcCount++
	if attrs.SentimentScore != nil {
		b.svcSentimentSum += *attrs.SentimentScore
		b.svcSentimentCnt++
	}
	if attrs.DurationSeconds != nil {
		b.svcDurationSum += *attrs.DurationSeconds
		b.svcDurationCnt++
	}
	if attrs.ResolutionStatus == "unresolved" {
		b.svcUnresolved++
	}
	if env.Timestamp.After(s.lastCallAt) {
		s.lastCallAt = env.Timestamp
	}
}

func (a *Aggregator) applyTelemetry(s *customerState, env *models.Envelope) {
	var attrs struct {
		EventType              string   `json:"event_type"`
		ViewingDurationSeconds *int     `json:"viewing_duration_seconds"`
		BufferEvents           int      `json:"buffer_events"`
		NetworkQuality         *float64 `json:"network_quality"`
	}
	_ = json.Unmarshal(env.Attributes, &attrs)

	b := s.bucket(env.Timestamp)
	if attrs.EventType == models.TelemetryEventError {
		b.stbErrors++
	}
	if attrs.NetworkQuality != nil {
		b.stbNetQualitySum += *attrs.NetworkQuality
		b.stbNetQualityCnt++
	}
	b.stbBufferEvents += attrs.BufferEvents
	if attrs.ViewingDurationSeconds != nil {
		b.stbViewSeconds += *attrs.ViewingDurationSeconds
	}
}

func (a *Aggregator) applyWebAnalytics(s *customerState, env *models.Envelope) {
	var attrs struct {
		SessionID          string `json:"session_id"`
		EngagementTimeMsec int    `json:"engagement_time_msec"`
	}
	_ = json.Unmarshal(env.Attributes, &attrs)

	b := s.bucket(env.Timestamp)
	b.webEvents++
	b.webEngagementMs += attrs.EngagementTimeMsec
	if attrs.SessionID != "" {
		if prev, ok := s.sessions[attrs.SessionID]; !ok || env.Timestamp.After(prev) {
			s.sessions[attrs.SessionID] = env.Timestamp
		}
	}
	if env.Timestamp.After(s.lastWebAt) {
		s.lastWebAt = env.Timestamp
	}
}

func (a *Aggregator) applyBilling(s *customerState, env *models.Envelope) {
	var attrs struct {
		EventType      string   `json:"event_type"`
		AccountBalance *float64 `json:"account_balance"`
		DaysOverdue    int      `json:"days_overdue"`
	}
	_ = json.Unmarshal(env.Attributes, &attrs)

	b := s.bucket(env.Timestamp)
	switch attrs.EventType {
	case models.BillingEventPaymentFailed:
		b.billingFailures++
	case models.BillingEventDisputeOpened:
		b.billingDisputes++
	}

	// Billing standing follows the latest event by timestamp, so a
	// reordered delivery cannot overwrite newer standing with older.
	if env.Timestamp.After(s.lastBillingAt) {
		s.lastBillingAt = env.Timestamp
		s.daysOverdue = attrs.DaysOverdue
		if attrs.AccountBalance != nil {
			s.accountBalance = *attrs.AccountBalance
		}
	}
}

// windowStats are the sums over day buckets inside one window.
type windowStats struct {
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

func (s *customerState) sum(win Window, now time.Time) windowStats {
	var stats windowStats
	fromDay := epochDay(now.Add(-win.Span))
	toDay := epochDay(now)

	for day, b := range s.buckets {
		if day < fromDay || day > toDay {
			continue
		}
		stats.svcCount += b.svcCount
		stats.svcSentimentSum += b.svcSentimentSum
		stats.svcSentimentCnt += b.svcSentimentCnt
		stats.svcUnresolved += b.svcUnresolved
		stats.svcDurationSum += b.svcDurationSum
		stats.svcDurationCnt += b.svcDurationCnt
		stats.stbErrors += b.stbErrors
		stats.stbNetQualitySum += b.stbNetQualitySum
		stats.stbNetQualityCnt += b.stbNetQualityCnt
		stats.stbBufferEvents += b.stbBufferEvents
		stats.stbViewSeconds += b.stbViewSeconds
		stats.webEvents += b.webEvents
		stats.webEngagementMs += b.webEngagementMs
		stats.billingFailures += b.billingFailures
		stats.billingDisputes += b.billingDisputes
	}
	return stats
}

const noActivityDays = 999

func daysSince(now, ts time.Time) int {
	if ts.IsZero() {
		return noActivityDays
	}
	return int(now.Sub(ts).Hours() / 24)
}

// Vector builds the behavioral feature vector for a customer from the
// current window state. Returns false when no event has ever been
// applied for the customer.
func (a *Aggregator) Vector(ctx context.Context, customerID string) (models.FeatureVector, bool) {
	_, span := tracing.StartSpan(ctx, "aggregator.Vector")
	defer span.End()

	v, ok := a.states.Load(customerID)
	if !ok {
		return nil, false
	}
	s := v.(*customerState)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := a.now().UTC()
	features := models.FeatureVector{}

	// Per-window interaction counts
	for _, win := range a.windows {
		stats := s.sum(win, now)
		features["interaction_count_"+win.ID] = float64(stats.svcCount)
	}

	// Canonical 30d service/viewing/web features
	var w30 Window
	for _, win := range a.windows {
		if win.Span == 30*24*time.Hour {
			w30 = win
		}
	}
	if w30.Span == 0 && len(a.windows) > 0 {
		w30 = a.windows[len(a.windows)-1]
	}
	s30 := s.sum(w30, now)

	features["service_calls_30d"] = float64(s30.svcCount)
	features["avg_sentiment_30d"] = safeMean(s30.svcSentimentSum, s30.svcSentimentCnt)
	features["unresolved_calls_30d"] = float64(s30.svcUnresolved)
	features["avg_call_duration_30d"] = safeMean(s30.svcDurationSum, s30.svcDurationCnt)
	features["days_since_last_call"] = float64(daysSince(now, s.lastCallAt))

	features["stb_errors_30d"] = float64(s30.stbErrors)
	if s30.stbNetQualityCnt > 0 {
		features["avg_network_quality_30d"] = s30.stbNetQualitySum / float64(s30.stbNetQualityCnt)
	} else {
		features["avg_network_quality_30d"] = 100.0
	}
	features["total_buffer_events_30d"] = float64(s30.stbBufferEvents)
	features["total_viewing_hours_30d"] = float64(s30.stbViewSeconds) / 3600.0

	sessions30 := 0
	cutoff30 := now.Add(-w30.Span)
	for _, ts := range s.sessions {
		if !ts.Before(cutoff30) {
			sessions30++
		}
	}
	features["web_sessions_30d"] = float64(sessions30)
	features["total_engagement_minutes_30d"] = float64(s30.webEngagementMs) / 60000.0
	features["days_since_last_web_activity"] = float64(daysSince(now, s.lastWebAt))

	// Billing over the full horizon (90d canonical)
	horizonWin := a.windows[len(a.windows)-1]
	sHorizon := s.sum(horizonWin, now)
	features["payment_failures_90d"] = float64(sHorizon.billingFailures)
	features["disputes_90d"] = float64(sHorizon.billingDisputes)
	features["days_overdue"] = float64(s.daysOverdue)
	features["account_balance"] = s.accountBalance

	features["late_uncorrected_events"] = float64(s.lateUncorrected)

	// Composite scores
	engagement := math.Min(features["total_viewing_hours_30d"].(float64)/100.0, 1.0)*0.5 +
		math.Min(features["web_sessions_30d"].(float64)/30.0, 1.0)*0.5
	features["engagement_score"] = engagement

	risk := math.Min(features["unresolved_calls_30d"].(float64)/5.0, 1.0)*0.3 +
		math.Min(features["payment_failures_90d"].(float64)/3.0, 1.0)*0.4 +
		math.Min(features["days_overdue"].(float64)/30.0, 1.0)*0.3
	features["risk_score"] = risk

	return features, true
}

func safeMean(sum float64, count int) float64 {
	if count == 0 {
		return 0.0
	}
	return sum / float64(count)
}
