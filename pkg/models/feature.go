package models

import "time"

// FeatureVector maps feature names to values. Values are numeric or
// categorical (string); the scorer encodes categoricals at score time.
type FeatureVector map[string]any

// FeatureSnapshot is the complete online feature state for one customer.
// A snapshot is replaced whole, never merged field by field.
type FeatureSnapshot struct {
	CustomerID string        `json:"customer_id" db:"customer_id"`
	Features   FeatureVector `json:"feature_set" db:"feature_set"`
	ComputedAt time.Time     `json:"computed_at" db:"computed_at"`
	TTLSeconds int           `json:"ttl_seconds" db:"ttl_seconds"`
}

// Fresh reports whether the snapshot is within its TTL at the given time.
func (s *FeatureSnapshot) Fresh(now time.Time) bool {
	return now.Sub(s.ComputedAt) < time.Duration(s.TTLSeconds)*time.Second
}

// SnapshotResult is what the online store hands to readers.
type SnapshotResult struct {
	Snapshot *FeatureSnapshot `json:"snapshot"`
	Stale    bool             `json:"stale"`
}
