package models

import (
	"encoding/json"
	"time"
)

// ModelMetadata is a versioned record of a deployable scoring function.
// At most one version is active at a time; activation is atomic.
type ModelMetadata struct {
	ModelID             string          `json:"model_id" db:"model_id"`
	ModelName           string          `json:"model_name" db:"model_name"`
	ModelVersion        string          `json:"model_version" db:"model_version"`
	ModelType           string          `json:"model_type" db:"model_type"`
	TrainingTimestamp   time.Time       `json:"training_timestamp" db:"training_timestamp"`
	PerformanceMetrics  json.RawMessage `json:"performance_metrics" db:"performance_metrics"`
	FeatureList         json.RawMessage `json:"feature_list" db:"feature_list"`
	Parameters          json.RawMessage `json:"parameters" db:"parameters"`
	IsActive            bool            `json:"is_active" db:"is_active"`
	DeploymentTimestamp *time.Time      `json:"deployment_timestamp,omitempty" db:"deployment_timestamp"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
}

// RegisterModelRequest registers a new model version.
type RegisterModelRequest struct {
	ModelName          string          `json:"model_name" validate:"required"`
	ModelVersion       string          `json:"model_version" validate:"required"`
	ModelType          string          `json:"model_type" validate:"required"`
	TrainingTimestamp  time.Time       `json:"training_timestamp" validate:"required"`
	PerformanceMetrics json.RawMessage `json:"performance_metrics" validate:"required"`
	FeatureList        json.RawMessage `json:"feature_list" validate:"required"`
	Parameters         json.RawMessage `json:"parameters" validate:"required"`
	Activate           bool            `json:"activate"`
}
