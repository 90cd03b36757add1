package modelmetadata

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{
	"model_id", "model_name", "model_version", "model_type", "training_timestamp",
	"performance_metrics", "feature_list", "parameters", "is_active",
	"deployment_timestamp", "created_at",
}

// Repository handles the model registry.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new model metadata repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create registers a new model version, inactive.
func (r *Repository) Create(ctx context.Context, metadata *models.ModelMetadata) error {
	ctx, span := tracing.StartSpan(ctx, "modelmetadata.Repository.Create")
	defer span.End()

	query := `
		INSERT INTO model_metadata (
			model_id, model_name, model_version, model_type, training_timestamp,
			performance_metrics, feature_list, parameters, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)
	`

	if _, err := r.db.ExecContext(ctx, query,
		metadata.ModelID, metadata.ModelName, metadata.ModelVersion, metadata.ModelType,
		metadata.TrainingTimestamp, metadata.PerformanceMetrics, metadata.FeatureList,
		metadata.Parameters, time.Now().UTC(),
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("model_version", metadata.ModelVersion).Error("Failed to create model metadata")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create model metadata")
	}
	return nil
}

// GetActive returns the active model version, or nil when none is
// active.
func (r *Repository) GetActive(ctx context.Context) (*models.ModelMetadata, error) {
	ctx, span := tracing.StartSpan(ctx, "modelmetadata.Repository.GetActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("model_metadata")
	sb.Where(sb.Equal("is_active", true))
	sb.Limit(1)

	query, args := sb.Build()
	var metadata models.ModelMetadata
	if err := r.db.GetContext(ctx, &metadata, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get active model")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get active model")
	}
	return &metadata, nil
}

// GetByID retrieves one model version.
func (r *Repository) GetByID(ctx context.Context, modelID string) (*models.ModelMetadata, error) {
	ctx, span := tracing.StartSpan(ctx, "modelmetadata.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("model_metadata")
	sb.Where(sb.Equal("model_id", modelID))

	query, args := sb.Build()
	var metadata models.ModelMetadata
	if err := r.db.GetContext(ctx, &metadata, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "model %s not found", modelID)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("model_id", modelID).Error("Failed to get model metadata")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get model metadata")
	}
	return &metadata, nil
}

// Activate flips the active flag to the given model in one
// transaction, so readers never see zero or two active versions.
func (r *Repository) Activate(ctx context.Context, modelID string) error {
	ctx, span := tracing.StartSpan(ctx, "modelmetadata.Repository.Activate")
	defer span.End()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to begin activation transaction")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to activate model")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE model_metadata SET is_active = false WHERE is_active = true`); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to deactivate previous model")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to activate model")
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE model_metadata SET is_active = true, deployment_timestamp = $1 WHERE model_id = $2`,
		time.Now().UTC(), modelID,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("model_id", modelID).Error("Failed to activate model")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to activate model")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "model %s not found", modelID)
	}

	if err := tx.Commit(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit activation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to activate model")
	}

	r.logger.WithContext(ctx).WithField("model_id", modelID).Info("Activated model")
	return nil
}

// List returns registered model versions, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.ModelMetadata, error) {
	ctx, span := tracing.StartSpan(ctx, "modelmetadata.Repository.List")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("model_metadata")
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var result []models.ModelMetadata
	if err := r.db.SelectContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list model metadata")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list model metadata")
	}
	return result, nil
}
