package dataquality

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{
	"metric_id", "data_source", "metric_name", "metric_value",
	"threshold_value", "status", "computed_at", "details",
}

// Repository handles the immutable quality metric table.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new data quality repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create persists a quality observation. Metrics are insert-only.
func (r *Repository) Create(ctx context.Context, metric *models.DataQualityMetric) error {
	ctx, span := tracing.StartSpan(ctx, "dataquality.Repository.Create")
	defer span.End()

	query := `
		INSERT INTO data_quality_metrics (
			metric_id, data_source, metric_name, metric_value,
			threshold_value, status, computed_at, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err := r.db.ExecContext(ctx, query,
		metric.MetricID, metric.DataSource, metric.MetricName, metric.MetricValue,
		metric.ThresholdValue, metric.Status, metric.ComputedAt, metric.Details,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"data_source": metric.DataSource,
			"metric_name": metric.MetricName,
		}).Error("Failed to create quality metric")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create quality metric")
	}
	return nil
}

// ListBySource returns a source's quality observations, newest first.
func (r *Repository) ListBySource(ctx context.Context, dataSource string, limit int) ([]models.DataQualityMetric, error) {
	ctx, span := tracing.StartSpan(ctx, "dataquality.Repository.ListBySource")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("data_quality_metrics")
	sb.Where(sb.Equal("data_source", dataSource))
	sb.OrderBy("computed_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var metrics []models.DataQualityMetric
	if err := r.db.SelectContext(ctx, &metrics, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("data_source", dataSource).Error("Failed to list quality metrics")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list quality metrics")
	}
	return metrics, nil
}
