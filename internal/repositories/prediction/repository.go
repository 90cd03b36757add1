package prediction

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{
	"prediction_id", "customer_id", "prediction_timestamp", "churn_probability",
	"risk_level", "prediction_horizon_days", "model_version", "top_risk_factors",
	"stale_features",
}

// row mirrors the table with the risk factors still as JSON.
type row struct {
	models.Prediction
	TopRiskFactorsJSON json.RawMessage `db:"top_risk_factors"`
}

// Repository handles the immutable prediction record table.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new prediction repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create persists a prediction. Predictions are insert-only.
func (r *Repository) Create(ctx context.Context, prediction *models.Prediction) error {
	ctx, span := tracing.StartSpan(ctx, "prediction.Repository.Create")
	defer span.End()

	factors, err := json.Marshal(prediction.TopRiskFactors)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode risk factors")
	}

	query := `
		INSERT INTO churn_predictions (
			prediction_id, customer_id, prediction_timestamp, churn_probability,
			risk_level, prediction_horizon_days, model_version, top_risk_factors,
			stale_features
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if _, err := r.db.ExecContext(ctx, query,
		prediction.PredictionID, prediction.CustomerID, prediction.PredictionTimestamp,
		prediction.ChurnProbability, prediction.RiskLevel, prediction.HorizonDays,
		prediction.ModelVersion, factors, prediction.StaleFeatures,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("prediction_id", prediction.PredictionID).Error("Failed to create prediction")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create prediction")
	}
	return nil
}

// GetByID retrieves one prediction.
func (r *Repository) GetByID(ctx context.Context, predictionID string) (*models.Prediction, error) {
	ctx, span := tracing.StartSpan(ctx, "prediction.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("churn_predictions")
	sb.Where(sb.Equal("prediction_id", predictionID))

	query, args := sb.Build()
	var record row
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "prediction %s not found", predictionID)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("prediction_id", predictionID).Error("Failed to get prediction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get prediction")
	}
	return record.toModel()
}

// ListByCustomer returns a customer's predictions, newest first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]models.Prediction, error) {
	ctx, span := tracing.StartSpan(ctx, "prediction.Repository.ListByCustomer")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("churn_predictions")
	sb.Where(sb.Equal("customer_id", customerID))
	sb.OrderBy("prediction_timestamp DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var records []row
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("customer_id", customerID).Error("Failed to list predictions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list predictions")
	}

	predictions := make([]models.Prediction, 0, len(records))
	for _, record := range records {
		prediction, err := record.toModel()
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, *prediction)
	}
	return predictions, nil
}

func (record *row) toModel() (*models.Prediction, error) {
	prediction := record.Prediction
	if len(record.TopRiskFactorsJSON) > 0 {
		if err := json.Unmarshal(record.TopRiskFactorsJSON, &prediction.TopRiskFactors); err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decode risk factors")
		}
	}
	return &prediction, nil
}
