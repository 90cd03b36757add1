package featuresnapshot

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/featurestore"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository is the durable tier under the online feature store. It
// implements featurestore.Backend.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new feature snapshot repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

type row struct {
	CustomerID string                               `db:"customer_id"`
	FeatureSet database.JSONB[models.FeatureVector] `db:"feature_set"`
	ComputedAt time.Time                            `db:"computed_at"`
	TTLSeconds int                                  `db:"ttl_seconds"`
}

func (r *row) toModel() *models.FeatureSnapshot {
	return &models.FeatureSnapshot{
		CustomerID: r.CustomerID,
		Features:   r.FeatureSet.GetValue(),
		ComputedAt: r.ComputedAt,
		TTLSeconds: r.TTLSeconds,
	}
}

// Upsert writes a snapshot, replacing only an older one. The
// computed_at guard in the conflict clause keeps reordered emissions
// last-write-wins by computation time, not arrival time.
func (r *Repository) Upsert(ctx context.Context, snapshot *models.FeatureSnapshot) error {
	ctx, span := tracing.StartSpan(ctx, "featuresnapshot.Repository.Upsert")
	defer span.End()

	query := `
		INSERT INTO feature_store_online (customer_id, feature_set, computed_at, ttl_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_id)
		DO UPDATE SET
			feature_set = EXCLUDED.feature_set,
			computed_at = EXCLUDED.computed_at,
			ttl_seconds = EXCLUDED.ttl_seconds
		WHERE feature_store_online.computed_at < EXCLUDED.computed_at
	`

	if _, err := r.db.ExecContext(ctx, query,
		snapshot.CustomerID, database.JSONB[models.FeatureVector]{Data: snapshot.Features},
		snapshot.ComputedAt, snapshot.TTLSeconds,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("customer_id", snapshot.CustomerID).Error("Failed to upsert feature snapshot")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert feature snapshot")
	}
	return nil
}

// GetSnapshot retrieves a customer's snapshot, or
// featurestore.ErrNotFound when none was ever computed.
func (r *Repository) GetSnapshot(ctx context.Context, customerID string) (*models.FeatureSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "featuresnapshot.Repository.GetSnapshot")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("customer_id", "feature_set", "computed_at", "ttl_seconds")
	sb.From("feature_store_online")
	sb.Where(sb.Equal("customer_id", customerID))

	query, args := sb.Build()
	var stored row
	if err := r.db.GetContext(ctx, &stored, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, featurestore.ErrNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithField("customer_id", customerID).Error("Failed to get feature snapshot")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get feature snapshot")
	}
	return stored.toModel(), nil
}
