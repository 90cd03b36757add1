package serviceinteraction

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
	"interaction_id", "customer_id", "timestamp", "channel", "duration_seconds",
	"reason_category", "resolution_status", "agent_id", "sentiment_score",
	"transfer_count", "created_at",
}

// Repository handles the append-only service interaction fact table.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new service interaction repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Insert appends one interaction fact. Redelivered events are ignored
// via the primary key, keeping the table idempotent under at-least-once
// consumption.
func (r *Repository) Insert(ctx context.Context, fact *models.ServiceInteraction) error {
	ctx, span := tracing.StartSpan(ctx, "serviceinteraction.Repository.Insert")
	defer span.End()

	query := `
		INSERT INTO customer_service_interactions (
			interaction_id, customer_id, timestamp, channel, duration_seconds,
			reason_category, resolution_status, agent_id, sentiment_score,
			transfer_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (interaction_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query,
		fact.InteractionID, fact.CustomerID, fact.Timestamp, fact.Channel, fact.DurationSeconds,
		fact.ReasonCategory, fact.ResolutionStatus, fact.AgentID, fact.SentimentScore,
		fact.TransferCount, time.Now().UTC(),
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("interaction_id", fact.InteractionID).Error("Failed to insert service interaction")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert service interaction")
	}
	return nil
}

// ListSince returns all interactions at or after the cutoff, oldest
// first. Used to rebuild aggregation state on startup.
func (r *Repository) ListSince(ctx context.Context, since time.Time) ([]models.ServiceInteraction, error) {
	ctx, span := tracing.StartSpan(ctx, "serviceinteraction.Repository.ListSince")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("customer_service_interactions")
	sb.Where(sb.GreaterEqualThan("timestamp", since))
	sb.OrderBy("timestamp ASC")

	query, args := sb.Build()
	var facts []models.ServiceInteraction
	if err := r.db.SelectContext(ctx, &facts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list service interactions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list service interactions")
	}
	return facts, nil
}
