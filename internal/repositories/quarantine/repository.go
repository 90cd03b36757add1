package quarantine

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
	"id", "data_source", "customer_id", "payload", "quarantined_at", "replayed_at",
}

// Repository holds back raw events for suspended sources. Rows are
// never deleted; replay stamps replayed_at.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new quarantine repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create quarantines one raw event.
func (r *Repository) Create(ctx context.Context, event *models.QuarantinedEvent) error {
	ctx, span := tracing.StartSpan(ctx, "quarantine.Repository.Create")
	defer span.End()

	query := `
		INSERT INTO quarantined_events (id, data_source, customer_id, payload, quarantined_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.db.ExecContext(ctx, query,
		event.ID, event.DataSource, event.CustomerID, event.Payload, event.QuarantinedAt,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("data_source", event.DataSource).Error("Failed to quarantine event")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to quarantine event")
	}
	return nil
}

// ListUnreplayed returns quarantined events awaiting replay, oldest
// first so replay preserves source order.
func (r *Repository) ListUnreplayed(ctx context.Context, dataSource string, limit int) ([]*models.QuarantinedEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "quarantine.Repository.ListUnreplayed")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("quarantined_events")
	sb.Where(
		sb.Equal("data_source", dataSource),
		sb.IsNull("replayed_at"),
	)
	sb.OrderBy("quarantined_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var events []*models.QuarantinedEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("data_source", dataSource).Error("Failed to list quarantined events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list quarantined events")
	}
	return events, nil
}

// MarkReplayed stamps a quarantined event as replayed.
func (r *Repository) MarkReplayed(ctx context.Context, id string, replayedAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "quarantine.Repository.MarkReplayed")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("quarantined_events")
	sb.Set(sb.Assign("replayed_at", replayedAt))
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("replayed_at"),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to mark quarantined event replayed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark quarantined event replayed")
	}
	return nil
}
