package webevent

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
	"event_id", "customer_id", "session_id", "timestamp", "event_name",
	"page_url", "device_category", "app_version", "engagement_time_msec",
	"created_at",
}

// Repository handles the append-only web analytics fact table.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new web analytics repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Insert appends one web analytics fact, ignoring redelivered events.
func (r *Repository) Insert(ctx context.Context, fact *models.WebAnalyticsEvent) error {
	ctx, span := tracing.StartSpan(ctx, "webevent.Repository.Insert")
	defer span.End()

	query := `
		INSERT INTO web_analytics_events (
			event_id, customer_id, session_id, timestamp, event_name,
			page_url, device_category, app_version, engagement_time_msec,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query,
		fact.EventID, fact.CustomerID, fact.SessionID, fact.Timestamp, fact.EventName,
		fact.PageURL, fact.DeviceCategory, fact.AppVersion, fact.EngagementTimeMsec,
		time.Now().UTC(),
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("event_id", fact.EventID).Error("Failed to insert web analytics event")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert web analytics event")
	}
	return nil
}

// ListSince returns all web events at or after the cutoff, oldest first.
func (r *Repository) ListSince(ctx context.Context, since time.Time) ([]models.WebAnalyticsEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "webevent.Repository.ListSince")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("web_analytics_events")
	sb.Where(sb.GreaterEqualThan("timestamp", since))
	sb.OrderBy("timestamp ASC")

	query, args := sb.Build()
	var facts []models.WebAnalyticsEvent
	if err := r.db.SelectContext(ctx, &facts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list web analytics events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list web analytics events")
	}
	return facts, nil
}
