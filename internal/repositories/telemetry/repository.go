package telemetry

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
	"event_id", "device_id", "customer_id", "timestamp", "event_type",
	"channel_id", "content_id", "viewing_duration_seconds", "error_code",
	"buffer_events", "network_quality", "created_at",
}

// Repository handles the append-only set-top box telemetry fact table.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new telemetry repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Insert appends one telemetry fact, ignoring redelivered events.
func (r *Repository) Insert(ctx context.Context, fact *models.TelemetryEvent) error {
	ctx, span := tracing.StartSpan(ctx, "telemetry.Repository.Insert")
	defer span.End()

	query := `
		INSERT INTO stb_telemetry (
			event_id, device_id, customer_id, timestamp, event_type,
			channel_id, content_id, viewing_duration_seconds, error_code,
			buffer_events, network_quality, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (event_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query,
		fact.EventID, fact.DeviceID, fact.CustomerID, fact.Timestamp, fact.EventType,
		fact.ChannelID, fact.ContentID, fact.ViewingDurationSeconds, fact.ErrorCode,
		fact.BufferEvents, fact.NetworkQuality, time.Now().UTC(),
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("event_id", fact.EventID).Error("Failed to insert telemetry event")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert telemetry event")
	}
	return nil
}

// ListSince returns all telemetry at or after the cutoff, oldest first.
func (r *Repository) ListSince(ctx context.Context, since time.Time) ([]models.TelemetryEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "telemetry.Repository.ListSince")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("stb_telemetry")
	sb.Where(sb.GreaterEqualThan("timestamp", since))
	sb.OrderBy("timestamp ASC")

	query, args := sb.Build()
	var facts []models.TelemetryEvent
	if err := r.db.SelectContext(ctx, &facts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list telemetry events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list telemetry events")
	}
	return facts, nil
}
