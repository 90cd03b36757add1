package billingevent

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
	"event_id", "event_type", "customer_id", "timestamp", "transaction_id",
	"amount", "payment_method", "billing_cycle_day", "account_balance",
	"days_overdue", "created_at",
}

// Repository handles the append-only billing event fact table.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new billing event repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Insert appends one billing fact. The transaction id carries dedup
// identity for billing, so conflicts there are ignored too.
func (r *Repository) Insert(ctx context.Context, fact *models.BillingEvent) error {
	ctx, span := tracing.StartSpan(ctx, "billingevent.Repository.Insert")
	defer span.End()

	query := `
		INSERT INTO billing_events (
			event_id, event_type, customer_id, timestamp, transaction_id,
			amount, payment_method, billing_cycle_day, account_balance,
			days_overdue, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query,
		fact.EventID, fact.EventType, fact.CustomerID, fact.Timestamp, fact.TransactionID,
		fact.Amount, fact.PaymentMethod, fact.BillingCycleDay, fact.AccountBalance,
		fact.DaysOverdue, time.Now().UTC(),
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("transaction_id", fact.TransactionID).Error("Failed to insert billing event")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert billing event")
	}
	return nil
}

// ListSince returns all billing events at or after the cutoff, oldest
// first.
func (r *Repository) ListSince(ctx context.Context, since time.Time) ([]models.BillingEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "billingevent.Repository.ListSince")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("billing_events")
	sb.Where(sb.GreaterEqualThan("timestamp", since))
	sb.OrderBy("timestamp ASC")

	query, args := sb.Build()
	var facts []models.BillingEvent
	if err := r.db.SelectContext(ctx, &facts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list billing events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list billing events")
	}
	return facts, nil
}
