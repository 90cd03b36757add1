package retentionaction

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/actions"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const uniqueViolation = "23505"

var columns = []string{
	"action_id", "customer_id", "action_type", "recommended_at", "executed_at",
	"status", "offer_details", "predicted_impact", "actual_outcome", "created_at",
}

// Repository handles retention action persistence. The partial unique
// index on (customer_id) WHERE status = 'pending' backs the
// single-pending-per-customer rule.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new retention action repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// CreatePending inserts a new pending action. Returns
// actions.ErrPendingActionExists when the customer already has one.
func (r *Repository) CreatePending(ctx context.Context, action *models.RetentionAction) error {
	ctx, span := tracing.StartSpan(ctx, "retentionaction.Repository.CreatePending")
	defer span.End()

	query := `
		INSERT INTO retention_actions (
			action_id, customer_id, action_type, recommended_at, status,
			offer_details, predicted_impact, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err := r.db.ExecContext(ctx, query,
		action.ActionID, action.CustomerID, action.ActionType, action.RecommendedAt,
		models.ActionStatusPending, action.OfferDetails, action.PredictedImpact,
		time.Now().UTC(),
	); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return actions.ErrPendingActionExists
		}
		r.logger.WithContext(ctx).WithError(err).WithField("customer_id", action.CustomerID).Error("Failed to create retention action")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create retention action")
	}
	return nil
}

// GetByID retrieves one action.
func (r *Repository) GetByID(ctx context.Context, actionID string) (*models.RetentionAction, error) {
	ctx, span := tracing.StartSpan(ctx, "retentionaction.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("retention_actions")
	sb.Where(sb.Equal("action_id", actionID))

	query, args := sb.Build()
	var action models.RetentionAction
	if err := r.db.GetContext(ctx, &action, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, actions.ErrActionNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithField("action_id", actionID).Error("Failed to get retention action")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get retention action")
	}
	return &action, nil
}

// GetLatestByCustomer returns the customer's most recent action or
// actions.ErrActionNotFound.
func (r *Repository) GetLatestByCustomer(ctx context.Context, customerID string) (*models.RetentionAction, error) {
	ctx, span := tracing.StartSpan(ctx, "retentionaction.Repository.GetLatestByCustomer")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("retention_actions")
	sb.Where(sb.Equal("customer_id", customerID))
	sb.OrderBy("recommended_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var action models.RetentionAction
	if err := r.db.GetContext(ctx, &action, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, actions.ErrActionNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithField("customer_id", customerID).Error("Failed to get latest retention action")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get latest retention action")
	}
	return &action, nil
}

// Transition moves a pending action to a terminal state. The pending
// precondition is enforced in the UPDATE itself so a raced terminal
// transition loses cleanly.
func (r *Repository) Transition(ctx context.Context, actionID, status string, executedAt *time.Time, actualOutcome *string) (*models.RetentionAction, error) {
	ctx, span := tracing.StartSpan(ctx, "retentionaction.Repository.Transition")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("retention_actions")
	assigns := []string{sb.Assign("status", status)}
	if executedAt != nil {
		assigns = append(assigns, sb.Assign("executed_at", *executedAt))
	}
	if actualOutcome != nil {
		assigns = append(assigns, sb.Assign("actual_outcome", *actualOutcome))
	}
	sb.Set(assigns...)
	sb.Where(
		sb.Equal("action_id", actionID),
		sb.Equal("status", models.ActionStatusPending),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("action_id", actionID).Error("Failed to transition retention action")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to transition retention action")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, actions.ErrActionTerminal
	}

	return r.GetByID(ctx, actionID)
}

// ExpireBefore marks pending actions recommended before the cutoff as
// expired. Returns the number of rows touched.
func (r *Repository) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "retentionaction.Repository.ExpireBefore")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("retention_actions")
	sb.Set(sb.Assign("status", models.ActionStatusExpired))
	sb.Where(
		sb.Equal("status", models.ActionStatusPending),
		sb.LessThan("recommended_at", cutoff),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to expire retention actions")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to expire retention actions")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// ListByCustomer returns a customer's actions, newest first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]models.RetentionAction, error) {
	ctx, span := tracing.StartSpan(ctx, "retentionaction.Repository.ListByCustomer")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("retention_actions")
	sb.Where(sb.Equal("customer_id", customerID))
	sb.OrderBy("recommended_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var result []models.RetentionAction
	if err := r.db.SelectContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("customer_id", customerID).Error("Failed to list retention actions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list retention actions")
	}
	return result, nil
}
