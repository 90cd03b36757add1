package customer

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
	"customer_id", "account_created_date", "customer_segment", "plan_id",
	"monthly_recurring_revenue", "contract_end_date", "auto_renew",
	"lifetime_value", "churn_date", "created_at", "updated_at",
}

// Repository handles customer master record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new customer repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// GetByID retrieves a customer by id
func (r *Repository) GetByID(ctx context.Context, customerID string) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("customers")
	sb.Where(sb.Equal("customer_id", customerID))

	query, args := sb.Build()
	var customer models.Customer
	if err := r.db.GetContext(ctx, &customer, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "customer %s not found", customerID)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("customer_id", customerID).Error("Failed to get customer")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get customer")
	}
	return &customer, nil
}

// Upsert creates or refreshes a customer master record from the system
// of record.
func (r *Repository) Upsert(ctx context.Context, customer *models.Customer) error {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	query := `
		INSERT INTO customers (
			customer_id, account_created_date, customer_segment, plan_id,
			monthly_recurring_revenue, contract_end_date, auto_renew,
			lifetime_value, churn_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (customer_id)
		DO UPDATE SET
			customer_segment = EXCLUDED.customer_segment,
			plan_id = EXCLUDED.plan_id,
			monthly_recurring_revenue = EXCLUDED.monthly_recurring_revenue,
			contract_end_date = EXCLUDED.contract_end_date,
			auto_renew = EXCLUDED.auto_renew,
			lifetime_value = EXCLUDED.lifetime_value,
			churn_date = EXCLUDED.churn_date,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query,
		customer.CustomerID, customer.AccountCreatedDate, customer.CustomerSegment, customer.PlanID,
		customer.MonthlyRecurringRevenue, customer.ContractEndDate, customer.AutoRenew,
		customer.LifetimeValue, customer.ChurnDate, now, now,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("customer_id", customer.CustomerID).Error("Failed to upsert customer")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert customer")
	}
	return nil
}

// List retrieves customers with pagination, newest first.
func (r *Repository) List(ctx context.Context, segment *string, page, pageSize int) ([]models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("customers")
	if segment != nil {
		sb.Where(sb.Equal("customer_segment", *segment))
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var customers []models.Customer
	if err := r.db.SelectContext(ctx, &customers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list customers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list customers")
	}
	return customers, nil
}
