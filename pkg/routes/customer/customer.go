package customer

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	customerrepo "github.com/Ramsey-B/clover/internal/repositories/customer"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// UpsertCustomerRequest refreshes a customer master record from the CRM.
type UpsertCustomerRequest struct {
	AccountCreatedDate      time.Time  `json:"account_created_date" validate:"required"`
	CustomerSegment         string     `json:"customer_segment" validate:"required,oneof=residential small_business enterprise"`
	PlanID                  *string    `json:"plan_id"`
	MonthlyRecurringRevenue *float64   `json:"monthly_recurring_revenue"`
	ContractEndDate         *time.Time `json:"contract_end_date"`
	AutoRenew               bool       `json:"auto_renew"`
	LifetimeValue           *float64   `json:"lifetime_value"`
	ChurnDate               *time.Time `json:"churn_date"`
}

// Handler serves the customer master record endpoints.
type Handler struct {
	repo *customerrepo.Repository
}

// NewHandler creates a customer handler
func NewHandler(repo *customerrepo.Repository) *Handler {
	return &Handler{repo: repo}
}

// Register registers customer routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:customer_id", h.GetByID)
	g.PUT("/:customer_id", h.Upsert)
}

// List returns customers, optionally filtered by segment.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "customer_handler.List")
	defer span.End()

	var segment *string
	if s := c.QueryParam("segment"); s != "" {
		segment = &s
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	customers, err := h.repo.List(ctx, segment, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"customers": customers})
}

// GetByID returns a single customer master record.
func (h *Handler) GetByID(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "customer_handler.GetByID")
	defer span.End()

	customer, err := h.repo.GetByID(ctx, c.Param("customer_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, customer)
}

// Upsert creates or refreshes a customer master record.
func (h *Handler) Upsert(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "customer_handler.Upsert")
	defer span.End()

	var req UpsertCustomerRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	customer := &models.Customer{
		CustomerID:              c.Param("customer_id"),
		AccountCreatedDate:      req.AccountCreatedDate,
		CustomerSegment:         req.CustomerSegment,
		PlanID:                  req.PlanID,
		MonthlyRecurringRevenue: req.MonthlyRecurringRevenue,
		ContractEndDate:         req.ContractEndDate,
		AutoRenew:               req.AutoRenew,
		LifetimeValue:           req.LifetimeValue,
		ChurnDate:               req.ChurnDate,
	}

	if err := h.repo.Upsert(ctx, customer); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, customer)
}
