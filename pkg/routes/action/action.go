package action

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	actionrepo "github.com/Ramsey-B/clover/internal/repositories/retentionaction"
	"github.com/Ramsey-B/clover/pkg/actions"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// Handler serves retention action endpoints, including the fulfillment
// callback that drives terminal transitions.
type Handler struct {
	engine *actions.Engine
	repo   *actionrepo.Repository
}

// NewHandler creates an action handler
func NewHandler(engine *actions.Engine, repo *actionrepo.Repository) *Handler {
	return &Handler{engine: engine, repo: repo}
}

// Register registers action routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:action_id", h.Get)
	g.POST("/:action_id/outcome", h.Outcome)
}

// RegisterCustomer registers the customer-scoped history route
func (h *Handler) RegisterCustomer(g *echo.Group) {
	g.GET("/:customer_id/actions", h.ListByCustomer)
}

// Get returns one retention action.
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "action_handler.Get")
	defer span.End()

	action, err := h.repo.GetByID(ctx, c.Param("action_id"))
	if err != nil {
		if errors.Is(err, actions.ErrActionNotFound) {
			return httperror.NewHTTPError(http.StatusNotFound, "action not found")
		}
		return err
	}

	return c.JSON(http.StatusOK, action)
}

// Outcome is the fulfillment callback: it moves a pending action to
// executed or rejected and records the observed outcome.
func (h *Handler) Outcome(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "action_handler.Outcome")
	defer span.End()

	var req models.ActionOutcomeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	action, err := h.engine.Resolve(ctx, c.Param("action_id"), &req)
	if err != nil {
		switch {
		case errors.Is(err, actions.ErrActionNotFound):
			return httperror.NewHTTPError(http.StatusNotFound, "action not found")
		case errors.Is(err, actions.ErrActionTerminal):
			return httperror.NewHTTPError(http.StatusConflict, "action is already in a terminal state")
		default:
			return err
		}
	}

	return c.JSON(http.StatusOK, action)
}

// ListByCustomer returns a customer's action history.
func (h *Handler) ListByCustomer(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "action_handler.ListByCustomer")
	defer span.End()

	customerID := c.Param("customer_id")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	result, err := h.repo.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"customer_id": customerID,
		"actions":     result,
	})
}
