package prediction

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	predictionrepo "github.com/Ramsey-B/clover/internal/repositories/prediction"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scorer"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// Handler serves scoring and prediction history endpoints.
type Handler struct {
	scorer             *scorer.Scorer
	repo               *predictionrepo.Repository
	defaultHorizonDays int
	batchMaxCustomers  int
}

// NewHandler creates a prediction handler
func NewHandler(s *scorer.Scorer, repo *predictionrepo.Repository, defaultHorizonDays, batchMaxCustomers int) *Handler {
	return &Handler{
		scorer:             s,
		repo:               repo,
		defaultHorizonDays: defaultHorizonDays,
		batchMaxCustomers:  batchMaxCustomers,
	}
}

// Register registers prediction routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/score", h.Score)
	g.POST("/score/batch", h.ScoreBatch)
}

// RegisterCustomer registers the customer-scoped history route
func (h *Handler) RegisterCustomer(g *echo.Group) {
	g.GET("/:customer_id/predictions", h.ListByCustomer)
}

// Score scores one customer on demand.
func (h *Handler) Score(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "prediction_handler.Score")
	defer span.End()

	var req models.ScoreRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.HorizonDays == 0 {
		req.HorizonDays = h.defaultHorizonDays
	}

	prediction, err := h.scorer.Score(ctx, req.CustomerID, req.HorizonDays)
	if err != nil {
		return scoringError(err)
	}

	return c.JSON(http.StatusOK, prediction)
}

// BatchScoreResponse pairs scored predictions with per-customer
// failures.
type BatchScoreResponse struct {
	Predictions []*models.Prediction `json:"predictions"`
	Failures    map[string]string    `json:"failures,omitempty"`
}

// ScoreBatch scores many customers in one call. A failure for one
// customer does not abort the rest.
func (h *Handler) ScoreBatch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "prediction_handler.ScoreBatch")
	defer span.End()

	var req models.BatchScoreRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.CustomerIDs) > h.batchMaxCustomers {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "batch size exceeds limit of %d customers", h.batchMaxCustomers)
	}
	if req.HorizonDays == 0 {
		req.HorizonDays = h.defaultHorizonDays
	}

	predictions, failures := h.scorer.ScoreBatch(ctx, req.CustomerIDs, req.HorizonDays)

	resp := BatchScoreResponse{Predictions: predictions}
	if len(failures) > 0 {
		resp.Failures = make(map[string]string, len(failures))
		for customerID, err := range failures {
			resp.Failures[customerID] = err.Error()
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// ListByCustomer returns a customer's prediction history.
func (h *Handler) ListByCustomer(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "prediction_handler.ListByCustomer")
	defer span.End()

	customerID := c.Param("customer_id")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	predictions, err := h.repo.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"customer_id": customerID,
		"predictions": predictions,
	})
}

func scoringError(err error) error {
	switch {
	case errors.Is(err, scorer.ErrFeatureUnavailable):
		return httperror.NewHTTPError(http.StatusNotFound, "no feature snapshot for customer")
	case errors.Is(err, scorer.ErrNoActiveModel):
		return httperror.NewHTTPError(http.StatusConflict, "no active model registered")
	case errors.Is(err, scorer.ErrScoringTimeout):
		return httperror.NewHTTPError(http.StatusGatewayTimeout, "scoring deadline exceeded")
	default:
		return err
	}
}
