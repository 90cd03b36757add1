package model

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	modelrepo "github.com/Ramsey-B/clover/internal/repositories/modelmetadata"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scorer"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// Handler serves the model registry endpoints.
type Handler struct {
	repo   *modelrepo.Repository
	scorer *scorer.Scorer
}

// NewHandler creates a model registry handler
func NewHandler(repo *modelrepo.Repository, s *scorer.Scorer) *Handler {
	return &Handler{repo: repo, scorer: s}
}

// Register registers model registry routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/active", h.GetActive)
	g.POST("/:model_id/activate", h.Activate)
}

// List returns registered model versions.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "model_handler.List")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	result, err := h.repo.List(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"models": result})
}

// Create registers a new model version. The parameters must parse as a
// valid scoring function before anything is persisted.
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "model_handler.Create")
	defer span.End()

	var req models.RegisterModelRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if _, err := scorer.ParseModel(req.Parameters); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid model parameters: %v", err)
	}

	metadata := &models.ModelMetadata{
		ModelID:            uuid.NewString(),
		ModelName:          req.ModelName,
		ModelVersion:       req.ModelVersion,
		ModelType:          req.ModelType,
		TrainingTimestamp:  req.TrainingTimestamp,
		PerformanceMetrics: req.PerformanceMetrics,
		FeatureList:        req.FeatureList,
		Parameters:         req.Parameters,
	}

	if err := h.repo.Create(ctx, metadata); err != nil {
		return err
	}

	if req.Activate {
		if err := h.activate(ctx, metadata.ModelID); err != nil {
			return err
		}
		metadata.IsActive = true
	}

	return c.JSON(http.StatusCreated, metadata)
}

// GetActive returns the currently active model version.
func (h *Handler) GetActive(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "model_handler.GetActive")
	defer span.End()

	metadata, err := h.repo.GetActive(ctx)
	if err != nil {
		return err
	}
	if metadata == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "no active model")
	}

	return c.JSON(http.StatusOK, metadata)
}

// Activate atomically switches the active model version.
func (h *Handler) Activate(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "model_handler.Activate")
	defer span.End()

	if err := h.activate(ctx, c.Param("model_id")); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "activated"})
}

func (h *Handler) activate(ctx context.Context, modelID string) error {
	if err := h.repo.Activate(ctx, modelID); err != nil {
		return err
	}
	return h.scorer.Refresh(ctx)
}
