package quality

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	qualityrepo "github.com/Ramsey-B/clover/internal/repositories/dataquality"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/quality"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var knownSources = func() map[string]bool {
	m := make(map[string]bool, len(models.SourceNames))
	for _, name := range models.SourceNames {
		m[name] = true
	}
	return m
}()

// Handler serves the data quality endpoints.
type Handler struct {
	gate      *quality.Gate
	repo      *qualityrepo.Repository
	processor *processor.Processor
}

// NewHandler creates a data quality handler
func NewHandler(gate *quality.Gate, repo *qualityrepo.Repository, proc *processor.Processor) *Handler {
	return &Handler{gate: gate, repo: repo, processor: proc}
}

// Register registers data quality routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:source/metrics", h.ListMetrics)
	g.GET("/:source/status", h.GetStatus)
	g.POST("/:source/resume", h.Resume)
}

// ListMetrics returns recent quality check results for a data source.
func (h *Handler) ListMetrics(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "quality_handler.ListMetrics")
	defer span.End()

	source := c.Param("source")
	if !knownSources[source] {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "unknown data source %s", source)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	metrics, err := h.repo.ListBySource(ctx, source, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data_source": source,
		"metrics":     metrics,
	})
}

// GetStatus reports whether a data source is currently suspended.
func (h *Handler) GetStatus(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "quality_handler.GetStatus")
	defer span.End()

	source := c.Param("source")
	if !knownSources[source] {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "unknown data source %s", source)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data_source": source,
		"suspended":   h.gate.Suspended(source),
	})
}

// Resume lifts a suspension and replays quarantined events through the
// pipeline in arrival order.
func (h *Handler) Resume(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "quality_handler.Resume")
	defer span.End()

	source := c.Param("source")
	if !knownSources[source] {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "unknown data source %s", source)
	}

	replayed, err := h.gate.Resume(ctx, source, h.processor.ReplayQuarantined)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data_source": source,
		"replayed":    replayed,
	})
}
