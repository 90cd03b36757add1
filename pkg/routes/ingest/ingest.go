package ingest

import (
	"io"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// sources maps the URL segment to the canonical source event type.
var sources = map[string]models.EventType{
	"service-interactions": models.EventTypeServiceInteraction,
	"stb-telemetry":        models.EventTypeTelemetry,
	"web-analytics":        models.EventTypeWebAnalytics,
	"billing":              models.EventTypeBilling,
}

// Handler is the HTTP event intake. The Kafka consumers are the primary
// path; this exists for backfills and testing.
type Handler struct {
	processor *processor.Processor
}

// NewHandler creates an ingest handler
func NewHandler(p *processor.Processor) *Handler {
	return &Handler{processor: p}
}

// Register registers ingest routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/:source", h.Ingest)
}

// Ingest accepts one raw event for a named source.
func (h *Handler) Ingest(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ingest_handler.Ingest")
	defer span.End()

	eventType, ok := sources[c.Param("source")]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "unknown source %q", c.Param("source"))
	}

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(payload) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "request body is required")
	}

	if err := h.processor.Ingest(ctx, eventType, payload); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}
