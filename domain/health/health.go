// Package health exposes the readiness of the retrieval dependencies.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/quarry-ai/quarry/internal/vectorindex"
	"github.com/quarry-ai/quarry/pkg/embeddings"
	"github.com/quarry-ai/quarry/pkg/llm"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// Module provides health dependencies via fx
var Module = fx.Module("health",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// Status reports one dependency.
type Status struct {
	Status         string `json:"status"`
	ResponseTimeMS int64  `json:"response_time_ms,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// Report is the full health response.
type Report struct {
	Status      string `json:"status"`
	VectorIndex Status `json:"vector_index"`
	Embeddings  Status `json:"embeddings"`
	LLM         Status `json:"llm"`
	PointCount  int    `json:"point_count"`
}

// Handler serves the retrieval health check.
type Handler struct {
	index    *vectorindex.Index
	embedder embeddings.Client
	provider llm.Provider
	log      *slog.Logger
}

// NewHandler creates a new health handler
func NewHandler(index *vectorindex.Index, embedder embeddings.Client, provider llm.Provider, log *slog.Logger) *Handler {
	return &Handler{
		index:    index,
		embedder: embedder,
		provider: provider,
		log:      log.With(logger.Scope("health")),
	}
}

// Check handles GET /search/health
func (h *Handler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	report := &Report{Status: "ok"}

	start := time.Now()
	count, err := h.index.Count(ctx)
	report.VectorIndex.ResponseTimeMS = time.Since(start).Milliseconds()
	if err != nil {
		report.Status = "degraded"
		report.VectorIndex.Status = "down"
		report.VectorIndex.Detail = err.Error()
		h.log.Warn("vector index health check failed", logger.Error(err))
	} else {
		report.VectorIndex.Status = "ok"
		report.PointCount = count
	}

	if h.embedder.IsEnabled() {
		report.Embeddings.Status = "ok"
	} else {
		report.Status = "degraded"
		report.Embeddings.Status = "disabled"
	}

	if h.provider.IsConfigured() {
		report.LLM.Status = "ok"
	} else {
		report.Status = "degraded"
		report.LLM.Status = "disabled"
	}

	code := http.StatusOK
	if report.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, report)
}

// RegisterRoutes registers the health routes
func RegisterRoutes(e *echo.Echo, handler *Handler) {
	e.GET("/health", liveness)
	e.GET("/search/health", handler.Check)
}

// liveness is the plain process-up probe.
func liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
