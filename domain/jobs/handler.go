package jobs

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/quarry-ai/quarry/pkg/apperror"
)

// Handler handles HTTP requests for processing jobs
type Handler struct {
	svc    *Service
	engine *Engine
}

// NewHandler creates a new jobs handler
func NewHandler(svc *Service, engine *Engine) *Handler {
	return &Handler{svc: svc, engine: engine}
}

// createRequest is the POST /jobs body.
type createRequest struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Kind       string `json:"kind"`
	Priority   int    `json:"priority"`
	Parameters JSON   `json:"parameters"`
}

// Create handles POST /jobs
func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	job, err := h.svc.Create(c.Request().Context(), CreateJobOptions{
		DocumentID: req.DocumentID,
		UserID:     req.UserID,
		Kind:       JobKind(req.Kind),
		Priority:   req.Priority,
		Parameters: req.Parameters,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, job)
}

// Get handles GET /jobs/:id
func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return apperror.NewBadRequest("invalid job ID")
	}

	job, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, job)
}

// ListByDocument handles GET /documents/:id/jobs
func (h *Handler) ListByDocument(c echo.Context) error {
	documentID := c.Param("id")
	if _, err := uuid.Parse(documentID); err != nil {
		return apperror.NewBadRequest("invalid document ID")
	}

	out, err := h.svc.ListByDocument(c.Request().Context(), documentID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"jobs": out})
}

// Cancel handles POST /jobs/:id/cancel
func (h *Handler) Cancel(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return apperror.NewBadRequest("invalid job ID")
	}

	if err := h.svc.Cancel(c.Request().Context(), id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": string(StatusCancelled)})
}

// Stats handles GET /jobs/stats
func (h *Handler) Stats(c echo.Context) error {
	counts, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"queue":  counts,
		"engine": h.engine.Metrics(),
	})
}
