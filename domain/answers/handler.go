package answers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/quarry-ai/quarry/pkg/apperror"
)

// Handler handles HTTP requests for answer generation
type Handler struct {
	svc *Service
}

// NewHandler creates a new answers handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Answer handles POST /search/answer
func (h *Handler) Answer(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	resp, err := h.svc.Answer(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}
