package search

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/quarry-ai/quarry/pkg/apperror"
)

// Handler handles HTTP requests for search
type Handler struct {
	svc *Service
}

// NewHandler creates a new search handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Search handles POST /search
func (h *Handler) Search(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	resp, err := h.svc.Search(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}
