package chunks

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/quarry-ai/quarry/pkg/apperror"
)

// Handler handles HTTP requests for chunks
type Handler struct {
	svc *Service
}

// NewHandler creates a new chunks handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Get handles GET /chunks/:id
func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return apperror.NewBadRequest("invalid chunk ID")
	}

	chunk, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, chunk)
}

// ListByDocument handles GET /documents/:id/chunks?page&size
func (h *Handler) ListByDocument(c echo.Context) error {
	documentID := c.Param("id")
	if _, err := uuid.Parse(documentID); err != nil {
		return apperror.NewBadRequest("invalid document ID")
	}

	page, err := queryInt(c, "page", 1)
	if err != nil {
		return err
	}
	size, err := queryInt(c, "size", 20)
	if err != nil {
		return err
	}

	result, err := h.svc.ListByDocument(c.Request().Context(), documentID, page, size)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NewBadRequest("invalid " + name + " parameter")
	}
	return v, nil
}
