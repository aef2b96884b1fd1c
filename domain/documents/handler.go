package documents

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/quarry-ai/quarry/pkg/apperror"
)

// Handler handles HTTP requests for documents
type Handler struct {
	svc *Service
}

// NewHandler creates a new documents handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Upload handles POST /documents (multipart: file, user_id)
func (h *Handler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return apperror.NewBadRequest("a file field is required")
	}
	userID := c.FormValue("user_id")

	f, err := fileHeader.Open()
	if err != nil {
		return apperror.NewBadRequest("unreadable file upload")
	}
	defer f.Close()

	doc, err := h.svc.Upload(c.Request().Context(), UploadOptions{
		UserID:   userID,
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  f,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, doc)
}

// Get handles GET /documents/:id
func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return apperror.NewBadRequest("invalid document ID")
	}

	doc, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, doc)
}

// List handles GET /documents?user_id=
func (h *Handler) List(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if _, err := uuid.Parse(userID); err != nil {
		return apperror.NewBadRequest("a valid user_id parameter is required")
	}

	docs, err := h.svc.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"documents": docs})
}

// Delete handles DELETE /documents/:id
func (h *Handler) Delete(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return apperror.NewBadRequest("invalid document ID")
	}

	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
