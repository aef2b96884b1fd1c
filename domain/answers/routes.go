package answers

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the answers routes
func RegisterRoutes(e *echo.Echo, handler *Handler) {
	e.POST("/search/answer", handler.Answer)
}
