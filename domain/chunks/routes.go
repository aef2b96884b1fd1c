package chunks

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the chunks routes
func RegisterRoutes(e *echo.Echo, handler *Handler) {
	e.GET("/chunks/:id", handler.Get)
	e.GET("/documents/:id/chunks", handler.ListByDocument)
}
