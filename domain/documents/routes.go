package documents

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the documents routes
func RegisterRoutes(e *echo.Echo, handler *Handler) {
	e.POST("/documents", handler.Upload)
	e.GET("/documents", handler.List)
	e.GET("/documents/:id", handler.Get)
	e.DELETE("/documents/:id", handler.Delete)
}
