package jobs

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the jobs routes
func RegisterRoutes(e *echo.Echo, handler *Handler) {
	e.POST("/jobs", handler.Create)
	e.GET("/jobs/stats", handler.Stats)
	e.GET("/jobs/:id", handler.Get)
	e.POST("/jobs/:id/cancel", handler.Cancel)
	e.GET("/documents/:id/jobs", handler.ListByDocument)
}
