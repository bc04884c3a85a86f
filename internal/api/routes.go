package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RegisterRoutes mounts the HTTP surface on an echo instance
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/health", h.Health)

	e.POST("/task", h.CreateTask)
	e.GET("/task/:jobId", h.GetTask)
	e.GET("/task/by-identifier/:identifier", h.GetTaskByIdentifier)

	e.POST("/process", h.StartProcess)
	e.POST("/process/stop", h.StopProcess)

	e.POST("/search_code", h.SearchCode)

	e.GET("/queue", h.GetQueue)
}
