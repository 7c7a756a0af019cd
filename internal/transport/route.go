package transport

import (
	"github.com/labstack/echo/v4"

	"github.com/beanbocchi/stowage/internal/service"
)

type Handler struct {
	svc *service.Service
}

func SetupRoute(e *echo.Echo, svc *service.Service) {
	h := &Handler{svc: svc}
	api := e.Group("/api/v1")

	api.PUT("/objects/*", h.Push)
	api.GET("/objects/*", h.Pull)
	api.DELETE("/objects/*", h.Delete)
	api.GET("/uploads", h.ListUploads)
	api.GET("/uploads/:id", h.GetUpload)
}
