package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/cmd/vault/container"
	"github.com/pixelvault/vault/cmd/vault/handlers"
)

// RegisterUploadRoutes registers the tracked upload lifecycle
func RegisterUploadRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewUploadHandler(c.Components, c.UploadService)

	uploads := e.Group("/api/v1/uploads")
	{
		uploads.POST("", h.BeginUpload)              // POST /api/v1/uploads
		uploads.GET("/:id", h.GetUpload)             // GET /api/v1/uploads/{upload_id}
		uploads.POST("/:id/complete", h.CompleteUpload) // POST /api/v1/uploads/{upload_id}/complete
		uploads.POST("/:id/fail", h.FailUpload)      // POST /api/v1/uploads/{upload_id}/fail
	}
}
