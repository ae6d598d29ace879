package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/cmd/vault/container"
	"github.com/pixelvault/vault/cmd/vault/handlers"
)

// RegisterImageRoutes registers the image record endpoints
func RegisterImageRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewImageHandler(c.Components, c.ImageRepo, c.UploadService)

	images := e.Group("/api/v1/images")
	{
		images.GET("", h.ListImages)                 // GET /api/v1/images
		images.GET("/:id", h.GetImage)               // GET /api/v1/images/{image_id}
		images.PATCH("/:id", h.PatchImage)           // PATCH /api/v1/images/{image_id}
		images.POST("/:id/featured", h.ToggleFeatured) // POST /api/v1/images/{image_id}/featured
		images.DELETE("/:id", h.DeleteImage)         // DELETE /api/v1/images/{image_id}
	}
}
