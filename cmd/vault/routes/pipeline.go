package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/cmd/vault/container"
	"github.com/pixelvault/vault/cmd/vault/handlers"
)

// RegisterPipelineRoutes registers the direct pipeline endpoints the
// gallery client calls by name: presigning, analysis, proxying and
// search.
func RegisterPipelineRoutes(e *echo.Echo, c *container.Container) {
	grants := handlers.NewGrantHandler(c.Components, c.StorageService)
	analyze := handlers.NewAnalyzeHandler(c.Components, c.UploadService)
	proxy := handlers.NewProxyHandler(c.Components, c.ProxyPolicy)
	search := handlers.NewSearchHandler(c.Components, c.SearchService)

	e.POST("/presign-put", grants.PresignPut)
	e.POST("/presign-get", grants.PresignGet)
	e.POST("/delete-object", grants.DeleteObject)
	e.POST("/analyze-image", analyze.AnalyzeImage)
	e.GET("/image-proxy", proxy.ProxyImage)
	e.GET("/search-images", search.SearchImages)
}
