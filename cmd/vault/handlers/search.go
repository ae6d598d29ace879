package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/cmd/vault/middleware"
	"github.com/pixelvault/vault/cmd/vault/models"
	"github.com/pixelvault/vault/cmd/vault/service"
	"github.com/pixelvault/vault/common/bootstrap"
)

// SearchHandler answers gallery queries
type SearchHandler struct {
	components *bootstrap.Components
	search     *service.SearchService
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(components *bootstrap.Components, search *service.SearchService) *SearchHandler {
	return &SearchHandler{
		components: components,
		search:     search,
	}
}

// SearchImages searches the owner's images by tag or description text,
// with an optional filter expression
// GET /search-images?query=...&userId=...&filter=...
func (h *SearchHandler) SearchImages(c echo.Context) error {
	ctx := c.Request().Context()

	owner := c.QueryParam("userId")
	if owner == "" {
		owner = middleware.GetOwner(c)
	}
	query := c.QueryParam("query")
	filter := c.QueryParam("filter")

	images, err := h.search.Search(ctx, owner, query, filter)
	if err != nil {
		return respondError(c, err)
	}
	if images == nil {
		images = []*models.ImageRecord{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"images": images,
	})
}
