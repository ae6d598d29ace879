package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/common/apperr"
)

// respondError maps service errors onto HTTP responses. Unclassified
// errors become opaque 500s so internals never leak to clients.
func respondError(c echo.Context, err error) error {
	if appErr, ok := apperr.As(err); ok {
		return c.JSON(appErr.HTTPStatus(), map[string]interface{}{
			"error": appErr.Message,
		})
	}
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": "internal server error",
	})
}
