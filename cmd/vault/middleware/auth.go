package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// OwnerKey is the context key for the authenticated owner
	OwnerKey ContextKey = "owner"
)

// ExtractOwner pulls the X-User-ID header into the request context.
// Every vault record is scoped to this value; handlers that mutate or
// read records use RequireOwner.
func ExtractOwner() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			owner := c.Request().Header.Get("X-User-ID")
			if owner != "" {
				c.Set(string(OwnerKey), owner)
			}
			return next(c)
		}
	}
}

// GetOwner retrieves the owner from the request context, or "" if unset.
// Legacy endpoints accept the owner in the request body instead.
func GetOwner(c echo.Context) string {
	owner := c.Get(string(OwnerKey))
	if owner == nil {
		return ""
	}
	return owner.(string)
}

// RequireOwner ensures an owner exists in context, returning a 401
// response error when absent.
func RequireOwner(c echo.Context) (string, error) {
	owner := GetOwner(c)
	if owner == "" {
		return "", c.JSON(http.StatusUnauthorized, map[string]interface{}{
			"error": "X-User-ID header is required",
		})
	}
	return owner, nil
}
