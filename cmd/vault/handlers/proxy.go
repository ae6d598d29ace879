package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/cmd/vault/service"
	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/bootstrap"
)

// ProxyHandler streams presigned storage objects through the service so
// gallery clients never touch storage hostnames directly.
type ProxyHandler struct {
	components *bootstrap.Components
	policy     *service.ProxyPolicy
	client     *http.Client
}

// NewProxyHandler creates a new proxy handler
func NewProxyHandler(components *bootstrap.Components, policy *service.ProxyPolicy) *ProxyHandler {
	return &ProxyHandler{
		components: components,
		policy:     policy,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// ProxyImage fetches a presigned URL and streams the body back
// GET /image-proxy?url=...
func (h *ProxyHandler) ProxyImage(c echo.Context) error {
	ctx := c.Request().Context()

	raw := c.QueryParam("url")
	if raw == "" {
		return respondError(c, apperr.Validation("url query parameter is required"))
	}

	target, err := h.policy.ValidateSignedURL(raw)
	if err != nil {
		return respondError(c, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.components.Logger.Error("proxy fetch failed", "host", target.Host, "error", err)
		return respondError(c, apperr.Upstream("failed to fetch image", err))
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Upstream status passes through so expired grants surface as 403s
	// rather than opaque 500s.
	c.Response().Header().Set("Cache-Control", "private, max-age=60")
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	if resp.ContentLength >= 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(resp.ContentLength, 10))
	}
	c.Response().WriteHeader(resp.StatusCode)

	_, err = io.Copy(c.Response(), resp.Body)
	return err
}
