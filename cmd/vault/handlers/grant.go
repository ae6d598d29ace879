package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/cmd/vault/service"
	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/bootstrap"
)

// GrantHandler exposes the raw presigning endpoints. The gallery client
// talks to object storage directly with these grants; credentials stay
// server-side.
type GrantHandler struct {
	components *bootstrap.Components
	store      service.ObjectStore
}

// NewGrantHandler creates a new grant handler
func NewGrantHandler(components *bootstrap.Components, store service.ObjectStore) *GrantHandler {
	return &GrantHandler{
		components: components,
		store:      store,
	}
}

// PresignPut issues a presigned upload URL
// POST /presign-put
func (h *GrantHandler) PresignPut(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
		UserID      string `json:"userId"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	grant, err := h.store.IssueUploadGrant(ctx, req.UserID, req.FileName, req.ContentType)
	if err != nil {
		h.components.Logger.Error("failed to issue upload grant",
			"file_name", req.FileName,
			"error", err)
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"url":    grant.URL,
		"key":    grant.Key,
		"bucket": grant.Bucket,
	})
}

// PresignGet issues a presigned download URL for an existing object
// POST /presign-get
func (h *GrantHandler) PresignGet(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Key string `json:"key"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if req.Key == "" {
		return respondError(c, apperr.Validation("key is required"))
	}

	url, err := h.store.IssueDownloadGrant(ctx, req.Key)
	if err != nil {
		h.components.Logger.Error("failed to issue download grant", "key", req.Key, "error", err)
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"url": url,
	})
}

// DeleteObject removes an object from storage
// POST /delete-object
func (h *GrantHandler) DeleteObject(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Key string `json:"key"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if req.Key == "" {
		return respondError(c, apperr.Validation("key is required"))
	}

	if err := h.store.DeleteObject(ctx, req.Key); err != nil {
		h.components.Logger.Error("failed to delete object", "key", req.Key, "error", err)
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "object deleted",
	})
}
