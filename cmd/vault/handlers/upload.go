package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/cmd/vault/middleware"
	"github.com/pixelvault/vault/cmd/vault/service"
	"github.com/pixelvault/vault/common/bootstrap"
)

// UploadHandler drives the tracked upload pipeline
type UploadHandler struct {
	components *bootstrap.Components
	uploads    *service.UploadService
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(components *bootstrap.Components, uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{
		components: components,
		uploads:    uploads,
	}
}

// BeginUpload starts a tracked upload and returns the grant
// POST /api/v1/uploads
func (h *UploadHandler) BeginUpload(c echo.Context) error {
	ctx := c.Request().Context()

	owner, err := middleware.RequireOwner(c)
	if err != nil {
		return err
	}

	var req struct {
		FileName    string `json:"file_name"`
		ContentType string `json:"content_type"`
		FileSize    int64  `json:"file_size"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	result, err := h.uploads.BeginUpload(ctx, service.BeginUploadRequest{
		Owner:       owner,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		FileSize:    req.FileSize,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// CompleteUpload records the finished direct upload and queues analysis
// POST /api/v1/uploads/:id/complete
func (h *UploadHandler) CompleteUpload(c echo.Context) error {
	ctx := c.Request().Context()
	uploadID := c.Param("id")

	rec, err := h.uploads.CompleteUpload(ctx, uploadID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"upload_id": uploadID,
		"image":     rec,
	})
}

// FailUpload marks a tracked upload as failed
// POST /api/v1/uploads/:id/fail
func (h *UploadHandler) FailUpload(c echo.Context) error {
	ctx := c.Request().Context()
	uploadID := c.Param("id")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if req.Reason == "" {
		req.Reason = "client reported failure"
	}

	if err := h.uploads.FailUpload(ctx, uploadID, req.Reason); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"upload_id": uploadID,
		"state":     "FAILED",
	})
}

// GetUpload returns the current pipeline state
// GET /api/v1/uploads/:id
func (h *UploadHandler) GetUpload(c echo.Context) error {
	ctx := c.Request().Context()
	uploadID := c.Param("id")

	upload, err := h.uploads.GetUpload(ctx, uploadID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, upload)
}
