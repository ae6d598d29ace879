package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/cmd/vault/service"
	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/bootstrap"
)

// AnalyzeHandler runs analysis synchronously. The background worker
// covers the normal pipeline; this endpoint re-analyzes an existing
// record on demand.
type AnalyzeHandler struct {
	components *bootstrap.Components
	uploads    *service.UploadService
}

// NewAnalyzeHandler creates a new analyze handler
func NewAnalyzeHandler(components *bootstrap.Components, uploads *service.UploadService) *AnalyzeHandler {
	return &AnalyzeHandler{
		components: components,
		uploads:    uploads,
	}
}

// AnalyzeImage analyzes a stored image and persists the result
// POST /analyze-image
func (h *AnalyzeHandler) AnalyzeImage(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		ImageID string `json:"imageId"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if req.ImageID == "" {
		return respondError(c, apperr.Validation("imageId is required"))
	}

	id, err := uuid.Parse(req.ImageID)
	if err != nil {
		return respondError(c, apperr.Validation("invalid imageId"))
	}

	analysis, err := h.uploads.AnalyzeImage(ctx, id, "")
	if err != nil {
		h.components.Logger.Error("synchronous analysis failed", "image_id", req.ImageID, "error", err)
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":  "analysis completed",
		"analysis": analysis,
	})
}
