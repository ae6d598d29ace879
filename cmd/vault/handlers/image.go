package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/cmd/vault/middleware"
	"github.com/pixelvault/vault/cmd/vault/repository"
	"github.com/pixelvault/vault/cmd/vault/service"
	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/bootstrap"
)

// ImageHandler serves the stored image records
type ImageHandler struct {
	components *bootstrap.Components
	repo       *repository.ImageRepository
	uploads    *service.UploadService
}

// NewImageHandler creates a new image handler
func NewImageHandler(components *bootstrap.Components, repo *repository.ImageRepository, uploads *service.UploadService) *ImageHandler {
	return &ImageHandler{
		components: components,
		repo:       repo,
		uploads:    uploads,
	}
}

// ListImages returns all images for the owner, newest first
// GET /api/v1/images
func (h *ImageHandler) ListImages(c echo.Context) error {
	ctx := c.Request().Context()

	owner, err := middleware.RequireOwner(c)
	if err != nil {
		return err
	}

	images, err := h.repo.ListByOwner(ctx, owner)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"images": images,
	})
}

// GetImage returns one image record
// GET /api/v1/images/:id
func (h *ImageHandler) GetImage(c echo.Context) error {
	ctx := c.Request().Context()

	owner, err := middleware.RequireOwner(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, apperr.Validation("invalid image id"))
	}

	rec, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	if rec.Owner != owner {
		return respondError(c, apperr.Forbidden("image belongs to a different owner"))
	}

	return c.JSON(http.StatusOK, rec)
}

// editableImage is the merge-patchable subset of an image record.
type editableImage struct {
	FileName   string `json:"file_name"`
	IsFeatured bool   `json:"is_featured"`
}

// PatchImage applies an RFC 7386 merge patch to the editable fields
// PATCH /api/v1/images/:id
func (h *ImageHandler) PatchImage(c echo.Context) error {
	ctx := c.Request().Context()

	owner, err := middleware.RequireOwner(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, apperr.Validation("invalid image id"))
	}

	patch, err := io.ReadAll(c.Request().Body)
	if err != nil || len(patch) == 0 {
		return respondError(c, apperr.Validation("patch body is required"))
	}

	rec, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	if rec.Owner != owner {
		return respondError(c, apperr.Forbidden("image belongs to a different owner"))
	}

	current, err := json.Marshal(editableImage{
		FileName:   rec.FileName,
		IsFeatured: rec.IsFeatured,
	})
	if err != nil {
		return respondError(c, err)
	}

	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return respondError(c, apperr.Validation("invalid merge patch"))
	}

	var edited editableImage
	if err := json.Unmarshal(merged, &edited); err != nil {
		return respondError(c, apperr.Validation("patch produced an invalid record"))
	}
	if edited.FileName == "" {
		return respondError(c, apperr.Validation("file_name cannot be empty"))
	}

	if edited.FileName != rec.FileName {
		if err := h.repo.UpdateFileName(ctx, id, edited.FileName); err != nil {
			return respondError(c, err)
		}
	}
	if edited.IsFeatured != rec.IsFeatured {
		if err := h.repo.SetFeatured(ctx, id, edited.IsFeatured); err != nil {
			return respondError(c, err)
		}
	}

	updated, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// ToggleFeatured flips the featured flag
// POST /api/v1/images/:id/featured
func (h *ImageHandler) ToggleFeatured(c echo.Context) error {
	ctx := c.Request().Context()

	owner, err := middleware.RequireOwner(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, apperr.Validation("invalid image id"))
	}

	rec, err := h.uploads.ToggleFeatured(ctx, owner, id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, rec)
}

// DeleteImage removes the object and then the metadata row
// DELETE /api/v1/images/:id
func (h *ImageHandler) DeleteImage(c echo.Context) error {
	ctx := c.Request().Context()

	owner, err := middleware.RequireOwner(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, apperr.Validation("invalid image id"))
	}

	if err := h.uploads.DeleteImage(ctx, owner, id); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "image deleted",
	})
}
