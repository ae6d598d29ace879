package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pixelvault/vault/cmd/vault/models"
	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/db"
)

// ImageRepository handles database operations for image records
type ImageRepository struct {
	db *db.DB
}

// NewImageRepository creates a new image repository
func NewImageRepository(db *db.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

const imageColumns = `id, owner, storage_key, file_name, file_size, mime_type, tags, description, is_featured, created_at`

// Create inserts a new image record. ID and created_at are assigned by
// the store and written back into rec.
func (r *ImageRepository) Create(ctx context.Context, rec *models.ImageRecord) error {
	query := `
		INSERT INTO images (owner, storage_key, file_name, file_size, mime_type, tags, description, is_featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	err := r.db.QueryRow(ctx, query,
		rec.Owner,
		rec.StorageKey,
		rec.FileName,
		rec.FileSize,
		rec.MimeType,
		rec.Tags,
		rec.Description,
		rec.IsFeatured,
	).Scan(&rec.ID, &rec.CreatedAt)

	if err != nil {
		return apperr.Upstream("failed to create image record", err)
	}

	return nil
}

// GetByID retrieves an image record by ID
func (r *ImageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM images WHERE id = $1`, imageColumns)

	rec, err := scanImage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(fmt.Sprintf("image %s not found", id))
		}
		return nil, apperr.Upstream("failed to get image record", err)
	}

	return rec, nil
}

// ListByOwner retrieves all records for one owner, newest first
func (r *ImageRepository) ListByOwner(ctx context.Context, owner string) ([]*models.ImageRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM images
		WHERE owner = $1
		ORDER BY created_at DESC
	`, imageColumns)

	rows, err := r.db.Query(ctx, query, owner)
	if err != nil {
		return nil, apperr.Upstream("failed to list image records", err)
	}
	defer rows.Close()

	return collectImages(rows)
}

// Search filters one owner's records by tag containment or case-insensitive
// description substring, newest first. The query is lowercased for the tag
// comparison since tags are stored lowercase.
func (r *ImageRepository) Search(ctx context.Context, owner, query string) ([]*models.ImageRecord, error) {
	sql := fmt.Sprintf(`
		SELECT %s FROM images
		WHERE owner = $1
		  AND (lower($2) = ANY(tags) OR description ILIKE '%%' || $2 || '%%')
		ORDER BY created_at DESC
	`, imageColumns)

	rows, err := r.db.Query(ctx, sql, owner, query)
	if err != nil {
		return nil, apperr.Upstream("failed to search image records", err)
	}
	defer rows.Close()

	return collectImages(rows)
}

// UpdateAnalysis replaces tags and description. Idempotent: re-running
// analysis overwrites the previous result, it never appends.
func (r *ImageRepository) UpdateAnalysis(ctx context.Context, id uuid.UUID, description string, tags []string) error {
	query := `
		UPDATE images
		SET description = $2, tags = $3
		WHERE id = $1
	`

	if tags == nil {
		tags = []string{}
	}

	tag, err := r.db.Exec(ctx, query, id, description, tags)
	if err != nil {
		return apperr.Upstream("failed to update image analysis", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("image %s not found", id))
	}

	return nil
}

// ToggleFeatured flips the featured flag and returns the updated record
func (r *ImageRepository) ToggleFeatured(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	query := fmt.Sprintf(`
		UPDATE images
		SET is_featured = NOT is_featured
		WHERE id = $1
		RETURNING %s
	`, imageColumns)

	rec, err := scanImage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(fmt.Sprintf("image %s not found", id))
		}
		return nil, apperr.Upstream("failed to toggle featured flag", err)
	}

	return rec, nil
}

// SetFeatured sets the featured flag to an explicit value
func (r *ImageRepository) SetFeatured(ctx context.Context, id uuid.UUID, featured bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE images SET is_featured = $2 WHERE id = $1`, id, featured)
	if err != nil {
		return apperr.Upstream("failed to set featured flag", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("image %s not found", id))
	}
	return nil
}

// UpdateFileName renames the display name. The storage key never changes.
func (r *ImageRepository) UpdateFileName(ctx context.Context, id uuid.UUID, fileName string) error {
	tag, err := r.db.Exec(ctx, `UPDATE images SET file_name = $2 WHERE id = $1`, id, fileName)
	if err != nil {
		return apperr.Upstream("failed to update file name", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("image %s not found", id))
	}
	return nil
}

// Delete removes a record. Callers must have already deleted the storage
// object; the row is never removed while the object might still exist.
func (r *ImageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return apperr.Upstream("failed to delete image record", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("image %s not found", id))
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*models.ImageRecord, error) {
	rec := &models.ImageRecord{}
	err := row.Scan(
		&rec.ID,
		&rec.Owner,
		&rec.StorageKey,
		&rec.FileName,
		&rec.FileSize,
		&rec.MimeType,
		&rec.Tags,
		&rec.Description,
		&rec.IsFeatured,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func collectImages(rows pgx.Rows) ([]*models.ImageRecord, error) {
	records := make([]*models.ImageRecord, 0)
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, apperr.Upstream("failed to scan image record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Upstream("failed to read image records", err)
	}
	return records, nil
}
