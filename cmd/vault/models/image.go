package models

import (
	"time"

	"github.com/google/uuid"
)

// ImageRecord represents one uploaded asset.
// Maps to: images table
type ImageRecord struct {
	// Assigned by the metadata store on insert
	ID uuid.UUID `db:"id" json:"id"`

	// Principal identifier; immutable after creation
	Owner string `db:"owner" json:"owner"`

	// Object path in storage, format {owner}/{epochMillis}-{sanitizedFileName}.
	// Unique forever: the millis component is monotonic, so keys are never
	// reused even after deletion.
	StorageKey string `db:"storage_key" json:"storage_key"`

	// Captured from the source file at upload time; immutable
	FileName string `db:"file_name" json:"file_name"`
	FileSize int64  `db:"file_size" json:"file_size"`
	MimeType string `db:"mime_type" json:"mime_type"`

	// Lowercase, deduplicated, written by the analysis step.
	// Re-running analysis replaces, never appends.
	Tags []string `db:"tags" json:"tags"`

	// Nil until analysis completes
	Description *string `db:"description" json:"description,omitempty"`

	// User-toggleable at any time, independent of analysis state
	IsFeatured bool `db:"is_featured" json:"is_featured"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DescriptionText returns the description or "" when analysis is pending.
func (r *ImageRecord) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}
