package models

import "time"

// UploadState represents the state of one upload's pipeline.
// VALIDATING names the in-request phase before a record exists: a
// validation failure rejects the request outright, so the state is
// never persisted and clients only ever observe GRANT_REQUESTED onward.
type UploadState string

const (
	StateValidating      UploadState = "VALIDATING"
	StateGrantRequested  UploadState = "GRANT_REQUESTED"
	StateUploading       UploadState = "UPLOADING"
	StateMetadataWritten UploadState = "METADATA_WRITTEN"
	StateAnalyzing       UploadState = "ANALYZING"
	StateComplete        UploadState = "COMPLETE"
	StateFailed          UploadState = "FAILED"
)

// Terminal reports whether the state accepts no further transitions.
func (s UploadState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Upload tracks one in-flight upload through the pipeline.
// Persisted as a Redis hash with a TTL; the gallery polls it instead
// of inferring progress from fire-and-forget calls.
type Upload struct {
	ID         string      `json:"id"`
	Owner      string      `json:"owner"`
	StorageKey string      `json:"storage_key"`
	FileName   string      `json:"file_name"`
	FileSize   int64       `json:"file_size"`
	MimeType   string      `json:"mime_type"`
	State      UploadState `json:"state"`
	ImageID    string      `json:"image_id,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ImageEvent is published to vault:events:{owner} whenever a record
// changes, so connected gallery clients can refresh.
type ImageEvent struct {
	Type    string `json:"type"`
	ImageID string `json:"image_id"`
	Owner   string `json:"owner"`
}

const (
	EventImageCreated  = "image.created"
	EventImageAnalyzed = "image.analyzed"
	EventImageUpdated  = "image.updated"
	EventImageDeleted  = "image.deleted"
)
