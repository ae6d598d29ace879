package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pixelvault/vault/cmd/vault/models"
	rediscommon "github.com/pixelvault/vault/common/redis"
)

// UploadStateStore persists the per-upload lifecycle record as a Redis
// hash keyed upload:{id}, with a TTL so abandoned uploads expire on
// their own.
type UploadStateStore struct {
	redis *rediscommon.Client
	ttl   time.Duration
}

func NewUploadStateStore(redis *rediscommon.Client, ttl time.Duration) *UploadStateStore {
	return &UploadStateStore{redis: redis, ttl: ttl}
}

func uploadKey(id string) string {
	return "upload:" + id
}

// Create writes the initial record. The caller supplies a record already
// in its starting state.
func (s *UploadStateStore) Create(ctx context.Context, upload *models.Upload) error {
	now := time.Now().UTC()
	upload.CreatedAt = now
	upload.UpdatedAt = now

	key := uploadKey(upload.ID)
	fields := map[string]interface{}{
		"id":          upload.ID,
		"owner":       upload.Owner,
		"storage_key": upload.StorageKey,
		"file_name":   upload.FileName,
		"file_size":   strconv.FormatInt(upload.FileSize, 10),
		"mime_type":   upload.MimeType,
		"state":       string(upload.State),
		"created_at":  now.Format(time.RFC3339Nano),
		"updated_at":  now.Format(time.RFC3339Nano),
	}
	if err := s.redis.SetHashFields(ctx, key, fields); err != nil {
		return fmt.Errorf("failed to create upload state: %w", err)
	}
	return s.redis.Expire(ctx, key, s.ttl)
}

// SetState advances the lifecycle. Transitions are written blindly; the
// orchestrating service is responsible for only requesting legal ones.
func (s *UploadStateStore) SetState(ctx context.Context, id string, state models.UploadState) error {
	return s.update(ctx, id, map[string]interface{}{
		"state": string(state),
	})
}

// SetImageID records the metadata row created for this upload.
func (s *UploadStateStore) SetImageID(ctx context.Context, id, imageID string) error {
	return s.update(ctx, id, map[string]interface{}{
		"image_id": imageID,
	})
}

// SetError marks the upload FAILED with a reason.
func (s *UploadStateStore) SetError(ctx context.Context, id, reason string) error {
	return s.update(ctx, id, map[string]interface{}{
		"state": string(models.StateFailed),
		"error": reason,
	})
}

func (s *UploadStateStore) update(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	key := uploadKey(id)
	if err := s.redis.SetHashFields(ctx, key, fields); err != nil {
		return fmt.Errorf("failed to update upload state: %w", err)
	}
	return s.redis.Expire(ctx, key, s.ttl)
}

// Get loads the upload record, returning (nil, nil) when it has expired
// or never existed.
func (s *UploadStateStore) Get(ctx context.Context, id string) (*models.Upload, error) {
	fields, err := s.redis.GetAllHash(ctx, uploadKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	upload := &models.Upload{
		ID:         fields["id"],
		Owner:      fields["owner"],
		StorageKey: fields["storage_key"],
		FileName:   fields["file_name"],
		MimeType:   fields["mime_type"],
		State:      models.UploadState(fields["state"]),
		ImageID:    fields["image_id"],
		Error:      fields["error"],
	}
	if raw := fields["file_size"]; raw != "" {
		if size, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			upload.FileSize = size
		}
	}
	if raw := fields["created_at"]; raw != "" {
		if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			upload.CreatedAt = t
		}
	}
	if raw := fields["updated_at"]; raw != "" {
		if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			upload.UpdatedAt = t
		}
	}
	return upload, nil
}
