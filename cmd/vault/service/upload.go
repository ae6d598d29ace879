package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pixelvault/vault/cmd/vault/models"
	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/config"
	"github.com/pixelvault/vault/common/logger"
	"github.com/pixelvault/vault/common/ratelimit"
	"github.com/pixelvault/vault/common/telemetry"
)

// AnalyzeStream is the Redis stream carrying queued analysis tasks for
// the background worker.
const AnalyzeStream = "vault.tasks.analyze"

// ImageStore is the metadata persistence surface the pipeline needs.
type ImageStore interface {
	Create(ctx context.Context, rec *models.ImageRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error)
	UpdateAnalysis(ctx context.Context, id uuid.UUID, description string, tags []string) error
	ToggleFeatured(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UploadLimiter bounds how often a single owner may start uploads.
type UploadLimiter interface {
	CheckUploadLimit(ctx context.Context, owner string, limit int64, windowSec int) (*ratelimit.RateLimitResult, error)
}

// UploadStates is the persistence surface for in-flight upload records.
type UploadStates interface {
	Create(ctx context.Context, upload *models.Upload) error
	SetState(ctx context.Context, id string, state models.UploadState) error
	SetImageID(ctx context.Context, id, imageID string) error
	SetError(ctx context.Context, id, reason string) error
	Get(ctx context.Context, id string) (*models.Upload, error)
}

// TaskQueue enqueues background work for the analysis worker.
type TaskQueue interface {
	AddToStream(ctx context.Context, stream string, values map[string]interface{}) (string, error)
}

// BeginUploadRequest starts a new upload.
type BeginUploadRequest struct {
	Owner       string `json:"owner"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

// BeginUploadResult is what the client needs to perform the direct
// upload: the grant plus the tracking ID to poll and complete against.
type BeginUploadResult struct {
	UploadID string       `json:"upload_id"`
	Grant    *UploadGrant `json:"grant"`
}

// UploadService orchestrates the pipeline from grant issuance through
// analysis to the terminal state.
type UploadService struct {
	images    ImageStore
	store     ObjectStore
	analyzer  Analyzer
	fetcher   ByteFetcher
	states    UploadStates
	events    EventPublisher
	limiter   UploadLimiter
	tasks     TaskQueue
	telemetry *telemetry.Telemetry
	cfg       *config.Config
	log       *logger.Logger
}

func NewUploadService(
	images ImageStore,
	store ObjectStore,
	analyzer Analyzer,
	fetcher ByteFetcher,
	states UploadStates,
	events EventPublisher,
	limiter UploadLimiter,
	tasks TaskQueue,
	tel *telemetry.Telemetry,
	cfg *config.Config,
	log *logger.Logger,
) *UploadService {
	return &UploadService{
		images:    images,
		store:     store,
		analyzer:  analyzer,
		fetcher:   fetcher,
		states:    states,
		events:    events,
		limiter:   limiter,
		tasks:     tasks,
		telemetry: tel,
		cfg:       cfg,
		log:       log,
	}
}

// BeginUpload validates the request, rate limits the owner, issues an
// upload grant and leaves the upload record in UPLOADING.
func (s *UploadService) BeginUpload(ctx context.Context, req BeginUploadRequest) (*BeginUploadResult, error) {
	defer s.telemetry.RecordDuration("upload.begin", time.Now())

	if req.Owner == "" {
		return nil, apperr.Validation("owner is required")
	}
	if req.FileName == "" {
		return nil, apperr.Validation("file_name is required")
	}
	if !strings.HasPrefix(req.ContentType, "image/") {
		return nil, apperr.Validation(fmt.Sprintf("content type %q is not an image", req.ContentType))
	}
	if req.FileSize <= 0 {
		return nil, apperr.Validation("file_size must be positive")
	}
	if req.FileSize > s.cfg.Upload.MaxBytes {
		return nil, apperr.Validation(fmt.Sprintf("file size %d exceeds limit of %d bytes", req.FileSize, s.cfg.Upload.MaxBytes))
	}

	if s.limiter != nil {
		result, err := s.limiter.CheckUploadLimit(ctx, req.Owner, s.cfg.Upload.RateLimit, s.cfg.Upload.RateWindowSec)
		if err != nil {
			// Rate limiting is advisory; a Redis hiccup must not block uploads.
			s.log.Warn("rate limit check failed, allowing upload", "owner", req.Owner, "error", err)
		} else if !result.Allowed {
			return nil, apperr.Validation(fmt.Sprintf("upload rate limit exceeded, retry in %d seconds", result.RetryAfterSeconds))
		}
	}

	grant, err := s.store.IssueUploadGrant(ctx, req.Owner, req.FileName, req.ContentType)
	if err != nil {
		return nil, err
	}

	upload := &models.Upload{
		ID:         uuid.New().String(),
		Owner:      req.Owner,
		StorageKey: grant.Key,
		FileName:   req.FileName,
		FileSize:   req.FileSize,
		MimeType:   req.ContentType,
		State:      models.StateGrantRequested,
	}
	if err := s.states.Create(ctx, upload); err != nil {
		return nil, err
	}
	// Once the grant is handed back the client owns the transfer; the
	// record sits in UPLOADING until the client reports the outcome.
	if err := s.states.SetState(ctx, upload.ID, models.StateUploading); err != nil {
		return nil, err
	}

	s.log.WithUploadID(upload.ID).Info("upload grant issued",
		"owner", req.Owner,
		"key", grant.Key)

	return &BeginUploadResult{UploadID: upload.ID, Grant: grant}, nil
}

// CompleteUpload is called after the client has PUT the object. It
// writes the metadata row, queues the analysis task and moves the
// upload to ANALYZING.
func (s *UploadService) CompleteUpload(ctx context.Context, uploadID string) (*models.ImageRecord, error) {
	defer s.telemetry.RecordDuration("upload.complete", time.Now())

	upload, err := s.states.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if upload == nil {
		return nil, apperr.NotFound(fmt.Sprintf("upload %s not found or expired", uploadID))
	}
	if upload.State.Terminal() {
		return nil, apperr.Validation(fmt.Sprintf("upload %s is already %s", uploadID, upload.State))
	}

	rec := &models.ImageRecord{
		Owner:      upload.Owner,
		StorageKey: upload.StorageKey,
		FileName:   upload.FileName,
		FileSize:   upload.FileSize,
		MimeType:   upload.MimeType,
	}
	if err := s.images.Create(ctx, rec); err != nil {
		s.failUpload(ctx, uploadID, "failed to persist metadata: "+err.Error())
		return nil, err
	}

	if err := s.states.SetImageID(ctx, uploadID, rec.ID.String()); err != nil {
		return nil, err
	}
	if err := s.states.SetState(ctx, uploadID, models.StateMetadataWritten); err != nil {
		return nil, err
	}

	if err := s.events.PublishImageEvent(ctx, models.ImageEvent{
		Type:    models.EventImageCreated,
		ImageID: rec.ID.String(),
		Owner:   rec.Owner,
	}); err != nil {
		s.log.Warn("failed to publish created event", "image_id", rec.ID, "error", err)
	}

	if _, err := s.tasks.AddToStream(ctx, AnalyzeStream, map[string]interface{}{
		"upload_id": uploadID,
		"image_id":  rec.ID.String(),
		"owner":     rec.Owner,
	}); err != nil {
		// The row exists; analysis can be retried via the sync endpoint.
		s.log.Error("failed to queue analysis task", "image_id", rec.ID, "error", err)
		return rec, s.states.SetState(ctx, uploadID, models.StateMetadataWritten)
	}

	if err := s.states.SetState(ctx, uploadID, models.StateAnalyzing); err != nil {
		return nil, err
	}

	s.log.WithUploadID(uploadID).WithImageID(rec.ID.String()).Info("upload completed, analysis queued")
	return rec, nil
}

// FailUpload marks the upload FAILED with the client-reported reason.
func (s *UploadService) FailUpload(ctx context.Context, uploadID, reason string) error {
	upload, err := s.states.Get(ctx, uploadID)
	if err != nil {
		return err
	}
	if upload == nil {
		return apperr.NotFound(fmt.Sprintf("upload %s not found or expired", uploadID))
	}
	s.failUpload(ctx, uploadID, reason)
	return nil
}

func (s *UploadService) failUpload(ctx context.Context, uploadID, reason string) {
	if err := s.states.SetError(ctx, uploadID, reason); err != nil {
		s.log.Error("failed to mark upload failed", "upload_id", uploadID, "error", err)
	}
}

// GetUpload returns the current pipeline state for polling clients.
func (s *UploadService) GetUpload(ctx context.Context, uploadID string) (*models.Upload, error) {
	upload, err := s.states.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if upload == nil {
		return nil, apperr.NotFound(fmt.Sprintf("upload %s not found or expired", uploadID))
	}
	return upload, nil
}

// AnalyzeImage fetches the stored object via a download grant, runs
// analysis and persists the result. Used by the background worker and
// the synchronous analyze endpoint alike. uploadID may be empty when
// analysis is triggered outside an upload.
func (s *UploadService) AnalyzeImage(ctx context.Context, imageID uuid.UUID, uploadID string) (*Analysis, error) {
	defer s.telemetry.RecordDuration("image.analyze", time.Now())

	rec, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		if uploadID != "" {
			s.failUpload(ctx, uploadID, "image record missing: "+err.Error())
		}
		return nil, err
	}

	url, err := s.store.IssueDownloadGrant(ctx, rec.StorageKey)
	if err != nil {
		if uploadID != "" {
			s.failUpload(ctx, uploadID, "download grant failed: "+err.Error())
		}
		return nil, err
	}

	data, contentType, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		if uploadID != "" {
			s.failUpload(ctx, uploadID, "fetch failed: "+err.Error())
		}
		return nil, err
	}
	if contentType == "" {
		contentType = rec.MimeType
	}

	analysis, err := s.analyzer.Analyze(ctx, data, FileMeta{
		FileName: rec.FileName,
		MimeType: contentType,
		Size:     rec.FileSize,
	})
	if err != nil {
		if uploadID != "" {
			s.failUpload(ctx, uploadID, "analysis failed: "+err.Error())
		}
		return nil, err
	}

	if err := s.images.UpdateAnalysis(ctx, imageID, analysis.Description, analysis.Tags); err != nil {
		if uploadID != "" {
			s.failUpload(ctx, uploadID, "failed to persist analysis: "+err.Error())
		}
		return nil, err
	}

	if uploadID != "" {
		if err := s.states.SetState(ctx, uploadID, models.StateComplete); err != nil {
			s.log.Error("failed to mark upload complete", "upload_id", uploadID, "error", err)
		}
	}

	if err := s.events.PublishImageEvent(ctx, models.ImageEvent{
		Type:    models.EventImageAnalyzed,
		ImageID: imageID.String(),
		Owner:   rec.Owner,
	}); err != nil {
		s.log.Warn("failed to publish analyzed event", "image_id", imageID, "error", err)
	}

	s.log.WithImageID(imageID.String()).Info("analysis persisted",
		"tags", len(analysis.Tags))
	return analysis, nil
}

// DeleteImage removes the stored object first and only then the
// metadata row. A row must never outlive its object as a dangling
// reference; an orphaned object with no row is tolerable and logged.
func (s *UploadService) DeleteImage(ctx context.Context, owner string, imageID uuid.UUID) error {
	defer s.telemetry.RecordDuration("image.delete", time.Now())

	rec, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return err
	}
	if rec.Owner != owner {
		return apperr.Forbidden("image belongs to a different owner")
	}

	if err := s.store.DeleteObject(ctx, rec.StorageKey); err != nil {
		s.log.Error("storage delete failed, keeping metadata row",
			"image_id", imageID,
			"key", rec.StorageKey,
			"error", err)
		return err
	}

	if err := s.images.Delete(ctx, imageID); err != nil {
		// The object is gone but the row remains; the next delete attempt
		// will find RemoveObject idempotent.
		s.log.Error("metadata delete failed after storage delete",
			"image_id", imageID,
			"error", err)
		return err
	}

	if err := s.events.PublishImageEvent(ctx, models.ImageEvent{
		Type:    models.EventImageDeleted,
		ImageID: imageID.String(),
		Owner:   owner,
	}); err != nil {
		s.log.Warn("failed to publish deleted event", "image_id", imageID, "error", err)
	}

	return nil
}

// ToggleFeatured flips the featured flag and notifies listeners.
func (s *UploadService) ToggleFeatured(ctx context.Context, owner string, imageID uuid.UUID) (*models.ImageRecord, error) {
	rec, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if rec.Owner != owner {
		return nil, apperr.Forbidden("image belongs to a different owner")
	}

	updated, err := s.images.ToggleFeatured(ctx, imageID)
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishImageEvent(ctx, models.ImageEvent{
		Type:    models.EventImageUpdated,
		ImageID: imageID.String(),
		Owner:   owner,
	}); err != nil {
		s.log.Warn("failed to publish updated event", "image_id", imageID, "error", err)
	}
	return updated, nil
}
