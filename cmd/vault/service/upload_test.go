package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pixelvault/vault/cmd/vault/models"
	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/config"
	"github.com/pixelvault/vault/common/logger"
	"github.com/pixelvault/vault/common/ratelimit"
	"github.com/pixelvault/vault/common/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeImageStore keeps records in a map
type fakeImageStore struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*models.ImageRecord
	createErr error
	deleteErr error
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{records: make(map[uuid.UUID]*models.ImageRecord)}
}

func (f *fakeImageStore) Create(ctx context.Context, rec *models.ImageRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	copied := *rec
	f.records[rec.ID] = &copied
	return nil
}

func (f *fakeImageStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("image %s not found", id))
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeImageStore) UpdateAnalysis(ctx context.Context, id uuid.UUID, description string, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("image %s not found", id))
	}
	rec.Description = &description
	rec.Tags = tags
	return nil
}

func (f *fakeImageStore) ToggleFeatured(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("image %s not found", id))
	}
	rec.IsFeatured = !rec.IsFeatured
	copied := *rec
	return &copied, nil
}

func (f *fakeImageStore) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeImageStore) has(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	return ok
}

// fakeObjectStore tracks objects by key
type fakeObjectStore struct {
	mu        sync.Mutex
	objects   map[string]bool
	deleted   []string
	deleteErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string]bool)}
}

func (f *fakeObjectStore) IssueUploadGrant(ctx context.Context, ownerID, fileName, contentType string) (*UploadGrant, error) {
	key := fmt.Sprintf("%s/%d-%s", ownerID, time.Now().UnixNano(), SanitizeFileName(fileName))
	f.mu.Lock()
	f.objects[key] = true
	f.mu.Unlock()
	return &UploadGrant{
		URL:       "https://s3.test.example.com/bucket/" + key + "?X-Amz-Signature=abc",
		Key:       key,
		Bucket:    "bucket",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeObjectStore) IssueDownloadGrant(ctx context.Context, key string) (string, error) {
	return "https://s3.test.example.com/bucket/" + key + "?X-Amz-Signature=abc", nil
}

func (f *fakeObjectStore) DeleteObject(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

// fakeStateStore keeps upload records in memory and records every
// state written so tests can assert the transition sequence.
type fakeStateStore struct {
	mu      sync.Mutex
	uploads map[string]*models.Upload
	history []models.UploadState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{uploads: make(map[string]*models.Upload)}
}

func (f *fakeStateStore) Create(ctx context.Context, upload *models.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *upload
	f.uploads[upload.ID] = &copied
	f.history = append(f.history, upload.State)
	return nil
}

func (f *fakeStateStore) SetState(ctx context.Context, id string, state models.UploadState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.uploads[id]; ok {
		u.State = state
		f.history = append(f.history, state)
	}
	return nil
}

func (f *fakeStateStore) SetImageID(ctx context.Context, id, imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.uploads[id]; ok {
		u.ImageID = imageID
	}
	return nil
}

func (f *fakeStateStore) SetError(ctx context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.uploads[id]; ok {
		u.State = models.StateFailed
		u.Error = reason
		f.history = append(f.history, models.StateFailed)
	}
	return nil
}

func (f *fakeStateStore) Get(ctx context.Context, id string) (*models.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

// fakePublisher records events
type fakePublisher struct {
	mu     sync.Mutex
	events []models.ImageEvent
}

func (f *fakePublisher) PublishImageEvent(ctx context.Context, event models.ImageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeQueue records stream entries
type fakeQueue struct {
	mu      sync.Mutex
	entries []map[string]interface{}
}

func (f *fakeQueue) AddToStream(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, values)
	return "1-0", nil
}

// fakeLimiter allows or denies every check
type fakeLimiter struct {
	allowed bool
}

func (f *fakeLimiter) CheckUploadLimit(ctx context.Context, owner string, limit int64, windowSec int) (*ratelimit.RateLimitResult, error) {
	return &ratelimit.RateLimitResult{Allowed: f.allowed, Limit: limit}, nil
}

// fakeFetcher returns fixed bytes
type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, "image/png", nil
}

type pipelineFixture struct {
	svc     *UploadService
	images  *fakeImageStore
	objects *fakeObjectStore
	states  *fakeStateStore
	events  *fakePublisher
	queue   *fakeQueue
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	log := logger.New("error", "text")
	cfg := &config.Config{
		Upload: config.UploadConfig{
			MaxBytes:      10 * 1024 * 1024,
			StateTTL:      time.Hour,
			RateLimit:     60,
			RateWindowSec: 60,
		},
		Analysis: config.AnalysisConfig{MaxAttempts: 1, BackoffBase: time.Millisecond},
	}

	f := &pipelineFixture{
		images:  newFakeImageStore(),
		objects: newFakeObjectStore(),
		states:  newFakeStateStore(),
		events:  &fakePublisher{},
		queue:   &fakeQueue{},
	}
	f.svc = NewUploadService(
		f.images,
		f.objects,
		NewAnalysisService(nil, cfg, log),
		&fakeFetcher{data: []byte("image-bytes")},
		f.states,
		f.events,
		&fakeLimiter{allowed: true},
		f.queue,
		telemetry.New(log),
		cfg,
		log,
	)
	return f
}

func TestBeginUpload_Validation(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.svc.BeginUpload(ctx, BeginUploadRequest{Owner: "alice", FileName: "a.txt", ContentType: "text/plain", FileSize: 10})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "non-image content type must be rejected")

	_, err = f.svc.BeginUpload(ctx, BeginUploadRequest{Owner: "alice", FileName: "a.png", ContentType: "image/png", FileSize: 20 * 1024 * 1024})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "oversized file must be rejected")

	_, err = f.svc.BeginUpload(ctx, BeginUploadRequest{FileName: "a.png", ContentType: "image/png", FileSize: 10})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "missing owner must be rejected")
}

func TestBeginUpload_RateLimited(t *testing.T) {
	f := newPipelineFixture(t)
	f.svc.limiter = &fakeLimiter{allowed: false}

	_, err := f.svc.BeginUpload(context.Background(), BeginUploadRequest{
		Owner: "alice", FileName: "a.png", ContentType: "image/png", FileSize: 10,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestUploadPipeline_RoundTrip(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginUpload(ctx, BeginUploadRequest{
		Owner: "alice", FileName: "my beach photo.png", ContentType: "image/png", FileSize: 1024,
	})
	require.NoError(t, err)
	require.NotEmpty(t, begin.UploadID)
	require.NotEmpty(t, begin.Grant.Key)

	upload, err := f.svc.GetUpload(ctx, begin.UploadID)
	require.NoError(t, err)
	assert.Equal(t, models.StateUploading, upload.State)

	rec, err := f.svc.CompleteUpload(ctx, begin.UploadID)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Owner)
	assert.Equal(t, begin.Grant.Key, rec.StorageKey)

	upload, err = f.svc.GetUpload(ctx, begin.UploadID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAnalyzing, upload.State)
	require.Len(t, f.queue.entries, 1)

	// Drive the queued task the way the worker would
	_, err = f.svc.AnalyzeImage(ctx, rec.ID, begin.UploadID)
	require.NoError(t, err)

	upload, err = f.svc.GetUpload(ctx, begin.UploadID)
	require.NoError(t, err)
	assert.Equal(t, models.StateComplete, upload.State)

	// The record is retrievable with analysis results attached
	stored, err := f.images.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.Description)
	assert.NotEmpty(t, stored.Tags)

	// Every non-terminal transition was written, in order
	assert.Equal(t, []models.UploadState{
		models.StateGrantRequested,
		models.StateUploading,
		models.StateMetadataWritten,
		models.StateAnalyzing,
		models.StateComplete,
	}, f.states.history)

	assert.Equal(t, []string{models.EventImageCreated, models.EventImageAnalyzed}, f.events.types())
}

// fakeAnalyzer returns a fixed result
type fakeAnalyzer struct {
	result *Analysis
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, data []byte, meta FileMeta) (*Analysis, error) {
	return f.result, nil
}

func TestUploadPipeline_StoresScriptedAnalysis(t *testing.T) {
	f := newPipelineFixture(t)
	f.svc.analyzer = &fakeAnalyzer{result: &Analysis{Description: "d", Tags: []string{"red", "square"}}}
	ctx := context.Background()

	begin, err := f.svc.BeginUpload(ctx, BeginUploadRequest{
		Owner: "u1", FileName: "test image.png", ContentType: "image/png", FileSize: 68,
	})
	require.NoError(t, err)
	assert.NotContains(t, begin.Grant.Key, " ")

	rec, err := f.svc.CompleteUpload(ctx, begin.UploadID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", rec.MimeType)

	_, err = f.svc.AnalyzeImage(ctx, rec.ID, begin.UploadID)
	require.NoError(t, err)

	stored, err := f.images.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Description)
	assert.Equal(t, "d", *stored.Description)
	assert.Equal(t, []string{"red", "square"}, stored.Tags)
}

func TestCompleteUpload_UnknownUpload(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.svc.CompleteUpload(context.Background(), "missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestAnalyzeImage_FetchFailureFailsUpload(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginUpload(ctx, BeginUploadRequest{
		Owner: "alice", FileName: "a.png", ContentType: "image/png", FileSize: 10,
	})
	require.NoError(t, err)
	rec, err := f.svc.CompleteUpload(ctx, begin.UploadID)
	require.NoError(t, err)

	f.svc.fetcher = &fakeFetcher{err: errors.New("storage unreachable")}
	_, err = f.svc.AnalyzeImage(ctx, rec.ID, begin.UploadID)
	require.Error(t, err)

	upload, err := f.svc.GetUpload(ctx, begin.UploadID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, upload.State)
	assert.NotEmpty(t, upload.Error)
}

func TestDeleteImage_RemovesObjectThenRow(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginUpload(ctx, BeginUploadRequest{
		Owner: "alice", FileName: "a.png", ContentType: "image/png", FileSize: 10,
	})
	require.NoError(t, err)
	rec, err := f.svc.CompleteUpload(ctx, begin.UploadID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteImage(ctx, "alice", rec.ID))

	assert.False(t, f.images.has(rec.ID))
	assert.Contains(t, f.objects.deleted, rec.StorageKey)
	assert.Contains(t, f.events.types(), models.EventImageDeleted)
}

func TestDeleteImage_StorageFailureKeepsRow(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginUpload(ctx, BeginUploadRequest{
		Owner: "alice", FileName: "a.png", ContentType: "image/png", FileSize: 10,
	})
	require.NoError(t, err)
	rec, err := f.svc.CompleteUpload(ctx, begin.UploadID)
	require.NoError(t, err)

	f.objects.deleteErr = errors.New("storage rejected delete")
	err = f.svc.DeleteImage(ctx, "alice", rec.ID)
	require.Error(t, err)

	// The metadata row survives so the image never becomes a dangling
	// reference to a missing object.
	assert.True(t, f.images.has(rec.ID))
	assert.NotContains(t, f.events.types(), models.EventImageDeleted)
}

func TestDeleteImage_WrongOwner(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginUpload(ctx, BeginUploadRequest{
		Owner: "alice", FileName: "a.png", ContentType: "image/png", FileSize: 10,
	})
	require.NoError(t, err)
	rec, err := f.svc.CompleteUpload(ctx, begin.UploadID)
	require.NoError(t, err)

	err = f.svc.DeleteImage(ctx, "mallory", rec.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	assert.True(t, f.images.has(rec.ID))
}

func TestToggleFeatured(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginUpload(ctx, BeginUploadRequest{
		Owner: "alice", FileName: "a.png", ContentType: "image/png", FileSize: 10,
	})
	require.NoError(t, err)
	rec, err := f.svc.CompleteUpload(ctx, begin.UploadID)
	require.NoError(t, err)

	updated, err := f.svc.ToggleFeatured(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsFeatured)

	updated, err = f.svc.ToggleFeatured(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsFeatured)
}

func TestFailUpload(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginUpload(ctx, BeginUploadRequest{
		Owner: "alice", FileName: "a.png", ContentType: "image/png", FileSize: 10,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.FailUpload(ctx, begin.UploadID, "network dropped"))

	upload, err := f.svc.GetUpload(ctx, begin.UploadID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, upload.State)
	assert.Equal(t, "network dropped", upload.Error)
}
