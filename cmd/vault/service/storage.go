package service

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/cache"
	"github.com/pixelvault/vault/common/config"
	"github.com/pixelvault/vault/common/logger"
)

// UploadGrant is a time-bounded capability for one PUT of one object
type UploadGrant struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	Bucket    string    `json:"bucket"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ObjectStore issues scoped, time-limited credentials for single objects
// and deletes objects by key. Storage credentials never leave the process.
type ObjectStore interface {
	IssueUploadGrant(ctx context.Context, ownerID, fileName, contentType string) (*UploadGrant, error)
	IssueDownloadGrant(ctx context.Context, key string) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// StorageService implements ObjectStore over an S3-compatible backend
type StorageService struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
	cache      cache.Cache
	log        *logger.Logger

	// Guards key-millis monotonicity: two uploads in the same millisecond
	// must not derive the same storage key.
	mu         sync.Mutex
	lastMillis int64
}

// NewStorageService creates the object store gateway. When credentials are
// absent the service still constructs, but every operation reports
// NotConfigured; the always-on deployment rejects this at startup instead
// via config.RequireStorage.
func NewStorageService(cfg *config.Config, grantCache cache.Cache, log *logger.Logger) (*StorageService, error) {
	s := &StorageService{
		bucket:     cfg.Storage.Bucket,
		presignTTL: cfg.Storage.PresignTTL,
		cache:      grantCache,
		log:        log,
	}

	if err := cfg.RequireStorage(); err != nil {
		log.Warn("object storage not configured, presign operations will fail per-request", "error", err)
		return s, nil
	}

	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
		Region: cfg.Storage.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	s.client = client
	log.Info("storage client initialized", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)
	return s, nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFileName replaces every character outside [a-zA-Z0-9._-] with
// an underscore so the name is safe inside a storage key and a URL.
func SanitizeFileName(fileName string) string {
	return unsafeFileChars.ReplaceAllString(fileName, "_")
}

// buildKey derives the immutable storage key {owner}/{epochMillis}-{name}.
// The millis component is bumped forward on same-millisecond collisions so
// keys are unique forever and never reused, even after deletion.
func (s *StorageService) buildKey(ownerID, fileName string) string {
	s.mu.Lock()
	millis := time.Now().UnixMilli()
	if millis <= s.lastMillis {
		millis = s.lastMillis + 1
	}
	s.lastMillis = millis
	s.mu.Unlock()

	return fmt.Sprintf("%s/%d-%s", ownerID, millis, SanitizeFileName(fileName))
}

// IssueUploadGrant validates the inputs, derives the storage key and
// returns a presigned PUT URL for exactly that key and content type.
// No object exists until the client performs the PUT.
func (s *StorageService) IssueUploadGrant(ctx context.Context, ownerID, fileName, contentType string) (*UploadGrant, error) {
	if ownerID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if fileName == "" {
		return nil, apperr.Validation("fileName is required")
	}
	if contentType == "" {
		return nil, apperr.Validation("contentType is required")
	}
	if s.client == nil {
		return nil, apperr.NotConfigured("object storage is not configured", nil)
	}

	key := s.buildKey(ownerID, fileName)

	presigned, err := s.client.PresignHeader(ctx, "PUT", s.bucket, key, s.presignTTL,
		url.Values{}, map[string][]string{"Content-Type": {contentType}})
	if err != nil {
		return nil, apperr.Upstream("failed to generate upload URL", err)
	}

	s.log.Info("upload grant issued", "key", key, "owner", ownerID, "content_type", contentType)

	return &UploadGrant{
		URL:       presigned.String(),
		Key:       key,
		Bucket:    s.bucket,
		ExpiresAt: time.Now().Add(s.presignTTL),
	}, nil
}

// IssueDownloadGrant returns a presigned GET URL for the object at key.
// Fresh grants are cached for a fraction of their lifetime so repeated
// gallery loads do not consume a new signed URL each time.
func (s *StorageService) IssueDownloadGrant(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", apperr.Validation("key is required")
	}
	if s.client == nil {
		return "", apperr.NotConfigured("object storage is not configured", nil)
	}

	cacheKey := "grant:get:" + key
	if s.cache != nil {
		if cached, ok, _ := s.cache.Get(ctx, cacheKey); ok {
			s.log.Debug("download grant served from cache", "key", key)
			return string(cached), nil
		}
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, url.Values{})
	if err != nil {
		return "", apperr.Upstream("failed to generate download URL", err)
	}

	if s.cache != nil {
		// Cache well inside the grant's validity window
		_ = s.cache.Set(ctx, cacheKey, []byte(presigned.String()), s.presignTTL/2)
	}

	return presigned.String(), nil
}

// DeleteObject removes the object at key. Deleting a key that never
// existed is a no-op, matching S3 semantics.
func (s *StorageService) DeleteObject(ctx context.Context, key string) error {
	if key == "" {
		return apperr.Validation("key is required")
	}
	if s.client == nil {
		return apperr.NotConfigured("object storage is not configured", nil)
	}

	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return apperr.Upstream(fmt.Sprintf("failed to delete object %s", key), err)
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, "grant:get:"+key)
	}

	s.log.Info("object deleted", "key", key)
	return nil
}
