package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pixelvault/vault/common/apperr"
)

// ByteFetcher retrieves the raw bytes behind a URL, usually a presigned
// download grant.
type ByteFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// HTTPByteFetcher fetches with a bounded read; images larger than
// maxBytes were rejected at grant time, so anything over that here is a
// protocol violation, not a user error.
type HTTPByteFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPByteFetcher(maxBytes int64) *HTTPByteFetcher {
	return &HTTPByteFetcher{
		client:   &http.Client{Timeout: 60 * time.Second},
		maxBytes: maxBytes,
	}
}

func (f *HTTPByteFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build fetch request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", apperr.Upstream("failed to fetch image from storage", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", apperr.Upstream(fmt.Sprintf("storage returned status %d fetching image", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", apperr.Upstream("failed to read image body", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", apperr.Upstream("image body exceeds maximum allowed size", nil)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
