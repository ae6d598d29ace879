package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pixelvault/vault/cmd/vault/service"
	"github.com/pixelvault/vault/common/bootstrap"
	"github.com/pixelvault/vault/common/config"
	"github.com/pixelvault/vault/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProxyFixture(t *testing.T, upstream *httptest.Server) *ProxyHandler {
	t.Helper()

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	cfg := &config.Config{Storage: config.StorageConfig{Endpoint: u.Host}}
	components := &bootstrap.Components{
		Config: cfg,
		Logger: logger.New("error", "text"),
	}
	return NewProxyHandler(components, service.NewProxyPolicy(cfg))
}

func proxyRequest(t *testing.T, h *ProxyHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/image-proxy?url="+url.QueryEscape(target), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h.ProxyImage(c))
	return rec
}

func TestProxyImage_StreamsUpstreamBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer upstream.Close()

	h := newProxyFixture(t, upstream)
	rec := proxyRequest(t, h, upstream.URL+"/bucket/alice/1-a.png?X-Amz-Signature=abc")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "9", rec.Header().Get(echo.HeaderContentLength))
	assert.Equal(t, "private, max-age=60", rec.Header().Get("Cache-Control"))
}

func TestProxyImage_PassesUpstreamStatusThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Expired grant
		http.Error(w, "expired", http.StatusForbidden)
	}))
	defer upstream.Close()

	h := newProxyFixture(t, upstream)
	rec := proxyRequest(t, h, upstream.URL+"/bucket/a.png?X-Amz-Signature=abc")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProxyImage_RejectsForeignHost(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream must not be contacted for a rejected URL")
	}))
	defer upstream.Close()

	h := newProxyFixture(t, upstream)
	rec := proxyRequest(t, h, "https://evil.example.com/secret?X-Amz-Signature=abc")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProxyImage_RejectsUnsignedURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream must not be contacted for an unsigned URL")
	}))
	defer upstream.Close()

	h := newProxyFixture(t, upstream)
	rec := proxyRequest(t, h, upstream.URL+"/bucket/a.png")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProxyImage_MissingURLParam(t *testing.T) {
	h := newProxyFixture(t, httptest.NewServer(http.NotFoundHandler()))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/image-proxy", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h.ProxyImage(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
