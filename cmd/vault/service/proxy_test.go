package service

import (
	"testing"

	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() *ProxyPolicy {
	return NewProxyPolicy(&config.Config{
		Storage: config.StorageConfig{Endpoint: "minio.internal:9000"},
	})
}

func TestValidateSignedURL_AcceptsPresignedS3(t *testing.T) {
	p := testPolicy()

	u, err := p.ValidateSignedURL("https://bucket.s3.eu-west-1.amazonaws.com/alice/1-a.png?X-Amz-Signature=abc123&X-Amz-Expires=3600")
	require.NoError(t, err)
	assert.Equal(t, "/alice/1-a.png", u.Path)
}

func TestValidateSignedURL_AcceptsConfiguredEndpoint(t *testing.T) {
	p := testPolicy()

	_, err := p.ValidateSignedURL("https://minio.internal:9000/bucket/alice/1-a.png?X-Amz-Signature=abc123")
	require.NoError(t, err)
}

func TestValidateSignedURL_RejectsArbitraryHost(t *testing.T) {
	p := testPolicy()

	_, err := p.ValidateSignedURL("https://evil.example.com/internal?X-Amz-Signature=abc123")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestValidateSignedURL_RejectsUnsignedURL(t *testing.T) {
	p := testPolicy()

	_, err := p.ValidateSignedURL("https://bucket.s3.eu-west-1.amazonaws.com/alice/1-a.png")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestValidateSignedURL_RejectsBadScheme(t *testing.T) {
	p := testPolicy()

	_, err := p.ValidateSignedURL("ftp://bucket.s3.amazonaws.com/a.png?X-Amz-Signature=abc")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestValidateSignedURL_RejectsLookalikePath(t *testing.T) {
	p := testPolicy()

	// "s3." in the path must not qualify the host
	_, err := p.ValidateSignedURL("https://evil.example.com/s3.amazonaws.com/a.png?X-Amz-Signature=abc")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}
