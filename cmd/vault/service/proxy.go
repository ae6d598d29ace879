package service

import (
	"net/url"
	"strings"

	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/config"
)

// ProxyPolicy decides which upstream URLs the image proxy will fetch.
// Only presigned object-storage URLs pass; anything else is an open
// proxy waiting to happen.
type ProxyPolicy struct {
	endpointHost string
}

func NewProxyPolicy(cfg *config.Config) *ProxyPolicy {
	host := ""
	if cfg.Storage.Endpoint != "" {
		if u, err := url.Parse(ensureScheme(cfg.Storage.Endpoint)); err == nil {
			host = u.Host
		}
	}
	return &ProxyPolicy{endpointHost: host}
}

func ensureScheme(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}

// ValidateSignedURL checks that the URL targets object storage and
// carries a presigned signature.
func (p *ProxyPolicy) ValidateSignedURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperr.Forbidden("url scheme must be http or https")
	}

	host := u.Hostname()
	if !strings.Contains(host, "s3.") && u.Host != p.endpointHost {
		return nil, apperr.Forbidden("url does not target object storage")
	}
	if u.Query().Get("X-Amz-Signature") == "" {
		return nil, apperr.Forbidden("url is not presigned")
	}
	return u, nil
}
