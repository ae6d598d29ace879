package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP mapping and retry decisions.
type Kind string

const (
	// KindValidation marks bad or missing caller input. Never retried.
	KindValidation Kind = "validation"
	// KindNotConfigured marks absent credentials or keys. Fatal at startup
	// for long-running services, a per-request 500 otherwise.
	KindNotConfigured Kind = "not_configured"
	// KindUpstream marks a rejection from storage or the metadata store.
	KindUpstream Kind = "upstream"
	// KindAnalysis marks a failure of the analysis fallback itself. The
	// primary-to-fallback transition is never surfaced as this.
	KindAnalysis Kind = "analysis"
	// KindForbidden marks a rejected non-signed URL on the retrieval proxy.
	KindForbidden Kind = "forbidden"
	// KindNotFound marks a missing record.
	KindNotFound Kind = "not_found"
)

// Error is a typed error carrying a kind, a user-facing message and an
// optional wrapped cause for diagnosability.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the wrapped cause as a string, or "" when there is none.
func (e *Error) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Validation creates a caller-input error. msg should echo the missing field.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NotConfigured creates a missing-configuration error.
func NotConfigured(msg string, err error) *Error {
	return &Error{Kind: KindNotConfigured, Message: msg, Err: err}
}

// Upstream wraps a storage or metadata store rejection.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Analysis wraps a terminal analysis failure.
func Analysis(msg string, err error) *Error {
	return &Error{Kind: KindAnalysis, Message: msg, Err: err}
}

// Forbidden creates a proxy rejection for non-signed URLs.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// NotFound creates a missing-record error.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// As extracts a typed error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
