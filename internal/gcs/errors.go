// Package gcs provides an HTTP client for the Google Cloud Storage JSON API:
// service-account authentication, object operations, resumable uploads and
// streaming/ranged transfers. Requests are never retried.
package gcs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gcs.ErrNotFound) to check.
var (
	ErrBadRequest         = errors.New("gcs: bad request")
	ErrUnauthorized       = errors.New("gcs: unauthorized")
	ErrForbidden          = errors.New("gcs: forbidden")
	ErrNotFound           = errors.New("gcs: not found")
	ErrConflict           = errors.New("gcs: conflict")
	ErrPreconditionFailed = errors.New("gcs: precondition failed")
	ErrRangeNotSatisfied  = errors.New("gcs: range not satisfiable")
	ErrThrottled          = errors.New("gcs: throttled")
	ErrServerError        = errors.New("gcs: server error")
)

// Local failure kinds that do not come from an HTTP status.
var (
	// ErrAuthFailed is returned when the token endpoint rejects the signed assertion.
	ErrAuthFailed = errors.New("gcs: authentication failed")

	// ErrShortRead is returned when a ranged download delivers fewer bytes
	// than the range promised.
	ErrShortRead = errors.New("gcs: short read")

	// ErrInvalidState is returned when a stream is used after its terminal completion.
	ErrInvalidState = errors.New("gcs: invalid stream state")

	// ErrClosed is returned when a stream is used after Close.
	ErrClosed = errors.New("gcs: use of closed stream")

	// ErrCopyIncomplete is returned when a rewrite loop ends without the
	// destination object.
	ErrCopyIncomplete = errors.New("gcs: copy ended without a destination object")

	// ErrMalformedState is returned when a resumable upload state blob fails to decode.
	ErrMalformedState = errors.New("gcs: malformed resumable upload state")
)

// StorageError wraps a sentinel error with the HTTP status code, client
// request ID and the response body for debugging.
type StorageError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *StorageError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("gcs: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("gcs: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeNotSatisfied
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
