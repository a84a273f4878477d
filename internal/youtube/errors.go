// Package youtube provides an HTTP client for the YouTube Data API v3,
// covering resumable video upload, thumbnail upload, and playlist
// membership, with request pacing and error classification.
package youtube

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, youtube.ErrUnauthorized) to check.
var (
	ErrBadRequest   = errors.New("youtube: bad request")
	ErrUnauthorized = errors.New("youtube: unauthorized")
	ErrForbidden    = errors.New("youtube: forbidden")
	ErrNotFound     = errors.New("youtube: not found")
	ErrConflict     = errors.New("youtube: conflict")
	ErrThrottled    = errors.New("youtube: rate limited")
	ErrServerError  = errors.New("youtube: server error")
)

// ErrNotLoggedIn indicates no stored grant exists for the configured path.
var ErrNotLoggedIn = errors.New("youtube: not logged in")

// APIError wraps a sentinel error with the HTTP status code, the API error
// message body, and any server-advised retry delay.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration // from Retry-After, zero if absent
	Err        error         // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
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
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// retryableStatus reports whether the given HTTP status code is transient.
// 401 is deliberately excluded: it triggers a token refresh, not backoff.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err should be retried under backoff: network
// failures and retryable HTTP statuses. Auth errors (401) are not transient.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}

	// 401 never reaches here as an APIError only when wrapped; everything
	// else without a status is a transport-level failure.
	if errors.Is(err, ErrUnauthorized) {
		return false
	}

	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}

// IsAuthExpired reports whether err is a 401 from the service.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// requestError marks a transport-level failure (connection reset, timeout)
// where no HTTP status was received. Always transient.
type requestError struct {
	op  string
	err error
}

func (e *requestError) Error() string {
	return fmt.Sprintf("youtube: %s request failed: %v", e.op, e.err)
}

func (e *requestError) Unwrap() error {
	return e.err
}
