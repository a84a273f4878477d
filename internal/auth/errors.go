package auth

import (
	"errors"
	"net/http"

	"golang.org/x/oauth2"
)

// Sentinel errors for credential lifecycle failures.
var (
	// ErrInvalidGrant means the refresh token was rejected by the token
	// endpoint. The stored grant is dead; only a full re-authorization can
	// recover.
	ErrInvalidGrant = errors.New("auth: refresh token rejected (invalid_grant)")

	// ErrInteractiveDisallowed means a full authorization flow was required
	// but interactive mode is disabled.
	ErrInteractiveDisallowed = errors.New("auth: authorization required but interactive mode is disabled")

	// ErrFlowCanceled means the user abandoned the authorization flow.
	ErrFlowCanceled = errors.New("auth: authorization flow canceled")

	// ErrNoGrant means no stored grant exists.
	ErrNoGrant = errors.New("auth: no stored grant")
)

// terminalTokenErrorCodes are OAuth2 token endpoint error codes that no
// amount of retrying will fix.
var terminalTokenErrorCodes = map[string]bool{
	"invalid_grant":          true,
	"invalid_client":         true,
	"unauthorized_client":    true,
	"unsupported_grant_type": true,
	"invalid_scope":          true,
}

// isInvalidGrant reports whether err is a terminal token endpoint rejection.
func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}

	if terminalTokenErrorCodes[re.ErrorCode] {
		return true
	}

	// Some token endpoints omit the error code; a 4xx without one is
	// still not worth retrying, except 429.
	if re.Response != nil {
		code := re.Response.StatusCode
		return code >= http.StatusBadRequest && code < http.StatusInternalServerError &&
			code != http.StatusTooManyRequests
	}

	return false
}

// refreshRetryable classifies token refresh failures for the retry
// controller: network errors and 5xx/429 from the token endpoint are
// transient; grant rejections are terminal.
func refreshRetryable(err error) bool {
	if isInvalidGrant(err) {
		return false
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		code := re.Response.StatusCode
		return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
	}

	// No HTTP response at all: transport failure.
	return true
}
