package archive

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeNotAuthenticated = "NOT_AUTHENTICATED"
	textCodeUnauthorized     = "UNAUTHORIZED"
	textCodeRefreshFailed    = "REFRESH_FAILED"
	textCodeTransportError   = "TRANSPORT_ERROR"
)

// ErrNotAuthenticated is returned when an operation needs an authenticated
// session and there is none.
var ErrNotAuthenticated = goerrors.New("no authenticated session", goerrors.CategoryAuth).
	WithTextCode(textCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthorized is returned when the archive API rejects a bearer token,
// including the second 401 after a refresh-and-replay.
var ErrUnauthorized = goerrors.New("request rejected by the archive API", goerrors.CategoryAuth).
	WithTextCode(textCodeUnauthorized).
	WithCode(goerrors.CodeUnauthorized)

// ErrRefreshFailed is returned when the refresh endpoint declines to renew
// the session token. The session has already moved to anonymous.
var ErrRefreshFailed = goerrors.New("token refresh rejected", goerrors.CategoryAuth).
	WithTextCode(textCodeRefreshFailed).
	WithCode(goerrors.CodeUnauthorized)

// NewTransportError wraps a network-level failure (connection refused,
// timeout, malformed body). Transport errors are never presented as
// credential errors.
func NewTransportError(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, msg).
		WithTextCode(textCodeTransportError)
}

// IsTransportError reports whether err is a network-level failure rather
// than an auth outcome.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryOperation
	}
	return false
}

// IsAuthorizationError reports whether err represents a rejected or missing
// credential (401-equivalent outcomes, refresh failures included).
func IsAuthorizationError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryAuth
	}
	return false
}
