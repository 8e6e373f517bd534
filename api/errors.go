package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrNoCredentials      = errors.New("no stored credentials")
	ErrInvalidLogin       = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrAttachmentType     = errors.New("attachment type not allowed")
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
)

// TransportError represents a network-level failure, including a local
// timeout. The caller may retry; the client itself never does beyond
// the single post-refresh retry.
type TransportError struct {
	Cause error
	URL   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.URL, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// AuthExpiredError indicates the access credential was rejected and the
// refresh protocol could not produce a working replacement. Stored
// credentials have been cleared; a fresh login is required.
type AuthExpiredError struct {
	Cause error
}

func (e *AuthExpiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication expired: %v", e.Cause)
	}
	return "authentication expired"
}

func (e *AuthExpiredError) Unwrap() error {
	return e.Cause
}

// APIError represents a non-2xx response, carrying the server's detail
// text when one was provided.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error: status %d", e.StatusCode)
}

// IsAuthError returns true if the error means the user must log in again.
func IsAuthError(err error) bool {
	var authErr *AuthExpiredError
	if errors.As(err, &authErr) {
		return true
	}
	return errors.Is(err, ErrNoCredentials) || errors.Is(err, ErrInvalidLogin)
}
