package chat

import (
	"errors"
	"fmt"

	"github.com/bazelment/quill/api"
)

// Sentinel errors for common error conditions.
var (
	ErrStreamActive = errors.New("a send is already streaming")
	ErrNoSession    = errors.New("no active session")
)

// StreamError represents a terminal stream failure for the current
// turn. Messages absorbed before the failure stay intact and the next
// send may retry.
type StreamError struct {
	Cause  error
	Detail string
}

func (e *StreamError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("stream error: %s", e.Detail)
	}
	return fmt.Sprintf("stream error: %v", e.Cause)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// IsRecoverable returns true if a new send may succeed after err. Auth
// failures and deleted sessions need user action first; everything else
// is worth retrying.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	if api.IsAuthError(err) {
		return false
	}
	if errors.Is(err, api.ErrSessionNotFound) {
		return false
	}
	return true
}
