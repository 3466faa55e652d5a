package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a malformed request. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAuthRequired indicates a platform requires authentication but none
	// is configured.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAuthExpired indicates the access credential expired or was rejected
	// by the platform. Refresh-then-retry-once applies.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrTokenRefreshFailed indicates a credential refresh operation failed.
	// Surfaced as fatal; the account must be re-authorised.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrRateLimited indicates a platform rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrPlatformNotConfigured indicates no adapter matches the requested
	// platform.
	ErrPlatformNotConfigured = errors.New("platform not configured")

	// ErrPlatformUnavailable indicates a platform's adapter could not be
	// reached; the search continues with remaining platforms.
	ErrPlatformUnavailable = errors.New("platform unavailable")

	// ErrNoAdapters indicates no adapter could be resolved for the search.
	ErrNoAdapters = errors.New("no platform adapters available")

	// ErrSearchCancelled indicates the search was cancelled by the caller.
	ErrSearchCancelled = errors.New("search cancelled")
)

// SearchError is an orchestrator-level failure surfaced to the caller.
// Per-platform failures never become SearchErrors; they are isolated into
// the platform's status entry instead.
type SearchError struct {
	// Message is safe to show to an end user.
	Message string

	// Retryable reports whether repeating the same request may succeed.
	Retryable bool

	// Err is the underlying cause.
	Err error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// NewSearchError wraps err with a user-facing message and retryable flag.
func NewSearchError(message string, retryable bool, err error) *SearchError {
	return &SearchError{Message: message, Retryable: retryable, Err: err}
}

// IsAuthError reports whether err classifies as a credential failure that a
// refresh could resolve.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrAuthRequired)
}

// IsRetryable reports whether err is transient enough to retry per policy.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrPlatformUnavailable) {
		return true
	}
	var se *SearchError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
