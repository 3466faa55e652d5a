package lark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/parley-cli/internal/connectors/backoff"
	"github.com/custodia-labs/parley-cli/internal/core/domain"
)

// Lark API error codes the search pipeline cares about.
const (
	// Credential errors: refresh required, never retried locally.
	codeTokenInvalid  = 99991663
	codeTenantInvalid = 99991664
	codeTokenExpired  = 99991668

	// Fatal per-container errors: skip the container, continue the search.
	codeNoPermission    = 99991672
	codeChatNotFound    = 230001
	codeMessageRecalled = 230011
	codeNotInChat       = 232009

	// Transient.
	codeTooManyRequests = 99991400
)

// APIError is a non-zero code in a Lark API envelope.
type APIError struct {
	HTTPStatus int
	Code       int
	Msg        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lark: API error %d (http %d): %s", e.Code, e.HTTPStatus, e.Msg)
}

// RateLimitError is an HTTP 429 or rate-limit code from Lark.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("lark: rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// IsReauth reports whether err means the access token must be refreshed.
func IsReauth(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeTokenInvalid, codeTenantInvalid, codeTokenExpired:
			return true
		}
		return apiErr.HTTPStatus == 401
	}
	return errors.Is(err, domain.ErrAuthExpired)
}

// IsContainerFatal reports whether err is permanent for one container:
// no permission, not found, recalled, or the user is not a member.
func IsContainerFatal(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case codeNoPermission, codeChatNotFound, codeMessageRecalled, codeNotInChat:
		return true
	}
	return apiErr.HTTPStatus == 403 || apiErr.HTTPStatus == 404
}

// IsRateLimited reports whether err is a rate-limit response.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == codeTooManyRequests || apiErr.HTTPStatus == 429
	}
	return false
}

// Classify maps a Lark error to a backoff action. Unknown API errors with
// 5xx status and plain network errors count as transient.
func Classify(err error) backoff.Action {
	switch {
	case err == nil:
		return backoff.Fail
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return backoff.Fail
	case IsReauth(err):
		return backoff.Reauth
	case IsContainerFatal(err):
		return backoff.Skip
	case IsRateLimited(err):
		return backoff.RetryRateLimited
	default:
		return backoff.Retry
	}
}
