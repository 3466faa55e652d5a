package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(ErrAuthExpired))
	assert.True(t, IsAuthError(ErrAuthRequired))
	assert.True(t, IsAuthError(fmt.Errorf("account x: %w", ErrAuthExpired)))
	assert.False(t, IsAuthError(ErrRateLimited))
	assert.False(t, IsAuthError(errors.New("boom")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimited))
	assert.True(t, IsRetryable(ErrPlatformUnavailable))
	assert.True(t, IsRetryable(NewSearchError("transient", true, nil)))
	assert.False(t, IsRetryable(NewSearchError("fatal", false, nil)))
	assert.False(t, IsRetryable(ErrInvalidInput))
}

func TestSearchError_Unwrap(t *testing.T) {
	err := NewSearchError("search failed", false, ErrNoAdapters)
	assert.ErrorIs(t, err, ErrNoAdapters)
	assert.Contains(t, err.Error(), "search failed")
}
