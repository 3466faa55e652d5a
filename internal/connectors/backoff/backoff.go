// Package backoff wraps network calls in exponential-backoff retry with
// per-error classification. Platform clients classify their own error codes;
// this package only decides whether to sleep, give up or propagate.
package backoff

import (
	"context"
	"time"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

// Action is the retry decision for a classified error.
type Action int

const (
	// Retry sleeps per policy and tries again.
	Retry Action = iota

	// RetryRateLimited sleeps at least the policy's rate-limit delay.
	RetryRateLimited

	// Reauth propagates immediately; the credential must be refreshed
	// before any retry makes sense.
	Reauth

	// Skip propagates immediately; the target (container, message) is
	// permanently inaccessible and the caller should move on.
	Skip

	// Fail propagates immediately.
	Fail
)

// Classifier maps an error to a retry action.
type Classifier func(error) Action

// Do runs op, retrying per policy when classify says the error is
// transient. Non-retryable errors propagate on first occurrence; the last
// error propagates when attempts run out. Sleeps honour ctx cancellation.
func Do(ctx context.Context, policy domain.RetryPolicy, classify Classifier, op func() error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := policy.DelayFor(attempt)
			if classify(err) == RetryRateLimited {
				delay = policy.RateLimitDelayFor(attempt)
			}
			logger.Debug("retrying in %s (attempt %d/%d): %v", delay, attempt+1, attempts, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = op()
		if err == nil {
			return nil
		}

		switch classify(err) {
		case Retry, RetryRateLimited:
			continue
		default:
			return err
		}
	}
	return err
}
