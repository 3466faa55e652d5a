package domain

import "time"

// RetryPolicy controls exponential backoff around network calls.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// Multiplier grows the delay per attempt.
	Multiplier float64

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// RateLimitDelay is the minimum delay after a rate-limit response.
	// Rate limits back off harder than ordinary transient errors.
	RateLimitDelay time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      100 * time.Millisecond,
		Multiplier:     2,
		MaxDelay:       10 * time.Second,
		RateLimitDelay: time.Second,
	}
}

// DelayFor returns the backoff delay after the given failed attempt
// (0-based): base * multiplier^attempt, capped at MaxDelay.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	delay := time.Duration(d)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// RateLimitDelayFor returns the delay after a rate-limited attempt.
// It is the ordinary backoff delay raised to at least RateLimitDelay.
func (p RetryPolicy) RateLimitDelayFor(attempt int) time.Duration {
	delay := p.DelayFor(attempt)
	if delay < p.RateLimitDelay {
		delay = p.RateLimitDelay
	}
	return delay
}
