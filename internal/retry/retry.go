// Package retry implements bounded exponential backoff for provider calls.
package retry

import (
	"context"
	"math/rand"
	"time"

	derrors "github.com/draftworks/docforge/internal/errors"
)

// Config bounds the retry loop. OnRetry, when set, observes every scheduled
// retry before its delay elapses; it never fires for the final failure.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	OnRetry     func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the retry policy used for provider calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// backoff returns the delay before the next call, with attempt counting
// from 1. Doubles per attempt, capped at MaxDelay, optionally jittered
// down to half.
func backoff(cfg Config, attempt int) time.Duration {
	delay := cfg.BaseDelay << (attempt - 1)
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The context cancels the wait between calls.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !derrors.IsRetryable(lastErr) || attempt == attempts {
			return lastErr
		}

		delay := backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
