package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"documind/internal/config"
	"documind/internal/logger"
	"documind/models"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds retries of transient provider failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PolicyFromConfig builds the retry policy from LLM_* settings.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.LLMMaxRetries,
		BaseDelay:   cfg.LLMBackoffBase,
		MaxDelay:    cfg.LLMBackoffMax,
	}
}

// Retry runs op with exponential backoff while it fails with
// ErrTransientProvider. Any other error stops immediately. The attempt
// count is returned alongside the result.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error)) (T, int, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1

	attempts := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err != nil && !errors.Is(err, models.ErrTransientProvider) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("Retrying provider call", "attempt", attempts, "backoff", next.String(), "error", err)
		}),
	)
	if err != nil && errors.Is(err, models.ErrTransientProvider) {
		return res, attempts, fmt.Errorf("giving up after %d attempts: %w", attempts, err)
	}
	return res, attempts, err
}
