package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"documind/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	calls := 0
	got, attempts, err := Retry(context.Background(), fastPolicy, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("flaky: %w", models.ErrTransientProvider)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	rejected := fmt.Errorf("bad prompt: %w", models.ErrProviderRejected)
	_, attempts, err := Retry(context.Background(), fastPolicy, func(ctx context.Context) (int, error) {
		calls++
		return 0, rejected
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrProviderRejected)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, attempts, err := Retry(context.Background(), fastPolicy, func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("429: %w", models.ErrTransientProvider)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransientProvider)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: time.Second}

	calls := 0
	_, _, err := Retry(ctx, policy, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, fmt.Errorf("timeout: %w", models.ErrTransientProvider)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, models.ErrTransientProvider))
	assert.Equal(t, 1, calls)
}
