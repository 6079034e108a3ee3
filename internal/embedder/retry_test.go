package embedder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		got, err := retryWithBackoff(ctx, cfg, func() (int, error) {
			attempts++
			if attempts < 3 {
				return 0, &ProviderError{Code: CodeNetworkError, Transient: true}
			}
			return 7, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops on non-retryable", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(ctx, cfg, func() (int, error) {
			attempts++
			return 0, &ProviderError{Code: CodeHTTPError}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("plain errors are not retried", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(ctx, cfg, func() (int, error) {
			attempts++
			return 0, errors.New("marshal")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(ctx, cfg, func() (int, error) {
			attempts++
			return 0, &ProviderError{Code: CodeRateLimited, Transient: true, RetryAfter: time.Hour}
		})
		var pe *ProviderError
		assert.True(t, errors.As(err, &pe))
		assert.Equal(t, 3, attempts)
	})

	t.Run("context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := retryWithBackoff(cctx, cfg, func() (int, error) {
			return 0, &ProviderError{Code: CodeNetworkError, Transient: true}
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
