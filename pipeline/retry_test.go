package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/intake/core"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, 5, time.Millisecond, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	sentinel := errors.New("always fails")
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		return sentinel
	}, 3, time.Millisecond, 0)

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRecoverable(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		return fmt.Errorf("%w: bad credentials", ErrNonRecoverable)
	}, 5, time.Millisecond, 0)

	assert.ErrorIs(t, err, ErrNonRecoverable)
	assert.Equal(t, 1, attempts)
}

func TestRetryInvalidAttempts(t *testing.T) {
	err := RetryWithBackoff(context.Background(), func() error { return nil }, 0, time.Millisecond, 0)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, func() error { return errors.New("x") }, 3, time.Second, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(ErrNonRecoverable))
	assert.False(t, Retryable(fmt.Errorf("%w: wrapped", core.ErrFatal)))
	assert.False(t, Retryable(context.DeadlineExceeded))
	assert.True(t, Retryable(errors.New("timeout talking to upstream")))
}

func TestTTLCacheExpiry(t *testing.T) {
	cache := newTTLCache(10)

	cache.Put("k", "v", 20*time.Millisecond)
	value, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", value)

	time.Sleep(30 * time.Millisecond)
	_, ok = cache.Get("k")
	assert.False(t, ok)
}

func TestTTLCacheEviction(t *testing.T) {
	cache := newTTLCache(3)

	cache.Put("a", 1, time.Minute)
	time.Sleep(time.Millisecond)
	cache.Put("b", 2, time.Minute)
	time.Sleep(time.Millisecond)
	cache.Put("c", 3, time.Minute)
	cache.Put("d", 4, time.Minute)

	assert.Equal(t, 3, cache.Len())
	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = cache.Get("d")
	assert.True(t, ok)
}
