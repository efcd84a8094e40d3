package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRetryRouter(t *testing.T, maxAttempts int) *Router {
	t.Helper()
	return newTestRouter(t, newTestTable(t), WithRetry(maxAttempts, time.Millisecond))
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	r := newRetryRouter(t, 3)

	calls := 0
	err := r.retry(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversAfterFailures(t *testing.T) {
	r := newRetryRouter(t, 3)

	calls := 0
	err := r.retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	r := newRetryRouter(t, 3)

	calls := 0
	wantErr := errors.New("persistent")
	err := r.retry(context.Background(), func() error {
		calls++
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestRetryHonorsContext(t *testing.T) {
	r := newRetryRouter(t, 5)
	r.retryDelay = 10 * time.Second
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.retry(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRejectsInvalidAttempts(t *testing.T) {
	_, err := NewRouter(newTestTable(t), WithRetry(0, time.Millisecond))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}
