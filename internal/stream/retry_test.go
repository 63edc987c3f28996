package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RishiKendai/dupcheck/internal/infra/redis/redistest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetryHandler(t *testing.T, opts ...RetryOption) (*RetryHandler, *redistest.Store) {
	t.Helper()
	client, store := redistest.NewClient()
	t.Cleanup(func() { _ = client.Close() })
	opts = append([]RetryOption{WithBackoff(time.Millisecond, 2*time.Millisecond)}, opts...)
	return NewRetryHandler(client, "dlq", opts...), store
}

func TestRetryWithBackoffEventuallySucceeds(t *testing.T) {
	h, store := newTestRetryHandler(t)

	calls := 0
	err := h.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, "1-0", nil)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Empty(t, store.Stream("dlq"))
}

func TestRetryWithBackoffGivesUp(t *testing.T) {
	h, store := newTestRetryHandler(t, WithMaxAttempts(2))

	calls := 0
	boom := errors.New("boom")
	err := h.RetryWithBackoff(context.Background(), func() error {
		calls++
		return boom
	}, "1-0", map[string]interface{}{"problemId": "1"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)

	dead := store.Stream("dlq")
	require.Len(t, dead, 1)
	assert.Equal(t, "1", dead[0].Values["problemId"])
	assert.Equal(t, "1-0", dead[0].Values["originalId"])
	assert.Equal(t, "boom", dead[0].Values["error"])
	assert.Equal(t, "2", dead[0].Values["attempts"])
	assert.NotEmpty(t, dead[0].Values["failedAt"])
}

func TestRetryWithBackoffPermanentNotRetried(t *testing.T) {
	permanent := errors.New("not found")
	h, store := newTestRetryHandler(t,
		WithPermanentErrors(func(err error) bool { return errors.Is(err, permanent) }))

	calls := 0
	err := h.RetryWithBackoff(context.Background(), func() error {
		calls++
		return permanent
	}, "1-0", nil)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.Len(t, store.Stream("dlq"), 1)
}

func TestRetryWithBackoffDeferredNotDeadLettered(t *testing.T) {
	busy := errors.New("scan in progress")
	h, store := newTestRetryHandler(t,
		WithDeferredErrors(func(err error) bool { return errors.Is(err, busy) }))

	calls := 0
	err := h.RetryWithBackoff(context.Background(), func() error {
		calls++
		return busy
	}, "1-0", nil)

	assert.ErrorIs(t, err, ErrDeferred)
	assert.ErrorIs(t, err, busy)
	assert.Equal(t, 1, calls)
	assert.Empty(t, store.Stream("dlq"))
}

func TestRetryWithBackoffDeadLetterFailureKeepsCause(t *testing.T) {
	h, store := newTestRetryHandler(t, WithMaxAttempts(1))
	store.FailOn("xadd", assert.AnError)

	boom := errors.New("boom")
	err := h.RetryWithBackoff(context.Background(), func() error { return boom }, "1-0", nil)
	assert.ErrorIs(t, err, boom)
}

func TestRetryDelayIsCapped(t *testing.T) {
	h := NewRetryHandler(nil, "dlq", WithBackoff(time.Second, 5*time.Second))

	assert.Equal(t, time.Second, h.delay(1))
	assert.Equal(t, 2*time.Second, h.delay(2))
	assert.Equal(t, 4*time.Second, h.delay(3))
	assert.Equal(t, 5*time.Second, h.delay(4))
	assert.Equal(t, 5*time.Second, h.delay(60))
}
