package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrDeferred wraps failures that should be retried later from the pending
// list rather than now or from the dead-letter stream.
var ErrDeferred = errors.New("deferred")

// RetryHandler retries failed work with exponential backoff and moves
// messages that keep failing to a dead-letter stream.
type RetryHandler struct {
	client        *redis.Client
	deadLetterKey string
	maxAttempts   int
	baseDelay     time.Duration
	maxDelay      time.Duration
	isPermanent   func(error) bool
	isDeferred    func(error) bool
}

type RetryOption func(*RetryHandler)

func WithMaxAttempts(n int) RetryOption {
	return func(h *RetryHandler) { h.maxAttempts = n }
}

func WithBackoff(base, maxDelay time.Duration) RetryOption {
	return func(h *RetryHandler) {
		h.baseDelay = base
		h.maxDelay = maxDelay
	}
}

// WithPermanentErrors marks errors that must not be retried.
func WithPermanentErrors(fn func(error) bool) RetryOption {
	return func(h *RetryHandler) { h.isPermanent = fn }
}

// WithDeferredErrors marks errors that will clear up on their own, such as
// another worker holding the scan lock. They are returned wrapped in
// ErrDeferred at once, without backoff or dead-lettering.
func WithDeferredErrors(fn func(error) bool) RetryOption {
	return func(h *RetryHandler) { h.isDeferred = fn }
}

func NewRetryHandler(client *redis.Client, deadLetterKey string, opts ...RetryOption) *RetryHandler {
	h := &RetryHandler{
		client:        client,
		deadLetterKey: deadLetterKey,
		maxAttempts:   3,
		baseDelay:     time.Second,
		maxDelay:      30 * time.Second,
		isPermanent:   func(error) bool { return false },
		isDeferred:    func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// delay returns the wait before retry number attempt (1-based).
func (h *RetryHandler) delay(attempt int) time.Duration {
	d := h.baseDelay << (attempt - 1)
	if d <= 0 || d > h.maxDelay {
		return h.maxDelay
	}
	return d
}

// RetryWithBackoff runs fn until it succeeds, fails permanently, or runs
// out of attempts. In the last two cases the message is dead-lettered and
// the error returned. Deferred errors come back wrapped in ErrDeferred.
func (h *RetryHandler) RetryWithBackoff(ctx context.Context, fn func() error, messageID string, fields map[string]interface{}) error {
	var err error
	attempt := 0
	for attempt < h.maxAttempts {
		attempt++
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		if h.isDeferred(err) {
			log.Info().Err(err).Str("message_id", messageID).Msg("Processing deferred")
			return fmt.Errorf("%w: %w", ErrDeferred, err)
		}
		if h.isPermanent(err) {
			break
		}

		log.Warn().Err(err).
			Str("message_id", messageID).
			Int("attempt", attempt).
			Int("max_attempts", h.maxAttempts).
			Msg("Processing failed")

		if attempt == h.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.delay(attempt)):
		}
	}

	if dlqErr := h.deadLetter(ctx, messageID, fields, err, attempt); dlqErr != nil {
		log.Error().Err(dlqErr).Str("message_id", messageID).Msg("Failed to move message to dead-letter stream")
	}
	return err
}

func (h *RetryHandler) deadLetter(ctx context.Context, messageID string, fields map[string]interface{}, cause error, attempts int) error {
	values := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		values[k] = v
	}
	values["originalId"] = messageID
	values["error"] = cause.Error()
	values["attempts"] = attempts
	values["failedAt"] = time.Now().UTC().Format(time.RFC3339)

	if err := h.client.XAdd(context.WithoutCancel(ctx), &redis.XAddArgs{
		Stream: h.deadLetterKey,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to dead-letter stream: %w", err)
	}

	log.Warn().
		Str("message_id", messageID).
		Str("dead_letter_stream", h.deadLetterKey).
		Msg("Message moved to dead-letter stream")
	return nil
}
