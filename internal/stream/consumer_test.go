package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/infra/redis/redistest"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScanner struct {
	calls []int64
	err   error
}

func (s *stubScanner) Scan(_ context.Context, problemID int64, _ *float64) (*models.ScanRecord, error) {
	s.calls = append(s.calls, problemID)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ScanRecord{ProblemID: problemID, ScanID: "scan-1"}, nil
}

func newTestConsumer(t *testing.T, scanner Scanner) (*Consumer, *redistest.Store) {
	t.Helper()
	client, store := redistest.NewClient()
	t.Cleanup(func() { _ = client.Close() })

	retry := NewRetryHandler(client, "dlq",
		WithMaxAttempts(2),
		WithBackoff(time.Millisecond, time.Millisecond),
		WithPermanentErrors(apperr.IsNotFound),
		WithDeferredErrors(func(err error) bool { return errors.Is(err, apperr.ErrScanInProgress) }))
	return NewConsumer(client, "scans", "workers", "c1", scanner, retry, time.Hour), store
}

func scanMessage(id string, fields map[string]interface{}) *redis.XMessage {
	return &redis.XMessage{ID: id, Values: fields}
}

func TestConsumerHandleAcksProcessedRequest(t *testing.T) {
	scanner := &stubScanner{}
	c, store := newTestConsumer(t, scanner)

	err := c.handle(context.Background(), scanMessage("1-0", map[string]interface{}{"problemId": "7"}))
	require.NoError(t, err)

	assert.Equal(t, []int64{7}, scanner.calls)
	assert.Equal(t, []string{"1-0"}, store.Acked("scans"))
}

func TestConsumerHandleLeavesBusyProblemPending(t *testing.T) {
	scanner := &stubScanner{err: apperr.ErrScanInProgress}
	c, store := newTestConsumer(t, scanner)

	err := c.handle(context.Background(), scanMessage("1-0", map[string]interface{}{"problemId": "7"}))
	assert.ErrorIs(t, err, ErrDeferred)

	assert.Len(t, scanner.calls, 1)
	assert.Empty(t, store.Acked("scans"))
	assert.Empty(t, store.Stream("dlq"))
}

func TestConsumerHandleDeadLettersPermanentFailure(t *testing.T) {
	scanner := &stubScanner{err: fmt.Errorf("problem 7: %w", apperr.ErrNotFound)}
	c, store := newTestConsumer(t, scanner)

	err := c.handle(context.Background(), scanMessage("1-0", map[string]interface{}{"problemId": "7"}))
	assert.True(t, apperr.IsNotFound(err))

	assert.Len(t, scanner.calls, 1)
	assert.Equal(t, []string{"1-0"}, store.Acked("scans"))
	dead := store.Stream("dlq")
	require.Len(t, dead, 1)
	assert.Equal(t, "7", dead[0].Values["problemId"])
}

func TestConsumerHandleDropsMalformedRequest(t *testing.T) {
	scanner := &stubScanner{}
	c, store := newTestConsumer(t, scanner)

	err := c.handle(context.Background(), scanMessage("1-0", map[string]interface{}{"problemId": "abc"}))
	assert.Error(t, err)

	assert.Empty(t, scanner.calls)
	assert.Equal(t, []string{"1-0"}, store.Acked("scans"))
}
