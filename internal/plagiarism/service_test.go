package plagiarism

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/RishiKendai/dupcheck/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances one second per call so every scan starts later than
// the previous one.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T, store FindingStore, opts ...Option) (*Service, *repository.MemoryCatalog) {
	t.Helper()

	catalog := repository.NewMemoryCatalog()
	catalog.AddSubmission(&models.Submission{ID: 1, ProblemID: 10, UserID: 100, Code: "print('hi')"})
	catalog.AddSubmission(&models.Submission{ID: 2, ProblemID: 10, UserID: 200, Code: "print('hi')"})
	catalog.AddSubmission(&models.Submission{ID: 3, ProblemID: 10, UserID: 300, Code: "print('bye')"})

	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(NewEngine(nil, 0), catalog, store, opts...), catalog
}

func TestServiceScanCommitsFindings(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc, _ := newTestService(t, store)

	record, err := svc.Scan(ctx, 10, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ScanID)
	assert.Equal(t, DefaultThreshold, record.Threshold)
	assert.Equal(t, 2, record.Summary.Flagged)

	findings, err := store.ListForProblem(ctx, 10)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	for _, f := range findings {
		assert.Equal(t, record.ScanID, f.ScanID)
		assert.Equal(t, record.CompletedAt, f.CreatedAt)
	}

	status, err := svc.Status(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, models.StepScanned, status.Step)
	assert.False(t, status.LastScanFailed)
	assert.Equal(t, record.ScanID, status.Scan.ScanID)
}

func TestServiceRescanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc, _ := newTestService(t, store)

	type key struct {
		sub, matched int64
		score        float64
	}
	snapshot := func() []key {
		findings, err := store.ListForProblem(ctx, 10)
		require.NoError(t, err)
		var keys []key
		for _, f := range findings {
			keys = append(keys, key{f.SubmissionID, f.MatchedSubmissionID, f.SimilarityScore})
		}
		return keys
	}

	first, err := svc.Scan(ctx, 10, nil)
	require.NoError(t, err)
	before := snapshot()

	second, err := svc.Scan(ctx, 10, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ScanID, second.ScanID)
	assert.ElementsMatch(t, before, snapshot())
}

func TestServiceNeverScanned(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryStore())

	status, err := svc.Status(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, models.StepNoScan, status.Step)
	assert.Nil(t, status.Scan)
}

func TestServiceFailureKeepsPreviousFindings(t *testing.T) {
	ctx := context.Background()
	fail := false
	store := repository.NewMemoryStore(repository.WithFaultHook(func(op string, _ *models.ScanRecord) error {
		if fail && op == repository.OpCommit {
			return errors.New("connection reset")
		}
		return nil
	}))
	svc, catalog := newTestService(t, store)

	first, err := svc.Scan(ctx, 10, nil)
	require.NoError(t, err)

	catalog.AddSubmission(&models.Submission{ID: 4, ProblemID: 10, UserID: 400, Code: "print('bye')"})
	fail = true

	_, err = svc.Scan(ctx, 10, nil)
	var storageErr *apperr.StorageError
	require.ErrorAs(t, err, &storageErr)

	findings, err := store.ListForProblem(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, findings, 2)

	status, err := svc.Status(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, models.StepScanned, status.Step)
	assert.True(t, status.LastScanFailed)
	assert.Equal(t, first.ScanID, status.Scan.ScanID)
}

func TestServiceInvalidThreshold(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryStore())

	for _, th := range []float64{-0.1, 1, 1.5} {
		_, err := svc.Scan(context.Background(), 10, &th)
		assert.ErrorIs(t, err, ErrInvalidThreshold)
	}
}

func TestServiceCustomThreshold(t *testing.T) {
	store := repository.NewMemoryStore()
	svc, _ := newTestService(t, store)

	th := 0.7
	record, err := svc.Scan(context.Background(), 10, &th)
	require.NoError(t, err)
	assert.Equal(t, 0.7, record.Threshold)
	// print('bye') is ~0.78 similar to print('hi') and now qualifies.
	assert.Equal(t, 3, record.Summary.Flagged)
}

func TestServiceCountsSkippedSubmissions(t *testing.T) {
	svc, catalog := newTestService(t, repository.NewMemoryStore())
	catalog.AddUndecodable(10, 5, "invalid bson")

	record, err := svc.Scan(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, record.Summary.Submissions)
	assert.Equal(t, 1, record.Summary.Excluded)
	require.Len(t, record.Skipped, 1)
	assert.Equal(t, int64(5), record.Skipped[0].SubmissionID)
}

func TestServiceCancelledScanIsDiscarded(t *testing.T) {
	store := repository.NewMemoryStore()
	svc, _ := newTestService(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Scan(ctx, 10, nil)
	require.Error(t, err)

	_, err = store.GetScan(context.Background(), 10)
	assert.True(t, apperr.IsNotFound(err))
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, int64) (func(), error) {
	return nil, apperr.ErrScanInProgress
}

func TestServiceDistributedLockHeld(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryStore(), WithDistributedLock(busyLocker{}))

	_, err := svc.Scan(context.Background(), 10, nil)
	assert.ErrorIs(t, err, apperr.ErrScanInProgress)
}

func TestServiceConcurrentScansSerialise(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc, _ := newTestService(t, store, WithConcurrency(4))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Scan(ctx, 10, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	findings, err := store.ListForProblem(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, findings, 2)
}
