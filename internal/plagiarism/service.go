package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/metrics"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrInvalidThreshold is returned for a threshold outside [0, 1).
var ErrInvalidThreshold = errors.New("threshold must be in [0, 1)")

// SubmissionSource loads every submission of one problem. Documents that
// cannot be decoded are returned as skipped instead of failing the load.
type SubmissionSource interface {
	ListByProblem(ctx context.Context, problemID int64) ([]*models.Submission, []models.SkippedSubmission, error)
}

// FindingStore commits a scan's findings atomically.
type FindingStore interface {
	ReplaceFindings(ctx context.Context, scan *models.ScanRecord, findings []*models.DuplicationFinding) error
	// GetScan returns apperr.ErrNotFound for a problem never scanned.
	GetScan(ctx context.Context, problemID int64) (*models.ScanRecord, error)
}

// Service runs scans end to end: lock, load, compare, commit.
type Service struct {
	engine      *Engine
	submissions SubmissionSource
	store       FindingStore

	status    StatusTracker
	locker    Locker
	keyed     *KeyedMutex
	sem       chan struct{}
	threshold float64
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Service)

func WithStatusTracker(t StatusTracker) Option {
	return func(s *Service) { s.status = t }
}

// WithDistributedLock adds a cross-process lock on top of the in-process
// per-problem mutex.
func WithDistributedLock(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithConcurrency bounds how many problems are scanned at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

func WithDefaultThreshold(t float64) Option {
	return func(s *Service) { s.threshold = t }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(engine *Engine, submissions SubmissionSource, store FindingStore, opts ...Option) *Service {
	s := &Service{
		engine:      engine,
		submissions: submissions,
		store:       store,
		status:      NewMemoryStatusTracker(),
		keyed:       NewKeyedMutex(),
		sem:         make(chan struct{}, 1),
		threshold:   DefaultThreshold,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateThreshold checks that t is usable as a flagging threshold.
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t >= 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, t)
	}
	return nil
}

// Scan runs a full scan of one problem and commits its findings,
// replacing the previous set. A nil threshold uses the service default.
// Scans of the same problem are serialised; on any failure the previous
// findings stay in place.
func (s *Service) Scan(ctx context.Context, problemID int64, threshold *float64) (*models.ScanRecord, error) {
	t := s.threshold
	if threshold != nil {
		t = *threshold
	}
	if err := ValidateThreshold(t); err != nil {
		return nil, err
	}

	unlock, err := s.keyed.Lock(ctx, problemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, problemID)
		if err != nil {
			if errors.Is(err, apperr.ErrScanInProgress) {
				log.Info().Int64("problemId", problemID).Msg("Scan already running elsewhere")
			}
			return nil, err
		}
		defer release()
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	startedAt := s.now().UTC()
	s.setStep(ctx, problemID, models.StepScanning)

	log.Info().
		Int64("problemId", problemID).
		Float64("threshold", t).
		Msg("Starting duplication scan")

	record, err := s.run(ctx, problemID, t, startedAt)
	elapsed := s.now().Sub(startedAt)

	// Status writes must land even when the scan context has ended.
	statusCtx := context.WithoutCancel(ctx)

	if err != nil {
		s.setStep(statusCtx, problemID, models.StepFailed)
		metrics.ObserveScan("failed", elapsed, 0, 0)
		log.Error().Err(err).
			Int64("problemId", problemID).
			Dur("elapsed", elapsed).
			Msg("Duplication scan failed")
		return nil, err
	}

	s.setStep(statusCtx, problemID, models.StepScanned)
	metrics.ObserveScan("success", elapsed, record.Summary.PairsCompared, record.Summary.Flagged)

	log.Info().
		Int64("problemId", problemID).
		Str("scanId", record.ScanID).
		Int("submissions", record.Summary.Submissions).
		Int("pairs", record.Summary.PairsCompared).
		Int("flagged", record.Summary.Flagged).
		Dur("elapsed", elapsed).
		Msg("Duplication scan completed")

	return record, nil
}

func (s *Service) run(ctx context.Context, problemID int64, threshold float64, startedAt time.Time) (*models.ScanRecord, error) {
	subs, skipped, err := s.submissions.ListByProblem(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}

	result, err := s.engine.Scan(ctx, subs, threshold)
	if err != nil {
		return nil, err
	}

	// A cancelled scan is discarded, never half-committed.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := result.Summary
	summary.Submissions += len(skipped)
	summary.Excluded += len(skipped)

	record := &models.ScanRecord{
		ProblemID:   problemID,
		ScanID:      uuid.NewString(),
		Threshold:   threshold,
		StartedAt:   startedAt,
		CompletedAt: s.now().UTC(),
		Summary:     summary,
		Skipped:     append(skipped, result.Skipped...),
	}

	for _, f := range result.Findings {
		f.ProblemID = problemID
		f.ScanID = record.ScanID
		f.CreatedAt = record.CompletedAt
	}

	if err := s.store.ReplaceFindings(ctx, record, result.Findings); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *Service) setStep(ctx context.Context, problemID int64, step models.Step) {
	if err := s.status.SetStep(ctx, problemID, step); err != nil {
		log.Warn().Err(err).Int64("problemId", problemID).Str("step", string(step)).Msg("Failed to record scan step")
	}
}

// Status reports where a problem's scan lifecycle stands.
func (s *Service) Status(ctx context.Context, problemID int64) (*models.ScanStatus, error) {
	status := &models.ScanStatus{ProblemID: problemID, Step: models.StepNoScan}

	record, err := s.store.GetScan(ctx, problemID)
	switch {
	case err == nil:
		status.Scan = record
		status.Step = models.StepScanned
	case !apperr.IsNotFound(err):
		return nil, fmt.Errorf("failed to load scan record: %w", err)
	}

	step, err := s.status.Step(ctx, problemID)
	if err != nil {
		log.Warn().Err(err).Int64("problemId", problemID).Msg("Scan step unavailable")
		return status, nil
	}

	switch step {
	case models.StepScanning:
		status.Step = models.StepScanning
	case models.StepFailed:
		status.LastScanFailed = true
	}

	return status, nil
}
