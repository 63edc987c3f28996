package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultThreshold is the ratio a pair must exceed to be flagged.
const DefaultThreshold = 0.8

const defaultBatchSize = 64

var errInvalidUTF8 = errors.New("source is not valid UTF-8")

// ScanResult is the output of one pure scan
type ScanResult struct {
	Findings []*models.DuplicationFinding
	Summary  models.ScanSummary
	Skipped  []models.SkippedSubmission
}

// Engine runs the pairwise comparison of one problem's submissions. It does
// no I/O; persistence is the caller's job.
type Engine struct {
	pool      *WorkerPool
	batchSize int
}

// NewEngine creates an engine. With a nil pool, pairs are scored on the
// calling goroutine.
func NewEngine(pool *WorkerPool, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Engine{pool: pool, batchSize: batchSize}
}

type scanEntry struct {
	submission *models.Submission
	prepared   preparedText
}

type pairIndex struct {
	i, j int
}

// pairBatchJob scores a contiguous range of pairs for the worker pool
type pairBatchJob struct {
	scanCtx    context.Context
	entries    []scanEntry
	pairs      []pairIndex
	start      int
	threshold  float64
	resultChan chan<- pairBatchResult
}

type pairBatchResult struct {
	start  int
	scores []PairScore
	err    error
}

func (j *pairBatchJob) Execute(ctx context.Context) error {
	scores, err := scorePairs(j.scanCtx, j.entries, j.pairs, j.threshold)

	// resultChan is buffered for every batch, so this never blocks.
	j.resultChan <- pairBatchResult{start: j.start, scores: scores, err: err}
	return err
}

// Scan compares every unordered pair of submissions once and returns one
// finding per flagged submission holding its best match.
func (e *Engine) Scan(ctx context.Context, submissions []*models.Submission, threshold float64) (*ScanResult, error) {
	entries, skipped := e.prepareEntries(submissions)

	result := &ScanResult{
		Findings: []*models.DuplicationFinding{},
		Skipped:  skipped,
		Summary: models.ScanSummary{
			Submissions: len(entries) + len(skipped),
			Excluded:    len(skipped),
		},
	}

	if len(entries) < 2 {
		return result, nil
	}

	pairs := enumeratePairs(len(entries))
	scores, err := e.scoreAll(ctx, entries, pairs, threshold)
	if err != nil {
		return nil, err
	}

	qualified := 0
	for _, s := range scores {
		if s.Qualified {
			qualified++
		}
	}

	byID := make(map[int64]*models.Submission, len(entries))
	for _, entry := range entries {
		byID[entry.submission.ID] = entry.submission
	}

	for _, m := range BestMatches(scores) {
		self, other := byID[m.SubmissionID], byID[m.MatchedSubmissionID]
		result.Findings = append(result.Findings, &models.DuplicationFinding{
			ProblemID:           self.ProblemID,
			SubmissionID:        m.SubmissionID,
			MatchedSubmissionID: m.MatchedSubmissionID,
			SimilarityScore:     m.Ratio * 100,
			Diff:                Diff(self.Code, other.Code),
		})
	}

	result.Summary.PairsCompared = len(pairs)
	result.Summary.PairsQualified = qualified
	result.Summary.Flagged = len(result.Findings)

	return result, nil
}

// prepareEntries orders submissions by id, drops duplicates and nils, and
// excludes sources that cannot be decoded.
func (e *Engine) prepareEntries(submissions []*models.Submission) ([]scanEntry, []models.SkippedSubmission) {
	sorted := make([]*models.Submission, 0, len(submissions))
	for _, s := range submissions {
		if s != nil {
			sorted = append(sorted, s)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	entries := make([]scanEntry, 0, len(sorted))
	var skipped []models.SkippedSubmission
	for i, s := range sorted {
		if i > 0 && sorted[i-1].ID == s.ID {
			continue
		}
		if !utf8.ValidString(s.Code) {
			decodeErr := &apperr.DecodeError{SubmissionID: s.ID, Err: errInvalidUTF8}
			log.Warn().Err(decodeErr).Int64("submissionId", s.ID).Msg("Excluding submission from scan")
			skipped = append(skipped, models.SkippedSubmission{
				SubmissionID: s.ID,
				Reason:       decodeErr.Error(),
			})
			continue
		}
		entries = append(entries, scanEntry{submission: s, prepared: prepare(s.Code)})
	}

	return entries, skipped
}

func enumeratePairs(n int) []pairIndex {
	pairs := make([]pairIndex, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, pairIndex{i: i, j: j})
		}
	}
	return pairs
}

// scoreAll scores the pairs in batches. Results land at their pair index,
// so the outcome is the same for any execution order.
func (e *Engine) scoreAll(ctx context.Context, entries []scanEntry, pairs []pairIndex, threshold float64) ([]PairScore, error) {
	if e.pool == nil || len(pairs) <= e.batchSize {
		return scorePairs(ctx, entries, pairs, threshold)
	}

	batches := (len(pairs) + e.batchSize - 1) / e.batchSize
	resultChan := make(chan pairBatchResult, batches)

	for start := 0; start < len(pairs); start += e.batchSize {
		end := min(start+e.batchSize, len(pairs))
		job := &pairBatchJob{
			scanCtx:    ctx,
			entries:    entries,
			pairs:      pairs[start:end],
			start:      start,
			threshold:  threshold,
			resultChan: resultChan,
		}
		if err := e.pool.Submit(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to submit pair batch: %w", err)
		}
	}

	scores := make([]PairScore, len(pairs))
	for received := 0; received < batches; received++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.pool.Done():
			return nil, ErrPoolClosed
		case res := <-resultChan:
			if res.err != nil {
				return nil, res.err
			}
			copy(scores[res.start:], res.scores)
		}
	}

	return scores, nil
}

func scorePairs(ctx context.Context, entries []scanEntry, pairs []pairIndex, threshold float64) ([]PairScore, error) {
	scores := make([]PairScore, len(pairs))
	for k, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, b := &entries[p.i], &entries[p.j]
		ratio, ok := thresholdRatio(&a.prepared, &b.prepared, threshold)
		scores[k] = PairScore{
			A:         a.submission.ID,
			B:         b.submission.ID,
			Ratio:     ratio,
			Qualified: ok,
		}
	}
	return scores, nil
}
