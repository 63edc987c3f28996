package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/models"
)

// Operations passed to a MemoryStore fault hook.
const (
	OpAllocate = "allocate"
	OpInsert   = "insert"
	OpCommit   = "commit"
)

// FaultHook is called before each step of ReplaceFindings. A non-nil
// return fails that step.
type FaultHook func(op string, scan *models.ScanRecord) error

// MemoryStore is the in-process finding store. It follows the same
// stage-then-swap contract as FindingsRepository.
type MemoryStore struct {
	mu       sync.RWMutex
	scans    map[int64]*models.ScanRecord
	current  map[int64][]*models.DuplicationFinding
	byID     map[int64]*models.DuplicationFinding
	nextID   int64
	faultFor FaultHook
}

type MemoryOption func(*MemoryStore)

func WithFaultHook(hook FaultHook) MemoryOption {
	return func(s *MemoryStore) { s.faultFor = hook }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		scans:   make(map[int64]*models.ScanRecord),
		current: make(map[int64][]*models.DuplicationFinding),
		byID:    make(map[int64]*models.DuplicationFinding),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) fault(op string, scan *models.ScanRecord) error {
	if s.faultFor == nil {
		return nil
	}
	return s.faultFor(op, scan)
}

func (s *MemoryStore) ReplaceFindings(ctx context.Context, scan *models.ScanRecord, findings []*models.DuplicationFinding) error {
	if err := ctx.Err(); err != nil {
		return &apperr.StorageError{Op: "replace findings", Err: err}
	}

	// Stage outside the lock; readers keep seeing the old set.
	if err := s.fault(OpAllocate, scan); err != nil {
		return &apperr.StorageError{Op: "allocate finding ids", Err: err}
	}
	s.mu.Lock()
	first := s.nextID + 1
	s.nextID += int64(len(findings))
	s.mu.Unlock()

	if err := s.fault(OpInsert, scan); err != nil {
		return &apperr.StorageError{Op: "insert findings", Err: err}
	}
	staged := make([]*models.DuplicationFinding, len(findings))
	for i, f := range findings {
		f.ID = first + int64(i)
		f.ProblemID = scan.ProblemID
		f.ScanID = scan.ScanID
		cp := *f
		staged[i] = &cp
	}
	SortFindings(staged)

	if err := s.fault(OpCommit, scan); err != nil {
		return &apperr.StorageError{Op: "commit scan", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.scans[scan.ProblemID]; ok && prev.StartedAt.After(scan.StartedAt) {
		return apperr.ErrStaleScan
	}

	for _, old := range s.current[scan.ProblemID] {
		delete(s.byID, old.ID)
	}
	for _, f := range staged {
		s.byID[f.ID] = f
	}
	record := *scan
	s.scans[scan.ProblemID] = &record
	s.current[scan.ProblemID] = staged

	return nil
}

func (s *MemoryStore) GetScan(_ context.Context, problemID int64) (*models.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scan, ok := s.scans[problemID]
	if !ok {
		return nil, fmt.Errorf("scan for problem %d: %w", problemID, apperr.ErrNotFound)
	}
	cp := *scan
	return &cp, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*models.DuplicationFinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("finding %d: %w", id, apperr.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) ListForProblem(_ context.Context, problemID int64) ([]*models.DuplicationFinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyFindings(s.current[problemID]), nil
}

func (s *MemoryStore) CurrentFindings(_ context.Context, problemID int64) (*models.ScanRecord, []*models.DuplicationFinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scan, ok := s.scans[problemID]
	if !ok {
		return nil, []*models.DuplicationFinding{}, nil
	}
	cp := *scan
	return &cp, copyFindings(s.current[problemID]), nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]*models.DuplicationFinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := []*models.DuplicationFinding{}
	for _, findings := range s.current {
		all = append(all, copyFindings(findings)...)
	}
	SortFindings(all)
	return all, nil
}

func copyFindings(in []*models.DuplicationFinding) []*models.DuplicationFinding {
	out := make([]*models.DuplicationFinding, len(in))
	for i, f := range in {
		cp := *f
		out[i] = &cp
	}
	return out
}

// MemoryCatalog holds judge-owned records (submissions, users, problems) in
// memory, standing in for the judge's collections.
type MemoryCatalog struct {
	mu          sync.RWMutex
	submissions map[int64]*models.Submission
	skipped     map[int64][]models.SkippedSubmission
	users       map[int64]string
	problems    map[int64]*models.Problem
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		submissions: make(map[int64]*models.Submission),
		skipped:     make(map[int64][]models.SkippedSubmission),
		users:       make(map[int64]string),
		problems:    make(map[int64]*models.Problem),
	}
}

func (c *MemoryCatalog) AddSubmission(s *models.Submission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *s
	c.submissions[s.ID] = &cp
}

func (c *MemoryCatalog) RemoveSubmission(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.submissions, id)
}

// AddUndecodable registers a submission whose document cannot be read.
func (c *MemoryCatalog) AddUndecodable(problemID, submissionID int64, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped[problemID] = append(c.skipped[problemID], models.SkippedSubmission{
		SubmissionID: submissionID,
		Reason:       reason,
	})
}

func (c *MemoryCatalog) AddUser(id int64, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[id] = username
}

func (c *MemoryCatalog) AddProblem(p *models.Problem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *p
	c.problems[p.ID] = &cp
}

func (c *MemoryCatalog) ListByProblem(_ context.Context, problemID int64) ([]*models.Submission, []models.SkippedSubmission, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var subs []*models.Submission
	for _, s := range c.submissions {
		if s.ProblemID == problemID {
			cp := *s
			subs = append(subs, &cp)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })

	skipped := append([]models.SkippedSubmission(nil), c.skipped[problemID]...)
	return subs, skipped, nil
}

func (c *MemoryCatalog) GetSubmission(_ context.Context, id int64) (*models.Submission, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.submissions[id]
	if !ok {
		return nil, fmt.Errorf("submission %d: %w", id, apperr.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (c *MemoryCatalog) GetUsernames(_ context.Context, ids []int64) (map[int64]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if name, ok := c.users[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

func (c *MemoryCatalog) GetProblem(_ context.Context, id int64) (*models.Problem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.problems[id]
	if !ok {
		return nil, fmt.Errorf("problem %d: %w", id, apperr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}
