package report

import (
	"context"
	"time"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/RishiKendai/dupcheck/internal/plagiarism"
)

// SubmissionInfo describes one side of a finding.
type SubmissionInfo struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	Code      string    `json:"code,omitempty"`
	Removed   bool      `json:"removed,omitempty"`
}

// Detail is everything needed to review one finding.
type Detail struct {
	Finding    *models.DuplicationFinding `json:"finding"`
	Severity   string                     `json:"severity"`
	Problem    *models.Problem            `json:"problem,omitempty"`
	Submission SubmissionInfo             `json:"submission"`
	Matched    SubmissionInfo             `json:"matched"`
}

// Detail loads one finding with both submissions. When either side has been
// removed, the partial detail is returned together with
// ErrFlaggedSubmissionRemoved or ErrMatchedSubmissionRemoved.
func (r *Renderer) Detail(ctx context.Context, findingID int64) (*Detail, error) {
	f, err := r.findings.Get(ctx, findingID)
	if err != nil {
		return nil, err
	}

	subs, names, err := r.lookup(ctx, []int64{f.SubmissionID, f.MatchedSubmissionID})
	if err != nil {
		return nil, err
	}

	detail := &Detail{
		Finding:    f,
		Severity:   plagiarism.GetSeverity(f.SimilarityScore),
		Submission: submissionInfo(f.SubmissionID, subs, names),
		Matched:    submissionInfo(f.MatchedSubmissionID, subs, names),
	}

	problem, err := r.problems.GetProblem(ctx, f.ProblemID)
	switch {
	case err == nil:
		detail.Problem = problem
	case !apperr.IsNotFound(err):
		return nil, err
	}

	if detail.Submission.Removed {
		return detail, ErrFlaggedSubmissionRemoved
	}
	if detail.Matched.Removed {
		return detail, ErrMatchedSubmissionRemoved
	}
	return detail, nil
}

func submissionInfo(id int64, subs map[int64]*models.Submission, names map[int64]string) SubmissionInfo {
	s, ok := subs[id]
	if !ok {
		return SubmissionInfo{ID: id, Removed: true}
	}
	return SubmissionInfo{
		ID:        s.ID,
		UserID:    s.UserID,
		Username:  names[s.UserID],
		Language:  s.Language,
		CreatedAt: s.CreatedAt,
		Code:      s.Code,
	}
}
