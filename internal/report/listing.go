package report

import (
	"context"
	"time"

	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/RishiKendai/dupcheck/internal/plagiarism"
)

// ListingRow is one flagged submission in a listing.
type ListingRow struct {
	FindingID           int64     `json:"findingId"`
	ProblemID           int64     `json:"problemId"`
	SubmissionID        int64     `json:"submissionId"`
	SubmissionUser      string    `json:"submissionUser"`
	MatchedSubmissionID int64     `json:"matchedSubmissionId"`
	MatchedUser         string    `json:"matchedUser"`
	MatchedRemoved      bool      `json:"matchedRemoved,omitempty"`
	SimilarityScore     float64   `json:"similarityScore"`
	Severity            string    `json:"severity"`
	CreatedAt           time.Time `json:"createdAt"`
}

// Listing is an ordered set of findings. For a single problem, Scan tells
// "never scanned" (nil) apart from "scanned, nothing flagged".
type Listing struct {
	ProblemID *int64             `json:"problemId,omitempty"`
	Scan      *models.ScanRecord `json:"scan,omitempty"`
	Rows      []ListingRow       `json:"rows"`
}

// Listing returns the current findings of one problem, or of every problem
// when problemID is nil, highest score first.
func (r *Renderer) Listing(ctx context.Context, problemID *int64) (*Listing, error) {
	listing := &Listing{ProblemID: problemID, Rows: []ListingRow{}}

	var (
		findings []*models.DuplicationFinding
		err      error
	)
	if problemID != nil {
		listing.Scan, findings, err = r.findings.CurrentFindings(ctx, *problemID)
		if err != nil {
			return nil, err
		}
	} else {
		findings, err = r.findings.ListAll(ctx)
		if err != nil {
			return nil, err
		}
	}

	ids := make([]int64, 0, len(findings)*2)
	for _, f := range findings {
		ids = append(ids, f.SubmissionID, f.MatchedSubmissionID)
	}
	subs, names, err := r.lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	author := func(id int64) string {
		if s, ok := subs[id]; ok {
			return names[s.UserID]
		}
		return ""
	}

	for _, f := range findings {
		_, matchedOK := subs[f.MatchedSubmissionID]
		listing.Rows = append(listing.Rows, ListingRow{
			FindingID:           f.ID,
			ProblemID:           f.ProblemID,
			SubmissionID:        f.SubmissionID,
			SubmissionUser:      author(f.SubmissionID),
			MatchedSubmissionID: f.MatchedSubmissionID,
			MatchedUser:         author(f.MatchedSubmissionID),
			MatchedRemoved:      !matchedOK,
			SimilarityScore:     f.SimilarityScore,
			Severity:            plagiarism.GetSeverity(f.SimilarityScore),
			CreatedAt:           f.CreatedAt,
		})
	}

	return listing, nil
}
