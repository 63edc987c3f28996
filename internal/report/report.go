// Package report turns stored duplication findings into listings, detail
// views, HTML diff tables, downloadable text reports and notifications.
package report

import (
	"context"
	"fmt"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/RishiKendai/dupcheck/internal/notify"
)

var (
	// ErrMatchedSubmissionRemoved is returned with a partial Detail when the
	// best-match submission no longer exists.
	ErrMatchedSubmissionRemoved = fmt.Errorf("matched submission removed: %w", apperr.ErrNotFound)

	// ErrFlaggedSubmissionRemoved is returned when the flagged submission
	// itself no longer exists.
	ErrFlaggedSubmissionRemoved = fmt.Errorf("flagged submission removed: %w", apperr.ErrNotFound)
)

// FindingReader is the read side of the finding store.
type FindingReader interface {
	Get(ctx context.Context, id int64) (*models.DuplicationFinding, error)
	ListForProblem(ctx context.Context, problemID int64) ([]*models.DuplicationFinding, error)
	ListAll(ctx context.Context) ([]*models.DuplicationFinding, error)
	// CurrentFindings returns a nil scan for a problem never scanned.
	CurrentFindings(ctx context.Context, problemID int64) (*models.ScanRecord, []*models.DuplicationFinding, error)
}

type SubmissionReader interface {
	GetSubmission(ctx context.Context, id int64) (*models.Submission, error)
}

type UserDirectory interface {
	GetUsernames(ctx context.Context, ids []int64) (map[int64]string, error)
}

type ProblemCatalog interface {
	GetProblem(ctx context.Context, id int64) (*models.Problem, error)
}

// Renderer builds every read-side view of the findings.
type Renderer struct {
	findings    FindingReader
	submissions SubmissionReader
	users       UserDirectory
	problems    ProblemCatalog
	guard       NotifyGuard
	sender      notify.Sender
}

func NewRenderer(
	findings FindingReader,
	submissions SubmissionReader,
	users UserDirectory,
	problems ProblemCatalog,
	guard NotifyGuard,
	sender notify.Sender,
) *Renderer {
	if guard == nil {
		guard = NewMemoryNotifyGuard()
	}
	return &Renderer{
		findings:    findings,
		submissions: submissions,
		users:       users,
		problems:    problems,
		guard:       guard,
		sender:      sender,
	}
}

// lookup resolves submissions and their authors for a set of ids. Missing
// submissions are absent from the returned map.
func (r *Renderer) lookup(ctx context.Context, ids []int64) (map[int64]*models.Submission, map[int64]string, error) {
	subs := make(map[int64]*models.Submission, len(ids))
	var userIDs []int64
	seenUser := map[int64]bool{}

	for _, id := range ids {
		if _, ok := subs[id]; ok {
			continue
		}
		s, err := r.submissions.GetSubmission(ctx, id)
		if apperr.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		subs[id] = s
		if !seenUser[s.UserID] {
			seenUser[s.UserID] = true
			userIDs = append(userIDs, s.UserID)
		}
	}

	names, err := r.users.GetUsernames(ctx, userIDs)
	if err != nil {
		return nil, nil, err
	}
	return subs, names, nil
}
