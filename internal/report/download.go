package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RishiKendai/dupcheck/internal/plagiarism"
	"github.com/pmezard/go-difflib/difflib"
)

const (
	timeLayout         = "2006-01-02 15:04:05 MST"
	removedPlaceholder = "[submission removed]"
	unknownPlaceholder = "[unknown]"
)

// Document is a rendered downloadable report.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Download renders the plain-text report for one finding. A side whose
// submission was removed prints a placeholder; the diff comes from the
// stored payload and is always complete.
func (r *Renderer) Download(ctx context.Context, findingID int64) (*Document, error) {
	detail, err := r.Detail(ctx, findingID)
	if detail == nil {
		return nil, err
	}

	f := detail.Finding
	var b strings.Builder

	b.WriteString("Code Duplication Report\n")
	b.WriteString("=======================\n\n")
	if detail.Problem != nil {
		fmt.Fprintf(&b, "Problem: %s (#%d)\n", detail.Problem.Title, detail.Problem.ID)
	} else {
		fmt.Fprintf(&b, "Problem: #%d\n", f.ProblemID)
	}
	fmt.Fprintf(&b, "Finding: #%d\n\n", f.ID)

	writeSide(&b, "Original Submission", detail.Submission)
	writeSide(&b, "Similar Submission", detail.Matched)

	fmt.Fprintf(&b, "Similarity Score: %.2f%% (%s)\n\n", f.SimilarityScore, detail.Severity)

	b.WriteString("Code Difference:\n")
	diff, err := unifiedDiff(detail)
	if err != nil {
		return nil, err
	}
	if diff == "" {
		b.WriteString("(no textual differences)\n")
	} else {
		b.WriteString(diff)
	}

	return &Document{
		Filename:    fmt.Sprintf("duplication_report_%d.txt", f.ID),
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(b.String()),
	}, nil
}

func writeSide(b *strings.Builder, heading string, s SubmissionInfo) {
	fmt.Fprintf(b, "%s:\n", heading)
	if s.Removed {
		fmt.Fprintf(b, "  ID: %d %s\n", s.ID, removedPlaceholder)
		fmt.Fprintf(b, "  User: %s\n", unknownPlaceholder)
		fmt.Fprintf(b, "  Time: %s\n\n", unknownPlaceholder)
		return
	}

	user := s.Username
	if user == "" {
		user = unknownPlaceholder
	}
	fmt.Fprintf(b, "  ID: %d\n", s.ID)
	fmt.Fprintf(b, "  User: %s\n", user)
	fmt.Fprintf(b, "  Time: %s\n\n", formatTime(s.CreatedAt))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return unknownPlaceholder
	}
	return t.UTC().Format(timeLayout)
}

func unifiedDiff(detail *Detail) (string, error) {
	left, right := plagiarism.DiffSides(detail.Finding.Diff)

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        withNewlines(left),
		B:        withNewlines(right),
		FromFile: fmt.Sprintf("submission_%d", detail.Submission.ID),
		ToFile:   fmt.Sprintf("submission_%d", detail.Matched.ID),
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render unified diff: %w", err)
	}
	return diff, nil
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
