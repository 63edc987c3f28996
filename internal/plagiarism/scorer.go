package plagiarism

import (
	"strings"

	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/pmezard/go-difflib/difflib"
)

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ScoreResult holds the similarity ratio of two texts and their line diff
type ScoreResult struct {
	Ratio float64
	Diff  models.DiffPayload
}

// Score compares two source texts. Ratio is in [0,1]; Diff aligns the lines
// of a (left) against b (right).
func Score(a, b string) ScoreResult {
	return ScoreResult{
		Ratio: Ratio(a, b),
		Diff:  Diff(a, b),
	}
}

// Ratio is the Ratcliff/Obershelp matching ratio 2*M/T over characters.
// The texts are put in a canonical order first so Ratio(a,b) == Ratio(b,a).
func Ratio(a, b string) float64 {
	pa, pb := prepare(a), prepare(b)
	return newCharMatcher(&pa, &pb).Ratio()
}

// preparedText is a newline-normalised text split into one element per rune,
// computed once per submission and shared across all of its pairs.
type preparedText struct {
	text  string
	chars []string
}

func prepare(s string) preparedText {
	s = normalizeNewlines(s)
	chars := make([]string, 0, len(s))
	for _, r := range s {
		chars = append(chars, string(r))
	}
	return preparedText{text: s, chars: chars}
}

// newCharMatcher builds a character matcher without auto-junk: with it,
// characters frequent in long texts never anchor a match and identical
// texts could score below 1.
func newCharMatcher(a, b *preparedText) *difflib.SequenceMatcher {
	if b.text < a.text {
		a, b = b, a
	}
	return difflib.NewMatcherWithJunk(a.chars, b.chars, false, nil)
}

// thresholdRatio returns the ratio of a and b and whether it exceeds
// threshold. When an upper bound already fails the threshold, the exact
// ratio is skipped and the bound is returned.
func thresholdRatio(a, b *preparedText, threshold float64) (float64, bool) {
	m := newCharMatcher(a, b)
	if bound := m.RealQuickRatio(); bound <= threshold {
		return bound, false
	}
	if bound := m.QuickRatio(); bound <= threshold {
		return bound, false
	}
	ratio := m.Ratio()
	return ratio, ratio > threshold
}

func normalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	return newlineReplacer.Replace(s)
}
