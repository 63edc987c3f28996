package plagiarism

import "sort"

// PairScore is the scored comparison of two submissions, A < B.
type PairScore struct {
	A         int64
	B         int64
	Ratio     float64
	Qualified bool
}

// Match is the best partner retained for one flagged submission.
type Match struct {
	SubmissionID        int64
	MatchedSubmissionID int64
	Ratio               float64
}

// BestMatches reduces qualifying pairs to one match per submission: the
// highest ratio wins and an exact tie goes to the lower matched id. The
// result does not depend on the order of pairs and is sorted by
// submission id.
func BestMatches(pairs []PairScore) []Match {
	best := make(map[int64]Match)

	consider := func(self, other int64, ratio float64) {
		current, ok := best[self]
		if !ok ||
			ratio > current.Ratio ||
			(ratio == current.Ratio && other < current.MatchedSubmissionID) {
			best[self] = Match{
				SubmissionID:        self,
				MatchedSubmissionID: other,
				Ratio:               ratio,
			}
		}
	}

	for _, p := range pairs {
		if !p.Qualified || p.A == p.B {
			continue
		}
		consider(p.A, p.B, p.Ratio)
		consider(p.B, p.A, p.Ratio)
	}

	matches := make([]Match, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].SubmissionID < matches[j].SubmissionID
	})

	return matches
}
