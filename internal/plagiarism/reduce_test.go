package plagiarism

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBestMatches(t *testing.T) {
	pairs := []PairScore{
		{A: 1, B: 2, Ratio: 0.85, Qualified: true},
		{A: 1, B: 3, Ratio: 0.95, Qualified: true},
		{A: 2, B: 3, Ratio: 0.70, Qualified: false},
	}

	got := BestMatches(pairs)
	assert.Equal(t, []Match{
		{SubmissionID: 1, MatchedSubmissionID: 3, Ratio: 0.95},
		{SubmissionID: 2, MatchedSubmissionID: 1, Ratio: 0.85},
		{SubmissionID: 3, MatchedSubmissionID: 1, Ratio: 0.95},
	}, got)
}

func TestBestMatchesTieGoesToLowerID(t *testing.T) {
	pairs := []PairScore{
		{A: 5, B: 9, Ratio: 0.9, Qualified: true},
		{A: 3, B: 5, Ratio: 0.9, Qualified: true},
		{A: 5, B: 7, Ratio: 0.9, Qualified: true},
	}

	got := BestMatches(pairs)
	byID := map[int64]Match{}
	for _, m := range got {
		byID[m.SubmissionID] = m
	}
	assert.Equal(t, int64(3), byID[5].MatchedSubmissionID)
}

func TestBestMatchesOrderIndependent(t *testing.T) {
	pairs := []PairScore{
		{A: 1, B: 2, Ratio: 0.90, Qualified: true},
		{A: 1, B: 3, Ratio: 0.90, Qualified: true},
		{A: 2, B: 3, Ratio: 0.92, Qualified: true},
		{A: 3, B: 4, Ratio: 0.81, Qualified: true},
		{A: 4, B: 5, Ratio: 0.50, Qualified: false},
	}
	want := BestMatches(pairs)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		shuffled := append([]PairScore(nil), pairs...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, BestMatches(shuffled))
	}
}

func TestBestMatchesSkipsSelfAndUnqualified(t *testing.T) {
	got := BestMatches([]PairScore{
		{A: 1, B: 1, Ratio: 1, Qualified: true},
		{A: 2, B: 3, Ratio: 0.99, Qualified: false},
	})
	assert.Empty(t, got)
}
