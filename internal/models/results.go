package models

import (
	"time"
)

type Step string

const (
	StepNoScan   Step = "no_scan"
	StepScanning Step = "scanning"
	StepScanned  Step = "scanned"
	StepFailed   Step = "failed"
)

// DiffOp tags one aligned row of a line diff.
type DiffOp string

const (
	DiffEqual   DiffOp = "equal"
	DiffInsert  DiffOp = "insert"
	DiffDelete  DiffOp = "delete"
	DiffReplace DiffOp = "replace"
)

// DiffLine is one aligned row. Line numbers are 1-based; zero means the
// side has no line in this row.
type DiffLine struct {
	Op      DiffOp `bson:"op" json:"op"`
	LeftNo  int    `bson:"leftNo,omitempty" json:"leftNo,omitempty"`
	Left    string `bson:"left,omitempty" json:"left,omitempty"`
	RightNo int    `bson:"rightNo,omitempty" json:"rightNo,omitempty"`
	Right   string `bson:"right,omitempty" json:"right,omitempty"`
}

// DiffPayload is the structural line diff between a flagged submission
// (left) and its best match (right).
type DiffPayload struct {
	Lines []DiffLine `bson:"lines" json:"lines"`
}

// DuplicationFinding is one flagged submission within a problem's latest
// scan, pointing at its best match.
type DuplicationFinding struct {
	ID                  int64       `bson:"_id" json:"id"`
	ProblemID           int64       `bson:"problemId" json:"problemId"`
	ScanID              string      `bson:"scanId" json:"scanId"`
	SubmissionID        int64       `bson:"submissionId" json:"submissionId"`
	MatchedSubmissionID int64       `bson:"matchedSubmissionId" json:"matchedSubmissionId"`
	SimilarityScore     float64     `bson:"similarityScore" json:"similarityScore"` // percentage, 0..100
	Diff                DiffPayload `bson:"diff" json:"diff"`
	CreatedAt           time.Time   `bson:"createdAt" json:"createdAt"`
}

// ScanSummary counts what a scan saw and produced.
type ScanSummary struct {
	Submissions    int `bson:"submissions" json:"submissions"`
	Excluded       int `bson:"excluded" json:"excluded"`
	PairsCompared  int `bson:"pairsCompared" json:"pairsCompared"`
	PairsQualified int `bson:"pairsQualified" json:"pairsQualified"`
	Flagged        int `bson:"flagged" json:"flagged"`
}

// ScanRecord is the per-problem pointer to the committed scan.
type ScanRecord struct {
	ProblemID   int64               `bson:"_id" json:"problemId"`
	ScanID      string              `bson:"scanId" json:"scanId"`
	Threshold   float64             `bson:"threshold" json:"threshold"`
	StartedAt   time.Time           `bson:"startedAt" json:"startedAt"`
	CompletedAt time.Time           `bson:"completedAt" json:"completedAt"`
	Summary     ScanSummary         `bson:"summary" json:"summary"`
	Skipped     []SkippedSubmission `bson:"skipped,omitempty" json:"skipped,omitempty"`
}

// ScanRequest represents a request to scan one problem
type ScanRequest struct {
	Threshold *float64 `json:"threshold"`
}

// ScanStatus is the externally visible state of a problem's scan lifecycle.
// Step is StepScanning while a scan runs, otherwise the durable state. A
// failed attempt leaves the previous state in place and sets
// LastScanFailed.
type ScanStatus struct {
	ProblemID      int64       `json:"problemId"`
	Step           Step        `json:"step"`
	LastScanFailed bool        `json:"lastScanFailed"`
	Scan           *ScanRecord `json:"scan,omitempty"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
