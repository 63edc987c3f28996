package models

import "time"

// Submission is one code attempt owned by the judge. The duplication
// engine only reads it.
type Submission struct {
	ID        int64     `bson:"_id" json:"id"`
	UserID    int64     `bson:"userId" json:"userId"`
	ProblemID int64     `bson:"problemId" json:"problemId"`
	Code      string    `bson:"code" json:"code"`
	Language  string    `bson:"language" json:"language"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// SkippedSubmission records a submission excluded from a scan because its
// source could not be decoded.
type SkippedSubmission struct {
	SubmissionID int64  `bson:"submissionId" json:"submissionId"`
	Reason       string `bson:"reason" json:"reason"`
}

// User is the subset of the judge's user record the reports need.
type User struct {
	ID       int64  `bson:"_id" json:"id"`
	Username string `bson:"username" json:"username"`
}

// Problem is the subset of the judge's problem record the reports need.
type Problem struct {
	ID    int64  `bson:"_id" json:"id"`
	Title string `bson:"title" json:"title"`
}
