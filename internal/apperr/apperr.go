// Package apperr holds the error taxonomy shared by the scan engine, the
// finding store and the report surfaces.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a finding, submission, problem or scan
	// does not exist. It is never retried.
	ErrNotFound = errors.New("not found")

	// ErrScanInProgress is returned when another scan for the same problem
	// holds the scan lock. Callers may retry later.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrStaleScan is returned when a newer scan for the same problem has
	// already been committed. The stale result is discarded.
	ErrStaleScan = errors.New("a newer scan has already been committed")
)

// StorageError reports a failed atomic replace. The prior finding set stays
// authoritative.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DecodeError marks a submission whose source text could not be read. The
// submission is skipped and the scan goes on.
type DecodeError struct {
	SubmissionID int64
	Err          error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("submission %d: cannot decode source: %v", e.SubmissionID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
