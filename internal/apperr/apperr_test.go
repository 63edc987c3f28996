package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("failed to replace findings: %w", &StorageError{Op: "insert", Err: cause})

	var storageErr *StorageError
	assert.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "insert", storageErr.Op)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "storage error during insert")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("finding 4: %w", ErrNotFound)))
	assert.False(t, IsNotFound(ErrScanInProgress))
	assert.False(t, IsNotFound(nil))
}

func TestDecodeError(t *testing.T) {
	err := &DecodeError{SubmissionID: 9, Err: errors.New("invalid utf-8")}
	assert.Equal(t, "submission 9: cannot decode source: invalid utf-8", err.Error())
}
