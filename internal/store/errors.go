package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch is returned when a face embedding's length differs
	// from the embeddings already enrolled.
	ErrDimensionMismatch = errors.New("embedding dimensionality differs from enrolled embeddings")

	// ErrEmptyVector is returned when a template or embedding has no elements.
	ErrEmptyVector = errors.New("empty vector")

	// ErrIdentityExists is returned by RegisterIdentity when the identity
	// already has an enrolled factor.
	ErrIdentityExists = errors.New("identity already enrolled")
)

// StorageError reports a durability-layer failure.
// It is the only error class biogate treats as fatal: callers must surface
// it rather than degrade to an authentication outcome.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// isBusy reports whether err is a transient SQLite lock error.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
