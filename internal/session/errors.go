package session

import (
	"errors"
	"fmt"
)

// ErrInvalidState is wrapped by errors for operations the current state
// does not accept.
var ErrInvalidState = errors.New("invalid session state")

// Error is a biogate operation error.
//
// Authentication failures are not errors: they are terminal session states.
// Error covers rejected input, wrong-state calls and storage failures.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Identity is the identity involved, if any.
	Identity string

	// Session is the session handle involved, if any.
	Session string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	// ErrCodeInvalidInput indicates a malformed identity or request.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeInvalidSample indicates an empty or malformed fingerprint sample.
	ErrCodeInvalidSample ErrorCode = "INVALID_SAMPLE"

	// ErrCodeInvalidEmbedding indicates an empty, non-finite or
	// dimensionally inconsistent face embedding.
	ErrCodeInvalidEmbedding ErrorCode = "INVALID_EMBEDDING"

	// ErrCodeNoFaceDetected indicates an enrollment image without a face.
	ErrCodeNoFaceDetected ErrorCode = "NO_FACE_DETECTED"

	// ErrCodeIdentityExists indicates registration of an enrolled identity.
	ErrCodeIdentityExists ErrorCode = "IDENTITY_EXISTS"

	// ErrCodeInvalidState indicates a call the session state does not accept.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeSessionNotFound indicates an unknown or released session handle.
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// ErrCodeStorage indicates a durability-layer failure.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Session != "" {
		return fmt.Sprintf("%s: %s (session=%s)", e.Code, msg, e.Session)
	}
	if e.Identity != "" {
		return fmt.Sprintf("%s: %s (identity=%s)", e.Code, msg, e.Identity)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidState returns true for wrong-state errors.
// Uses errors.As to handle wrapped errors.
func IsInvalidState(err error) bool {
	return CodeOf(err) == ErrCodeInvalidState
}

// IsStorage returns true for storage failures.
func IsStorage(err error) bool {
	return CodeOf(err) == ErrCodeStorage
}

// IsNotFound returns true for unknown session handles.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeSessionNotFound
}

// NewStateError creates an Error for a call the state does not accept.
func NewStateError(handle string, state State, op string) *Error {
	return &Error{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("%s not accepted in state %s", op, state),
		Session: handle,
		Err:     ErrInvalidState,
	}
}

// NewStorageError creates an Error wrapping a storage failure.
func NewStorageError(handle string, err error) *Error {
	return &Error{
		Code:    ErrCodeStorage,
		Session: handle,
		Err:     err,
	}
}

// NewNotFoundError creates an Error for an unknown handle.
func NewNotFoundError(handle string) *Error {
	return &Error{
		Code:    ErrCodeSessionNotFound,
		Message: "no such session",
		Session: handle,
	}
}
