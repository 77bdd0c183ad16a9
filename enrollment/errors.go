package enrollment

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a referenced group, course, student, actor or
// enrollment does not exist or is inactive.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError indicates a duplicate active enrollment.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// CapacityExceededError indicates the group has no room left.
type CapacityExceededError struct {
	Message string
}

func (e *CapacityExceededError) Error() string { return e.Message }

// ValidationError indicates malformed input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UnexpectedError wraps persistence or transport failures. It is never a
// business rejection.
type UnexpectedError struct {
	Op  string
	Err error
}

func (e *UnexpectedError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *UnexpectedError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrCapacityExceeded creates a CapacityExceededError with a formatted message.
func ErrCapacityExceeded(format string, args ...interface{}) *CapacityExceededError {
	return &CapacityExceededError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrorKind is the taxonomy value reported to callers.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"
	KindCapacityExceeded ErrorKind = "capacity_exceeded"
	KindValidation       ErrorKind = "validation"
	KindUnexpected       ErrorKind = "unexpected"
)

// Kind classifies err. Anything outside the taxonomy is unexpected.
func Kind(err error) ErrorKind {
	var (
		notFound *NotFoundError
		conflict *ConflictError
		capacity *CapacityExceededError
		invalid  *ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &capacity):
		return KindCapacityExceeded
	case errors.As(err, &invalid):
		return KindValidation
	default:
		return KindUnexpected
	}
}

// IsRejection reports whether err is an expected business outcome rather
// than a failure of the system.
func IsRejection(err error) bool {
	return err != nil && Kind(err) != KindUnexpected
}

func unexpected(op string, err error) error {
	if err == nil || IsRejection(err) {
		return err
	}
	var ue *UnexpectedError
	if errors.As(err, &ue) {
		return err
	}
	return &UnexpectedError{Op: op, Err: err}
}
