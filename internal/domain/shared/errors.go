// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"context"
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
// Every failure that leaves the core carries exactly one of them.
var (
	// ErrNotFound: a referenced student, course or enrollment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the operation would violate a uniqueness rule.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState: the entity is not in a state that permits the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument: malformed or out-of-range input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnavailable: the persistence medium could not be reached.
	ErrUnavailable = errors.New("unavailable")
)

// Kind is the stable, machine-readable name of a base error.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindInvalidState    Kind = "invalid_state"
	KindInvalidArgument Kind = "invalid_argument"
	KindUnavailable     Kind = "unavailable"
	KindInternal        Kind = "internal"
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "student", "course", "enrollment"
	Op      string // Operation that failed, e.g., "Enroll", "Cancel"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// NewDomainErrorf is NewDomainError with a formatted message.
func NewDomainErrorf(domain, op string, kind error, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, kind, fmt.Sprintf(format, args...))
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Student domain errors
var (
	ErrStudentNotFound         = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrStudentEmailTaken       = NewDomainError("student", "Create", ErrConflict, "email is already registered")
	ErrStudentHasActiveCourses = NewDomainError("student", "Delete", ErrInvalidState, "student has active enrollments")
)

// Course domain errors
var (
	ErrCourseNotFound          = NewDomainError("course", "Find", ErrNotFound, "course not found")
	ErrCourseNameTaken         = NewDomainError("course", "Create", ErrConflict, "course name is already in use")
	ErrCourseHasActiveStudents = NewDomainError("course", "Delete", ErrInvalidState, "course has active enrollments")
)

// Enrollment domain errors
var (
	ErrEnrollmentNotFound     = NewDomainError("enrollment", "Find", ErrNotFound, "enrollment not found")
	ErrAlreadyEnrolled        = NewDomainError("enrollment", "Enroll", ErrConflict, "student already has an active enrollment in this course")
	ErrEnrollmentNotActive    = NewDomainError("enrollment", "Cancel", ErrInvalidState, "enrollment is not active")
	ErrEnrollmentDateInFuture = NewDomainError("enrollment", "Enroll", ErrInvalidArgument, "enrollment date cannot be in the future")
)

// Storage errors
var (
	ErrStorageUnavailable = NewDomainError("storage", "Access", ErrUnavailable, "storage is unavailable")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInvalidState checks if the error is a state precondition failure.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsUnavailable checks if the error is a storage outage or an expired deadline.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// IsRetryable checks if the operation can be retried by the caller.
func IsRetryable(err error) bool {
	return IsUnavailable(err)
}

// KindOf classifies err into one of the base kinds.
// Errors that carry none of them are reported as KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// MessageOf returns the human-readable part of err without the
// domain/op prefix when err is a DomainError.
func MessageOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
