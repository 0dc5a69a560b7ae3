// Package student contains the domain model of a registered student.
// This is the core of the business logic: no external dependencies here.
package student

import (
	"time"

	"github.com/escola-hub/academic-records/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MinAge is the youngest age accepted at registration.
	MinAge = 5

	// MaxAge is the oldest age accepted at registration.
	MaxAge = 120
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student is a person registered with the school.
// Immutable once created; the record can only be removed while it has no
// active enrollments.
type Student struct {
	// ID is the unique identifier assigned on creation.
	ID shared.StudentID

	// Name is the full name, never empty.
	Name string

	// Email is unique across students.
	Email shared.Email

	// DateOfBirth is a calendar date in the past.
	DateOfBirth shared.Date

	// CreatedAt is when the record was stored.
	CreatedAt time.Time
}

// AgeOn returns the student's age in whole years on the given day.
func (s *Student) AgeOn(day shared.Date) int {
	return s.DateOfBirth.YearsUntil(day)
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewStudentParams contains the parameters for registering a student.
type NewStudentParams struct {
	ID          string
	Name        string
	Email       string
	DateOfBirth shared.Date

	// Today anchors the date-of-birth checks.
	Today shared.Date

	// Now becomes CreatedAt.
	Now time.Time
}

// NewStudent creates a new student with validation of all fields.
func NewStudent(params NewStudentParams) (*Student, error) {
	id, err := shared.NewStudentID(params.ID)
	if err != nil {
		return nil, err
	}

	name, err := shared.NewName("student", "name", params.Name)
	if err != nil {
		return nil, err
	}

	email, err := shared.NewEmail(params.Email)
	if err != nil {
		return nil, err
	}

	if err := ValidateDateOfBirth(params.DateOfBirth, params.Today); err != nil {
		return nil, err
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}

	return &Student{
		ID:          id,
		Name:        name,
		Email:       email,
		DateOfBirth: params.DateOfBirth,
		CreatedAt:   now.UTC(),
	}, nil
}

// ValidateDateOfBirth checks that dob is set, not after today and yields an
// age within [MinAge, MaxAge].
func ValidateDateOfBirth(dob, today shared.Date) error {
	if dob.IsZero() {
		return shared.NewDomainError("student", "Validate", shared.ErrInvalidArgument, "date of birth is required")
	}
	if dob.After(today) {
		return shared.NewDomainError("student", "Validate", shared.ErrInvalidArgument, "date of birth cannot be in the future")
	}
	age := dob.YearsUntil(today)
	if age < MinAge || age > MaxAge {
		return shared.NewDomainErrorf("student", "Validate", shared.ErrInvalidArgument,
			"date of birth implies an age of %d, expected between %d and %d", age, MinAge, MaxAge)
	}
	return nil
}

// NotFoundError returns a NotFound error naming the student.
func NotFoundError(id shared.StudentID) error {
	return shared.NewDomainError("student", "Find", shared.ErrStudentNotFound,
		"student "+id.String()+" not found")
}
