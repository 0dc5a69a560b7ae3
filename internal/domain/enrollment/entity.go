// Package enrollment contains the relation between a student and a course.
//
// An Enrollment is a first-class record: it is owned by storage, references
// exactly one student and one course, and moves through a single one-way
// transition from Active to Cancelled.
package enrollment

import (
	"time"

	"github.com/escola-hub/academic-records/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of an enrollment.
type Status string

const (
	// StatusActive: the student currently attends the course.
	StatusActive Status = "active"
	// StatusCancelled: terminal state, never reactivated.
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a status name. The empty string yields "", nil.
func ParseStatus(raw string) (Status, error) {
	if raw == "" {
		return "", nil
	}
	s := Status(raw)
	if !s.IsValid() {
		return "", shared.NewDomainErrorf("enrollment", "ParseStatus", shared.ErrInvalidArgument,
			"status must be %q or %q", StatusActive, StatusCancelled)
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

// Enrollment links one student to one course.
type Enrollment struct {
	// ID is the unique identifier assigned on creation.
	ID shared.EnrollmentID

	// StudentID must resolve to an existing student at creation time.
	StudentID shared.StudentID

	// CourseID must resolve to an existing course at creation time.
	CourseID shared.CourseID

	// EnrollmentDate is the calendar day the student joined, never in the future.
	EnrollmentDate shared.Date

	// Status is Active until cancelled.
	Status Status

	// CancelledAt is set by Cancel.
	CancelledAt *time.Time

	// CreatedAt is when the record was stored.
	CreatedAt time.Time

	// Seq is a storage-assigned, strictly increasing insertion counter
	// used to order records created within the same instant.
	Seq int64
}

// IsActive reports whether the enrollment still counts towards a course.
func (e *Enrollment) IsActive() bool {
	return e.Status == StatusActive
}

// Cancel performs the Active -> Cancelled transition.
// Cancelling an already cancelled enrollment fails with ErrEnrollmentNotActive.
func (e *Enrollment) Cancel(at time.Time) error {
	if e.Status != StatusActive {
		return NotActiveError(e.ID)
	}
	at = at.UTC()
	e.Status = StatusCancelled
	e.CancelledAt = &at
	return nil
}

// Clone returns a deep copy.
func (e *Enrollment) Clone() *Enrollment {
	c := *e
	if e.CancelledAt != nil {
		at := *e.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewEnrollmentParams contains the parameters for creating an enrollment.
type NewEnrollmentParams struct {
	ID        string
	StudentID shared.StudentID
	CourseID  shared.CourseID

	// EnrollmentDate defaults to Today when zero.
	EnrollmentDate shared.Date

	// Today is the current calendar day.
	Today shared.Date

	Now time.Time
}

// NewEnrollment creates a new Active enrollment.
func NewEnrollment(params NewEnrollmentParams) (*Enrollment, error) {
	id, err := shared.NewEnrollmentID(params.ID)
	if err != nil {
		return nil, err
	}
	if !params.StudentID.IsValid() {
		return nil, shared.NewDomainError("enrollment", "Validate", shared.ErrInvalidArgument, "invalid student ID format")
	}
	if !params.CourseID.IsValid() {
		return nil, shared.NewDomainError("enrollment", "Validate", shared.ErrInvalidArgument, "invalid course ID format")
	}

	date := params.EnrollmentDate
	if date.IsZero() {
		date = params.Today
	}
	if date.After(params.Today) {
		return nil, shared.ErrEnrollmentDateInFuture
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}

	return &Enrollment{
		ID:             id,
		StudentID:      params.StudentID,
		CourseID:       params.CourseID,
		EnrollmentDate: date,
		Status:         StatusActive,
		CreatedAt:      now.UTC(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// NotFoundError returns a NotFound error naming the enrollment.
func NotFoundError(id shared.EnrollmentID) error {
	return shared.NewDomainError("enrollment", "Find", shared.ErrEnrollmentNotFound,
		"enrollment "+id.String()+" not found")
}

// NotActiveError returns an InvalidState error naming the enrollment.
func NotActiveError(id shared.EnrollmentID) error {
	return shared.NewDomainError("enrollment", "Cancel", shared.ErrEnrollmentNotActive,
		"enrollment "+id.String()+" is already cancelled")
}

// DuplicateActiveError returns a Conflict error for the (student, course) pair.
func DuplicateActiveError(studentID shared.StudentID, courseID shared.CourseID) error {
	return shared.NewDomainError("enrollment", "Enroll", shared.ErrAlreadyEnrolled,
		"student "+studentID.String()+" already has an active enrollment in course "+courseID.String())
}
