package enrollment

import (
	"context"
	"iter"

	"github.com/escola-hub/academic-records/internal/domain/shared"
)

// Detail is an enrollment with the display names of its student and course.
type Detail struct {
	Enrollment
	StudentName string
	CourseName  string
}

// Filter narrows a listing. Zero-valued fields do not filter.
type Filter struct {
	StudentID shared.StudentID
	CourseID  shared.CourseID
	Status    Status
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e *Enrollment) bool {
	if !f.StudentID.IsEmpty() && e.StudentID != f.StudentID {
		return false
	}
	if !f.CourseID.IsEmpty() && e.CourseID != f.CourseID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}

// MutateFunc changes an enrollment in place. Returning an error aborts the
// update and leaves the stored record untouched.
type MutateFunc func(e *Enrollment) error

// Repository defines the storage operations for enrollments.
// Every method is safe for concurrent use.
type Repository interface {
	// Create stores e and assigns e.Seq. The existence of both references and
	// the absence of another Active enrollment for the same pair are checked
	// atomically with the insert.
	// Returns ErrStudentNotFound, ErrCourseNotFound or ErrAlreadyEnrolled.
	Create(ctx context.Context, e *Enrollment) error

	// GetByID returns an enrollment by id.
	GetByID(ctx context.Context, id shared.EnrollmentID) (*Enrollment, error)

	// Update loads the enrollment, applies fn and persists the result while
	// holding exclusive access to the record, so concurrent updates of the
	// same id are serialized.
	Update(ctx context.Context, id shared.EnrollmentID, fn MutateFunc) (*Enrollment, error)

	// Delete removes the record and returns what was removed.
	Delete(ctx context.Context, id shared.EnrollmentID) (*Enrollment, error)

	// List yields matching enrollments in creation order. Each call to the
	// returned sequence runs a fresh read over a consistent snapshot, so the
	// sequence can be ranged over more than once.
	List(ctx context.Context, filter Filter) iter.Seq2[Detail, error]
}
