package course

import (
	"context"

	"github.com/escola-hub/academic-records/internal/domain/shared"
)

// Repository defines the storage operations for courses.
type Repository interface {
	// Create stores a new course.
	// Returns ErrCourseNameTaken if another course uses the same name.
	Create(ctx context.Context, course *Course) error

	// GetByID returns a course by id.
	// Returns ErrCourseNotFound if there is none.
	GetByID(ctx context.Context, id shared.CourseID) (*Course, error)

	// Update persists the editable attributes of an existing course.
	// Returns ErrCourseNotFound or ErrCourseNameTaken.
	Update(ctx context.Context, course *Course) error

	// List returns courses ordered by name.
	List(ctx context.Context, opts ListOptions) ([]*Course, error)

	// Count returns the number of courses matching opts.Search.
	Count(ctx context.Context, opts ListOptions) (int, error)

	// Delete removes a course that has no active enrollments, together with
	// its cancelled enrollment history. The check and the removal are atomic.
	// Returns ErrCourseNotFound or ErrCourseHasActiveStudents.
	Delete(ctx context.Context, id shared.CourseID) error
}

// Lookup is the read-only slice of Repository that other services depend on.
type Lookup interface {
	GetByID(ctx context.Context, id shared.CourseID) (*Course, error)
}

// ListOptions contains pagination and search parameters.
type ListOptions struct {
	Offset int

	// Limit is the page size; zero or negative means no limit.
	Limit int

	// Search filters by a case-insensitive substring of the name.
	Search string
}
