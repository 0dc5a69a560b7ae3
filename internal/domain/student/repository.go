package student

import (
	"context"

	"github.com/escola-hub/academic-records/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the storage contract.
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the storage operations for students.
type Repository interface {
	// Create stores a new student.
	// Returns ErrStudentEmailTaken if the email is already registered.
	Create(ctx context.Context, student *Student) error

	// GetByID returns a student by id.
	// Returns ErrStudentNotFound if there is none.
	GetByID(ctx context.Context, id shared.StudentID) (*Student, error)

	// GetByEmail returns the student registered with email.
	// Returns ErrStudentNotFound if there is none.
	GetByEmail(ctx context.Context, email shared.Email) (*Student, error)

	// List returns students ordered by name.
	List(ctx context.Context, opts ListOptions) ([]*Student, error)

	// Count returns the number of students matching opts.Search.
	Count(ctx context.Context, opts ListOptions) (int, error)

	// Delete removes a student that has no active enrollments, together with
	// its cancelled enrollment history. The check and the removal are atomic.
	// Returns ErrStudentNotFound or ErrStudentHasActiveCourses.
	Delete(ctx context.Context, id shared.StudentID) error
}

// Lookup is the read-only slice of Repository that other services depend on.
type Lookup interface {
	GetByID(ctx context.Context, id shared.StudentID) (*Student, error)
}

// ListOptions contains pagination and search parameters.
type ListOptions struct {
	// Offset for pagination.
	Offset int

	// Limit is the page size; zero or negative means no limit.
	Limit int

	// Search filters by a case-insensitive substring of name or email.
	Search string
}

// DefaultListOptions returns the default parameters.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Offset: 0,
		Limit:  shared.DefaultPageSize,
	}
}
