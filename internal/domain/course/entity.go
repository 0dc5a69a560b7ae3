// Package course contains the domain model of a course offered by the school.
package course

import (
	"strings"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxDescriptionLength bounds the free-text description.
	MaxDescriptionLength = 1000

	// MaxDurationHours bounds the declared workload.
	MaxDurationHours = 10000
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: COURSE
// ══════════════════════════════════════════════════════════════════════════════

// Course is a unit of study students can enroll in.
type Course struct {
	// ID is the unique identifier assigned on creation.
	ID shared.CourseID

	// Name is non-empty and unique across courses, ignoring case.
	Name string

	// Description is non-empty free text.
	Description string

	// DurationHours is the declared workload, always positive.
	DurationHours int

	// CreatedAt is when the record was stored.
	CreatedAt time.Time

	// UpdatedAt is the last time Name, Description or DurationHours changed.
	UpdatedAt time.Time
}

// NameKey is the form of Name used for uniqueness checks.
func (c *Course) NameKey() string {
	return NameKey(c.Name)
}

// NameKey normalizes a course name for uniqueness checks.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewCourseParams contains the parameters for registering a course.
type NewCourseParams struct {
	ID            string
	Name          string
	Description   string
	DurationHours int
	Now           time.Time
}

// NewCourse creates a new course with validation of all fields.
func NewCourse(params NewCourseParams) (*Course, error) {
	id, err := shared.NewCourseID(params.ID)
	if err != nil {
		return nil, err
	}

	details, err := validateDetails(params.Name, params.Description, params.DurationHours)
	if err != nil {
		return nil, err
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	return &Course{
		ID:            id,
		Name:          details.Name,
		Description:   details.Description,
		DurationHours: details.DurationHours,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Details are the editable attributes of a course.
type Details struct {
	Name          string
	Description   string
	DurationHours int
}

// Update replaces the editable attributes after validating them.
func (c *Course) Update(d Details, now time.Time) error {
	details, err := validateDetails(d.Name, d.Description, d.DurationHours)
	if err != nil {
		return err
	}
	c.Name = details.Name
	c.Description = details.Description
	c.DurationHours = details.DurationHours
	c.UpdatedAt = now.UTC()
	return nil
}

func validateDetails(name, description string, hours int) (Details, error) {
	n, err := shared.NewName("course", "name", name)
	if err != nil {
		return Details{}, err
	}

	desc := strings.TrimSpace(description)
	if desc == "" {
		return Details{}, shared.NewDomainError("course", "Validate", shared.ErrInvalidArgument, "description is required")
	}
	if len([]rune(desc)) > MaxDescriptionLength {
		return Details{}, shared.NewDomainErrorf("course", "Validate", shared.ErrInvalidArgument,
			"description must be at most %d characters", MaxDescriptionLength)
	}

	if hours <= 0 || hours > MaxDurationHours {
		return Details{}, shared.NewDomainErrorf("course", "Validate", shared.ErrInvalidArgument,
			"duration must be between 1 and %d hours", MaxDurationHours)
	}

	return Details{Name: n, Description: desc, DurationHours: hours}, nil
}

// NotFoundError returns a NotFound error naming the course.
func NotFoundError(id shared.CourseID) error {
	return shared.NewDomainError("course", "Find", shared.ErrCourseNotFound,
		"course "+id.String()+" not found")
}
