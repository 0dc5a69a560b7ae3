package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/shared"
)

// CourseDTO is the read shape of a course.
type CourseDTO struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	DurationHours int       `json:"duration_hours"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CourseDTOOf converts a course entity.
func CourseDTOOf(c *course.Course) CourseDTO {
	return CourseDTO{
		ID:            c.ID.String(),
		Name:          c.Name,
		Description:   c.Description,
		DurationHours: c.DurationHours,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// ListCoursesQuery pages through courses ordered by name. Search matches a
// case-insensitive part of the name.
type ListCoursesQuery struct {
	Search   string
	Page     int
	PageSize int
}

// ListCoursesResult is one page of courses.
type ListCoursesResult struct {
	Courses []CourseDTO `json:"courses"`
	Page
}

// CourseQueries serves the read side of courses.
type CourseQueries struct {
	courses course.Repository
}

// NewCourseQueries creates a new CourseQueries.
func NewCourseQueries(courses course.Repository) *CourseQueries {
	return &CourseQueries{courses: courses}
}

// Get returns a course by id.
func (q *CourseQueries) Get(ctx context.Context, rawID string) (*CourseDTO, error) {
	id, err := shared.NewCourseID(strings.TrimSpace(rawID))
	if err != nil {
		return nil, err
	}
	c, err := q.courses.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	dto := CourseDTOOf(c)
	return &dto, nil
}

// List returns one page of courses.
func (q *CourseQueries) List(ctx context.Context, query ListCoursesQuery) (*ListCoursesResult, error) {
	p := shared.NewPagination(query.Page, query.PageSize)
	opts := course.ListOptions{
		Offset: p.Offset(),
		Limit:  p.Limit(),
		Search: strings.TrimSpace(query.Search),
	}

	total, err := q.courses.Count(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	items, err := q.courses.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}

	out := make([]CourseDTO, len(items))
	for i, c := range items {
		out[i] = CourseDTOOf(c)
	}
	return &ListCoursesResult{Courses: out, Page: newPage(p, total, len(out))}, nil
}
