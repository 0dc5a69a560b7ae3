package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/escola-hub/academic-records/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO is the read shape of a student.
type StudentDTO struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	DateOfBirth shared.Date `json:"date_of_birth"`

	// Age in whole years on the day the query ran.
	Age int `json:"age"`

	CreatedAt time.Time `json:"created_at"`
}

// Page is the paging metadata of a listing.
type Page struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalCount int  `json:"total_count"`
	HasMore    bool `json:"has_more"`
}

func newPage(p shared.Pagination, total, returned int) Page {
	return Page{
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalCount: total,
		HasMore:    p.Offset()+returned < total,
	}
}

// ListStudentsQuery pages through students ordered by name.
type ListStudentsQuery struct {
	Search   string
	Page     int
	PageSize int
}

// ListStudentsResult is one page of students.
type ListStudentsResult struct {
	Students []StudentDTO `json:"students"`
	Page
}

// StudentQueries serves the read side of students.
type StudentQueries struct {
	students student.Repository
	clock    timeutil.Clock
}

// NewStudentQueries creates a new StudentQueries. A nil clock selects the
// system clock.
func NewStudentQueries(students student.Repository, clock timeutil.Clock) *StudentQueries {
	if clock == nil {
		clock = timeutil.NewSystemClock(nil)
	}
	return &StudentQueries{students: students, clock: clock}
}

func (q *StudentQueries) toDTO(s *student.Student, today shared.Date) StudentDTO {
	return StudentDTO{
		ID:          s.ID.String(),
		Name:        s.Name,
		Email:       s.Email.String(),
		DateOfBirth: s.DateOfBirth,
		Age:         s.AgeOn(today),
		CreatedAt:   s.CreatedAt,
	}
}

// Describe renders a student the caller already holds.
func (q *StudentQueries) Describe(s *student.Student) *StudentDTO {
	dto := q.toDTO(s, shared.DateOf(q.clock.Now()))
	return &dto
}

// Get returns a student by id.
func (q *StudentQueries) Get(ctx context.Context, rawID string) (*StudentDTO, error) {
	id, err := shared.NewStudentID(strings.TrimSpace(rawID))
	if err != nil {
		return nil, err
	}
	s, err := q.students.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	dto := q.toDTO(s, shared.DateOf(q.clock.Now()))
	return &dto, nil
}

// GetByEmail returns the student registered with the address, compared
// case-insensitively.
func (q *StudentQueries) GetByEmail(ctx context.Context, rawEmail string) (*StudentDTO, error) {
	email, err := shared.NewEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	s, err := q.students.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get student by email: %w", err)
	}
	dto := q.toDTO(s, shared.DateOf(q.clock.Now()))
	return &dto, nil
}

// List returns one page of students.
func (q *StudentQueries) List(ctx context.Context, query ListStudentsQuery) (*ListStudentsResult, error) {
	p := shared.NewPagination(query.Page, query.PageSize)
	opts := student.ListOptions{
		Offset: p.Offset(),
		Limit:  p.Limit(),
		Search: strings.TrimSpace(query.Search),
	}

	total, err := q.students.Count(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	items, err := q.students.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	today := shared.DateOf(q.clock.Now())
	out := make([]StudentDTO, len(items))
	for i, s := range items {
		out[i] = q.toDTO(s, today)
	}
	return &ListStudentsResult{Students: out, Page: newPage(p, total, len(out))}, nil
}
