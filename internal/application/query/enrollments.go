// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ENROLLMENTS QUERY
// Lists enrollments in creation order with the names of the student and the
// course already resolved.
// ══════════════════════════════════════════════════════════════════════════════

// ListEnrollmentsQuery contains optional filters. Empty fields do not filter.
type ListEnrollmentsQuery struct {
	StudentID string
	CourseID  string

	// Status is "active", "cancelled" or empty.
	Status string
}

// Filter validates the query and converts it into a repository filter.
func (q ListEnrollmentsQuery) Filter() (enrollment.Filter, error) {
	var f enrollment.Filter
	var err error

	if s := strings.TrimSpace(q.StudentID); s != "" {
		if f.StudentID, err = shared.NewStudentID(s); err != nil {
			return f, err
		}
	}
	if c := strings.TrimSpace(q.CourseID); c != "" {
		if f.CourseID, err = shared.NewCourseID(c); err != nil {
			return f, err
		}
	}
	if f.Status, err = enrollment.ParseStatus(strings.TrimSpace(q.Status)); err != nil {
		return f, err
	}
	return f, nil
}

// EnrollmentRow is one entry of an enrollment listing.
type EnrollmentRow struct {
	ID             string      `json:"id"`
	StudentID      string      `json:"student_id"`
	StudentName    string      `json:"student_name"`
	CourseID       string      `json:"course_id"`
	CourseName     string      `json:"course_name"`
	EnrollmentDate shared.Date `json:"enrollment_date"`
	Status         string      `json:"status"`
}

func rowOf(d enrollment.Detail) EnrollmentRow {
	return EnrollmentRow{
		ID:             d.ID.String(),
		StudentID:      d.StudentID.String(),
		StudentName:    d.StudentName,
		CourseID:       d.CourseID.String(),
		CourseName:     d.CourseName,
		EnrollmentDate: d.EnrollmentDate,
		Status:         d.Status.String(),
	}
}

// ListEnrollmentsHandler handles the ListEnrollmentsQuery.
type ListEnrollmentsHandler struct {
	enrollments enrollment.Repository
}

// NewListEnrollmentsHandler creates a new ListEnrollmentsHandler.
func NewListEnrollmentsHandler(enrollments enrollment.Repository) *ListEnrollmentsHandler {
	return &ListEnrollmentsHandler{enrollments: enrollments}
}

// Handle returns a lazy sequence of rows. Nothing is read until the sequence
// is ranged over, and every range starts a fresh read from the beginning.
func (h *ListEnrollmentsHandler) Handle(ctx context.Context, q ListEnrollmentsQuery) (iter.Seq2[EnrollmentRow, error], error) {
	filter, err := q.Filter()
	if err != nil {
		return nil, err
	}

	details := h.enrollments.List(ctx, filter)
	return func(yield func(EnrollmentRow, error) bool) {
		for d, err := range details {
			if err != nil {
				yield(EnrollmentRow{}, fmt.Errorf("list enrollments: %w", err))
				return
			}
			if !yield(rowOf(d), nil) {
				return
			}
		}
	}, nil
}

// Collect drains seq into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := make([]T, 0)
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET ENROLLMENT QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetEnrollmentHandler returns one enrollment with both names resolved.
type GetEnrollmentHandler struct {
	enrollments enrollment.Repository
	students    student.Lookup
	courses     course.Lookup
}

// NewGetEnrollmentHandler creates a new GetEnrollmentHandler.
func NewGetEnrollmentHandler(enrollments enrollment.Repository, students student.Lookup, courses course.Lookup) *GetEnrollmentHandler {
	return &GetEnrollmentHandler{enrollments: enrollments, students: students, courses: courses}
}

// Handle looks the enrollment up by id.
func (h *GetEnrollmentHandler) Handle(ctx context.Context, rawID string) (*EnrollmentRow, error) {
	id, err := shared.NewEnrollmentID(strings.TrimSpace(rawID))
	if err != nil {
		return nil, err
	}

	e, err := h.enrollments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	s, err := h.students.GetByID(ctx, e.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	c, err := h.courses.GetByID(ctx, e.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}

	row := rowOf(enrollment.Detail{Enrollment: *e, StudentName: s.Name, CourseName: c.Name})
	return &row, nil
}
