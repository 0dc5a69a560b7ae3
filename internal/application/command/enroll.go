package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/escola-hub/academic-records/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL COMMAND
// Creates an Active enrollment of a student in a course.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollCommand contains the data to enroll a student.
type EnrollCommand struct {
	StudentID string
	CourseID  string

	// EnrollmentDate is an optional YYYY-MM-DD date; today when empty.
	EnrollmentDate string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EnrollCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return invalid("Enroll", "student_id is required")
	}
	if strings.TrimSpace(c.CourseID) == "" {
		return invalid("Enroll", "course_id is required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EnrollHandler handles the EnrollCommand.
type EnrollHandler struct {
	enrollments enrollment.Repository
	students    student.Lookup
	courses     course.Lookup
	deps        Deps
}

// NewEnrollHandler creates a new EnrollHandler.
func NewEnrollHandler(
	enrollments enrollment.Repository,
	students student.Lookup,
	courses course.Lookup,
	deps Deps,
) *EnrollHandler {
	return &EnrollHandler{
		enrollments: enrollments,
		students:    students,
		courses:     courses,
		deps:        deps.withDefaults(),
	}
}

// Handle executes the enroll command.
//
// Errors: NotFound for an unknown student or course, Conflict when the pair
// already has an Active enrollment, InvalidArgument for malformed input or a
// future date.
func (h *EnrollHandler) Handle(ctx context.Context, cmd EnrollCommand) (*enrollment.Enrollment, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	studentID, err := shared.NewStudentID(cmd.StudentID)
	if err != nil {
		return nil, err
	}
	courseID, err := shared.NewCourseID(cmd.CourseID)
	if err != nil {
		return nil, err
	}

	var date shared.Date
	if strings.TrimSpace(cmd.EnrollmentDate) != "" {
		if date, err = shared.ParseDate(cmd.EnrollmentDate); err != nil {
			return nil, err
		}
	}

	// Fail fast on unknown references. The repository repeats both checks
	// atomically with the insert.
	if _, err := h.students.GetByID(ctx, studentID); err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	if _, err := h.courses.GetByID(ctx, courseID); err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}

	now := h.deps.Clock.Now()
	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID:             h.deps.NewID(),
		StudentID:      studentID,
		CourseID:       courseID,
		EnrollmentDate: date,
		Today:          shared.DateOf(now),
		Now:            now,
	})
	if err != nil {
		return nil, err
	}

	if err := h.enrollments.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}

	h.deps.Logger.Info("student enrolled",
		logger.EnrollmentID(e.ID.String()),
		logger.StudentID(e.StudentID.String()),
		logger.CourseID(e.CourseID.String()),
	)

	ev := shared.NewEnrollmentCreatedEvent(e.ID, e.StudentID, e.CourseID, e.EnrollmentDate, e.Status.String())
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return e, nil
}
