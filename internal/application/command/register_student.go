package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/escola-hub/academic-records/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER STUDENT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RegisterStudentCommand contains the data of a new student.
type RegisterStudentCommand struct {
	Name  string
	Email string

	// DateOfBirth in YYYY-MM-DD form.
	DateOfBirth string

	CorrelationID string
}

// Validate validates the command.
func (c RegisterStudentCommand) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("RegisterStudent", "name is required")
	}
	if strings.TrimSpace(c.Email) == "" {
		return invalid("RegisterStudent", "email is required")
	}
	if strings.TrimSpace(c.DateOfBirth) == "" {
		return invalid("RegisterStudent", "date_of_birth is required")
	}
	return nil
}

// RegisterStudentHandler handles the RegisterStudentCommand.
type RegisterStudentHandler struct {
	students student.Repository
	deps     Deps
}

// NewRegisterStudentHandler creates a new RegisterStudentHandler.
func NewRegisterStudentHandler(students student.Repository, deps Deps) *RegisterStudentHandler {
	return &RegisterStudentHandler{students: students, deps: deps.withDefaults()}
}

// Handle registers one student. Conflict when the email is taken.
func (h *RegisterStudentHandler) Handle(ctx context.Context, cmd RegisterStudentCommand) (*student.Student, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	dob, err := shared.ParseDate(cmd.DateOfBirth)
	if err != nil {
		return nil, err
	}

	s, err := student.NewStudent(student.NewStudentParams{
		ID:          h.deps.NewID(),
		Name:        cmd.Name,
		Email:       cmd.Email,
		DateOfBirth: dob,
		Today:       h.deps.today(),
		Now:         h.deps.Clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	if err := h.students.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("register student: %w", err)
	}

	h.deps.Logger.Info("student registered", logger.StudentID(s.ID.String()))

	ev := shared.NewStudentRegisteredEvent(s.ID, s.Name, s.Email, s.DateOfBirth)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// MaxBatchSize bounds one batch registration.
const MaxBatchSize = 500

// BatchItemResult is the outcome of one entry of a batch.
type BatchItemResult struct {
	Index   int
	Student *student.Student
	Err     error
}

// HandleBatch registers each entry independently. A failing entry does not
// stop the others; the results keep the input order. Once ctx ends, the
// entries not yet attempted fail with Unavailable and the entries already
// stored are still reported.
func (h *RegisterStudentHandler) HandleBatch(ctx context.Context, cmds []RegisterStudentCommand) ([]BatchItemResult, error) {
	if len(cmds) == 0 {
		return nil, invalid("RegisterStudents", "at least one student is required")
	}
	if len(cmds) > MaxBatchSize {
		return nil, invalid("RegisterStudents", fmt.Sprintf("at most %d students per batch", MaxBatchSize))
	}

	results := make([]BatchItemResult, len(cmds))
	for i, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			results[i] = BatchItemResult{
				Index: i,
				Err:   shared.WrapError("command", "RegisterStudents", shared.ErrUnavailable, "request ended before this entry was stored", err),
			}
			continue
		}
		s, err := h.Handle(ctx, cmd)
		results[i] = BatchItemResult{Index: i, Student: s, Err: err}
	}
	return results, nil
}
