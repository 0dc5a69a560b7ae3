package command

import (
	"context"
	"fmt"

	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/escola-hub/academic-records/pkg/logger"
)

// DeleteStudentCommand identifies the student to delete.
type DeleteStudentCommand struct {
	StudentID     string
	CorrelationID string
}

// DeleteStudentHandler deletes a student without active enrollments.
type DeleteStudentHandler struct {
	students student.Repository
	deps     Deps
}

// NewDeleteStudentHandler creates a new DeleteStudentHandler.
func NewDeleteStudentHandler(students student.Repository, deps Deps) *DeleteStudentHandler {
	return &DeleteStudentHandler{students: students, deps: deps.withDefaults()}
}

// Handle executes the delete. InvalidState while the student has an Active
// enrollment.
func (h *DeleteStudentHandler) Handle(ctx context.Context, cmd DeleteStudentCommand) error {
	id, err := shared.NewStudentID(cmd.StudentID)
	if err != nil {
		return err
	}

	if err := h.students.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}

	h.deps.Logger.Info("student deleted", logger.StudentID(id.String()))

	ev := shared.NewStudentDeletedEvent(id)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return nil
}
