package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REMOVE ENROLLMENT COMMAND
// Hard-deletes an enrollment regardless of its status.
// ══════════════════════════════════════════════════════════════════════════════

// RemoveEnrollmentCommand identifies the enrollment to delete.
type RemoveEnrollmentCommand struct {
	EnrollmentID  string
	CorrelationID string
}

// Validate validates the command.
func (c RemoveEnrollmentCommand) Validate() error {
	if strings.TrimSpace(c.EnrollmentID) == "" {
		return invalid("Remove", "enrollment_id is required")
	}
	return nil
}

// RemoveEnrollmentHandler handles the RemoveEnrollmentCommand.
type RemoveEnrollmentHandler struct {
	enrollments enrollment.Repository
	deps        Deps
}

// NewRemoveEnrollmentHandler creates a new RemoveEnrollmentHandler.
func NewRemoveEnrollmentHandler(enrollments enrollment.Repository, deps Deps) *RemoveEnrollmentHandler {
	return &RemoveEnrollmentHandler{enrollments: enrollments, deps: deps.withDefaults()}
}

// Handle executes the remove command.
func (h *RemoveEnrollmentHandler) Handle(ctx context.Context, cmd RemoveEnrollmentCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	id, err := shared.NewEnrollmentID(cmd.EnrollmentID)
	if err != nil {
		return err
	}

	removed, err := h.enrollments.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("remove enrollment: %w", err)
	}

	h.deps.Logger.Info("enrollment removed",
		logger.EnrollmentID(id.String()),
		logger.String("status", removed.Status.String()),
	)

	ev := shared.NewEnrollmentRemovedEvent(removed.ID, removed.StudentID, removed.CourseID)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return nil
}
