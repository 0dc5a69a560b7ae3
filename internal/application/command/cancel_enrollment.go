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
// CANCEL ENROLLMENT COMMAND
// Moves an Active enrollment to Cancelled. A second cancel fails.
// ══════════════════════════════════════════════════════════════════════════════

// CancelEnrollmentCommand identifies the enrollment to cancel.
type CancelEnrollmentCommand struct {
	EnrollmentID  string
	CorrelationID string
}

// Validate validates the command.
func (c CancelEnrollmentCommand) Validate() error {
	if strings.TrimSpace(c.EnrollmentID) == "" {
		return invalid("Cancel", "enrollment_id is required")
	}
	return nil
}

// CancelEnrollmentHandler handles the CancelEnrollmentCommand.
type CancelEnrollmentHandler struct {
	enrollments enrollment.Repository
	deps        Deps
}

// NewCancelEnrollmentHandler creates a new CancelEnrollmentHandler.
func NewCancelEnrollmentHandler(enrollments enrollment.Repository, deps Deps) *CancelEnrollmentHandler {
	return &CancelEnrollmentHandler{enrollments: enrollments, deps: deps.withDefaults()}
}

// Handle executes the cancel command. The state check and the write happen
// under the repository's per-record serialization, so of two concurrent
// cancels exactly one succeeds and the other gets InvalidState.
func (h *CancelEnrollmentHandler) Handle(ctx context.Context, cmd CancelEnrollmentCommand) (*enrollment.Enrollment, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	id, err := shared.NewEnrollmentID(cmd.EnrollmentID)
	if err != nil {
		return nil, err
	}

	at := h.deps.Clock.Now()
	updated, err := h.enrollments.Update(ctx, id, func(e *enrollment.Enrollment) error {
		return e.Cancel(at)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel enrollment: %w", err)
	}

	h.deps.Logger.Info("enrollment cancelled", logger.EnrollmentID(id.String()))

	ev := shared.NewEnrollmentCancelledEvent(updated.ID, updated.StudentID, updated.CourseID)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return updated, nil
}
