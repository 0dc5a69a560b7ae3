package command

import (
	"context"
	"fmt"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE COMMANDS
// Register, update and delete courses.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterCourseCommand contains the data of a new course.
type RegisterCourseCommand struct {
	Name          string
	Description   string
	DurationHours int
	CorrelationID string
}

// UpdateCourseCommand replaces the details of a course.
type UpdateCourseCommand struct {
	CourseID      string
	Name          string
	Description   string
	DurationHours int
	CorrelationID string
}

// DeleteCourseCommand identifies the course to delete.
type DeleteCourseCommand struct {
	CourseID      string
	CorrelationID string
}

// CourseHandler handles the three course commands.
type CourseHandler struct {
	courses course.Repository
	deps    Deps
}

// NewCourseHandler creates a new CourseHandler.
func NewCourseHandler(courses course.Repository, deps Deps) *CourseHandler {
	return &CourseHandler{courses: courses, deps: deps.withDefaults()}
}

// Register creates a course. Conflict when the name is taken.
func (h *CourseHandler) Register(ctx context.Context, cmd RegisterCourseCommand) (*course.Course, error) {
	c, err := course.NewCourse(course.NewCourseParams{
		ID:            h.deps.NewID(),
		Name:          cmd.Name,
		Description:   cmd.Description,
		DurationHours: cmd.DurationHours,
		Now:           h.deps.Clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	if err := h.courses.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("register course: %w", err)
	}

	h.deps.Logger.Info("course registered", logger.CourseID(c.ID.String()))

	ev := shared.NewCourseRegisteredEvent(c.ID, c.Name)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return c, nil
}

// Update replaces a course's details.
func (h *CourseHandler) Update(ctx context.Context, cmd UpdateCourseCommand) (*course.Course, error) {
	id, err := shared.NewCourseID(cmd.CourseID)
	if err != nil {
		return nil, err
	}

	c, err := h.courses.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update course: %w", err)
	}

	details := course.Details{Name: cmd.Name, Description: cmd.Description, DurationHours: cmd.DurationHours}
	if err := c.Update(details, h.deps.Clock.Now()); err != nil {
		return nil, err
	}

	if err := h.courses.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update course: %w", err)
	}

	h.deps.Logger.Info("course updated", logger.CourseID(c.ID.String()))

	ev := shared.NewCourseUpdatedEvent(c.ID, c.Name)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return c, nil
}

// Delete removes a course. InvalidState while it has an Active enrollment.
func (h *CourseHandler) Delete(ctx context.Context, cmd DeleteCourseCommand) error {
	id, err := shared.NewCourseID(cmd.CourseID)
	if err != nil {
		return err
	}

	if err := h.courses.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}

	h.deps.Logger.Info("course deleted", logger.CourseID(id.String()))

	ev := shared.NewCourseDeletedEvent(id)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return nil
}
