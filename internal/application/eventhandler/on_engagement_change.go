// Package eventhandler contains the reactions to domain events.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON ENGAGEMENT CHANGE
// Every student, course and enrollment event changes the inputs of the
// engagement report. Two reactions follow:
// 1. the in-process engagement view folds the event in;
// 2. cached reports are dropped so the next read recomputes.
// ══════════════════════════════════════════════════════════════════════════════

// EngagementEvents are the event types that change engagement inputs.
var EngagementEvents = []shared.EventType{
	shared.EventStudentRegistered,
	shared.EventStudentDeleted,
	shared.EventCourseRegistered,
	shared.EventCourseUpdated,
	shared.EventCourseDeleted,
	shared.EventEnrollmentCreated,
	shared.EventEnrollmentCancelled,
	shared.EventEnrollmentRemoved,
}

// Projection is a read model fed by events.
type Projection interface {
	Apply(event shared.Event) error
}

// ReportInvalidator drops cached engagement reports.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ──────────────────────────────────────────────────────────────────────────────
// Projection handler
// ──────────────────────────────────────────────────────────────────────────────

// OnEngagementChangeProjector applies engagement events to a projection.
type OnEngagementChangeProjector struct {
	projection Projection
	logger     *logger.Logger
}

// NewOnEngagementChangeProjector creates a new projector handler.
func NewOnEngagementChangeProjector(projection Projection, log *logger.Logger) *OnEngagementChangeProjector {
	if log == nil {
		log = logger.Nop()
	}
	return &OnEngagementChangeProjector{
		projection: projection,
		logger:     log.With(logger.Component("engagement_projector")),
	}
}

// Handle processes the event.
func (h *OnEngagementChangeProjector) Handle(event shared.Event) error {
	if err := h.projection.Apply(event); err != nil {
		h.logger.Error("failed to apply event to engagement view",
			logger.EventType(string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Err(err),
		)
		return fmt.Errorf("apply %s: %w", event.EventType(), err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Cache invalidation handler
// ──────────────────────────────────────────────────────────────────────────────

// OnEngagementChangeInvalidator drops cached reports after every engagement
// event and after a projection rebuild.
type OnEngagementChangeInvalidator struct {
	cache   ReportInvalidator
	logger  *logger.Logger
	timeout time.Duration
}

// NewOnEngagementChangeInvalidator creates a new invalidation handler.
func NewOnEngagementChangeInvalidator(cache ReportInvalidator, log *logger.Logger) *OnEngagementChangeInvalidator {
	if log == nil {
		log = logger.Nop()
	}
	return &OnEngagementChangeInvalidator{
		cache:   cache,
		logger:  log.With(logger.Component("report_invalidator")),
		timeout: 2 * time.Second,
	}
}

// Handle processes the event. A failed invalidation is logged; the cached
// entries then expire on their TTL.
func (h *OnEngagementChangeInvalidator) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("failed to invalidate report cache",
			logger.EventType(string(event.EventType())),
			logger.Err(err),
		)
		return nil
	}
	h.logger.Debug("report cache invalidated", logger.EventType(string(event.EventType())))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBSCRIPTION
// ══════════════════════════════════════════════════════════════════════════════

// Subscribe registers a single handler on the bus for the engagement events
// and the rebuild notice. Either reaction may be nil. Each event reaches the
// projection before cached reports are dropped, and one subscription keeps
// the events in publish order.
func Subscribe(bus shared.EventSubscriber, projector *OnEngagementChangeProjector, invalidator *OnEngagementChangeInvalidator) error {
	if projector == nil && invalidator == nil {
		return nil
	}

	changes := make(map[shared.EventType]bool, len(EngagementEvents))
	for _, t := range EngagementEvents {
		changes[t] = true
	}

	handle := func(event shared.Event) error {
		t := event.EventType()
		if !changes[t] && t != shared.EventEngagementRebuilt {
			return nil
		}
		var err error
		if changes[t] && projector != nil {
			err = projector.Handle(event)
		}
		if invalidator != nil {
			_ = invalidator.Handle(event)
		}
		return err
	}

	if err := bus.SubscribeAll(handle); err != nil {
		return fmt.Errorf("subscribe engagement handlers: %w", err)
	}
	return nil
}
