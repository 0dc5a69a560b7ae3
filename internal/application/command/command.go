// Package command contains write operations (CQRS - Commands).
//
// Each command is a plain struct with a Validate method and is executed by
// its own handler. Handlers write through the domain repositories and then
// publish one domain event per successful mutation.
package command

import (
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/pkg/logger"
	"github.com/escola-hub/academic-records/pkg/timeutil"
	"github.com/google/uuid"
)

// IDGenerator returns a fresh identifier for a new record.
type IDGenerator func() string

// Deps are the collaborators every command handler shares.
type Deps struct {
	Publisher shared.EventPublisher
	Clock     timeutil.Clock
	Logger    *logger.Logger
	NewID     IDGenerator
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = timeutil.NewSystemClock(nil)
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// today is the current calendar day in the clock's location.
func (d Deps) today() shared.Date {
	return shared.DateOf(d.Clock.Now())
}

// publish emits the event after a committed write. The write already
// happened, so a failure here is logged and never returned.
func (d Deps) publish(event shared.Event) {
	if d.Publisher == nil {
		return
	}
	if err := d.Publisher.Publish(event); err != nil {
		d.Logger.Error("failed to publish event",
			logger.EventType(string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Err(err),
		)
	}
}

func invalid(op, message string) error {
	return shared.NewDomainError("command", op, shared.ErrInvalidArgument, message)
}
