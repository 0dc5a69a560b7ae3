// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"strconv"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Every successful mutation of a student, course or
// enrollment emits exactly one of them after the change is durable.
const (
	// Student events
	EventStudentRegistered EventType = "student.registered"
	EventStudentDeleted    EventType = "student.deleted"

	// Course events
	EventCourseRegistered EventType = "course.registered"
	EventCourseUpdated    EventType = "course.updated"
	EventCourseDeleted    EventType = "course.deleted"

	// Enrollment events
	EventEnrollmentCreated   EventType = "enrollment.created"
	EventEnrollmentCancelled EventType = "enrollment.cancelled"
	EventEnrollmentRemoved   EventType = "enrollment.removed"

	// System events
	EventEngagementRebuilt EventType = "system.engagement_rebuilt"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	// Values are strings so that the payload survives a JSON round trip unchanged.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// PayloadString reads a string field from an event payload.
func PayloadString(e Event, key string) string {
	if e == nil {
		return ""
	}
	v, _ := e.Payload()[key].(string)
	return v
}

// ═══════════════════════════════════════════════════════════════════════════
// Student Events
// ═══════════════════════════════════════════════════════════════════════════

// StudentRegisteredEvent is emitted when a new student is stored.
type StudentRegisteredEvent struct {
	BaseEvent
	Name        string `json:"name"`
	Email       string `json:"email"`
	DateOfBirth Date   `json:"date_of_birth"`
}

// Payload implements Event interface.
func (e StudentRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":    e.AggregateId,
		"name":          e.Name,
		"email":         e.Email,
		"date_of_birth": e.DateOfBirth.String(),
	}
}

// NewStudentRegisteredEvent creates a new StudentRegisteredEvent.
func NewStudentRegisteredEvent(studentID StudentID, name string, email Email, dob Date) StudentRegisteredEvent {
	return StudentRegisteredEvent{
		BaseEvent:   NewBaseEvent(EventStudentRegistered, studentID.String()),
		Name:        name,
		Email:       email.String(),
		DateOfBirth: dob,
	}
}

// StudentDeletedEvent is emitted when a student record is removed.
type StudentDeletedEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e StudentDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"student_id": e.AggregateId}
}

// NewStudentDeletedEvent creates a new StudentDeletedEvent.
func NewStudentDeletedEvent(studentID StudentID) StudentDeletedEvent {
	return StudentDeletedEvent{BaseEvent: NewBaseEvent(EventStudentDeleted, studentID.String())}
}

// ═══════════════════════════════════════════════════════════════════════════
// Course Events
// ═══════════════════════════════════════════════════════════════════════════

// CourseRegisteredEvent is emitted when a new course is stored.
type CourseRegisteredEvent struct {
	BaseEvent
	Name string `json:"name"`
}

// Payload implements Event interface.
func (e CourseRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.AggregateId,
		"name":      e.Name,
	}
}

// NewCourseRegisteredEvent creates a new CourseRegisteredEvent.
func NewCourseRegisteredEvent(courseID CourseID, name string) CourseRegisteredEvent {
	return CourseRegisteredEvent{
		BaseEvent: NewBaseEvent(EventCourseRegistered, courseID.String()),
		Name:      name,
	}
}

// CourseUpdatedEvent is emitted when a course's details change.
type CourseUpdatedEvent struct {
	BaseEvent
	Name string `json:"name"`
}

// Payload implements Event interface.
func (e CourseUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.AggregateId,
		"name":      e.Name,
	}
}

// NewCourseUpdatedEvent creates a new CourseUpdatedEvent.
func NewCourseUpdatedEvent(courseID CourseID, name string) CourseUpdatedEvent {
	return CourseUpdatedEvent{
		BaseEvent: NewBaseEvent(EventCourseUpdated, courseID.String()),
		Name:      name,
	}
}

// CourseDeletedEvent is emitted when a course record is removed.
type CourseDeletedEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e CourseDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"course_id": e.AggregateId}
}

// NewCourseDeletedEvent creates a new CourseDeletedEvent.
func NewCourseDeletedEvent(courseID CourseID) CourseDeletedEvent {
	return CourseDeletedEvent{BaseEvent: NewBaseEvent(EventCourseDeleted, courseID.String())}
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollment Events
// ═══════════════════════════════════════════════════════════════════════════

// EnrollmentCreatedEvent is emitted when an Active enrollment is stored.
type EnrollmentCreatedEvent struct {
	BaseEvent
	StudentID      StudentID `json:"student_id"`
	CourseID       CourseID  `json:"course_id"`
	EnrollmentDate Date      `json:"enrollment_date"`
	Status         string    `json:"status"`
}

// Payload implements Event interface.
func (e EnrollmentCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"enrollment_id":   e.AggregateId,
		"student_id":      e.StudentID.String(),
		"course_id":       e.CourseID.String(),
		"enrollment_date": e.EnrollmentDate.String(),
		"status":          e.Status,
	}
}

// NewEnrollmentCreatedEvent creates a new EnrollmentCreatedEvent.
func NewEnrollmentCreatedEvent(id EnrollmentID, studentID StudentID, courseID CourseID, date Date, status string) EnrollmentCreatedEvent {
	return EnrollmentCreatedEvent{
		BaseEvent:      NewBaseEvent(EventEnrollmentCreated, id.String()),
		StudentID:      studentID,
		CourseID:       courseID,
		EnrollmentDate: date,
		Status:         status,
	}
}

// EnrollmentCancelledEvent is emitted on the Active -> Cancelled transition.
type EnrollmentCancelledEvent struct {
	BaseEvent
	StudentID StudentID `json:"student_id"`
	CourseID  CourseID  `json:"course_id"`
}

// Payload implements Event interface.
func (e EnrollmentCancelledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"enrollment_id": e.AggregateId,
		"student_id":    e.StudentID.String(),
		"course_id":     e.CourseID.String(),
	}
}

// NewEnrollmentCancelledEvent creates a new EnrollmentCancelledEvent.
func NewEnrollmentCancelledEvent(id EnrollmentID, studentID StudentID, courseID CourseID) EnrollmentCancelledEvent {
	return EnrollmentCancelledEvent{
		BaseEvent: NewBaseEvent(EventEnrollmentCancelled, id.String()),
		StudentID: studentID,
		CourseID:  courseID,
	}
}

// EnrollmentRemovedEvent is emitted when an enrollment record is deleted.
type EnrollmentRemovedEvent struct {
	BaseEvent
	StudentID StudentID `json:"student_id"`
	CourseID  CourseID  `json:"course_id"`
}

// Payload implements Event interface.
func (e EnrollmentRemovedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"enrollment_id": e.AggregateId,
		"student_id":    e.StudentID.String(),
		"course_id":     e.CourseID.String(),
	}
}

// NewEnrollmentRemovedEvent creates a new EnrollmentRemovedEvent.
func NewEnrollmentRemovedEvent(id EnrollmentID, studentID StudentID, courseID CourseID) EnrollmentRemovedEvent {
	return EnrollmentRemovedEvent{
		BaseEvent: NewBaseEvent(EventEnrollmentRemoved, id.String()),
		StudentID: studentID,
		CourseID:  courseID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// EngagementRebuiltEvent is emitted after the engagement read model was
// rebuilt from a full scan of the stores.
type EngagementRebuiltEvent struct {
	BaseEvent
	Courses     int `json:"courses"`
	Enrollments int `json:"enrollments"`
}

// Payload implements Event interface.
func (e EngagementRebuiltEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"courses":     strconv.Itoa(e.Courses),
		"enrollments": strconv.Itoa(e.Enrollments),
	}
}

// NewEngagementRebuiltEvent creates a new EngagementRebuiltEvent.
func NewEngagementRebuiltEvent(courses, enrollments int) EngagementRebuiltEvent {
	return EngagementRebuiltEvent{
		BaseEvent:   NewBaseEvent(EventEngagementRebuilt, "engagement"),
		Courses:     courses,
		Enrollments: enrollments,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
