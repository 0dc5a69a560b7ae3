// Package projections contains read models that are kept up to date from
// domain events instead of being read from storage on every request.
package projections

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/engagement"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGAGEMENT VIEW
// In-process copy of the population the engagement report is computed from.
// ══════════════════════════════════════════════════════════════════════════════

// Loader reads the authoritative population, usually from the repositories.
type Loader interface {
	Dataset(ctx context.Context) (engagement.Dataset, error)
}

// EngagementView is an event-fed copy of students, courses and enrollments.
// It is safe for concurrent use.
type EngagementView struct {
	mu sync.RWMutex

	loader Loader

	students    map[shared.StudentID]*student.Student
	courses     map[shared.CourseID]*course.Course
	enrollments map[shared.EnrollmentID]*enrollment.Enrollment

	// Cancels and removals can be published before the creation they refer
	// to when two requests race; they wait here for it.
	earlyCancel map[shared.EnrollmentID]time.Time
	earlyRemove map[shared.EnrollmentID]bool

	// journal holds the events applied while a Rebuild is loading, replayed
	// on top of the loaded content.
	loading int
	journal []shared.Event

	lastRebuilt time.Time
	version     int64
}

// NewEngagementView creates an empty view. Call Rebuild before serving reads.
func NewEngagementView(loader Loader) *EngagementView {
	return &EngagementView{
		loader:      loader,
		students:    make(map[shared.StudentID]*student.Student),
		courses:     make(map[shared.CourseID]*course.Course),
		enrollments: make(map[shared.EnrollmentID]*enrollment.Enrollment),
		earlyCancel: make(map[shared.EnrollmentID]time.Time),
		earlyRemove: make(map[shared.EnrollmentID]bool),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD
// ══════════════════════════════════════════════════════════════════════════════

// Rebuild replaces the view's content with a fresh read from the loader.
// Events applied while the read runs are applied again on top of it. On
// error the previous content is kept.
func (v *EngagementView) Rebuild(ctx context.Context) (engagement.Dataset, error) {
	v.mu.Lock()
	v.loading++
	v.mu.Unlock()

	ds, err := v.loader.Dataset(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading--
	journal := v.journal
	if v.loading == 0 {
		v.journal = nil
	}
	if err != nil {
		return engagement.Dataset{}, fmt.Errorf("projections: rebuild engagement view: %w", err)
	}

	v.students = make(map[shared.StudentID]*student.Student, len(ds.Students))
	for _, s := range ds.Students {
		cp := *s
		v.students[s.ID] = &cp
	}
	v.courses = make(map[shared.CourseID]*course.Course, len(ds.Courses))
	for _, c := range ds.Courses {
		cp := *c
		v.courses[c.ID] = &cp
	}
	v.enrollments = make(map[shared.EnrollmentID]*enrollment.Enrollment, len(ds.Enrollments))
	for _, e := range ds.Enrollments {
		v.enrollments[e.ID] = e.Clone()
		delete(v.earlyCancel, e.ID)
		delete(v.earlyRemove, e.ID)
	}

	for _, event := range journal {
		_ = v.apply(event)
	}

	v.lastRebuilt = time.Now().UTC()
	v.version++
	return ds, nil
}

// LastRebuilt returns when Rebuild last succeeded.
func (v *EngagementView) LastRebuilt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastRebuilt
}

// Version increases with every applied change.
func (v *EngagementView) Version() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// ══════════════════════════════════════════════════════════════════════════════
// READ
// ══════════════════════════════════════════════════════════════════════════════

// Dataset returns a copy of the current content.
func (v *EngagementView) Dataset(ctx context.Context) (engagement.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return engagement.Dataset{}, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	ds := engagement.Dataset{
		Students:    make([]*student.Student, 0, len(v.students)),
		Courses:     make([]*course.Course, 0, len(v.courses)),
		Enrollments: make([]*enrollment.Enrollment, 0, len(v.enrollments)),
	}
	for _, s := range v.students {
		cp := *s
		ds.Students = append(ds.Students, &cp)
	}
	for _, c := range v.courses {
		cp := *c
		ds.Courses = append(ds.Courses, &cp)
	}
	for _, e := range v.enrollments {
		ds.Enrollments = append(ds.Enrollments, e.Clone())
	}
	return ds, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// Apply folds one domain event into the view. Unknown event types are
// ignored; a payload that cannot be parsed is an error and leaves the view
// unchanged.
func (v *EngagementView) Apply(event shared.Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.apply(event); err != nil {
		return err
	}
	if v.loading > 0 {
		v.journal = append(v.journal, event)
	}
	v.version++
	return nil
}

// apply must be called with mu held. Creations never overwrite what the view
// already holds, so applying an event twice is harmless.
func (v *EngagementView) apply(event shared.Event) error {
	switch event.EventType() {
	case shared.EventStudentRegistered:
		s, err := studentFrom(event)
		if err != nil {
			return err
		}
		if _, ok := v.students[s.ID]; !ok {
			v.students[s.ID] = s
		}
	case shared.EventStudentDeleted:
		id := shared.StudentID(shared.PayloadString(event, "student_id"))
		delete(v.students, id)
		for eid, e := range v.enrollments {
			if e.StudentID == id {
				delete(v.enrollments, eid)
			}
		}
	case shared.EventCourseRegistered:
		id := shared.CourseID(shared.PayloadString(event, "course_id"))
		if _, ok := v.courses[id]; !ok {
			v.courses[id] = &course.Course{ID: id, Name: shared.PayloadString(event, "name"), CreatedAt: event.OccurredAt()}
		}
	case shared.EventCourseUpdated:
		id := shared.CourseID(shared.PayloadString(event, "course_id"))
		name := shared.PayloadString(event, "name")
		if c, ok := v.courses[id]; ok {
			c.Name = name
		} else {
			v.courses[id] = &course.Course{ID: id, Name: name, CreatedAt: event.OccurredAt()}
		}
	case shared.EventCourseDeleted:
		id := shared.CourseID(shared.PayloadString(event, "course_id"))
		delete(v.courses, id)
		for eid, e := range v.enrollments {
			if e.CourseID == id {
				delete(v.enrollments, eid)
			}
		}
	case shared.EventEnrollmentCreated:
		e, err := enrollmentFrom(event)
		if err != nil {
			return err
		}
		v.addEnrollment(e)
	case shared.EventEnrollmentCancelled:
		id := shared.EnrollmentID(shared.PayloadString(event, "enrollment_id"))
		e, ok := v.enrollments[id]
		if !ok {
			v.earlyCancel[id] = event.OccurredAt()
			return nil
		}
		if e.IsActive() {
			_ = e.Cancel(event.OccurredAt())
		}
	case shared.EventEnrollmentRemoved:
		id := shared.EnrollmentID(shared.PayloadString(event, "enrollment_id"))
		if _, ok := v.enrollments[id]; !ok {
			v.earlyRemove[id] = true
			return nil
		}
		delete(v.enrollments, id)
	}
	return nil
}

func (v *EngagementView) addEnrollment(e *enrollment.Enrollment) {
	if _, ok := v.enrollments[e.ID]; ok {
		return
	}
	if v.earlyRemove[e.ID] {
		delete(v.earlyRemove, e.ID)
		delete(v.earlyCancel, e.ID)
		return
	}
	if at, ok := v.earlyCancel[e.ID]; ok {
		delete(v.earlyCancel, e.ID)
		if e.IsActive() {
			_ = e.Cancel(at)
		}
	}
	v.enrollments[e.ID] = e
}

func studentFrom(event shared.Event) (*student.Student, error) {
	dob, err := shared.ParseDate(shared.PayloadString(event, "date_of_birth"))
	if err != nil {
		return nil, fmt.Errorf("projections: %s: %w", event.EventType(), err)
	}
	return &student.Student{
		ID:          shared.StudentID(shared.PayloadString(event, "student_id")),
		Name:        shared.PayloadString(event, "name"),
		Email:       shared.Email(shared.PayloadString(event, "email")),
		DateOfBirth: dob,
		CreatedAt:   event.OccurredAt(),
	}, nil
}

func enrollmentFrom(event shared.Event) (*enrollment.Enrollment, error) {
	date, err := shared.ParseDate(shared.PayloadString(event, "enrollment_date"))
	if err != nil {
		return nil, fmt.Errorf("projections: %s: %w", event.EventType(), err)
	}
	status, err := enrollment.ParseStatus(shared.PayloadString(event, "status"))
	if err != nil {
		return nil, fmt.Errorf("projections: %s: %w", event.EventType(), err)
	}
	if status == "" {
		status = enrollment.StatusActive
	}
	return &enrollment.Enrollment{
		ID:             shared.EnrollmentID(shared.PayloadString(event, "enrollment_id")),
		StudentID:      shared.StudentID(shared.PayloadString(event, "student_id")),
		CourseID:       shared.CourseID(shared.PayloadString(event, "course_id")),
		EnrollmentDate: date,
		Status:         status,
		CreatedAt:      event.OccurredAt(),
	}, nil
}
