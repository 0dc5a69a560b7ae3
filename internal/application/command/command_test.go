package command

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/escola-hub/academic-records/internal/infrastructure/persistence/memory"
	"github.com/escola-hub/academic-records/pkg/timeutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

type fixture struct {
	store    *memory.Store
	events   *recorder
	clock    *timeutil.FixedClock
	enroll   *EnrollHandler
	cancel   *CancelEnrollmentHandler
	remove   *RemoveEnrollmentHandler
	students *RegisterStudentHandler
	delStud  *DeleteStudentHandler
	courses  *CourseHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	rec := &recorder{}
	clock := timeutil.NewFixedClock(time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC))
	deps := Deps{Publisher: rec, Clock: clock}

	return &fixture{
		store:    store,
		events:   rec,
		clock:    clock,
		enroll:   NewEnrollHandler(store.Enrollments(), store.Students(), store.Courses(), deps),
		cancel:   NewCancelEnrollmentHandler(store.Enrollments(), deps),
		remove:   NewRemoveEnrollmentHandler(store.Enrollments(), deps),
		students: NewRegisterStudentHandler(store.Students(), deps),
		delStud:  NewDeleteStudentHandler(store.Students(), deps),
		courses:  NewCourseHandler(store.Courses(), deps),
	}
}

func (f *fixture) student(t *testing.T, email string) *student.Student {
	t.Helper()
	s, err := f.students.Handle(context.Background(), RegisterStudentCommand{
		Name: "Student " + email, Email: email, DateOfBirth: "2004-03-15",
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) course(t *testing.T, name string) *course.Course {
	t.Helper()
	c, err := f.courses.Register(context.Background(), RegisterCourseCommand{
		Name: name, Description: "About " + name, DurationHours: 40,
	})
	require.NoError(t, err)
	return c
}

func TestEnroll_DefaultsToToday(t *testing.T) {
	f := newFixture(t)
	s, c := f.student(t, "ana@escola.dev"), f.course(t, "Algorithms")

	e, err := f.enroll.Handle(context.Background(), EnrollCommand{StudentID: s.ID.String(), CourseID: c.ID.String()})
	require.NoError(t, err)

	assert.Equal(t, "2026-10-15", e.EnrollmentDate.String())
	assert.Equal(t, enrollment.StatusActive, e.Status)
	assert.Contains(t, f.events.types(), shared.EventEnrollmentCreated)
}

func TestEnroll_SecondEnrollIsConflict(t *testing.T) {
	f := newFixture(t)
	s, c := f.student(t, "ana@escola.dev"), f.course(t, "Algorithms")
	cmd := EnrollCommand{StudentID: s.ID.String(), CourseID: c.ID.String()}

	_, err := f.enroll.Handle(context.Background(), cmd)
	require.NoError(t, err)

	_, err = f.enroll.Handle(context.Background(), cmd)
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
}

func TestEnroll_Rejections(t *testing.T) {
	f := newFixture(t)
	s, c := f.student(t, "ana@escola.dev"), f.course(t, "Algorithms")

	tests := []struct {
		name string
		cmd  EnrollCommand
		kind shared.Kind
	}{
		{"future date", EnrollCommand{StudentID: s.ID.String(), CourseID: c.ID.String(), EnrollmentDate: "2026-10-16"}, shared.KindInvalidArgument},
		{"malformed date", EnrollCommand{StudentID: s.ID.String(), CourseID: c.ID.String(), EnrollmentDate: "15/10/2026"}, shared.KindInvalidArgument},
		{"unknown student", EnrollCommand{StudentID: uuid.NewString(), CourseID: c.ID.String()}, shared.KindNotFound},
		{"unknown course", EnrollCommand{StudentID: s.ID.String(), CourseID: uuid.NewString()}, shared.KindNotFound},
		{"malformed id", EnrollCommand{StudentID: "42", CourseID: c.ID.String()}, shared.KindInvalidArgument},
		{"missing course", EnrollCommand{StudentID: s.ID.String()}, shared.KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.enroll.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.Equal(t, tt.kind, shared.KindOf(err))
		})
	}
}

func TestEnroll_PastDateAccepted(t *testing.T) {
	f := newFixture(t)
	s, c := f.student(t, "ana@escola.dev"), f.course(t, "Algorithms")

	e, err := f.enroll.Handle(context.Background(), EnrollCommand{
		StudentID: s.ID.String(), CourseID: c.ID.String(), EnrollmentDate: "2026-09-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-09-01", e.EnrollmentDate.String())
}

func TestCancel_SucceedsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	s, c := f.student(t, "ana@escola.dev"), f.course(t, "Algorithms")
	e, err := f.enroll.Handle(context.Background(), EnrollCommand{StudentID: s.ID.String(), CourseID: c.ID.String()})
	require.NoError(t, err)

	cancelled, err := f.cancel.Handle(context.Background(), CancelEnrollmentCommand{EnrollmentID: e.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.cancel.Handle(context.Background(), CancelEnrollmentCommand{EnrollmentID: e.ID.String()})
	assert.True(t, shared.IsInvalidState(err))

	_, err = f.cancel.Handle(context.Background(), CancelEnrollmentCommand{EnrollmentID: uuid.NewString()})
	assert.True(t, shared.IsNotFound(err))
}

func TestEnrollCancelEnroll_YieldsNewID(t *testing.T) {
	f := newFixture(t)
	s, c := f.student(t, "ana@escola.dev"), f.course(t, "Algorithms")
	cmd := EnrollCommand{StudentID: s.ID.String(), CourseID: c.ID.String()}

	first, err := f.enroll.Handle(context.Background(), cmd)
	require.NoError(t, err)
	_, err = f.cancel.Handle(context.Background(), CancelEnrollmentCommand{EnrollmentID: first.ID.String()})
	require.NoError(t, err)

	second, err := f.enroll.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestConcurrentEnrollAndCancel(t *testing.T) {
	f := newFixture(t)
	s, c := f.student(t, "ana@escola.dev"), f.course(t, "Algorithms")
	cmd := EnrollCommand{StudentID: s.ID.String(), CourseID: c.ID.String()}

	const workers = 32
	var enrolled atomic.Int32
	var wg sync.WaitGroup
	ids := make(chan shared.EnrollmentID, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e, err := f.enroll.Handle(context.Background(), cmd); err == nil {
				enrolled.Add(1)
				ids <- e.ID
			}
		}()
	}
	wg.Wait()
	close(ids)
	require.Equal(t, int32(1), enrolled.Load())

	id := <-ids
	var cancelled atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.cancel.Handle(context.Background(), CancelEnrollmentCommand{EnrollmentID: id.String()}); err == nil {
				cancelled.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), cancelled.Load())
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	s, c := f.student(t, "ana@escola.dev"), f.course(t, "Algorithms")
	e, err := f.enroll.Handle(context.Background(), EnrollCommand{StudentID: s.ID.String(), CourseID: c.ID.String()})
	require.NoError(t, err)

	require.NoError(t, f.remove.Handle(context.Background(), RemoveEnrollmentCommand{EnrollmentID: e.ID.String()}))
	err = f.remove.Handle(context.Background(), RemoveEnrollmentCommand{EnrollmentID: e.ID.String()})
	assert.True(t, shared.IsNotFound(err))

	assert.Equal(t, []shared.EventType{
		shared.EventStudentRegistered,
		shared.EventCourseRegistered,
		shared.EventEnrollmentCreated,
		shared.EventEnrollmentRemoved,
	}, f.events.types())
}

func TestRegisterStudent_Validation(t *testing.T) {
	f := newFixture(t)
	f.student(t, "ana@escola.dev")

	tests := []struct {
		name string
		cmd  RegisterStudentCommand
		kind shared.Kind
	}{
		{"duplicate email", RegisterStudentCommand{Name: "Ana 2", Email: "Ana@Escola.dev", DateOfBirth: "2001-01-01"}, shared.KindConflict},
		{"bad email", RegisterStudentCommand{Name: "Bob", Email: "bob@localhost", DateOfBirth: "2001-01-01"}, shared.KindInvalidArgument},
		{"future birth", RegisterStudentCommand{Name: "Bob", Email: "bob@escola.dev", DateOfBirth: "2027-01-01"}, shared.KindInvalidArgument},
		{"too young", RegisterStudentCommand{Name: "Bob", Email: "bob@escola.dev", DateOfBirth: "2024-01-01"}, shared.KindInvalidArgument},
		{"missing name", RegisterStudentCommand{Email: "bob@escola.dev", DateOfBirth: "2001-01-01"}, shared.KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.students.Handle(context.Background(), tt.cmd)
			assert.Equal(t, tt.kind, shared.KindOf(err))
		})
	}
}

func TestRegisterStudent_Batch(t *testing.T) {
	f := newFixture(t)

	results, err := f.students.HandleBatch(context.Background(), []RegisterStudentCommand{
		{Name: "Ana", Email: "ana@escola.dev", DateOfBirth: "2004-03-15"},
		{Name: "Ana again", Email: "ana@escola.dev", DateOfBirth: "2004-03-15"},
		{Name: "Bruno", Email: "bruno@escola.dev", DateOfBirth: "2002-07-01"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.True(t, shared.IsConflict(results[1].Err))
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "Bruno", results[2].Student.Name)

	_, err = f.students.HandleBatch(context.Background(), nil)
	assert.True(t, shared.IsValidation(err))
}

// cancelOnPublish ends the request as soon as the first entry is stored.
type cancelOnPublish struct{ cancel context.CancelFunc }

func (c cancelOnPublish) Publish(shared.Event) error {
	c.cancel()
	return nil
}

func TestRegisterStudent_BatchKeepsStoredEntriesWhenCancelled(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewRegisterStudentHandler(store.Students(), Deps{
		Publisher: cancelOnPublish{cancel: cancel},
		Clock:     timeutil.NewFixedClock(time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)),
	})

	results, err := h.HandleBatch(ctx, []RegisterStudentCommand{
		{Name: "Ana", Email: "ana@escola.dev", DateOfBirth: "2004-03-15"},
		{Name: "Bruno", Email: "bruno@escola.dev", DateOfBirth: "2002-07-01"},
		{Name: "Carla", Email: "carla@escola.dev", DateOfBirth: "1999-11-23"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	assert.Equal(t, "Ana", results[0].Student.Name)
	for _, r := range results[1:] {
		assert.Nil(t, r.Student)
		assert.True(t, shared.IsUnavailable(r.Err))
	}

	stored, err := store.Students().List(context.Background(), student.ListOptions{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Ana", stored[0].Name)
}

func TestDeleteStudent_BlockedWhileActive(t *testing.T) {
	f := newFixture(t)
	s, c := f.student(t, "ana@escola.dev"), f.course(t, "Algorithms")
	e, err := f.enroll.Handle(context.Background(), EnrollCommand{StudentID: s.ID.String(), CourseID: c.ID.String()})
	require.NoError(t, err)

	err = f.delStud.Handle(context.Background(), DeleteStudentCommand{StudentID: s.ID.String()})
	assert.True(t, shared.IsInvalidState(err))

	_, err = f.cancel.Handle(context.Background(), CancelEnrollmentCommand{EnrollmentID: e.ID.String()})
	require.NoError(t, err)
	require.NoError(t, f.delStud.Handle(context.Background(), DeleteStudentCommand{StudentID: s.ID.String()}))
}

func TestCourseCommands(t *testing.T) {
	f := newFixture(t)
	algo := f.course(t, "Algorithms")
	f.course(t, "Databases")

	_, err := f.courses.Register(context.Background(), RegisterCourseCommand{Name: "algorithms", Description: "x", DurationHours: 1})
	assert.True(t, shared.IsConflict(err))

	_, err = f.courses.Register(context.Background(), RegisterCourseCommand{Name: "Zero", Description: "x", DurationHours: 0})
	assert.True(t, shared.IsValidation(err))

	updated, err := f.courses.Update(context.Background(), UpdateCourseCommand{
		CourseID: algo.ID.String(), Name: "Algorithms II", Description: "Harder", DurationHours: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, 60, updated.DurationHours)

	_, err = f.courses.Update(context.Background(), UpdateCourseCommand{
		CourseID: algo.ID.String(), Name: "Databases", Description: "x", DurationHours: 1,
	})
	assert.True(t, shared.IsConflict(err))

	require.NoError(t, f.courses.Delete(context.Background(), DeleteCourseCommand{CourseID: algo.ID.String()}))
	err = f.courses.Delete(context.Background(), DeleteCourseCommand{CourseID: algo.ID.String()})
	assert.True(t, shared.IsNotFound(err))

	assert.Contains(t, f.events.types(), shared.EventCourseUpdated)
	assert.Contains(t, f.events.types(), shared.EventCourseDeleted)
}
