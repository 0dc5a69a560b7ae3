package memory

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
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = shared.MustParseDate("2026-10-15")

func seedStudent(t *testing.T, s *Store, name, email string) *student.Student {
	t.Helper()
	st, err := student.NewStudent(student.NewStudentParams{
		ID:          uuid.NewString(),
		Name:        name,
		Email:       email,
		DateOfBirth: shared.MustParseDate("2000-01-01"),
		Today:       today,
	})
	require.NoError(t, err)
	require.NoError(t, s.Students().Create(context.Background(), st))
	return st
}

func seedCourse(t *testing.T, s *Store, name string) *course.Course {
	t.Helper()
	c, err := course.NewCourse(course.NewCourseParams{
		ID:            uuid.NewString(),
		Name:          name,
		Description:   name + " course",
		DurationHours: 30,
	})
	require.NoError(t, err)
	require.NoError(t, s.Courses().Create(context.Background(), c))
	return c
}

func newEnrollment(t *testing.T, st *student.Student, c *course.Course, created time.Time) *enrollment.Enrollment {
	t.Helper()
	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID:        uuid.NewString(),
		StudentID: st.ID,
		CourseID:  c.ID,
		Today:     today,
		Now:       created,
	})
	require.NoError(t, err)
	return e
}

func collect(t *testing.T, seq func(func(enrollment.Detail, error) bool)) []enrollment.Detail {
	t.Helper()
	var out []enrollment.Detail
	for d, err := range seq {
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func TestStudents_EmailIsUnique(t *testing.T) {
	s := NewStore()
	seedStudent(t, s, "Ana", "ana@escola.dev")

	dup, err := student.NewStudent(student.NewStudentParams{
		ID:          uuid.NewString(),
		Name:        "Other Ana",
		Email:       "ANA@escola.dev",
		DateOfBirth: shared.MustParseDate("2001-01-01"),
		Today:       today,
	})
	require.NoError(t, err)

	err = s.Students().Create(context.Background(), dup)
	assert.ErrorIs(t, err, shared.ErrStudentEmailTaken)
	assert.True(t, shared.IsConflict(err))

	got, err := s.Students().GetByEmail(context.Background(), "ana@escola.dev")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)

	_, err = s.Students().GetByEmail(context.Background(), "nobody@escola.dev")
	assert.True(t, shared.IsNotFound(err))
}

func TestStudents_ListSearchAndPaging(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedStudent(t, s, "Carla", "carla@escola.dev")
	seedStudent(t, s, "ana", "ana@escola.dev")
	seedStudent(t, s, "Bruno", "bruno@escola.dev")

	all, err := s.Students().List(ctx, student.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"ana", "Bruno", "Carla"}, []string{all[0].Name, all[1].Name, all[2].Name})

	paged, err := s.Students().List(ctx, student.ListOptions{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "Bruno", paged[0].Name)

	found, err := s.Students().List(ctx, student.ListOptions{Search: "BRU"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	n, err := s.Students().Count(ctx, student.ListOptions{Search: "escola"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStudents_DeleteBlockedByActiveEnrollment(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	st := seedStudent(t, s, "Ana", "ana@escola.dev")
	c := seedCourse(t, s, "Algorithms")
	e := newEnrollment(t, st, c, time.Now())
	require.NoError(t, s.Enrollments().Create(ctx, e))

	err := s.Students().Delete(ctx, st.ID)
	assert.ErrorIs(t, err, shared.ErrStudentHasActiveCourses)

	_, err = s.Enrollments().Update(ctx, e.ID, func(e *enrollment.Enrollment) error { return e.Cancel(time.Now()) })
	require.NoError(t, err)

	require.NoError(t, s.Students().Delete(ctx, st.ID))
	_, err = s.Students().GetByID(ctx, st.ID)
	assert.True(t, shared.IsNotFound(err))
	_, err = s.Enrollments().GetByID(ctx, e.ID)
	assert.True(t, shared.IsNotFound(err), "cancelled history goes with the student")
}

func TestCourses_NameIsUniqueIgnoringCase(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedCourse(t, s, "Algorithms")
	other := seedCourse(t, s, "Databases")

	dup, err := course.NewCourse(course.NewCourseParams{ID: uuid.NewString(), Name: "ALGORITHMS", Description: "x", DurationHours: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Courses().Create(ctx, dup), shared.ErrCourseNameTaken)

	require.NoError(t, other.Update(course.Details{Name: "algorithms ", Description: "x", DurationHours: 1}, time.Now()))
	assert.ErrorIs(t, s.Courses().Update(ctx, other), shared.ErrCourseNameTaken)

	require.NoError(t, other.Update(course.Details{Name: "Data Systems", Description: "x", DurationHours: 1}, time.Now()))
	require.NoError(t, s.Courses().Update(ctx, other))

	found, err := s.Courses().List(ctx, course.ListOptions{Search: "data"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Data Systems", found[0].Name)
}

func TestEnrollments_CreateChecksReferences(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	st := seedStudent(t, s, "Ana", "ana@escola.dev")
	c := seedCourse(t, s, "Algorithms")

	ghostStudent := &student.Student{ID: shared.StudentID(uuid.NewString())}
	ghostCourse := &course.Course{ID: shared.CourseID(uuid.NewString())}

	err := s.Enrollments().Create(ctx, newEnrollment(t, ghostStudent, c, time.Now()))
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)

	err = s.Enrollments().Create(ctx, newEnrollment(t, st, ghostCourse, time.Now()))
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
}

func TestEnrollments_ConcurrentCreateForSamePair(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	st := seedStudent(t, s, "Ana", "ana@escola.dev")
	c := seedCourse(t, s, "Algorithms")

	const attempts = 64
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	candidates := make([]*enrollment.Enrollment, attempts)
	for i := range candidates {
		candidates[i] = newEnrollment(t, st, c, time.Now())
	}
	for _, e := range candidates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Enrollments().Create(ctx, e)
			switch {
			case err == nil:
				successes.Add(1)
			case shared.IsConflict(err):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(attempts-1), conflicts.Load())
}

func TestEnrollments_ConcurrentCancel(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	st := seedStudent(t, s, "Ana", "ana@escola.dev")
	c := seedCourse(t, s, "Algorithms")
	e := newEnrollment(t, st, c, time.Now())
	require.NoError(t, s.Enrollments().Create(ctx, e))

	const attempts = 64
	var (
		wg           sync.WaitGroup
		successes    atomic.Int32
		invalidState atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Enrollments().Update(ctx, e.ID, func(e *enrollment.Enrollment) error {
				return e.Cancel(time.Now())
			})
			switch {
			case err == nil:
				successes.Add(1)
			case shared.IsInvalidState(err):
				invalidState.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(attempts-1), invalidState.Load())

	// the pair is free again
	require.NoError(t, s.Enrollments().Create(ctx, newEnrollment(t, st, c, time.Now())))
}

func TestEnrollments_ListOrderFilterAndRestart(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ana := seedStudent(t, s, "Ana", "ana@escola.dev")
	bruno := seedStudent(t, s, "Bruno", "bruno@escola.dev")
	algo := seedCourse(t, s, "Algorithms")
	db := seedCourse(t, s, "Databases")

	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	first := newEnrollment(t, bruno, db, base)
	second := newEnrollment(t, ana, algo, base)
	third := newEnrollment(t, ana, db, base.Add(time.Minute))
	for _, e := range []*enrollment.Enrollment{first, second, third} {
		require.NoError(t, s.Enrollments().Create(ctx, e))
	}
	_, err := s.Enrollments().Update(ctx, second.ID, func(e *enrollment.Enrollment) error { return e.Cancel(time.Now()) })
	require.NoError(t, err)

	seq := s.Enrollments().List(ctx, enrollment.Filter{})
	rows := collect(t, seq)
	require.Len(t, rows, 3)
	assert.Equal(t, []shared.EnrollmentID{first.ID, second.ID, third.ID},
		[]shared.EnrollmentID{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.Equal(t, "Bruno", rows[0].StudentName)
	assert.Equal(t, "Databases", rows[0].CourseName)

	again := collect(t, seq)
	assert.Equal(t, rows, again)

	byAna := collect(t, s.Enrollments().List(ctx, enrollment.Filter{StudentID: ana.ID}))
	assert.Len(t, byAna, 2)

	active := collect(t, s.Enrollments().List(ctx, enrollment.Filter{Status: enrollment.StatusActive}))
	assert.Len(t, active, 2)

	cancelledInAlgo := collect(t, s.Enrollments().List(ctx, enrollment.Filter{CourseID: algo.ID, Status: enrollment.StatusCancelled}))
	require.Len(t, cancelledInAlgo, 1)
	assert.Equal(t, second.ID, cancelledInAlgo[0].ID)
}

func TestEnrollments_ReturnedValuesAreCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	st := seedStudent(t, s, "Ana", "ana@escola.dev")
	c := seedCourse(t, s, "Algorithms")
	e := newEnrollment(t, st, c, time.Now())
	require.NoError(t, s.Enrollments().Create(ctx, e))

	got, err := s.Enrollments().GetByID(ctx, e.ID)
	require.NoError(t, err)
	got.Status = enrollment.StatusCancelled

	again, err := s.Enrollments().GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, again.Status)
}

func TestEnrollments_Delete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	st := seedStudent(t, s, "Ana", "ana@escola.dev")
	c := seedCourse(t, s, "Algorithms")
	e := newEnrollment(t, st, c, time.Now())
	require.NoError(t, s.Enrollments().Create(ctx, e))

	removed, err := s.Enrollments().Delete(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, removed.ID)

	_, err = s.Enrollments().Delete(ctx, e.ID)
	assert.True(t, shared.IsNotFound(err))

	// removing the active record frees the pair
	require.NoError(t, s.Enrollments().Create(ctx, newEnrollment(t, st, c, time.Now())))
}

func TestEnrollments_ListHonoursCancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, err := range s.Enrollments().List(ctx, enrollment.Filter{}) {
		assert.True(t, shared.IsUnavailable(err))
	}
}
