package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/engagement"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/escola-hub/academic-records/internal/infrastructure/persistence/memory"
	"github.com/escola-hub/academic-records/pkg/timeutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type seeded struct {
	store *memory.Store
	ana   *student.Student
	bruno *student.Student
	algo  *course.Course
	dbs   *course.Course
	empty *course.Course
}

func addStudent(t *testing.T, store *memory.Store, name, email, dob string) *student.Student {
	t.Helper()
	s, err := student.NewStudent(student.NewStudentParams{
		ID: uuid.NewString(), Name: name, Email: email,
		DateOfBirth: shared.MustParseDate(dob), Today: shared.DateOf(now), Now: now,
	})
	require.NoError(t, err)
	require.NoError(t, store.Students().Create(context.Background(), s))
	return s
}

func addCourse(t *testing.T, store *memory.Store, name string) *course.Course {
	t.Helper()
	c, err := course.NewCourse(course.NewCourseParams{
		ID: uuid.NewString(), Name: name, Description: "About " + name, DurationHours: 30, Now: now,
	})
	require.NoError(t, err)
	require.NoError(t, store.Courses().Create(context.Background(), c))
	return c
}

func enroll(t *testing.T, store *memory.Store, s *student.Student, c *course.Course, date string) *enrollment.Enrollment {
	t.Helper()
	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID: uuid.NewString(), StudentID: s.ID, CourseID: c.ID,
		EnrollmentDate: shared.MustParseDate(date), Today: shared.DateOf(now), Now: now,
	})
	require.NoError(t, err)
	require.NoError(t, store.Enrollments().Create(context.Background(), e))
	return e
}

func seed(t *testing.T) seeded {
	t.Helper()
	store := memory.NewStore()
	sd := seeded{store: store}
	sd.ana = addStudent(t, store, "Ana Lima", "ana@escola.dev", "2004-10-16")
	sd.bruno = addStudent(t, store, "Bruno Costa", "bruno@escola.dev", "2000-01-01")
	sd.algo = addCourse(t, store, "Algorithms")
	sd.dbs = addCourse(t, store, "databases")
	sd.empty = addCourse(t, store, "Compilers")
	return sd
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestListEnrollments(t *testing.T) {
	sd := seed(t)
	first := enroll(t, sd.store, sd.ana, sd.algo, "2026-09-01")
	enroll(t, sd.store, sd.bruno, sd.algo, "2026-10-01")
	third := enroll(t, sd.store, sd.ana, sd.dbs, "2026-10-10")

	h := NewListEnrollmentsHandler(sd.store.Enrollments())

	seq, err := h.Handle(context.Background(), ListEnrollmentsQuery{})
	require.NoError(t, err)
	rows, err := Collect(seq)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, first.ID.String(), rows[0].ID)
	assert.Equal(t, "Ana Lima", rows[0].StudentName)
	assert.Equal(t, "Algorithms", rows[0].CourseName)
	assert.Equal(t, "active", rows[0].Status)
	assert.Equal(t, third.ID.String(), rows[2].ID)

	again, err := Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, rows, again)

	seq, err = h.Handle(context.Background(), ListEnrollmentsQuery{StudentID: sd.ana.ID.String()})
	require.NoError(t, err)
	rows, err = Collect(seq)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = sd.store.Enrollments().Update(context.Background(), first.ID, func(e *enrollment.Enrollment) error {
		return e.Cancel(now)
	})
	require.NoError(t, err)

	seq, err = h.Handle(context.Background(), ListEnrollmentsQuery{Status: "cancelled"})
	require.NoError(t, err)
	rows, err = Collect(seq)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID.String(), rows[0].ID)
}

func TestListEnrollments_EarlyStop(t *testing.T) {
	sd := seed(t)
	enroll(t, sd.store, sd.ana, sd.algo, "2026-09-01")
	enroll(t, sd.store, sd.bruno, sd.algo, "2026-10-01")

	seq, err := NewListEnrollmentsHandler(sd.store.Enrollments()).Handle(context.Background(), ListEnrollmentsQuery{})
	require.NoError(t, err)

	seen := 0
	for _, err := range seq {
		require.NoError(t, err)
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestListEnrollments_InvalidFilter(t *testing.T) {
	h := NewListEnrollmentsHandler(memory.NewStore().Enrollments())

	_, err := h.Handle(context.Background(), ListEnrollmentsQuery{Status: "paused"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), ListEnrollmentsQuery{CourseID: "abc"})
	assert.True(t, shared.IsValidation(err))
}

func TestGetEnrollment(t *testing.T) {
	sd := seed(t)
	e := enroll(t, sd.store, sd.ana, sd.algo, "2026-09-01")
	h := NewGetEnrollmentHandler(sd.store.Enrollments(), sd.store.Students(), sd.store.Courses())

	row, err := h.Handle(context.Background(), e.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Ana Lima", row.StudentName)
	assert.Equal(t, "2026-09-01", row.EnrollmentDate.String())

	_, err = h.Handle(context.Background(), uuid.NewString())
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS & COURSES
// ══════════════════════════════════════════════════════════════════════════════

func TestStudentQueries(t *testing.T) {
	sd := seed(t)
	q := NewStudentQueries(sd.store.Students(), timeutil.NewFixedClock(now))

	s, err := q.GetByEmail(context.Background(), "  ANA@escola.dev ")
	require.NoError(t, err)
	assert.Equal(t, sd.ana.ID.String(), s.ID)
	// birthday is tomorrow
	assert.Equal(t, 21, s.Age)

	_, err = q.Get(context.Background(), uuid.NewString())
	assert.True(t, shared.IsNotFound(err))

	res, err := q.List(context.Background(), ListStudentsQuery{Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, res.Students, 1)
	assert.Equal(t, "Ana Lima", res.Students[0].Name)
	assert.Equal(t, 2, res.TotalCount)
	assert.True(t, res.HasMore)

	res, err = q.List(context.Background(), ListStudentsQuery{Search: "costa"})
	require.NoError(t, err)
	require.Len(t, res.Students, 1)
	assert.False(t, res.HasMore)
}

func TestCourseQueries(t *testing.T) {
	sd := seed(t)
	q := NewCourseQueries(sd.store.Courses())

	c, err := q.Get(context.Background(), sd.algo.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 30, c.DurationHours)

	res, err := q.List(context.Background(), ListCoursesQuery{Search: "LG"})
	require.NoError(t, err)
	require.Len(t, res.Courses, 1)
	assert.Equal(t, "Algorithms", res.Courses[0].Name)
	assert.Equal(t, 1, res.TotalCount)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGAGEMENT REPORT
// ══════════════════════════════════════════════════════════════════════════════

// fakeCache keeps reports in memory with the same key parts as the Redis
// cache.
type fakeCache struct {
	mu      sync.Mutex
	gen     int64
	reports map[string]engagement.Report
	gets    int
	puts    int
	failGet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{reports: map[string]engagement.Report{}}
}

func (c *fakeCache) key(gen int64, asOf shared.Date, opts engagement.Options) string {
	return fmt.Sprintf("%d:%s:%d:%s", gen, asOf, opts.WindowDays, opts.Mode)
}

func (c *fakeCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *fakeCache) Get(_ context.Context, gen int64, asOf shared.Date, opts engagement.Options) (engagement.Report, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return engagement.Report{}, false, shared.ErrStorageUnavailable
	}
	r, ok := c.reports[c.key(gen, asOf, opts)]
	return r, ok, nil
}

func (c *fakeCache) Put(_ context.Context, gen int64, r engagement.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.reports[c.key(gen, r.AsOf, engagement.Options{WindowDays: r.WindowDays, Mode: r.Mode})] = r
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	clear(c.reports)
	return nil
}

func (c *fakeCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

// gatedSource holds its first Dataset call after reading until release is
// closed, then reports the ctx error the read saw.
type gatedSource struct {
	inner   Source
	once    sync.Once
	reached chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func newGatedSource(inner Source) *gatedSource {
	return &gatedSource{
		inner:   inner,
		reached: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
}

func (g *gatedSource) Dataset(ctx context.Context) (engagement.Dataset, error) {
	ds, err := g.inner.Dataset(ctx)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.reached)
		<-g.release
		g.ctxErr <- ctx.Err()
	}
	return ds, err
}

func rowNamed(t *testing.T, r engagement.Report, name string) engagement.Row {
	t.Helper()
	for _, row := range r.Rows {
		if row.CourseName == name {
			return row
		}
	}
	t.Fatalf("no row for %q", name)
	return engagement.Row{}
}

type failingSource struct{}

func (failingSource) Dataset(context.Context) (engagement.Dataset, error) {
	return engagement.Dataset{}, shared.ErrStorageUnavailable
}

func TestEngagementReport(t *testing.T) {
	sd := seed(t)
	e := enroll(t, sd.store, sd.ana, sd.algo, "2026-09-15")
	enroll(t, sd.store, sd.bruno, sd.algo, "2026-08-01")
	enroll(t, sd.store, sd.bruno, sd.dbs, "2026-10-15")
	_, err := sd.store.Enrollments().Update(context.Background(), e.ID, func(e *enrollment.Enrollment) error {
		return e.Cancel(now)
	})
	require.NoError(t, err)

	source := NewRepositorySource(sd.store.Students(), sd.store.Courses(), sd.store.Enrollments())
	h := NewEngagementReportHandler(source, nil, timeutil.NewFixedClock(now), nil)

	report, err := h.Handle(context.Background(), EngagementReportQuery{})
	require.NoError(t, err)
	assert.Equal(t, 30, report.WindowDays)
	assert.Equal(t, engagement.ModeActiveOnly, report.Mode)
	require.Len(t, report.Rows, 2)

	algo := report.Rows[0]
	assert.Equal(t, "Algorithms", algo.CourseName)
	assert.Equal(t, 1, algo.TotalEnrolled)
	assert.Equal(t, 26.0, algo.AverageAge)
	assert.Equal(t, 1, algo.RecentEnrollments)

	dbs := report.Rows[1]
	assert.Equal(t, 1, dbs.TotalEnrolled)
	assert.Equal(t, 1, dbs.RecentEnrollments)

	window := 60
	report, err = h.Handle(context.Background(), EngagementReportQuery{WindowDays: &window, Mode: "all"})
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)
	assert.Equal(t, 0, report.Rows[1].TotalEnrolled)
	assert.Equal(t, 0.0, report.Rows[1].AverageAge)
	assert.Equal(t, "Compilers", report.Rows[1].CourseName)
	assert.Equal(t, 1, report.Rows[0].RecentEnrollments)
}

func TestEngagementReport_InvalidOptions(t *testing.T) {
	h := NewEngagementReportHandler(failingSource{}, nil, timeutil.NewFixedClock(now), nil)

	_, err := h.Handle(context.Background(), EngagementReportQuery{Mode: "some"})
	assert.True(t, shared.IsValidation(err))

	negative := -1
	_, err = h.Handle(context.Background(), EngagementReportQuery{WindowDays: &negative})
	assert.True(t, shared.IsValidation(err))
}

func TestEngagementReport_SourceUnavailable(t *testing.T) {
	h := NewEngagementReportHandler(failingSource{}, nil, timeutil.NewFixedClock(now), nil)

	_, err := h.Handle(context.Background(), EngagementReportQuery{})
	assert.True(t, shared.IsUnavailable(err))
}

func TestEngagementReport_UsesCache(t *testing.T) {
	sd := seed(t)
	enroll(t, sd.store, sd.ana, sd.algo, "2026-10-01")
	cache := newFakeCache()
	source := NewRepositorySource(sd.store.Students(), sd.store.Courses(), sd.store.Enrollments())
	h := NewEngagementReportHandler(source, cache, timeutil.NewFixedClock(now), nil)

	first, err := h.Handle(context.Background(), EngagementReportQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.puts)

	second, err := h.Handle(context.Background(), EngagementReportQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.puts)
	assert.Equal(t, first, second)

	cache.failGet = true
	third, err := h.Handle(context.Background(), EngagementReportQuery{})
	require.NoError(t, err)
	assert.Equal(t, first.Rows, third.Rows)
}

func TestEngagementReport_DropsReportComputedBeforeInvalidation(t *testing.T) {
	sd := seed(t)
	cache := newFakeCache()
	gate := newGatedSource(NewRepositorySource(sd.store.Students(), sd.store.Courses(), sd.store.Enrollments()))
	h := NewEngagementReportHandler(gate, cache, timeutil.NewFixedClock(now), nil)
	q := EngagementReportQuery{Mode: "all"}

	stale := make(chan engagement.Report, 1)
	go func() {
		r, err := h.Handle(context.Background(), q)
		assert.NoError(t, err)
		stale <- r
	}()

	<-gate.reached
	enroll(t, sd.store, sd.bruno, sd.empty, "2026-10-10")
	require.NoError(t, cache.Invalidate(context.Background()))
	close(gate.release)

	assert.Equal(t, 0, rowNamed(t, <-stale, "Compilers").TotalEnrolled)

	fresh, err := h.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, rowNamed(t, fresh, "Compilers").TotalEnrolled)
}

func TestEngagementReport_CancelledCallerDoesNotAbortSharedComputation(t *testing.T) {
	sd := seed(t)
	enroll(t, sd.store, sd.ana, sd.algo, "2026-10-01")
	cache := newFakeCache()
	gate := newGatedSource(NewRepositorySource(sd.store.Students(), sd.store.Courses(), sd.store.Enrollments()))
	h := NewEngagementReportHandler(gate, cache, timeutil.NewFixedClock(now), nil)

	ctx, cancel := context.WithCancel(context.Background())
	failed := make(chan error, 1)
	go func() {
		_, err := h.Handle(ctx, EngagementReportQuery{})
		failed <- err
	}()

	<-gate.reached
	cancel()
	assert.True(t, shared.IsUnavailable(<-failed))

	close(gate.release)
	assert.NoError(t, <-gate.ctxErr)
	assert.Eventually(t, func() bool { return cache.putCount() == 1 }, time.Second, 5*time.Millisecond)

	report, err := h.Handle(context.Background(), EngagementReportQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, rowNamed(t, report, "Algorithms").TotalEnrolled)
}

func TestRepositorySource_PropagatesErrors(t *testing.T) {
	store := memory.NewStore()
	source := NewRepositorySource(store.Students(), store.Courses(), store.Enrollments())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := source.Dataset(ctx)
	require.Error(t, err)
	assert.True(t, shared.IsUnavailable(err) || errors.Is(err, context.Canceled))
}
