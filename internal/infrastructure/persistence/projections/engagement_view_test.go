package projections

import (
	"context"
	"testing"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/engagement"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type staticLoader struct {
	ds  engagement.Dataset
	err error
}

func (l *staticLoader) Dataset(context.Context) (engagement.Dataset, error) {
	return l.ds, l.err
}

func ids() (shared.StudentID, shared.CourseID, shared.EnrollmentID) {
	return shared.StudentID(uuid.NewString()), shared.CourseID(uuid.NewString()), shared.EnrollmentID(uuid.NewString())
}

func TestEngagementView_Rebuild(t *testing.T) {
	sid, cid, eid := ids()
	loader := &staticLoader{ds: engagement.Dataset{
		Students: []*student.Student{{ID: sid, Name: "Ana", DateOfBirth: shared.MustParseDate("2004-01-01")}},
		Courses:  []*course.Course{{ID: cid, Name: "Algorithms"}},
		Enrollments: []*enrollment.Enrollment{{
			ID: eid, StudentID: sid, CourseID: cid,
			EnrollmentDate: shared.MustParseDate("2026-10-01"), Status: enrollment.StatusActive,
		}},
	}}
	view := NewEngagementView(loader)

	_, err := view.Rebuild(context.Background())
	require.NoError(t, err)
	assert.False(t, view.LastRebuilt().IsZero())

	ds, err := view.Dataset(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Students, 1)
	assert.Len(t, ds.Courses, 1)
	require.Len(t, ds.Enrollments, 1)

	// the view owns copies
	ds.Enrollments[0].Status = enrollment.StatusCancelled
	again, err := view.Dataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, again.Enrollments[0].Status)

	loader.err = shared.ErrStorageUnavailable
	_, err = view.Rebuild(context.Background())
	assert.True(t, shared.IsUnavailable(err))
	kept, err := view.Dataset(context.Background())
	require.NoError(t, err)
	assert.Len(t, kept.Enrollments, 1)
}

func TestEngagementView_ApplyEvents(t *testing.T) {
	view := NewEngagementView(&staticLoader{})
	sid, cid, eid := ids()
	secondID := shared.EnrollmentID(uuid.NewString())

	events := []shared.Event{
		shared.NewStudentRegisteredEvent(sid, "Ana", "ana@escola.dev", shared.MustParseDate("2002-05-10")),
		shared.NewCourseRegisteredEvent(cid, "Algorithms"),
		shared.NewCourseUpdatedEvent(cid, "Algorithms I"),
		shared.NewEnrollmentCreatedEvent(eid, sid, cid, shared.MustParseDate("2026-10-01"), "active"),
		shared.NewEnrollmentCancelledEvent(eid, sid, cid),
		shared.NewEnrollmentCreatedEvent(secondID, sid, cid, shared.MustParseDate("2026-10-14"), "active"),
	}
	for _, e := range events {
		require.NoError(t, view.Apply(e))
	}

	ds, err := view.Dataset(context.Background())
	require.NoError(t, err)
	report, err := engagement.Compute(ds, now, engagement.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, "Algorithms I", report.Rows[0].CourseName)
	assert.Equal(t, 1, report.Rows[0].TotalEnrolled)
	assert.Equal(t, 24.0, report.Rows[0].AverageAge)
	assert.Equal(t, 2, report.Rows[0].RecentEnrollments)

	require.NoError(t, view.Apply(shared.NewEnrollmentRemovedEvent(secondID, sid, cid)))
	require.NoError(t, view.Apply(shared.NewCourseDeletedEvent(cid)))
	ds, err = view.Dataset(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ds.Courses)
	assert.Empty(t, ds.Enrollments)

	require.NoError(t, view.Apply(shared.NewStudentDeletedEvent(sid)))
	ds, err = view.Dataset(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ds.Students)
}

func TestEngagementView_RejectsMalformedPayload(t *testing.T) {
	view := NewEngagementView(&staticLoader{})
	sid, cid, eid := ids()

	bad := shared.NewEnrollmentCreatedEvent(eid, sid, cid, shared.Date{}, "active")
	err := view.Apply(bad)
	require.Error(t, err)

	ds, err := view.Dataset(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ds.Enrollments)
	assert.NoError(t, view.Apply(shared.NewEngagementRebuiltEvent(0, 0)))
}

func TestEngagementView_CancelBeforeCreate(t *testing.T) {
	view := NewEngagementView(&staticLoader{})
	sid, cid, eid := ids()
	removedID := shared.EnrollmentID(uuid.NewString())

	for _, e := range []shared.Event{
		shared.NewEnrollmentCancelledEvent(eid, sid, cid),
		shared.NewEnrollmentRemovedEvent(removedID, sid, cid),
		shared.NewEnrollmentCreatedEvent(eid, sid, cid, shared.MustParseDate("2026-10-01"), "active"),
		shared.NewEnrollmentCreatedEvent(removedID, sid, cid, shared.MustParseDate("2026-10-02"), "active"),
	} {
		require.NoError(t, view.Apply(e))
	}

	ds, err := view.Dataset(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Enrollments, 1)
	assert.Equal(t, eid, ds.Enrollments[0].ID)
	assert.Equal(t, enrollment.StatusCancelled, ds.Enrollments[0].Status)
	assert.NotNil(t, ds.Enrollments[0].CancelledAt)

	// a repeated creation does not revive it
	require.NoError(t, view.Apply(shared.NewEnrollmentCreatedEvent(eid, sid, cid, shared.MustParseDate("2026-10-01"), "active")))
	ds, err = view.Dataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCancelled, ds.Enrollments[0].Status)
}

func TestEngagementView_CourseUpdateBeforeRegistration(t *testing.T) {
	view := NewEngagementView(&staticLoader{})
	_, cid, _ := ids()

	require.NoError(t, view.Apply(shared.NewCourseUpdatedEvent(cid, "Algorithms II")))
	require.NoError(t, view.Apply(shared.NewCourseRegisteredEvent(cid, "Algorithms")))

	ds, err := view.Dataset(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Courses, 1)
	assert.Equal(t, "Algorithms II", ds.Courses[0].Name)
}

// gatedLoader returns its dataset only after release is closed.
type gatedLoader struct {
	ds      engagement.Dataset
	started chan struct{}
	release chan struct{}
}

func (l *gatedLoader) Dataset(context.Context) (engagement.Dataset, error) {
	close(l.started)
	<-l.release
	return l.ds, nil
}

func TestEngagementView_RebuildKeepsEventsAppliedDuringLoad(t *testing.T) {
	sid, cid, eid := ids()
	loader := &gatedLoader{
		ds: engagement.Dataset{
			Students: []*student.Student{{ID: sid, Name: "Ana", DateOfBirth: shared.MustParseDate("2004-01-01")}},
			Courses:  []*course.Course{{ID: cid, Name: "Algorithms"}},
		},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	view := NewEngagementView(loader)

	done := make(chan error, 1)
	go func() {
		_, err := view.Rebuild(context.Background())
		done <- err
	}()

	<-loader.started
	require.NoError(t, view.Apply(shared.NewEnrollmentCreatedEvent(eid, sid, cid, shared.MustParseDate("2026-10-01"), "active")))
	close(loader.release)
	require.NoError(t, <-done)

	ds, err := view.Dataset(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Enrollments, 1)
	assert.Equal(t, eid, ds.Enrollments[0].ID)
	assert.Equal(t, enrollment.StatusActive, ds.Enrollments[0].Status)
}
