package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/engagement"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/escola-hub/academic-records/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRebuilder struct {
	ds  engagement.Dataset
	err error
}

func (r *fakeRebuilder) Rebuild(context.Context) (engagement.Dataset, error) {
	return r.ds, r.err
}

type recorder struct {
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.events = append(r.events, e)
	return nil
}

func TestRebuildEngagementJob_Run(t *testing.T) {
	rebuilder := &fakeRebuilder{ds: engagement.Dataset{
		Students: []*student.Student{{ID: "s1"}, {ID: "s2"}},
		Courses:  []*course.Course{{ID: "c1"}},
	}}
	pub := &recorder{}
	clock := timeutil.NewFixedClock(time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC))
	job := NewRebuildEngagementJob(rebuilder, pub, clock, nil, DefaultRebuildEngagementConfig())

	assert.Equal(t, "rebuild_engagement", job.Name())
	assert.Nil(t, job.LastStats())

	require.NoError(t, job.Run(context.Background()))

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Students)
	assert.Equal(t, 1, stats.Courses)
	assert.Zero(t, stats.Enrollments)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventEngagementRebuilt, pub.events[0].EventType())
	assert.Equal(t, "1", shared.PayloadString(pub.events[0], "courses"))
}

func TestRebuildEngagementJob_Failure(t *testing.T) {
	rebuilder := &fakeRebuilder{err: shared.ErrStorageUnavailable}
	pub := &recorder{}
	job := NewRebuildEngagementJob(rebuilder, pub, nil, nil, DefaultRebuildEngagementConfig())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrStorageUnavailable))
	assert.Empty(t, pub.events)
	assert.Nil(t, job.LastStats())
}
