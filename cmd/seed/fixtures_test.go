package main

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/escola-hub/academic-records/internal/application/command"
	"github.com/escola-hub/academic-records/internal/application/query"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/infrastructure/persistence/memory"
	"github.com/escola-hub/academic-records/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seedEnv struct {
	seeder  *Seeder
	reports *query.EngagementReportHandler
}

func newSeedEnv() seedEnv {
	store := memory.NewStore()
	clock := timeutil.NewFixedClock(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC))
	deps := command.Deps{Clock: clock}
	students, courses, enrollments := store.Students(), store.Courses(), store.Enrollments()

	return seedEnv{
		seeder: &Seeder{
			Courses:  command.NewCourseHandler(courses, deps),
			Students: command.NewRegisterStudentHandler(students, deps),
			Enroll:   command.NewEnrollHandler(enrollments, students, courses, deps),
			Cancel:   command.NewCancelEnrollmentHandler(enrollments, deps),
		},
		reports: query.NewEngagementReportHandler(
			query.NewRepositorySource(students, courses, enrollments), nil, clock, nil,
		),
	}
}

func TestSeed_ExampleFixtures(t *testing.T) {
	f, err := os.Open("fixtures.yaml")
	require.NoError(t, err)
	defer f.Close()

	fixtures, err := DecodeFixtures(f)
	require.NoError(t, err)

	env := newSeedEnv()
	res, err := env.seeder.Seed(context.Background(), fixtures)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Courses: 3, Students: 3, Enrollments: 4, Cancelled: 1}, res)

	window := 30
	report, err := env.reports.Handle(context.Background(), query.EngagementReportQuery{WindowDays: &window})
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)

	algorithms, databases := report.Rows[0], report.Rows[1]
	assert.Equal(t, "Algorithms", algorithms.CourseName)
	assert.Equal(t, 2, algorithms.TotalEnrolled)
	assert.Equal(t, 22.0, algorithms.AverageAge)
	assert.Equal(t, 1, algorithms.RecentEnrollments)

	assert.Equal(t, "Databases", databases.CourseName)
	assert.Equal(t, 1, databases.TotalEnrolled)
	assert.Equal(t, 26.0, databases.AverageAge)
	assert.Equal(t, 2, databases.RecentEnrollments)
}

func TestDecodeFixtures_RejectsUnknownKeys(t *testing.T) {
	_, err := DecodeFixtures(strings.NewReader("courses:\n  - name: X\n    hours: 3\n"))
	assert.Error(t, err)
}

func TestDecodeFixtures_Empty(t *testing.T) {
	f, err := DecodeFixtures(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Courses)
}

func TestSeed_StopsOnInvalidRecord(t *testing.T) {
	tests := []struct {
		name     string
		fixtures Fixtures
		kind     shared.Kind
		contains string
	}{
		{
			name:     "duplicate course",
			fixtures: Fixtures{Courses: []CourseFixture{{Name: "Algo", Description: "x", DurationHours: 1}, {Name: "ALGO", Description: "x", DurationHours: 1}}},
			kind:     shared.KindConflict,
		},
		{
			name: "unknown course",
			fixtures: Fixtures{
				Students:    []StudentFixture{{Name: "Ana", Email: "ana@example.com", DateOfBirth: "2006-01-10"}},
				Enrollments: []EnrollmentFixture{{Student: "ana@example.com", Course: "Nope"}},
			},
			contains: "unknown course",
		},
		{
			name: "future enrollment",
			fixtures: Fixtures{
				Courses:     []CourseFixture{{Name: "Algo", Description: "x", DurationHours: 1}},
				Students:    []StudentFixture{{Name: "Ana", Email: "ana@example.com", DateOfBirth: "2006-01-10"}},
				Enrollments: []EnrollmentFixture{{Student: "ANA@example.com", Course: "algo", Date: "2026-10-16"}},
			},
			kind: shared.KindInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newSeedEnv().seeder.Seed(context.Background(), &tt.fixtures)
			require.Error(t, err)
			if tt.kind != "" {
				assert.Equal(t, tt.kind, shared.KindOf(err))
			}
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}
