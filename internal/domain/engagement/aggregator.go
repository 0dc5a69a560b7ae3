package engagement

import (
	"cmp"
	"slices"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
)

// Dataset is the population a report is computed from.
type Dataset struct {
	Students    []*student.Student
	Courses     []*course.Course
	Enrollments []*enrollment.Enrollment
}

type accumulator struct {
	ever   int
	active int
	ageSum int
	recent int
}

// Compute derives one Row per course from ds as observed at now.
//
// The calendar day is taken from now in now's location. Enrollments whose
// student or course is absent from ds are ignored. Rows are ordered by
// course name (case-insensitive), then by course id.
func Compute(ds Dataset, now time.Time, opts Options) (Report, error) {
	opts, err := opts.Validate()
	if err != nil {
		return Report{}, err
	}

	today := shared.DateOf(now)
	from, to := Window(today, opts.WindowDays)

	births := make(map[shared.StudentID]shared.Date, len(ds.Students))
	for _, s := range ds.Students {
		if s != nil {
			births[s.ID] = s.DateOfBirth
		}
	}

	accs := make(map[shared.CourseID]*accumulator, len(ds.Courses))
	for _, c := range ds.Courses {
		if c != nil {
			accs[c.ID] = &accumulator{}
		}
	}

	for _, e := range ds.Enrollments {
		if e == nil {
			continue
		}
		acc, ok := accs[e.CourseID]
		if !ok {
			continue
		}
		dob, ok := births[e.StudentID]
		if !ok {
			continue
		}

		acc.ever++
		if e.IsActive() {
			acc.active++
			acc.ageSum += dob.YearsUntil(today)
		}
		if e.EnrollmentDate.Between(from, to) {
			acc.recent++
		}
	}

	courses := make([]*course.Course, 0, len(ds.Courses))
	for _, c := range ds.Courses {
		if c != nil {
			courses = append(courses, c)
		}
	}
	slices.SortFunc(courses, func(a, b *course.Course) int {
		if c := cmp.Compare(a.NameKey(), b.NameKey()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	rows := make([]Row, 0, len(courses))
	seen := make(map[shared.CourseID]bool, len(courses))
	for _, c := range courses {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true

		acc := accs[c.ID]
		if opts.Mode == ModeActiveOnly && acc.ever == 0 {
			continue
		}
		rows = append(rows, Row{
			CourseID:          c.ID,
			CourseName:        c.Name,
			TotalEnrolled:     acc.active,
			AverageAge:        averageAge(acc),
			RecentEnrollments: acc.recent,
		})
	}

	return Report{
		AsOf:        today,
		WindowDays:  opts.WindowDays,
		Mode:        opts.Mode,
		Rows:        rows,
		GeneratedAt: now,
	}, nil
}

func averageAge(acc *accumulator) float64 {
	if acc.active == 0 {
		return 0
	}
	return RoundAge(float64(acc.ageSum) / float64(acc.active))
}
