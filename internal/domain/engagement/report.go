// Package engagement derives per-course engagement metrics from students,
// courses and enrollments. Everything here is a pure function of its input
// and an injected "now"; nothing reads the clock or mutates entities.
package engagement

import (
	"math"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Mode selects which courses appear in a report.
type Mode string

const (
	// ModeActiveOnly lists only courses with at least one enrollment ever.
	ModeActiveOnly Mode = "active"
	// ModeAllCourses lists every course, zero-valued when it has no enrollments.
	ModeAllCourses Mode = "all"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m == ModeActiveOnly || m == ModeAllCourses
}

const (
	// DefaultWindowDays is the trailing window used for recent enrollments.
	DefaultWindowDays = 30

	// MaxWindowDays caps the trailing window at roughly ten years.
	MaxWindowDays = 3660
)

// Options parameterize a report.
type Options struct {
	// WindowDays is the length of the trailing window, in days.
	WindowDays int

	// Mode selects which courses are listed.
	Mode Mode
}

// DefaultOptions returns a 30-day, active-only report.
func DefaultOptions() Options {
	return Options{WindowDays: DefaultWindowDays, Mode: ModeActiveOnly}
}

// Validate fills the default mode and checks the bounds.
func (o Options) Validate() (Options, error) {
	if o.Mode == "" {
		o.Mode = ModeActiveOnly
	}
	if !o.Mode.IsValid() {
		return o, shared.NewDomainErrorf("engagement", "Validate", shared.ErrInvalidArgument,
			"mode must be %q or %q", ModeActiveOnly, ModeAllCourses)
	}
	if o.WindowDays < 0 || o.WindowDays > MaxWindowDays {
		return o, shared.NewDomainErrorf("engagement", "Validate", shared.ErrInvalidArgument,
			"window must be between 0 and %d days", MaxWindowDays)
	}
	return o, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT SHAPES
// ══════════════════════════════════════════════════════════════════════════════

// Row is the engagement summary of one course.
type Row struct {
	CourseID   shared.CourseID `json:"course_id"`
	CourseName string          `json:"course_name"`

	// TotalEnrolled counts Active enrollments only.
	TotalEnrolled int `json:"total_enrolled"`

	// AverageAge is the mean age in whole years of the actively enrolled
	// students, rounded half away from zero to one decimal. Zero when
	// TotalEnrolled is zero.
	AverageAge float64 `json:"average_age"`

	// RecentEnrollments counts enrollments of any status whose date falls
	// within the trailing window, both ends inclusive.
	RecentEnrollments int `json:"recent_enrollments"`
}

// Report is a full engagement report together with the parameters that
// produced it.
type Report struct {
	// AsOf is the calendar day "now" fell on.
	AsOf       shared.Date `json:"as_of"`
	WindowDays int         `json:"window_days"`
	Mode       Mode        `json:"mode"`
	Rows       []Row       `json:"rows"`

	// GeneratedAt is the instant passed as "now".
	GeneratedAt time.Time `json:"generated_at"`
}

// RoundAge rounds to one decimal, half away from zero.
func RoundAge(v float64) float64 {
	return math.Round(v*10) / 10
}

// Window returns the inclusive [from, to] range of the trailing window
// ending on today.
func Window(today shared.Date, days int) (from, to shared.Date) {
	return today.AddDays(-days), today
}
