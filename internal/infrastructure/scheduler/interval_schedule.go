package scheduler

import (
	"fmt"
	"time"
)

// MinInterval is the shortest accepted IntervalSchedule period.
const MinInterval = time.Second

// IntervalSchedule fires a fixed period after the previous check that ran
// the job, so a slow run pushes the next one back instead of piling up.
type IntervalSchedule struct {
	period time.Duration
}

// NewIntervalSchedule returns a schedule with the given period, raised to
// MinInterval when shorter.
func NewIntervalSchedule(period time.Duration) *IntervalSchedule {
	return &IntervalSchedule{period: max(period, MinInterval)}
}

func (s *IntervalSchedule) Period() time.Duration { return s.period }

func (s *IntervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.period)
}

func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.period)
}
