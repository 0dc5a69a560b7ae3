// Package timeutil provides the clock abstraction and timezone helpers.
// Calendar-day decisions (is a date in the future, what is "today") depend on
// the school's configured timezone, so every component reads time through a
// Clock bound to that location instead of calling time.Now directly.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimezone is used when no timezone is configured.
const DefaultTimezone = "UTC"

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock and converts it to a fixed location.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock returns a clock in loc (UTC when nil).
func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return &SystemClock{loc: loc}
}

// Now implements Clock.
func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's location.
func (c *SystemClock) Location() *time.Location {
	return c.loc
}

// FixedClock is a manually driven clock for tests and replays.
type FixedClock struct {
	mu sync.RWMutex
	t  time.Time
}

// NewFixedClock returns a clock stopped at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// LoadLocation resolves an IANA zone name, defaulting to UTC for "".
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// UntilNextDay returns the time left until the next midnight after t.
func UntilNextDay(t time.Time) time.Duration {
	return StartOfDay(t).AddDate(0, 0, 1).Sub(t)
}
