// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// isUUID accepts only the 36-character hyphenated form; uuid.Validate alone
// also takes the braced, urn and 32-digit forms.
func isUUID(s string) bool {
	return len(s) == 36 && uuid.Validate(s) == nil
}

// StudentID represents a unique student identifier (UUID format).
type StudentID string

// IsValid checks if the student ID is a valid UUID.
func (s StudentID) IsValid() bool {
	return isUUID(string(s))
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// IsEmpty checks if the ID is empty.
func (s StudentID) IsEmpty() bool {
	return s == ""
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	sid := StudentID(strings.ToLower(strings.TrimSpace(id)))
	if !sid.IsValid() {
		return "", NewDomainError("shared", "NewStudentID", ErrInvalidArgument, "invalid student ID format")
	}
	return sid, nil
}

// CourseID represents a unique course identifier (UUID format).
type CourseID string

func (c CourseID) IsValid() bool  { return isUUID(string(c)) }
func (c CourseID) String() string { return string(c) }
func (c CourseID) IsEmpty() bool  { return c == "" }

// NewCourseID creates a new CourseID with validation.
func NewCourseID(id string) (CourseID, error) {
	cid := CourseID(strings.ToLower(strings.TrimSpace(id)))
	if !cid.IsValid() {
		return "", NewDomainError("shared", "NewCourseID", ErrInvalidArgument, "invalid course ID format")
	}
	return cid, nil
}

// EnrollmentID represents a unique enrollment identifier (UUID format).
type EnrollmentID string

func (e EnrollmentID) IsValid() bool  { return isUUID(string(e)) }
func (e EnrollmentID) String() string { return string(e) }
func (e EnrollmentID) IsEmpty() bool  { return e == "" }

// NewEnrollmentID creates a new EnrollmentID with validation.
func NewEnrollmentID(id string) (EnrollmentID, error) {
	eid := EnrollmentID(strings.ToLower(strings.TrimSpace(id)))
	if !eid.IsValid() {
		return "", NewDomainError("shared", "NewEnrollmentID", ErrInvalidArgument, "invalid enrollment ID format")
	}
	return eid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Date Value Object (calendar date, no time of day)
// ═══════════════════════════════════════════════════════════════════════════

// DateLayout is the only accepted textual form of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar date without time-of-day or zone.
// The zero value is the "no date" marker.
type Date struct {
	t time.Time
}

// NewDate creates a Date from its components.
// Out-of-range components are normalized the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as observed in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, WrapError("shared", "ParseDate", ErrInvalidArgument,
			fmt.Sprintf("date %q must use the YYYY-MM-DD format", s), err)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) Year() int          { return d.t.Year() }
func (d Date) Month() time.Month  { return d.t.Month() }
func (d Date) Day() int           { return d.t.Day() }
func (d Date) Time() time.Time    { return d.t }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Compare(o Date) int { return d.t.Compare(o.t) }
func (d Date) Between(from, to Date) bool {
	return !d.Before(from) && !d.After(to)
}

// String returns the YYYY-MM-DD form, or "" for the zero Date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// YearsUntil returns the number of whole years elapsed between d and other.
// The year is counted only once the (month, day) anniversary has been reached,
// so someone born on Feb 29 turns a year older on Mar 1 in non-leap years.
func (d Date) YearsUntil(other Date) int {
	years := other.Year() - d.Year()
	if other.Month() < d.Month() || (other.Month() == d.Month() && other.Day() < d.Day()) {
		years--
	}
	return years
}

// MarshalJSON encodes the Date as "YYYY-MM-DD" or null when zero.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD" or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return WrapError("shared", "UnmarshalDate", ErrInvalidArgument, "date must be a string", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText lets Date act as a YAML/text scalar.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses the YYYY-MM-DD form.
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Email and Name Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Email is a normalized (trimmed, lowercase) e-mail address.
type Email string

func (e Email) String() string { return string(e) }

// NewEmail creates a new Email with validation.
func NewEmail(raw string) (Email, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", NewDomainError("shared", "NewEmail", ErrInvalidArgument, "email is required")
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(value[strings.Index(value, "@")+1:], ".") {
		return "", NewDomainErrorf("shared", "NewEmail", ErrInvalidArgument, "email %q is not a valid address", raw)
	}
	return Email(value), nil
}

const (
	// MaxNameLength bounds student and course names.
	MaxNameLength = 120
)

// NewName trims raw and checks it is non-empty and bounded.
func NewName(domain, field, raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", NewDomainErrorf(domain, "Validate", ErrInvalidArgument, "%s is required", field)
	}
	if utf8.RuneCountInString(value) > MaxNameLength {
		return "", NewDomainErrorf(domain, "Validate", ErrInvalidArgument,
			"%s must be at most %d characters", field, MaxNameLength)
	}
	return value, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(1, DefaultPageSize)
}
