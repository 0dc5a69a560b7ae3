package shared

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.February, d.Month())
	assert.Equal(t, 29, d.Day())
	assert.Equal(t, "2024-02-29", d.String())

	for _, bad := range []string{"", "2023-02-29", "15/10/2026", "2026-1-5", "[2026,10,15]"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
		assert.True(t, IsValidation(err), bad)
	}
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		When Date `json:"when"`
	}

	out, err := json.Marshal(payload{When: NewDate(2026, time.October, 15)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"when":"2026-10-15"}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal([]byte(`{"when":"2025-01-31"}`), &in))
	assert.Equal(t, MustParseDate("2025-01-31"), in.When)

	err = json.Unmarshal([]byte(`{"when":[2025,1,31]}`), &in)
	assert.True(t, IsValidation(err))

	require.NoError(t, json.Unmarshal([]byte(`{"when":null}`), &in))
	assert.True(t, in.When.IsZero())
}

func TestDate_YearsUntil(t *testing.T) {
	tests := []struct {
		name  string
		birth string
		on    string
		want  int
	}{
		{"birthday not reached", "2000-10-16", "2026-10-15", 25},
		{"birthday today", "2000-10-15", "2026-10-15", 26},
		{"birthday passed", "2000-01-01", "2026-10-15", 26},
		{"leap day in common year before march", "2004-02-29", "2026-02-28", 21},
		{"leap day in common year on march first", "2004-02-29", "2026-03-01", 22},
		{"leap day in leap year", "2004-02-29", "2028-02-29", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParseDate(tt.birth).YearsUntil(MustParseDate(tt.on)))
		})
	}
}

func TestDate_Between(t *testing.T) {
	from := MustParseDate("2026-09-15")
	to := MustParseDate("2026-10-15")

	assert.True(t, from.Between(from, to))
	assert.True(t, to.Between(from, to))
	assert.False(t, from.AddDays(-1).Between(from, to))
	assert.False(t, to.AddDays(1).Between(from, to))
}

func TestNewEmail(t *testing.T) {
	e, err := NewEmail("  Ana.Souza@Escola.DEV ")
	require.NoError(t, err)
	assert.Equal(t, Email("ana.souza@escola.dev"), e)

	for _, bad := range []string{"", "ana", "ana@", "ana@escola", "Ana <ana@escola.dev>"} {
		_, err := NewEmail(bad)
		assert.True(t, IsValidation(err), bad)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(ErrStudentNotFound))
	assert.Equal(t, KindConflict, KindOf(ErrAlreadyEnrolled))
	assert.Equal(t, KindInvalidState, KindOf(ErrEnrollmentNotActive))
	assert.Equal(t, KindInvalidArgument, KindOf(ErrEnrollmentDateInFuture))
	assert.Equal(t, KindUnavailable, KindOf(WrapError("storage", "Query", ErrUnavailable, "db down", errors.New("dial tcp"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestDomainError_Is(t *testing.T) {
	err := NewDomainError("enrollment", "Find", ErrEnrollmentNotFound, "enrollment x not found")

	assert.True(t, errors.Is(err, ErrEnrollmentNotFound))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "enrollment x not found", MessageOf(err))
}

func TestNewIDs(t *testing.T) {
	id, err := NewStudentID("  3F2504E0-4F89-11D3-9A0C-0305E82C3301 ")
	require.NoError(t, err)
	assert.Equal(t, StudentID("3f2504e0-4f89-11d3-9a0c-0305e82c3301"), id)

	for _, raw := range []string{
		"",
		"not-a-uuid",
		"3f2504e04f8911d39a0c0305e82c3301",
		"{3f2504e0-4f89-11d3-9a0c-0305e82c3301}",
		"urn:uuid:3f2504e0-4f89-11d3-9a0c-0305e82c3301",
		"3f2504e0-4f89-11d3-9a0c-0305e82c330g",
	} {
		_, err := NewCourseID(raw)
		assert.True(t, IsValidation(err), raw)
		assert.False(t, EnrollmentID(raw).IsValid(), raw)
	}
}
