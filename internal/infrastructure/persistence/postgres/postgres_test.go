package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListQuery(t *testing.T) {
	query, args := listQuery(enrollment.Filter{})
	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, "ORDER BY e.created_at, e.seq")
	assert.Empty(t, args)

	query, args = listQuery(enrollment.Filter{
		CourseID: "c1",
		Status:   enrollment.StatusCancelled,
	})
	assert.Contains(t, query, "WHERE e.course_id = $1 AND e.status = $2")
	assert.Equal(t, []any{"c1", "cancelled"}, args)
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `%ana%`, likePattern("ana"))
	assert.Equal(t, `%50\%\_off\\%`, likePattern(`50%_off\`))
}

func TestWithPaging(t *testing.T) {
	query, args := withPaging("SELECT 1", []any{"x"}, 20, 10)
	assert.Equal(t, "SELECT 1 LIMIT $2 OFFSET $3", query)
	assert.Equal(t, []any{"x", 10, 20}, args)

	query, args = withPaging("SELECT 1", nil, 0, 0)
	assert.Equal(t, "SELECT 1", query)
	assert.Empty(t, args)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind shared.Kind
	}{
		{"nil", nil, ""},
		{"domain error passes", shared.ErrStudentNotFound, shared.KindNotFound},
		{"deadline", context.DeadlineExceeded, shared.KindUnavailable},
		{"closed pool", ErrConnectionClosed, shared.KindUnavailable},
		{"connection exception", &pgconn.PgError{Code: "08006"}, shared.KindUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, shared.KindUnavailable},
		{"syntax error", &pgconn.PgError{Code: "42601"}, shared.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("student", "Test", tt.err)
			assert.Equal(t, tt.kind, shared.KindOf(err))
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err))
			}
		})
	}
}

func TestConstraintHelpers(t *testing.T) {
	err := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: constraintActivePair}
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsForeignKeyViolation(err))
	assert.Equal(t, constraintActivePair, pgConstraint(err))
}

func TestMigrationsAreOrdered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
	assert.Contains(t, migrations[2].UpSQL, constraintActivePair)
	assert.Contains(t, migrations[2].UpSQL, "WHERE status = 'active'")
}
