package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

var _ student.Repository = (*StudentRepository)(nil)

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `id, name, email, date_of_birth, created_at`

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create creates a new student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (id, name, email, date_of_birth, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.conn.Exec(ctx, query,
		s.ID.String(),
		s.Name,
		s.Email.String(),
		s.DateOfBirth.Time(),
		s.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) && pgConstraint(err) == constraintStudentEmail {
			return shared.ErrStudentEmailTaken
		}
		if IsUniqueViolation(err) {
			return shared.WrapError("student", "Create", shared.ErrConflict, "student id already exists", err)
		}
		return mapError("student", "Create", err)
	}

	return nil
}

// GetByID returns a student by id.
func (r *StudentRepository) GetByID(ctx context.Context, id shared.StudentID) (*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`

	s, err := scanStudent(r.conn.QueryRow(ctx, query, id.String()))
	if IsNoRows(err) {
		return nil, student.NotFoundError(id)
	}
	if err != nil {
		return nil, mapError("student", "GetByID", err)
	}
	return s, nil
}

// GetByEmail returns the student registered with email.
func (r *StudentRepository) GetByEmail(ctx context.Context, email shared.Email) (*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE lower(email) = lower($1)`

	s, err := scanStudent(r.conn.QueryRow(ctx, query, email.String()))
	if IsNoRows(err) {
		return nil, shared.NewDomainError("student", "FindByEmail", shared.ErrStudentNotFound,
			"no student registered with "+email.String())
	}
	if err != nil {
		return nil, mapError("student", "GetByEmail", err)
	}
	return s, nil
}

// List returns students ordered by name, then id.
func (r *StudentRepository) List(ctx context.Context, opts student.ListOptions) ([]*student.Student, error) {
	where, args := studentSearch(opts.Search)
	query := `SELECT ` + studentColumns + ` FROM students` + where + ` ORDER BY lower(name), id`
	query, args = withPaging(query, args, opts.Offset, opts.Limit)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("student", "List", err)
	}
	defer rows.Close()

	students := make([]*student.Student, 0)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, mapError("student", "List", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("student", "List", err)
	}
	return students, nil
}

// Count returns the number of students matching opts.Search.
func (r *StudentRepository) Count(ctx context.Context, opts student.ListOptions) (int, error) {
	where, args := studentSearch(opts.Search)

	var count int
	if err := r.conn.QueryRow(ctx, `SELECT count(*) FROM students`+where, args...).Scan(&count); err != nil {
		return 0, mapError("student", "Count", err)
	}
	return count, nil
}

// Delete removes a student without active enrollments together with its
// cancelled history. The student row is locked first, which serializes the
// delete with concurrent enrollments of the same student.
func (r *StudentRepository) Delete(ctx context.Context, id shared.StudentID) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM students WHERE id = $1 FOR UPDATE`, id.String()).Scan(&locked)
		if IsNoRows(err) {
			return student.NotFoundError(id)
		}
		if err != nil {
			return err
		}

		var active bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND status = 'active')`,
			id.String(),
		).Scan(&active)
		if err != nil {
			return err
		}
		if active {
			return shared.ErrStudentHasActiveCourses
		}

		if _, err := tx.Exec(ctx, `DELETE FROM enrollments WHERE student_id = $1`, id.String()); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM students WHERE id = $1`, id.String())
		return err
	})
	return mapError("student", "Delete", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

func scanStudent(row pgx.Row) (*student.Student, error) {
	var s student.Student
	var id, email string
	var dob time.Time

	if err := row.Scan(&id, &s.Name, &email, &dob, &s.CreatedAt); err != nil {
		return nil, err
	}

	s.ID = shared.StudentID(id)
	s.Email = shared.Email(email)
	s.DateOfBirth = shared.DateOf(dob)
	return &s, nil
}

func studentSearch(search string) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", nil
	}
	return ` WHERE (name ILIKE $1 ESCAPE '\' OR email ILIKE $1 ESCAPE '\')`, []any{likePattern(search)}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches search as a literal substring.
func likePattern(search string) string {
	return "%" + likeEscaper.Replace(search) + "%"
}

// withPaging appends LIMIT/OFFSET placeholders after the existing args.
func withPaging(query string, args []any, offset, limit int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
