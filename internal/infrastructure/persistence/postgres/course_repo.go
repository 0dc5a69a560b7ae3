package postgres

import (
	"context"
	"strings"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/jackc/pgx/v5"
)

// CourseRepository implements course.Repository for PostgreSQL.
type CourseRepository struct {
	conn *Connection
}

var _ course.Repository = (*CourseRepository)(nil)

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(conn *Connection) *CourseRepository {
	return &CourseRepository{conn: conn}
}

const courseColumns = `id, name, description, duration_hours, created_at, updated_at`

// Create creates a new course.
func (r *CourseRepository) Create(ctx context.Context, c *course.Course) error {
	query := `
		INSERT INTO courses (id, name, description, duration_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.conn.Exec(ctx, query,
		c.ID.String(), c.Name, c.Description, c.DurationHours, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return r.writeError("Create", err)
	}
	return nil
}

// GetByID returns a course by id.
func (r *CourseRepository) GetByID(ctx context.Context, id shared.CourseID) (*course.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`

	c, err := scanCourse(r.conn.QueryRow(ctx, query, id.String()))
	if IsNoRows(err) {
		return nil, course.NotFoundError(id)
	}
	if err != nil {
		return nil, mapError("course", "GetByID", err)
	}
	return c, nil
}

// Update persists the editable attributes of an existing course.
func (r *CourseRepository) Update(ctx context.Context, c *course.Course) error {
	query := `
		UPDATE courses SET
			name = $1,
			description = $2,
			duration_hours = $3,
			updated_at = $4
		WHERE id = $5
	`

	tag, err := r.conn.Exec(ctx, query, c.Name, c.Description, c.DurationHours, c.UpdatedAt, c.ID.String())
	if err != nil {
		return r.writeError("Update", err)
	}
	if tag.RowsAffected() == 0 {
		return course.NotFoundError(c.ID)
	}
	return nil
}

// List returns courses ordered by name, then id.
func (r *CourseRepository) List(ctx context.Context, opts course.ListOptions) ([]*course.Course, error) {
	where, args := courseSearch(opts.Search)
	query := `SELECT ` + courseColumns + ` FROM courses` + where + ` ORDER BY lower(name), id`
	query, args = withPaging(query, args, opts.Offset, opts.Limit)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("course", "List", err)
	}
	defer rows.Close()

	courses := make([]*course.Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, mapError("course", "List", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("course", "List", err)
	}
	return courses, nil
}

// Count returns the number of courses matching opts.Search.
func (r *CourseRepository) Count(ctx context.Context, opts course.ListOptions) (int, error) {
	where, args := courseSearch(opts.Search)

	var count int
	if err := r.conn.QueryRow(ctx, `SELECT count(*) FROM courses`+where, args...).Scan(&count); err != nil {
		return 0, mapError("course", "Count", err)
	}
	return count, nil
}

// Delete removes a course without active enrollments together with its
// cancelled history.
func (r *CourseRepository) Delete(ctx context.Context, id shared.CourseID) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, id.String()).Scan(&locked)
		if IsNoRows(err) {
			return course.NotFoundError(id)
		}
		if err != nil {
			return err
		}

		var active bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM enrollments WHERE course_id = $1 AND status = 'active')`,
			id.String(),
		).Scan(&active)
		if err != nil {
			return err
		}
		if active {
			return shared.ErrCourseHasActiveStudents
		}

		if _, err := tx.Exec(ctx, `DELETE FROM enrollments WHERE course_id = $1`, id.String()); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id.String())
		return err
	})
	return mapError("course", "Delete", err)
}

func (r *CourseRepository) writeError(op string, err error) error {
	if IsUniqueViolation(err) && pgConstraint(err) == constraintCourseName {
		return shared.NewDomainError("course", op, shared.ErrCourseNameTaken, "course name is already in use")
	}
	if IsUniqueViolation(err) {
		return shared.WrapError("course", op, shared.ErrConflict, "course id already exists", err)
	}
	return mapError("course", op, err)
}

func scanCourse(row pgx.Row) (*course.Course, error) {
	var c course.Course
	var id string

	if err := row.Scan(&id, &c.Name, &c.Description, &c.DurationHours, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = shared.CourseID(id)
	return &c, nil
}

func courseSearch(search string) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", nil
	}
	return ` WHERE name ILIKE $1 ESCAPE '\'`, []any{likePattern(search)}
}
