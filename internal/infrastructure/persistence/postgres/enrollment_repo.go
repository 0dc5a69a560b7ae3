package postgres

import (
	"context"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY IMPLEMENTATION
// Uniqueness of the active (student, course) pair is enforced by the partial
// unique index enrollments_active_pair_key, so two concurrent inserts can
// never both commit.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository for PostgreSQL.
type EnrollmentRepository struct {
	conn *Connection
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil)

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

const enrollmentColumns = `e.id, e.seq, e.student_id, e.course_id, e.enrollment_date, e.status, e.cancelled_at, e.created_at`

// Create inserts e. Both referenced rows are share-locked inside the same
// transaction so a concurrent delete of the student or course waits for it.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var ref string
		err := tx.QueryRow(ctx, `SELECT id FROM students WHERE id = $1 FOR SHARE`, e.StudentID.String()).Scan(&ref)
		if IsNoRows(err) {
			return student.NotFoundError(e.StudentID)
		}
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `SELECT id FROM courses WHERE id = $1 FOR SHARE`, e.CourseID.String()).Scan(&ref)
		if IsNoRows(err) {
			return course.NotFoundError(e.CourseID)
		}
		if err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
			INSERT INTO enrollments (id, student_id, course_id, enrollment_date, status, cancelled_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING seq
		`,
			e.ID.String(),
			e.StudentID.String(),
			e.CourseID.String(),
			e.EnrollmentDate.Time(),
			e.Status.String(),
			e.CancelledAt,
			e.CreatedAt,
		).Scan(&e.Seq)
	})

	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err) && pgConstraint(err) == constraintActivePair:
		return enrollment.DuplicateActiveError(e.StudentID, e.CourseID)
	case IsUniqueViolation(err):
		return shared.WrapError("enrollment", "Create", shared.ErrConflict, "enrollment id already exists", err)
	case IsForeignKeyViolation(err) && pgConstraint(err) == constraintEnrollmentStud:
		return student.NotFoundError(e.StudentID)
	case IsForeignKeyViolation(err) && pgConstraint(err) == constraintEnrollmentCourse:
		return course.NotFoundError(e.CourseID)
	default:
		return mapError("enrollment", "Create", err)
	}
}

// GetByID returns an enrollment by id.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id shared.EnrollmentID) (*enrollment.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.id = $1`

	e, err := scanEnrollment(r.conn.QueryRow(ctx, query, id.String()))
	if IsNoRows(err) {
		return nil, enrollment.NotFoundError(id)
	}
	if err != nil {
		return nil, mapError("enrollment", "GetByID", err)
	}
	return e, nil
}

// Update applies fn to the row while holding its row lock.
func (r *EnrollmentRepository) Update(ctx context.Context, id shared.EnrollmentID, fn enrollment.MutateFunc) (*enrollment.Enrollment, error) {
	var updated *enrollment.Enrollment

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.id = $1 FOR UPDATE`
		current, err := scanEnrollment(tx.QueryRow(ctx, query, id.String()))
		if IsNoRows(err) {
			return enrollment.NotFoundError(id)
		}
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID, next.StudentID, next.CourseID, next.Seq = current.ID, current.StudentID, current.CourseID, current.Seq

		_, err = tx.Exec(ctx, `
			UPDATE enrollments SET
				enrollment_date = $1,
				status = $2,
				cancelled_at = $3
			WHERE id = $4
		`, next.EnrollmentDate.Time(), next.Status.String(), next.CancelledAt, id.String())
		if err != nil {
			return err
		}

		updated = next
		return nil
	})

	switch {
	case err == nil:
		return updated, nil
	case IsUniqueViolation(err) && pgConstraint(err) == constraintActivePair:
		return nil, shared.WrapError("enrollment", "Update", shared.ErrAlreadyEnrolled,
			"pair already has an active enrollment", err)
	default:
		return nil, mapError("enrollment", "Update", err)
	}
}

// Delete removes the record and returns what was removed.
func (r *EnrollmentRepository) Delete(ctx context.Context, id shared.EnrollmentID) (*enrollment.Enrollment, error) {
	query := `DELETE FROM enrollments e WHERE e.id = $1 RETURNING ` + enrollmentColumns

	e, err := scanEnrollment(r.conn.QueryRow(ctx, query, id.String()))
	if IsNoRows(err) {
		return nil, enrollment.NotFoundError(id)
	}
	if err != nil {
		return nil, mapError("enrollment", "Delete", err)
	}
	return e, nil
}

// List streams matching enrollments in creation order. Each range over the
// returned sequence runs the query again; the rows of one range come from a
// single statement and therefore from one snapshot.
func (r *EnrollmentRepository) List(ctx context.Context, filter enrollment.Filter) iter.Seq2[enrollment.Detail, error] {
	query, args := listQuery(filter)

	return func(yield func(enrollment.Detail, error) bool) {
		rows, err := r.conn.Query(ctx, query, args...)
		if err != nil {
			yield(enrollment.Detail{}, mapError("enrollment", "List", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var d enrollment.Detail
			e, err := scanEnrollment(rows, &d.StudentName, &d.CourseName)
			if err != nil {
				yield(enrollment.Detail{}, mapError("enrollment", "List", err))
				return
			}
			d.Enrollment = *e
			if !yield(d, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(enrollment.Detail{}, mapError("enrollment", "List", err))
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

func listQuery(filter enrollment.Filter) (string, []any) {
	var conditions []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" = $"+strconv.Itoa(len(args)))
	}
	if !filter.StudentID.IsEmpty() {
		add("e.student_id", filter.StudentID.String())
	}
	if !filter.CourseID.IsEmpty() {
		add("e.course_id", filter.CourseID.String())
	}
	if filter.Status != "" {
		add("e.status", filter.Status.String())
	}

	query := `
		SELECT ` + enrollmentColumns + `, s.name, c.name
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		JOIN courses c ON c.id = e.course_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY e.created_at, e.seq"

	return query, args
}

// scanEnrollment scans enrollmentColumns followed by any extra destinations.
func scanEnrollment(row pgx.Row, extra ...any) (*enrollment.Enrollment, error) {
	var e enrollment.Enrollment
	var id, studentID, courseID, status string
	var date time.Time

	dest := append([]any{&id, &e.Seq, &studentID, &courseID, &date, &status, &e.CancelledAt, &e.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	e.ID = shared.EnrollmentID(id)
	e.StudentID = shared.StudentID(studentID)
	e.CourseID = shared.CourseID(courseID)
	e.EnrollmentDate = shared.DateOf(date)
	e.Status = enrollment.Status(status)
	return &e, nil
}
