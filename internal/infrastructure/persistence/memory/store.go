// Package memory provides process-local repositories guarded by a single
// lock. They back the service when no database is configured and serve as
// the reference storage in tests.
package memory

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

type pairKey struct {
	student shared.StudentID
	course  shared.CourseID
}

// Store holds students, courses and enrollments. All three repositories
// returned by it share one lock, so cross-entity checks (reference existence,
// active-pair uniqueness, delete restrictions) are atomic with the write.
type Store struct {
	mu sync.RWMutex

	students map[shared.StudentID]*student.Student
	emails   map[shared.Email]shared.StudentID

	courses     map[shared.CourseID]*course.Course
	courseNames map[string]shared.CourseID

	enrollments map[shared.EnrollmentID]*enrollment.Enrollment
	activePairs map[pairKey]shared.EnrollmentID
	seq         int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		students:    make(map[shared.StudentID]*student.Student),
		emails:      make(map[shared.Email]shared.StudentID),
		courses:     make(map[shared.CourseID]*course.Course),
		courseNames: make(map[string]shared.CourseID),
		enrollments: make(map[shared.EnrollmentID]*enrollment.Enrollment),
		activePairs: make(map[pairKey]shared.EnrollmentID),
	}
}

// Students returns the student repository view.
func (s *Store) Students() *StudentRepository { return &StudentRepository{s: s} }

// Courses returns the course repository view.
func (s *Store) Courses() *CourseRepository { return &CourseRepository{s: s} }

// Enrollments returns the enrollment repository view.
func (s *Store) Enrollments() *EnrollmentRepository { return &EnrollmentRepository{s: s} }

// hasActive reports whether any active enrollment matches pred. Caller holds the lock.
func (s *Store) hasActive(pred func(pairKey) bool) bool {
	for k := range s.activePairs {
		if pred(k) {
			return true
		}
	}
	return false
}

// dropEnrollments deletes every enrollment matching pred. Caller holds the write lock.
func (s *Store) dropEnrollments(pred func(*enrollment.Enrollment) bool) {
	for id, e := range s.enrollments {
		if pred(e) {
			delete(s.enrollments, id)
			if e.IsActive() {
				delete(s.activePairs, pairKey{e.StudentID, e.CourseID})
			}
		}
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(strings.TrimSpace(needle)))
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository.
type StudentRepository struct {
	s *Store
}

var _ student.Repository = (*StudentRepository)(nil)

// Create implements student.Repository.
func (r *StudentRepository) Create(ctx context.Context, st *student.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.emails[st.Email]; taken {
		return shared.ErrStudentEmailTaken
	}
	if _, exists := r.s.students[st.ID]; exists {
		return shared.NewDomainError("student", "Create", shared.ErrConflict, "student id already exists")
	}

	cp := *st
	r.s.students[st.ID] = &cp
	r.s.emails[st.Email] = st.ID
	return nil
}

// GetByID implements student.Repository.
func (r *StudentRepository) GetByID(ctx context.Context, id shared.StudentID) (*student.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	st, ok := r.s.students[id]
	if !ok {
		return nil, student.NotFoundError(id)
	}
	cp := *st
	return &cp, nil
}

// GetByEmail implements student.Repository.
func (r *StudentRepository) GetByEmail(ctx context.Context, email shared.Email) (*student.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.emails[email]
	if !ok {
		return nil, shared.NewDomainError("student", "FindByEmail", shared.ErrStudentNotFound,
			"no student registered with "+email.String())
	}
	cp := *r.s.students[id]
	return &cp, nil
}

func (r *StudentRepository) matching(search string) []*student.Student {
	out := make([]*student.Student, 0, len(r.s.students))
	for _, st := range r.s.students {
		if search == "" || containsFold(st.Name, search) || containsFold(st.Email.String(), search) {
			cp := *st
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *student.Student) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// List implements student.Repository.
func (r *StudentRepository) List(ctx context.Context, opts student.ListOptions) ([]*student.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return page(r.matching(opts.Search), opts.Offset, opts.Limit), nil
}

// Count implements student.Repository.
func (r *StudentRepository) Count(ctx context.Context, opts student.ListOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return len(r.matching(opts.Search)), nil
}

// Delete implements student.Repository.
func (r *StudentRepository) Delete(ctx context.Context, id shared.StudentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st, ok := r.s.students[id]
	if !ok {
		return student.NotFoundError(id)
	}
	if r.s.hasActive(func(k pairKey) bool { return k.student == id }) {
		return shared.ErrStudentHasActiveCourses
	}

	r.s.dropEnrollments(func(e *enrollment.Enrollment) bool { return e.StudentID == id })
	delete(r.s.emails, st.Email)
	delete(r.s.students, id)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSES
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository implements course.Repository.
type CourseRepository struct {
	s *Store
}

var _ course.Repository = (*CourseRepository)(nil)

// Create implements course.Repository.
func (r *CourseRepository) Create(ctx context.Context, c *course.Course) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.courseNames[c.NameKey()]; taken {
		return shared.ErrCourseNameTaken
	}
	if _, exists := r.s.courses[c.ID]; exists {
		return shared.NewDomainError("course", "Create", shared.ErrConflict, "course id already exists")
	}

	cp := *c
	r.s.courses[c.ID] = &cp
	r.s.courseNames[c.NameKey()] = c.ID
	return nil
}

// GetByID implements course.Repository.
func (r *CourseRepository) GetByID(ctx context.Context, id shared.CourseID) (*course.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.courses[id]
	if !ok {
		return nil, course.NotFoundError(id)
	}
	cp := *c
	return &cp, nil
}

// Update implements course.Repository.
func (r *CourseRepository) Update(ctx context.Context, c *course.Course) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.courses[c.ID]
	if !ok {
		return course.NotFoundError(c.ID)
	}
	if owner, taken := r.s.courseNames[c.NameKey()]; taken && owner != c.ID {
		return shared.ErrCourseNameTaken
	}

	delete(r.s.courseNames, current.NameKey())
	cp := *c
	r.s.courses[c.ID] = &cp
	r.s.courseNames[c.NameKey()] = c.ID
	return nil
}

func (r *CourseRepository) matching(search string) []*course.Course {
	out := make([]*course.Course, 0, len(r.s.courses))
	for _, c := range r.s.courses {
		if search == "" || containsFold(c.Name, search) {
			cp := *c
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *course.Course) int {
		if c := strings.Compare(a.NameKey(), b.NameKey()); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// List implements course.Repository.
func (r *CourseRepository) List(ctx context.Context, opts course.ListOptions) ([]*course.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return page(r.matching(opts.Search), opts.Offset, opts.Limit), nil
}

// Count implements course.Repository.
func (r *CourseRepository) Count(ctx context.Context, opts course.ListOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return len(r.matching(opts.Search)), nil
}

// Delete implements course.Repository.
func (r *CourseRepository) Delete(ctx context.Context, id shared.CourseID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.courses[id]
	if !ok {
		return course.NotFoundError(id)
	}
	if r.s.hasActive(func(k pairKey) bool { return k.course == id }) {
		return shared.ErrCourseHasActiveStudents
	}

	r.s.dropEnrollments(func(e *enrollment.Enrollment) bool { return e.CourseID == id })
	delete(r.s.courseNames, c.NameKey())
	delete(r.s.courses, id)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository.
type EnrollmentRepository struct {
	s *Store
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil)

// Create implements enrollment.Repository.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.students[e.StudentID]; !ok {
		return student.NotFoundError(e.StudentID)
	}
	if _, ok := r.s.courses[e.CourseID]; !ok {
		return course.NotFoundError(e.CourseID)
	}
	if _, exists := r.s.enrollments[e.ID]; exists {
		return shared.NewDomainError("enrollment", "Create", shared.ErrConflict, "enrollment id already exists")
	}

	key := pairKey{e.StudentID, e.CourseID}
	if e.IsActive() {
		if _, dup := r.s.activePairs[key]; dup {
			return enrollment.DuplicateActiveError(e.StudentID, e.CourseID)
		}
	}

	r.s.seq++
	e.Seq = r.s.seq
	r.s.enrollments[e.ID] = e.Clone()
	if e.IsActive() {
		r.s.activePairs[key] = e.ID
	}
	return nil
}

// GetByID implements enrollment.Repository.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id shared.EnrollmentID) (*enrollment.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, enrollment.NotFoundError(id)
	}
	return e.Clone(), nil
}

// Update implements enrollment.Repository.
func (r *EnrollmentRepository) Update(ctx context.Context, id shared.EnrollmentID, fn enrollment.MutateFunc) (*enrollment.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.enrollments[id]
	if !ok {
		return nil, enrollment.NotFoundError(id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	// identity and ordering are owned by storage
	next.ID, next.StudentID, next.CourseID, next.Seq = current.ID, current.StudentID, current.CourseID, current.Seq

	key := pairKey{current.StudentID, current.CourseID}
	if next.IsActive() && !current.IsActive() {
		if _, dup := r.s.activePairs[key]; dup {
			return nil, enrollment.DuplicateActiveError(current.StudentID, current.CourseID)
		}
		r.s.activePairs[key] = id
	}
	if !next.IsActive() && current.IsActive() {
		delete(r.s.activePairs, key)
	}

	r.s.enrollments[id] = next
	return next.Clone(), nil
}

// Delete implements enrollment.Repository.
func (r *EnrollmentRepository) Delete(ctx context.Context, id shared.EnrollmentID) (*enrollment.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, enrollment.NotFoundError(id)
	}
	delete(r.s.enrollments, id)
	if e.IsActive() {
		delete(r.s.activePairs, pairKey{e.StudentID, e.CourseID})
	}
	return e, nil
}

// List implements enrollment.Repository.
func (r *EnrollmentRepository) List(ctx context.Context, filter enrollment.Filter) iter.Seq2[enrollment.Detail, error] {
	return func(yield func(enrollment.Detail, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(enrollment.Detail{}, err)
			return
		}

		for _, d := range r.snapshot(filter) {
			if err := ctx.Err(); err != nil {
				yield(enrollment.Detail{}, err)
				return
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

// snapshot copies the matching rows under the read lock.
func (r *EnrollmentRepository) snapshot(filter enrollment.Filter) []enrollment.Detail {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]enrollment.Detail, 0, len(r.s.enrollments))
	for _, e := range r.s.enrollments {
		if !filter.Matches(e) {
			continue
		}
		d := enrollment.Detail{Enrollment: *e.Clone()}
		if st, ok := r.s.students[e.StudentID]; ok {
			d.StudentName = st.Name
		}
		if c, ok := r.s.courses[e.CourseID]; ok {
			d.CourseName = c.Name
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b enrollment.Detail) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}
