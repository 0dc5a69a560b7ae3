package query

import (
	"context"
	"fmt"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/engagement"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/escola-hub/academic-records/pkg/logger"
	"github.com/escola-hub/academic-records/pkg/timeutil"
	"golang.org/x/sync/singleflight"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGAGEMENT REPORT QUERY
// Computes per-course engagement metrics as of the current clock reading.
// ══════════════════════════════════════════════════════════════════════════════

// Source supplies the population a report is computed from.
type Source interface {
	Dataset(ctx context.Context) (engagement.Dataset, error)
}

// ReportCache stores finished reports keyed by (generation, as-of day,
// window, mode). The generation changes on every invalidation; a report is
// stored under the generation read before its inputs were. A cache is
// best-effort: its errors never fail a query.
type ReportCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, asOf shared.Date, opts engagement.Options) (engagement.Report, bool, error)
	Put(ctx context.Context, gen int64, report engagement.Report) error
}

// ComputeTimeout bounds one shared report computation.
const ComputeTimeout = 30 * time.Second

// RepositorySource reads the full population from the repositories on
// every call.
type RepositorySource struct {
	students    student.Repository
	courses     course.Repository
	enrollments enrollment.Repository
}

// NewRepositorySource creates a RepositorySource.
func NewRepositorySource(students student.Repository, courses course.Repository, enrollments enrollment.Repository) *RepositorySource {
	return &RepositorySource{students: students, courses: courses, enrollments: enrollments}
}

// Dataset implements Source.
func (s *RepositorySource) Dataset(ctx context.Context) (engagement.Dataset, error) {
	var ds engagement.Dataset
	var err error

	if ds.Students, err = s.students.List(ctx, student.ListOptions{}); err != nil {
		return ds, fmt.Errorf("load students: %w", err)
	}
	if ds.Courses, err = s.courses.List(ctx, course.ListOptions{}); err != nil {
		return ds, fmt.Errorf("load courses: %w", err)
	}
	for d, err := range s.enrollments.List(ctx, enrollment.Filter{}) {
		if err != nil {
			return ds, fmt.Errorf("load enrollments: %w", err)
		}
		e := d.Enrollment
		ds.Enrollments = append(ds.Enrollments, &e)
	}
	return ds, nil
}

// EngagementReportQuery selects the window and the course mode.
type EngagementReportQuery struct {
	// WindowDays defaults to 30 when nil.
	WindowDays *int

	// Mode is "active", "all" or empty for "active".
	Mode string
}

// Options validates the query.
func (q EngagementReportQuery) Options() (engagement.Options, error) {
	opts := engagement.Options{WindowDays: engagement.DefaultWindowDays, Mode: engagement.Mode(q.Mode)}
	if q.WindowDays != nil {
		opts.WindowDays = *q.WindowDays
	}
	return opts.Validate()
}

// EngagementReportHandler handles the EngagementReportQuery.
type EngagementReportHandler struct {
	source Source
	cache  ReportCache
	clock  timeutil.Clock
	log    *logger.Logger
	group  singleflight.Group
}

// NewEngagementReportHandler creates a new handler. cache may be nil.
func NewEngagementReportHandler(source Source, cache ReportCache, clock timeutil.Clock, log *logger.Logger) *EngagementReportHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EngagementReportHandler{
		source: source,
		cache:  cache,
		clock:  clock,
		log:    log.With(logger.Component("engagement_report")),
	}
}

// Handle returns the report as of the handler's clock.
func (h *EngagementReportHandler) Handle(ctx context.Context, q EngagementReportQuery) (engagement.Report, error) {
	opts, err := q.Options()
	if err != nil {
		return engagement.Report{}, err
	}
	return h.HandleAt(ctx, h.clock.Now(), opts)
}

// HandleAt returns the report as of now. Concurrent requests for the same
// day, options and cache generation share one computation, which outlives
// any single caller; each caller stops waiting when its own ctx ends.
func (h *EngagementReportHandler) HandleAt(ctx context.Context, now time.Time, opts engagement.Options) (engagement.Report, error) {
	opts, err := opts.Validate()
	if err != nil {
		return engagement.Report{}, err
	}
	asOf := shared.DateOf(now)

	var gen int64
	cached := false
	if h.cache != nil {
		if gen, err = h.cache.Generation(ctx); err != nil {
			h.log.Warn("report cache generation unavailable", logger.Err(err))
		} else {
			cached = true
			report, ok, err := h.cache.Get(ctx, gen, asOf, opts)
			if err != nil {
				h.log.Warn("report cache read failed", logger.Err(err))
			} else if ok {
				return report, nil
			}
		}
	}

	key := fmt.Sprintf("%d:%s:%d:%s", gen, asOf, opts.WindowDays, opts.Mode)
	results := h.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ComputeTimeout)
		defer cancel()

		ds, err := h.source.Dataset(ctx)
		if err != nil {
			return nil, err
		}
		report, err := engagement.Compute(ds, now, opts)
		if err != nil {
			return nil, err
		}
		if cached {
			if err := h.cache.Put(ctx, gen, report); err != nil {
				h.log.Warn("report cache write failed", logger.Err(err))
			}
		}
		return report, nil
	})

	select {
	case <-ctx.Done():
		return engagement.Report{}, fmt.Errorf("engagement report: %w", ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return engagement.Report{}, fmt.Errorf("engagement report: %w", res.Err)
		}
		return res.Val.(engagement.Report), nil
	}
}
