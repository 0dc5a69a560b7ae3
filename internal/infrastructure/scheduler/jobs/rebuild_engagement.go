// Package jobs contains the scheduled background jobs.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/engagement"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/pkg/logger"
	"github.com/escola-hub/academic-records/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD ENGAGEMENT JOB
// ══════════════════════════════════════════════════════════════════════════════

// Rebuilder reloads the engagement view from the stores.
type Rebuilder interface {
	Rebuild(ctx context.Context) (engagement.Dataset, error)
}

// RebuildEngagementJob periodically resynchronizes the event-fed engagement
// view with the repositories, repairing any drift caused by lost events.
type RebuildEngagementJob struct {
	rebuilder Rebuilder
	publisher shared.EventPublisher
	clock     timeutil.Clock
	log       *logger.Logger

	config RebuildEngagementConfig

	lastStats atomic.Pointer[RebuildStats]
}

// RebuildEngagementConfig contains configuration for the rebuild job.
type RebuildEngagementConfig struct {
	// Timeout is the maximum duration for one rebuild.
	Timeout time.Duration
}

// DefaultRebuildEngagementConfig returns sensible defaults.
func DefaultRebuildEngagementConfig() RebuildEngagementConfig {
	return RebuildEngagementConfig{
		Timeout: 2 * time.Minute,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Students    int
	Courses     int
	Enrollments int
}

// NewRebuildEngagementJob creates a new rebuild job. publisher may be nil.
func NewRebuildEngagementJob(
	rebuilder Rebuilder,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
	config RebuildEngagementConfig,
) *RebuildEngagementJob {
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = timeutil.NewSystemClock(time.UTC)
	}
	return &RebuildEngagementJob{
		rebuilder: rebuilder,
		publisher: publisher,
		clock:     clock,
		log:       log.With(logger.Component("job.rebuild_engagement")),
		config:    config,
	}
}

// Name returns the job name.
func (j *RebuildEngagementJob) Name() string {
	return "rebuild_engagement"
}

// Description returns a human-readable description.
func (j *RebuildEngagementJob) Description() string {
	return "Rebuilds the engagement view from the student, course and enrollment stores"
}

// Run executes the rebuild.
func (j *RebuildEngagementJob) Run(ctx context.Context) error {
	startedAt := j.clock.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	ds, err := j.rebuilder.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild engagement view: %w", err)
	}

	completedAt := j.clock.Now()
	stats := &RebuildStats{
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Students:    len(ds.Students),
		Courses:     len(ds.Courses),
		Enrollments: len(ds.Enrollments),
	}
	j.lastStats.Store(stats)

	j.log.Info("engagement view rebuilt",
		logger.Int("students", stats.Students),
		logger.Int("courses", stats.Courses),
		logger.Int("enrollments", stats.Enrollments),
	)

	if j.publisher != nil {
		event := shared.NewEngagementRebuiltEvent(stats.Courses, stats.Enrollments)
		if err := j.publisher.Publish(event); err != nil {
			j.log.Warn("failed to publish rebuild event", logger.Err(err))
		}
	}

	return nil
}

// LastStats returns the statistics of the last successful run, or nil.
func (j *RebuildEngagementJob) LastStats() *RebuildStats {
	return j.lastStats.Load()
}
