package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/engagement"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/pkg/circuitbreaker"
	"github.com/escola-hub/academic-records/pkg/logger"
)

// DefaultReportTTL bounds how stale a cached report can be when an
// invalidation was missed.
const DefaultReportTTL = 5 * time.Minute

// ReportKey builds the cache key of a report computed on asOf with opts
// while the cache was at generation gen.
func ReportKey(gen int64, asOf shared.Date, opts engagement.Options) string {
	return fmt.Sprintf("%sg%d:%s:%d:%s", PrefixReport, gen, asOf.String(), opts.WindowDays, opts.Mode)
}

// ReportCache stores computed engagement reports. Entries are keyed by the
// generation current when their computation started; Invalidate moves the
// generation on, so a report computed from data older than the last
// invalidation is written where no reader looks. Redis failures are
// reported as errors but trip a breaker, after which calls fail fast with
// circuitbreaker.ErrCircuitOpen until Redis answers again.
type ReportCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewReportCache creates a report cache. A non-positive ttl selects DefaultReportTTL.
func NewReportCache(cache *Cache, ttl time.Duration, log *logger.Logger) *ReportCache {
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("report_cache"))

	breaker := circuitbreaker.CacheBreaker(
		shared.IsUnavailable,
		func(name string, from, to circuitbreaker.State) {
			log.Warn("cache breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	)

	return &ReportCache{cache: cache, ttl: ttl, breaker: breaker, log: log}
}

// Generation returns the current generation; zero until the first Invalidate.
func (c *ReportCache) Generation(ctx context.Context) (int64, error) {
	var gen int64
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Get(ctx, KeyReportGeneration, &gen)
	})
	switch {
	case err == nil, errors.Is(err, ErrCacheMiss):
		return gen, nil
	default:
		return 0, err
	}
}

// Get returns the report cached for (gen, asOf, opts). The boolean is false
// on a miss.
func (c *ReportCache) Get(ctx context.Context, gen int64, asOf shared.Date, opts engagement.Options) (engagement.Report, bool, error) {
	key := ReportKey(gen, asOf, opts)
	var report engagement.Report
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Get(ctx, key, &report)
	})
	switch {
	case err == nil:
		return report, true, nil
	case errors.Is(err, ErrCacheMiss):
		return engagement.Report{}, false, nil
	case errors.Is(err, ErrCacheSerialization):
		// a stale shape from an older build; drop it and recompute
		_ = c.cache.Delete(ctx, key)
		return engagement.Report{}, false, nil
	default:
		return engagement.Report{}, false, err
	}
}

// Put stores report under gen and its own (AsOf, WindowDays, Mode).
func (c *ReportCache) Put(ctx context.Context, gen int64, report engagement.Report) error {
	key := ReportKey(gen, report.AsOf, engagement.Options{WindowDays: report.WindowDays, Mode: report.Mode})
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, key, report, c.ttl)
	})
}

// Invalidate moves the generation on and drops the stored reports.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		if _, err := c.cache.Incr(ctx, KeyReportGeneration); err != nil {
			return err
		}
		return c.cache.DeleteByPattern(ctx, PrefixReport+"*")
	})
}
