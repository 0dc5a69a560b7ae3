// Package main is the entry point of the academic records API.
//
// The process serves the REST API for students, courses and enrollments,
// keeps the engagement view fed from domain events and rebuilds it on a
// schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/escola-hub/academic-records/config"
	"github.com/escola-hub/academic-records/internal/application/command"
	"github.com/escola-hub/academic-records/internal/application/eventhandler"
	"github.com/escola-hub/academic-records/internal/application/query"
	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/escola-hub/academic-records/internal/infrastructure/messaging"
	"github.com/escola-hub/academic-records/internal/infrastructure/persistence/memory"
	"github.com/escola-hub/academic-records/internal/infrastructure/persistence/postgres"
	"github.com/escola-hub/academic-records/internal/infrastructure/persistence/projections"
	"github.com/escola-hub/academic-records/internal/infrastructure/persistence/redis"
	"github.com/escola-hub/academic-records/internal/infrastructure/scheduler"
	"github.com/escola-hub/academic-records/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/escola-hub/academic-records/internal/interface/http"
	"github.com/escola-hub/academic-records/internal/interface/http/handlers"
	"github.com/escola-hub/academic-records/pkg/logger"
	"github.com/escola-hub/academic-records/pkg/observability"
	"github.com/escola-hub/academic-records/pkg/retry"
	"github.com/escola-hub/academic-records/pkg/timeutil"
	"github.com/gin-gonic/gin"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING AND TRACING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting academic records API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("timezone", cfg.App.Timezone),
	)

	shutdownTracing := observability.InitTracing(ctx, log, observability.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.App.Name,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		Headers:     observability.ParseHeaders(cfg.Tracing.Headers),
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", logger.Err(err))
		}
	}()

	health := handlers.NewHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()
	if store.pinger != nil {
		health.AddCheck("database", handlers.PingCheck(store.pinger))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS AND EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.AsyncMode = true

	var (
		bus         eventBus
		reportCache *redis.ReportCache
	)
	if cfg.Redis.Enabled {
		cache, err := connectRedis(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = cache.Close() }()
		health.AddCheck("redis", handlers.PingCheck(cache))

		reportCache = redis.NewReportCache(cache, cfg.Redis.ReportTTL, log)
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisClient(cache.Client()),
			ChannelName:    cfg.Redis.EventChannel,
			LocalBusConfig: busConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("start redis event bus: %w", err)
		}
		bus = redisBus
		log.Info("redis connected, events shared across instances")
	} else {
		bus = messaging.NewInMemoryEventBus(busConfig)
	}
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.NewSystemClock(cfg.App.Location)
	deps := command.Deps{Publisher: bus, Clock: clock, Logger: log}

	repoSource := query.NewRepositorySource(store.students, store.courses, store.enrollments)
	var source query.Source = repoSource

	var view *projections.EngagementView
	if cfg.Engagement.ProjectionEnabled {
		view = projections.NewEngagementView(repoSource)
		source = view
	}

	var (
		projector   *eventhandler.OnEngagementChangeProjector
		invalidator *eventhandler.OnEngagementChangeInvalidator
		cacheForQ   query.ReportCache
	)
	if view != nil {
		projector = eventhandler.NewOnEngagementChangeProjector(view, log)
	}
	if reportCache != nil {
		invalidator = eventhandler.NewOnEngagementChangeInvalidator(reportCache, log)
		cacheForQ = reportCache
	}
	if err := eventhandler.Subscribe(bus, projector, invalidator); err != nil {
		return fmt.Errorf("subscribe event handlers: %w", err)
	}

	reports := query.NewEngagementReportHandler(source, cacheForQ, clock, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ENGAGEMENT VIEW AND SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	switch {
	case view != nil && cfg.Scheduler.Enabled:
		schedConfig := scheduler.DefaultSchedulerConfig()
		schedConfig.Logger = log
		schedConfig.Clock = clock
		sched = scheduler.NewScheduler(schedConfig)

		jobConfig := jobs.DefaultRebuildEngagementConfig()
		if cfg.Scheduler.JobTimeout > 0 {
			jobConfig.Timeout = cfg.Scheduler.JobTimeout
		}
		job := jobs.NewRebuildEngagementJob(view, bus, clock, log, jobConfig)
		if err := sched.Register(job, scheduler.NewIntervalSchedule(cfg.Scheduler.RebuildInterval)); err != nil {
			return fmt.Errorf("register %s: %w", job.Name(), err)
		}

		// the first build runs before any request is served
		if _, err := sched.RunNow(ctx, job.Name()); err != nil {
			return fmt.Errorf("build engagement view: %w", err)
		}
		health.AddCheck("engagement_rebuild", sched.JobCheck(job.Name()))

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() { _ = sched.Stop() }()

	case view != nil:
		ds, err := view.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("build engagement view: %w", err)
		}
		log.Info("engagement view built",
			logger.Int("students", len(ds.Students)),
			logger.Int("courses", len(ds.Courses)),
			logger.Int("enrollments", len(ds.Enrollments)),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.ServiceName = cfg.App.Name
	httpConfig.Tracing = cfg.Tracing.Enabled
	if cfg.IsDevelopment() {
		httpConfig.Mode = gin.DebugMode
	}

	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Enrollments: handlers.NewEnrollmentHandler(
			command.NewEnrollHandler(store.enrollments, store.students, store.courses, deps),
			command.NewCancelEnrollmentHandler(store.enrollments, deps),
			command.NewRemoveEnrollmentHandler(store.enrollments, deps),
			query.NewListEnrollmentsHandler(store.enrollments),
			query.NewGetEnrollmentHandler(store.enrollments, store.students, store.courses),
		),
		Students: handlers.NewStudentHandler(
			command.NewRegisterStudentHandler(store.students, deps),
			command.NewDeleteStudentHandler(store.students, deps),
			query.NewStudentQueries(store.students, clock),
		),
		Courses: handlers.NewCourseHandler(
			command.NewCourseHandler(store.courses, deps),
			query.NewCourseQueries(store.courses),
		),
		Reports: handlers.NewReportHandler(reports, cfg.Engagement.DefaultWindowDays),
		Health:  handlers.NewHealthHandler(health),
		Logger:  log,
	})
	serverErr := server.StartAsync()

	log.Info("academic records API is running",
		logger.String("address", httpConfig.Address()),
		logger.Bool("projection", view != nil),
		logger.Bool("scheduler", sched != nil),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", logger.Err(err))
	}
	bus.Wait()

	log.Info("shutdown completed", logger.Duration("uptime", server.Uptime()))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING
// ══════════════════════════════════════════════════════════════════════════════

type eventBus interface {
	shared.EventBus
	Wait()
	Close() error
}

// storage bundles the repositories of the selected driver.
type storage struct {
	students    student.Repository
	courses     course.Repository
	enrollments enrollment.Repository
	pinger      handlers.Pinger
	close       func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		mem := memory.NewStore()
		return &storage{
			students:    mem.Students(),
			courses:     mem.Courses(),
			enrollments: mem.Enrollments(),
			close:       func() {},
		}, nil
	}

	dbConfig := postgres.DefaultConfig()
	dbConfig.URL = cfg.Database.URL
	dbConfig.MaxConns = int32(cfg.Database.MaxConns)
	dbConfig.MinConns = int32(cfg.Database.MinConns)
	dbConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	log.Info("connecting to database...")
	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, dbConfig)
	}, retry.ConnectOptions(cfg.Database.ConnectRetries, log, "database connection")...)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	return &storage{
		students:    postgres.NewStudentRepository(conn),
		courses:     postgres.NewCourseRepository(conn),
		enrollments: postgres.NewEnrollmentRepository(conn),
		pinger:      conn,
		close: func() {
			log.Info("closing database connection...")
			conn.Close()
		},
	}, nil
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Cache, error) {
	redisConfig := redis.DefaultConfig()
	redisConfig.URL = cfg.Redis.URL
	if cfg.Redis.PoolSize > 0 {
		redisConfig.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.DialTimeout > 0 {
		redisConfig.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout > 0 {
		redisConfig.ReadTimeout = cfg.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout > 0 {
		redisConfig.WriteTimeout = cfg.Redis.WriteTimeout
	}

	log.Info("connecting to Redis...")
	cache, err := retry.DoWithData(ctx, func(ctx context.Context) (*redis.Cache, error) {
		return redis.Connect(ctx, redisConfig)
	}, retry.ConnectOptions(cfg.Database.ConnectRetries, log, "redis connection")...)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return cache, nil
}

// setupLogger builds the process logger from the log settings.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Log.Level)
	if cfg.Log.Format == string(logger.FormatConsole) {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
}
