// Package main loads YAML fixtures through the command handlers and prints
// the resulting engagement report.
//
//	seed -file fixtures.yaml -as-of 2026-10-15 -window 30 -mode all
//
// Records go to the storage selected by STORAGE_DRIVER; with the memory
// driver the run is a dry run that only prints the report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/escola-hub/academic-records/config"
	"github.com/escola-hub/academic-records/internal/application/command"
	"github.com/escola-hub/academic-records/internal/application/query"
	"github.com/escola-hub/academic-records/internal/domain/course"
	"github.com/escola-hub/academic-records/internal/domain/enrollment"
	"github.com/escola-hub/academic-records/internal/domain/student"
	"github.com/escola-hub/academic-records/internal/infrastructure/persistence/memory"
	"github.com/escola-hub/academic-records/internal/infrastructure/persistence/postgres"
	"github.com/escola-hub/academic-records/pkg/logger"
	"github.com/escola-hub/academic-records/pkg/retry"
	"github.com/escola-hub/academic-records/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	file := fs.String("file", "fixtures.yaml", "fixtures file")
	asOf := fs.String("as-of", "", "report day as YYYY-MM-DD (default: today)")
	window := fs.Int("window", -1, "report window in days (default: ENGAGEMENT_WINDOW_DAYS)")
	mode := fs.String("mode", "", "report mode: active or all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := logger.DefaultOptions()
	opts.Output = os.Stderr
	opts.Format = logger.FormatConsole
	opts.Level = logger.ParseLevel(cfg.Log.Level)
	log := logger.New(opts).With(logger.Component("seed"))
	defer func() { _ = log.Sync() }()

	var clock timeutil.Clock = timeutil.NewSystemClock(cfg.App.Location)
	if *asOf != "" {
		day, err := time.ParseInLocation(time.DateOnly, *asOf, cfg.App.Location)
		if err != nil {
			return fmt.Errorf("-as-of: %w", err)
		}
		clock = timeutil.NewFixedClock(day.Add(12 * time.Hour))
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()
	fixtures, err := DecodeFixtures(f)
	if err != nil {
		return err
	}

	students, courses, enrollments, closeStore, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := command.Deps{Clock: clock, Logger: log}
	seeder := &Seeder{
		Courses:  command.NewCourseHandler(courses, deps),
		Students: command.NewRegisterStudentHandler(students, deps),
		Enroll:   command.NewEnrollHandler(enrollments, students, courses, deps),
		Cancel:   command.NewCancelEnrollmentHandler(enrollments, deps),
		Logger:   log,
	}
	if _, err := seeder.Seed(ctx, fixtures); err != nil {
		return err
	}

	days := cfg.Engagement.DefaultWindowDays
	if *window >= 0 {
		days = *window
	}
	reports := query.NewEngagementReportHandler(
		query.NewRepositorySource(students, courses, enrollments), nil, clock, log,
	)
	report, err := reports.Handle(ctx, query.EngagementReportQuery{WindowDays: &days, Mode: *mode})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func openRepositories(ctx context.Context, cfg *config.Config, log *logger.Logger) (
	student.Repository, course.Repository, enrollment.Repository, func(), error,
) {
	if cfg.Storage.Driver == config.DriverMemory {
		store := memory.NewStore()
		return store.Students(), store.Courses(), store.Enrollments(), func() {}, nil
	}

	dbConfig := postgres.DefaultConfig()
	dbConfig.URL = cfg.Database.URL
	dbConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, dbConfig)
	}, retry.ConnectOptions(cfg.Database.ConnectRetries, log, "database connection")...)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		conn.Close()
		return nil, nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return postgres.NewStudentRepository(conn),
		postgres.NewCourseRepository(conn),
		postgres.NewEnrollmentRepository(conn),
		conn.Close,
		nil
}
