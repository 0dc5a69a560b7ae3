package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/escola-hub/academic-records/internal/application/command"
	"github.com/escola-hub/academic-records/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Fixtures is the YAML document loaded by the seeder.
type Fixtures struct {
	Courses     []CourseFixture     `yaml:"courses"`
	Students    []StudentFixture    `yaml:"students"`
	Enrollments []EnrollmentFixture `yaml:"enrollments"`
}

// CourseFixture describes one course.
type CourseFixture struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	DurationHours int    `yaml:"duration_hours"`
}

// StudentFixture describes one student. DateOfBirth is YYYY-MM-DD.
type StudentFixture struct {
	Name        string `yaml:"name"`
	Email       string `yaml:"email"`
	DateOfBirth string `yaml:"date_of_birth"`
}

// EnrollmentFixture links a student (by email) to a course (by name).
type EnrollmentFixture struct {
	Student   string `yaml:"student"`
	Course    string `yaml:"course"`
	Date      string `yaml:"date"`
	Cancelled bool   `yaml:"cancelled"`
}

// DecodeFixtures parses a fixtures document. Unknown keys are rejected.
func DecodeFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixtures
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &f, nil
}

// Seeder writes fixtures through the command handlers so every record
// passes the same validation as an API request.
type Seeder struct {
	Courses  *command.CourseHandler
	Students *command.RegisterStudentHandler
	Enroll   *command.EnrollHandler
	Cancel   *command.CancelEnrollmentHandler
	Logger   *logger.Logger
}

// SeedResult counts what was written.
type SeedResult struct {
	Courses     int
	Students    int
	Enrollments int
	Cancelled   int
}

// Seed loads f. The first failing record aborts the run.
func (s *Seeder) Seed(ctx context.Context, f *Fixtures) (SeedResult, error) {
	log := s.Logger
	if log == nil {
		log = logger.Nop()
	}

	var res SeedResult
	courseIDs := make(map[string]string, len(f.Courses))
	for _, c := range f.Courses {
		created, err := s.Courses.Register(ctx, command.RegisterCourseCommand{
			Name:          c.Name,
			Description:   c.Description,
			DurationHours: c.DurationHours,
		})
		if err != nil {
			return res, fmt.Errorf("course %q: %w", c.Name, err)
		}
		courseIDs[strings.ToLower(c.Name)] = string(created.ID)
		res.Courses++
	}

	cmds := make([]command.RegisterStudentCommand, len(f.Students))
	for i, st := range f.Students {
		cmds[i] = command.RegisterStudentCommand{Name: st.Name, Email: st.Email, DateOfBirth: st.DateOfBirth}
	}
	studentIDs := make(map[string]string, len(f.Students))
	if len(cmds) > 0 {
		results, err := s.Students.HandleBatch(ctx, cmds)
		if err != nil {
			return res, fmt.Errorf("students: %w", err)
		}
		for _, r := range results {
			if r.Err != nil {
				return res, fmt.Errorf("student %q: %w", f.Students[r.Index].Email, r.Err)
			}
			studentIDs[strings.ToLower(strings.TrimSpace(f.Students[r.Index].Email))] = string(r.Student.ID)
			res.Students++
		}
	}

	for i, e := range f.Enrollments {
		studentID, ok := studentIDs[strings.ToLower(strings.TrimSpace(e.Student))]
		if !ok {
			return res, fmt.Errorf("enrollment %d: unknown student %q", i, e.Student)
		}
		courseID, ok := courseIDs[strings.ToLower(e.Course)]
		if !ok {
			return res, fmt.Errorf("enrollment %d: unknown course %q", i, e.Course)
		}

		created, err := s.Enroll.Handle(ctx, command.EnrollCommand{
			StudentID:      studentID,
			CourseID:       courseID,
			EnrollmentDate: e.Date,
		})
		if err != nil {
			return res, fmt.Errorf("enrollment %d (%s in %s): %w", i, e.Student, e.Course, err)
		}
		res.Enrollments++

		if e.Cancelled {
			if _, err := s.Cancel.Handle(ctx, command.CancelEnrollmentCommand{EnrollmentID: string(created.ID)}); err != nil {
				return res, fmt.Errorf("cancel enrollment %d: %w", i, err)
			}
			res.Cancelled++
		}
	}

	log.Info("fixtures loaded",
		logger.Int("courses", res.Courses),
		logger.Int("students", res.Students),
		logger.Int("enrollments", res.Enrollments),
		logger.Int("cancelled", res.Cancelled),
	)
	return res, nil
}
