// internal/scheduler/cron_scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"exectrack/internal/domain"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Parser accepts six-field specs (with seconds) and descriptors such as "@every 1m".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec reports whether spec can be scheduled.
func ValidateSpec(spec string) error {
	if _, err := Parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

type cronScheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	tasks  map[string]cron.EntryID
	logger *slog.Logger
	tracer trace.Tracer
}

// NewCronScheduler creates a scheduler for named tasks.
func NewCronScheduler(logger *slog.Logger) domain.Schedular {
	return &cronScheduler{
		cron:   cron.New(cron.WithParser(Parser)),
		tasks:  make(map[string]cron.EntryID),
		logger: logger.With("component", "cron-scheduler"),
		tracer: otel.Tracer("exectrack-scheduler"),
	}
}

func (s *cronScheduler) Start(ctx context.Context) error {
	s.logger.Info("cron scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("cron scheduler stopped")
	return ctx.Err()
}

// Stop removes every task so a later leadership term starts from a clean slate.
func (s *cronScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, id := range s.tasks {
		s.cron.Remove(id)
		delete(s.tasks, name)
	}
}

// AddTask schedules a task, replacing an earlier task of the same name.
func (s *cronScheduler) AddTask(task domain.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[task.Name]; ok {
		s.cron.Remove(entryID)
	}

	wrapper := &cronTaskWrapper{
		task:   task,
		logger: s.logger.With("task", task.Name),
		tracer: s.tracer,
	}
	entryID, err := s.cron.AddJob(task.Spec, wrapper)
	if err != nil {
		s.logger.Error("failed to add task to cron", "task", task.Name, "error", err)
		return err
	}

	s.tasks[task.Name] = entryID
	s.logger.Info("added task to scheduler", "task", task.Name, "schedule", task.Spec)
	return nil
}

// RemoveTask removes a task from the scheduler.
func (s *cronScheduler) RemoveTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
		s.logger.Info("removed task from scheduler", "task", name)
	}
	return nil
}

type cronTaskWrapper struct {
	task   domain.ScheduledTask
	logger *slog.Logger
	tracer trace.Tracer
}

// Run is called by the cron library.
func (w *cronTaskWrapper) Run() {
	ctx, span := w.tracer.Start(context.Background(), "scheduler.Run",
		trace.WithAttributes(attribute.String("task.name", w.task.Name)))
	defer span.End()

	w.logger.Debug("running scheduled task")
	if err := w.task.Run(ctx); err != nil {
		w.logger.Error("scheduled task failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "scheduled task failed")
	}
}
