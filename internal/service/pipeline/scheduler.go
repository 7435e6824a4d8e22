package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lakehouse/internal/domain"
)

// Triggerer starts a pipeline run.
type Triggerer interface {
	Run(ctx context.Context, name, env, trigger string) (*domain.PipelineRun, error)
}

// Scheduler triggers pipelines on cron schedules. Schedules are interpreted
// in UTC.
type Scheduler struct {
	cron    *cron.Cron
	svc     Triggerer
	env     string
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID // pipeline name → cron entry
}

// NewScheduler creates a scheduler that runs pipelines in env.
func NewScheduler(svc Triggerer, env string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		svc:     svc,
		env:     env,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers schedules (pipeline name → cron expression) and starts
// the cron loop. Invalid expressions are logged and skipped.
func (s *Scheduler) Start(schedules map[string]string) {
	s.Reload(schedules)
	s.cron.Start()
	s.logger.Info("pipeline scheduler started", "pipelines", len(s.entries))
}

// Stop stops the cron loop and waits for running triggers to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("pipeline scheduler stopped")
}

// Reload replaces every cron entry with schedules.
func (s *Scheduler) Reload(schedules map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entryID := range s.entries {
		s.cron.Remove(entryID)
	}
	s.entries = make(map[string]cron.EntryID)

	names := make([]string, 0, len(schedules))
	for n := range schedules {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		schedule := schedules[name]
		pipelineName := name
		entryID, err := s.cron.AddFunc(schedule, func() { s.trigger(pipelineName) })
		if err != nil {
			s.logger.Warn("invalid cron schedule",
				"pipeline", pipelineName,
				"schedule", schedule,
				"error", err,
			)
			continue
		}
		s.entries[pipelineName] = entryID
		s.logger.Info("scheduled pipeline", "pipeline", pipelineName, "schedule", schedule)
	}
}

func (s *Scheduler) trigger(name string) {
	run, err := s.svc.Run(context.Background(), name, s.env, domain.TriggerTypeScheduled)
	if err != nil {
		s.logger.Warn("scheduled run failed", "pipeline", name, "error", err)
		return
	}
	s.logger.Info("scheduled run finished", "pipeline", name, "run_id", run.RunID, "status", run.Status)
}

// Scheduled returns the names of scheduled pipelines, sorted.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
