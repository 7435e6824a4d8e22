package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lakehouse/internal/domain"
)

// RunContextFactory resolves an environment into the run-scoped parameters
// for one run of a pipeline.
type RunContextFactory interface {
	NewRunContext(env, pipeline string, start time.Time) (domain.RunContext, error)
}

// Service triggers pipeline runs and serves run history. At most one run of a
// given pipeline is active at a time.
type Service struct {
	registry Registry
	orch     *Orchestrator
	contexts RunContextFactory
	runs     domain.PipelineRunRepository
	results  domain.QualityResultRepository
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	active map[string]string // pipeline name → run id
	wg     sync.WaitGroup
}

// NewService creates a Service. runs and results may be nil when history is
// not persisted.
func NewService(
	registry Registry,
	orch *Orchestrator,
	contexts RunContextFactory,
	runs domain.PipelineRunRepository,
	results domain.QualityResultRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		registry: registry,
		orch:     orch,
		contexts: contexts,
		runs:     runs,
		results:  results,
		logger:   logger,
		now:      time.Now,
		active:   make(map[string]string),
	}
}

// SetClock overrides the clock used for run start times.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Pipelines returns the registered pipeline names.
func (s *Service) Pipelines() []string { return s.registry.Names() }

// prepare resolves the definition and run context and claims the pipeline's
// active slot. The returned release must be called when the run ends.
func (s *Service) prepare(name, env string) (Definition, domain.RunContext, func(), error) {
	def, err := s.registry.Get(name)
	if err != nil {
		return Definition{}, domain.RunContext{}, nil, err
	}
	rc, err := s.contexts.NewRunContext(env, name, s.now())
	if err != nil {
		return Definition{}, domain.RunContext{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if runID, busy := s.active[name]; busy {
		return Definition{}, domain.RunContext{}, nil, domain.ErrConflict("pipeline %s already has an active run: %s", name, runID)
	}
	s.active[name] = rc.RunID
	release := func() {
		s.mu.Lock()
		delete(s.active, name)
		s.mu.Unlock()
	}
	return def, rc, release, nil
}

// Run executes the named pipeline in env and blocks until it finishes.
func (s *Service) Run(ctx context.Context, name, env, trigger string) (*domain.PipelineRun, error) {
	def, rc, release, err := s.prepare(name, env)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.orch.Execute(ctx, def, rc, trigger)
}

// Start records a new run of the named pipeline and executes it in the
// background. The returned run is a snapshot taken before any stage ran.
func (s *Service) Start(ctx context.Context, name, env, trigger string) (*domain.PipelineRun, error) {
	def, rc, release, err := s.prepare(name, env)
	if err != nil {
		return nil, err
	}
	plan, run, err := s.orch.begin(ctx, def, rc, trigger)
	if err != nil {
		release()
		return nil, err
	}
	snapshot := *run

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("pipeline run panicked", "run_id", run.RunID, "error", fmt.Sprint(r))
			}
		}()
		if err := s.orch.run(context.WithoutCancel(ctx), plan, run, rc); err != nil {
			s.logger.Warn("background run failed", "run_id", run.RunID, "error", err)
		}
	}()
	return &snapshot, nil
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() { s.wg.Wait() }

// Active returns the run id of the pipeline's active run, if any.
func (s *Service) Active(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[name]
	return id, ok
}

// GetRun returns a run by storage id or run id.
func (s *Service) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	if s.runs == nil {
		return nil, domain.ErrNotFound("run %q not found", id)
	}
	return s.runs.GetRun(ctx, id)
}

// ListRuns returns runs matching filter, newest first.
func (s *Service) ListRuns(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error) {
	if filter.Pipeline != nil {
		if _, err := s.registry.Get(*filter.Pipeline); err != nil {
			return nil, err
		}
	}
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.ListRuns(ctx, filter)
}

// QualityResults returns the quality results recorded for a run.
func (s *Service) QualityResults(ctx context.Context, id string) ([]domain.QualityCheckResult, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.results == nil {
		return nil, nil
	}
	return s.results.ListResults(ctx, run.RunID)
}
