package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"lakehouse/internal/domain"
)

// DefaultStageTimeout applies to stages that declare no timeout.
const DefaultStageTimeout = time.Hour

// Definition is a named pipeline: ordered groups of stages.
type Definition struct {
	Name   string
	Groups []Group
}

// Orchestrator executes pipeline definitions group by group.
type Orchestrator struct {
	runs           domain.PipelineRunRepository
	logger         *slog.Logger
	maxParallel    int
	defaultTimeout time.Duration
	now            func() time.Time
}

// NewOrchestrator creates an Orchestrator. runs may be nil, in which case
// run history is not persisted. maxParallel <= 1 executes stages one at a time.
func NewOrchestrator(runs domain.PipelineRunRepository, maxParallel int, defaultTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if maxParallel < 1 {
		maxParallel = 1
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultStageTimeout
	}
	return &Orchestrator{
		runs:           runs,
		logger:         logger,
		maxParallel:    maxParallel,
		defaultTimeout: defaultTimeout,
		now:            time.Now,
	}
}

// SetClock overrides the clock used for run timestamps.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Execute runs def to completion under rc. The returned run is always
// non-nil once the plan validates. The error is a CriticalStageFailedError
// when a critical stage aborted the run, a PipelineFailedError when the run
// finished with failed stages, and nil on success.
func (o *Orchestrator) Execute(ctx context.Context, def Definition, rc domain.RunContext, trigger string) (*domain.PipelineRun, error) {
	plan, run, err := o.begin(ctx, def, rc, trigger)
	if err != nil {
		return nil, err
	}
	return run, o.run(ctx, plan, run, rc)
}

// begin validates the plan and records the run as RUNNING.
func (o *Orchestrator) begin(ctx context.Context, def Definition, rc domain.RunContext, trigger string) ([]GroupPlan, *domain.PipelineRun, error) {
	plan, err := BuildPlan(def.Groups)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline %s: %w", def.Name, err)
	}
	if err := rc.Validate(); err != nil {
		return nil, nil, err
	}

	run := &domain.PipelineRun{
		ID:          domain.NewID(),
		RunID:       rc.RunID,
		Pipeline:    def.Name,
		Env:         rc.Env,
		TriggerType: trigger,
		Status:      domain.RunStatusRunning,
		Parameters:  rc.Params(),
		StartedAt:   rc.StartedAt,
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = o.now().UTC()
	}
	if o.runs != nil {
		if err := o.runs.CreateRun(ctx, run); err != nil {
			return nil, nil, fmt.Errorf("create run: %w", err)
		}
	}
	return plan, run, nil
}

// run executes the plan, gating after each group.
func (o *Orchestrator) run(ctx context.Context, plan []GroupPlan, run *domain.PipelineRun, rc domain.RunContext) (runErr error) {
	if rc.StartedAt.IsZero() {
		rc.StartedAt = run.StartedAt
	}
	logger := o.logger.With("run_id", run.RunID, "pipeline", run.Pipeline)
	logger.Info("pipeline run started", "env", run.Env, "trigger", run.TriggerType, "catalog", rc.Catalog)

	defer func() {
		finished := o.now().UTC()
		run.FinishedAt = &finished
		run.Status = run.DeriveStatus()
		if runErr == nil && run.Status == domain.RunStatusFailed {
			runErr = &domain.PipelineFailedError{RunID: run.RunID, Stages: run.FailedStages()}
		}
		if runErr != nil {
			msg := domain.TruncateError(runErr.Error())
			run.ErrorMessage = &msg
		}
		if o.runs != nil {
			// The run context may already be canceled; history is still written.
			if err := o.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
				logger.Error("failed to record run finish", "error", err)
			}
		}
		logger.Info("pipeline run finished",
			"status", run.Status,
			"duration", run.Duration(),
			"failed", run.FailedStages(),
			"not_run", run.NotRun)
	}()

	for _, g := range plan {
		if run.Aborted {
			for _, s := range g.Stages() {
				run.NotRun = append(run.NotRun, s.Name)
			}
			continue
		}

		results := o.runGroup(ctx, g, rc, run.ID, logger)
		run.Stages = append(run.Stages, results...)

		var critical []string
		for _, r := range results {
			if r.Critical && r.Failed() {
				critical = append(critical, r.Stage)
			}
		}
		if len(critical) > 0 {
			run.Aborted = true
			runErr = &domain.CriticalStageFailedError{RunID: run.RunID, Group: g.Name, Stages: critical, Failed: run.FailedStages()}
			logger.Error("critical stage failed; aborting run", "group", g.Name, "stages", critical)
		}
	}
	return runErr
}

// runGroup executes every stage in the group and returns results in plan order.
func (o *Orchestrator) runGroup(ctx context.Context, g GroupPlan, rc domain.RunContext, runKey string, logger *slog.Logger) []domain.StageResult {
	var results []domain.StageResult
	for _, batch := range g.Batches {
		out := make([]domain.StageResult, len(batch))
		if o.maxParallel == 1 || len(batch) == 1 {
			for i, s := range batch {
				out[i] = o.runStage(ctx, g.Name, s, rc, runKey, logger)
			}
		} else {
			var eg errgroup.Group
			eg.SetLimit(o.maxParallel)
			for i, s := range batch {
				eg.Go(func() error {
					out[i] = o.runStage(ctx, g.Name, s, rc, runKey, logger)
					return nil
				})
			}
			_ = eg.Wait()
		}
		results = append(results, out...)
	}
	return results
}

type stageOutcome struct {
	outputs map[string]int64
	err     error
}

// runStage executes one stage under its timeout and converts every failure,
// panics included, into a FAILED StageResult.
func (o *Orchestrator) runStage(ctx context.Context, group string, s Stage, rc domain.RunContext, runKey string, logger *slog.Logger) domain.StageResult {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}
	logger = logger.With("stage", s.Name, "group", group)
	res := domain.StageResult{Stage: s.Name, Group: group, Critical: s.Critical, Status: domain.StageStatusRunning}
	logger.Info("stage started", "timeout", timeout)

	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan stageOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		outputs, err := s.Work.Execute(stageCtx, rc)
		done <- stageOutcome{outputs: outputs, err: err}
	}()

	var outcome stageOutcome
	select {
	case outcome = <-done:
	case <-stageCtx.Done():
		outcome.err = stageCtx.Err()
	}
	res.Elapsed = time.Since(start)
	res.Outputs = outcome.outputs

	if errors.Is(outcome.err, context.DeadlineExceeded) && ctx.Err() == nil {
		outcome.err = &domain.StageTimeoutError{Stage: s.Name, Timeout: timeout}
		res.FailureKind = domain.FailureTimeout
	}
	if outcome.err != nil {
		res.Status = domain.StageStatusFailed
		if res.FailureKind == "" {
			res.FailureKind = domain.FailureExecution
		}
		msg := domain.TruncateError(outcome.err.Error())
		res.ErrorMessage = &msg
		logger.Warn("stage failed", "kind", res.FailureKind, "elapsed", res.Elapsed, "error", outcome.err)
	} else {
		res.Status = domain.StageStatusSuccess
		logger.Info("stage completed", "elapsed", res.Elapsed, "outputs", res.Outputs)
	}

	if o.runs != nil {
		if err := o.runs.RecordStage(context.WithoutCancel(ctx), runKey, res); err != nil {
			logger.Error("failed to record stage result", "error", err)
		}
	}
	return res
}
