package quality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"lakehouse/internal/domain"
)

// DefaultThreshold is the freshness limit applied when none is configured.
const DefaultThreshold = 25 * time.Hour

// Engine evaluates quality checks against the lakehouse datasets.
type Engine struct {
	store     domain.DatasetStore
	logger    *slog.Logger
	now       func() time.Time
	threshold time.Duration
}

// NewEngine creates an Engine. A non-positive threshold selects DefaultThreshold.
func NewEngine(store domain.DatasetStore, threshold time.Duration, logger *slog.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{store: store, logger: logger, now: time.Now, threshold: threshold}
}

// SetClock overrides the engine's clock.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Threshold returns the freshness threshold in effect.
func (e *Engine) Threshold() time.Duration { return e.threshold }

type runSnapshot struct {
	ctx   context.Context
	store domain.DatasetStore
	rc    domain.RunContext
	cache map[string]domain.Rowset
}

func (s *runSnapshot) rows(ds domain.Dataset) (domain.Rowset, error) {
	key := string(ds.Layer) + "." + ds.Name
	if rs, ok := s.cache[key]; ok {
		return rs, nil
	}
	rs, err := s.store.Query(s.ctx, ds.Ref(s.rc), nil)
	if err != nil {
		return domain.Rowset{}, fmt.Errorf("read %s: %w", key, err)
	}
	s.cache[key] = rs
	return rs, nil
}

// Run evaluates every check and returns one result per check, in order.
// A check whose datasets cannot be read is recorded as FAIL and its error is
// joined into the returned error; remaining checks still run.
func (e *Engine) Run(ctx context.Context, rc domain.RunContext, checks ...Check) ([]domain.QualityCheckResult, error) {
	snap := &runSnapshot{ctx: ctx, store: e.store, rc: rc, cache: make(map[string]domain.Rowset)}
	now := e.now().UTC()

	results := make([]domain.QualityCheckResult, 0, len(checks))
	var errs []error
	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		value, status, err := c.eval(snap, now, e.threshold)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", c.Type, c.Name, err))
			value, status = 0, domain.CheckStatusFail
		}
		results = append(results, domain.QualityCheckResult{
			CheckType: c.Type,
			CheckName: c.Name,
			Value:     value,
			Status:    status,
			CheckedAt: now,
		})
		if status != domain.CheckStatusPass {
			e.logger.Warn("quality check not passing", "type", c.Type, "check", c.Name, "value", value, "status", status)
		}
	}

	passed := 0
	for _, r := range results {
		if r.Status == domain.CheckStatusPass {
			passed++
		}
	}
	e.logger.Info("quality checks complete", "run_id", rc.RunID, "passed", passed, "total", len(results))
	return results, errors.Join(errs...)
}

// Policy decides which result statuses fail a quality gate.
type Policy struct {
	FailOn []string
}

// StrictPolicy fails on any status other than PASS.
var StrictPolicy = Policy{FailOn: []string{domain.CheckStatusFail, domain.CheckStatusStale}}

// Evaluate returns a QualityCheckFailedError listing the results whose status
// the policy fails on, or nil.
func (p Policy) Evaluate(results []domain.QualityCheckResult) error {
	var failed []domain.QualityCheckResult
	for _, r := range results {
		if slices.Contains(p.FailOn, r.Status) {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &domain.QualityCheckFailedError{Failed: failed}
}

// Summary counts results per status.
func Summary(results []domain.QualityCheckResult) map[string]int {
	out := map[string]int{}
	for _, r := range results {
		out[r.Status]++
	}
	return out
}
