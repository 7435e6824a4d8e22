// Package testutil provides shared fakes of the domain repositories for
// tests across the codebase, in the manner of net/http/httptest.
package testutil

import (
	"context"
	"sync"

	"lakehouse/internal/domain"
)

// === Run Repository Mock ===

// MockRunRepo implements domain.PipelineRunRepository. Unset Fn fields fall
// back to an in-memory history that the exported fields expose for
// assertions. Runs are stored as copies taken at call time.
type MockRunRepo struct {
	CreateRunFn   func(ctx context.Context, run *domain.PipelineRun) error
	RecordStageFn func(ctx context.Context, runID string, res domain.StageResult) error
	FinishRunFn   func(ctx context.Context, run *domain.PipelineRun) error
	GetRunFn      func(ctx context.Context, id string) (*domain.PipelineRun, error)
	ListRunsFn    func(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error)

	mu       sync.Mutex
	Created  []domain.PipelineRun
	Stages   map[string][]domain.StageResult // keyed by run storage id
	Finished []domain.PipelineRun
}

var _ domain.PipelineRunRepository = (*MockRunRepo)(nil)

// CreateRun implements the interface method for testing.
func (m *MockRunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	if m.CreateRunFn != nil {
		if err := m.CreateRunFn(ctx, run); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, *run)
	return nil
}

// RecordStage implements the interface method for testing.
func (m *MockRunRepo) RecordStage(ctx context.Context, runID string, res domain.StageResult) error {
	if m.RecordStageFn != nil {
		if err := m.RecordStageFn(ctx, runID, res); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Stages == nil {
		m.Stages = map[string][]domain.StageResult{}
	}
	m.Stages[runID] = append(m.Stages[runID], res)
	return nil
}

// FinishRun implements the interface method for testing.
func (m *MockRunRepo) FinishRun(ctx context.Context, run *domain.PipelineRun) error {
	if m.FinishRunFn != nil {
		if err := m.FinishRunFn(ctx, run); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Finished = append(m.Finished, *run)
	return nil
}

// GetRun returns the latest recorded state of the run with storage id or
// run id equal to id.
func (m *MockRunRepo) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	if m.GetRunFn != nil {
		return m.GetRunFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, runs := range [][]domain.PipelineRun{m.Finished, m.Created} {
		for i := len(runs) - 1; i >= 0; i-- {
			if runs[i].ID == id || runs[i].RunID == id {
				run := runs[i]
				run.Stages = append([]domain.StageResult(nil), m.Stages[run.ID]...)
				return &run, nil
			}
		}
	}
	return nil, domain.ErrNotFound("run %q not found", id)
}

// ListRuns implements the interface method for testing.
func (m *MockRunRepo) ListRuns(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error) {
	if m.ListRunsFn != nil {
		return m.ListRunsFn(ctx, filter)
	}
	panic("unexpected call to MockRunRepo.ListRuns")
}

// CreatedCount returns the number of created runs.
func (m *MockRunRepo) CreatedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Created)
}

// FinishedCount returns the number of finished runs.
func (m *MockRunRepo) FinishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Finished)
}

// === Quality Result Repository Mock ===

// MockQualityRepo implements domain.QualityResultRepository with an
// in-memory map keyed by run id.
type MockQualityRepo struct {
	SaveResultsFn func(ctx context.Context, runID string, results []domain.QualityCheckResult) error

	mu    sync.Mutex
	Saved map[string][]domain.QualityCheckResult
}

var _ domain.QualityResultRepository = (*MockQualityRepo)(nil)

// SaveResults implements the interface method for testing.
func (m *MockQualityRepo) SaveResults(ctx context.Context, runID string, results []domain.QualityCheckResult) error {
	if m.SaveResultsFn != nil {
		if err := m.SaveResultsFn(ctx, runID, results); err != nil {
			return err
		}
	}
	if len(results) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Saved == nil {
		m.Saved = map[string][]domain.QualityCheckResult{}
	}
	m.Saved[runID] = append(m.Saved[runID], results...)
	return nil
}

// ListResults implements the interface method for testing.
func (m *MockQualityRepo) ListResults(_ context.Context, runID string) ([]domain.QualityCheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.QualityCheckResult(nil), m.Saved[runID]...), nil
}
