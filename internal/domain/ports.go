package domain

import "context"

// DatasetStore owns every dataset. Replace must be atomic: a concurrent reader
// observes either the entire previous contents or the entire new contents.
type DatasetStore interface {
	CreateSchema(ctx context.Context, catalog, schema string) error
	CreateIfAbsent(ctx context.Context, ref DatasetRef, ds Dataset) error
	Replace(ctx context.Context, ref DatasetRef, ds Dataset, rows Rowset) error
	Query(ctx context.Context, ref DatasetRef, where Predicate) (Rowset, error)
}

// SourceReader reads a source relation, projecting the requested columns.
// It returns a SourceUnavailableError when the relation cannot be read and a
// SchemaMismatchError when a declared column is absent or cannot be cast.
type SourceReader interface {
	ReadSource(ctx context.Context, ref DatasetRef, cols []Column) (Rowset, error)
}

// PipelineRunRepository persists run history.
type PipelineRunRepository interface {
	CreateRun(ctx context.Context, run *PipelineRun) error
	RecordStage(ctx context.Context, runID string, res StageResult) error
	FinishRun(ctx context.Context, run *PipelineRun) error
	GetRun(ctx context.Context, id string) (*PipelineRun, error)
	ListRuns(ctx context.Context, filter PipelineRunFilter) ([]PipelineRun, error)
}

// QualityResultRepository persists quality check results per run.
type QualityResultRepository interface {
	SaveResults(ctx context.Context, runID string, results []QualityCheckResult) error
	ListResults(ctx context.Context, runID string) ([]QualityCheckResult, error)
}
