package pipeline

import (
	"context"
	"fmt"
	"time"

	"lakehouse/internal/domain"
	"lakehouse/internal/service/extract"
	"lakehouse/internal/service/quality"
	"lakehouse/internal/service/refine"
)

// Work is the unit of work a stage performs. Execute returns optional
// counters (row counts and the like) reported on the StageResult.
type Work interface {
	Execute(ctx context.Context, rc domain.RunContext) (map[string]int64, error)
	// Targets names the datasets the work writes. Two works sharing a
	// target never run concurrently.
	Targets() []string
}

// Stage is one named step of a pipeline.
type Stage struct {
	Name      string
	DependsOn []string
	Critical  bool
	// Timeout bounds the stage. Zero selects the orchestrator default.
	Timeout time.Duration
	Work    Work
}

// Group is an ordered set of stages. Groups execute in declaration order and
// gate on critical failures.
type Group struct {
	Name   string
	Stages []Stage
}

func datasetKey(ds domain.Dataset) string {
	return string(ds.Layer) + "." + ds.Name
}

// ProvisionWork creates every listed dataset that does not yet exist.
type ProvisionWork struct {
	Store    domain.DatasetStore
	Datasets []domain.Dataset
}

// Execute implements Work.
func (w ProvisionWork) Execute(ctx context.Context, rc domain.RunContext) (map[string]int64, error) {
	for _, ds := range w.Datasets {
		if err := w.Store.CreateIfAbsent(ctx, ds.Ref(rc), ds); err != nil {
			return nil, fmt.Errorf("provision %s: %w", datasetKey(ds), err)
		}
	}
	return map[string]int64{"datasets": int64(len(w.Datasets))}, nil
}

// Targets implements Work.
func (w ProvisionWork) Targets() []string {
	out := make([]string, len(w.Datasets))
	for i, ds := range w.Datasets {
		out[i] = datasetKey(ds)
	}
	return out
}

// SchemaWork creates the schema of one layer. It declares no datasets.
type SchemaWork struct {
	Store domain.DatasetStore
	Layer domain.Layer
}

// Execute implements Work.
func (w SchemaWork) Execute(ctx context.Context, rc domain.RunContext) (map[string]int64, error) {
	if err := w.Store.CreateSchema(ctx, rc.Catalog, rc.SchemaFor(w.Layer)); err != nil {
		return nil, fmt.Errorf("provision %s schema: %w", w.Layer, err)
	}
	return map[string]int64{"schemas": 1}, nil
}

// Targets implements Work.
func (w SchemaWork) Targets() []string { return []string{"schema:" + string(w.Layer)} }

// ExtractWork loads one or more bronze datasets in a single batch.
type ExtractWork struct {
	Engine *extract.Engine
	Specs  []extract.SourceSpec
}

// Execute implements Work.
func (w ExtractWork) Execute(ctx context.Context, rc domain.RunContext) (map[string]int64, error) {
	stats, err := w.Engine.Run(ctx, rc, w.Specs...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(stats)*2)
	for _, st := range stats {
		out[st.Dataset+".rows"] = int64(st.Loaded)
		out[st.Dataset+".dropped"] = int64(st.Dropped + st.Duplicates)
	}
	return out, nil
}

// Targets implements Work.
func (w ExtractWork) Targets() []string {
	out := make([]string, len(w.Specs))
	for i, s := range w.Specs {
		out[i] = datasetKey(s.Target)
	}
	return out
}

// RefineWork builds one or more silver datasets.
type RefineWork struct {
	Engine      *refine.Engine
	Refinements []refine.Refinement
}

// Execute implements Work.
func (w RefineWork) Execute(ctx context.Context, rc domain.RunContext) (map[string]int64, error) {
	stats, err := w.Engine.Run(ctx, rc, w.Refinements...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(stats)*2)
	for _, st := range stats {
		out[st.Dataset+".rows"] = int64(st.Loaded)
		out[st.Dataset+".dropped"] = int64(st.Dropped)
	}
	return out, nil
}

// Targets implements Work.
func (w RefineWork) Targets() []string {
	out := make([]string, len(w.Refinements))
	for i, r := range w.Refinements {
		out[i] = datasetKey(r.Target)
	}
	return out
}

// QualityWork runs a check battery, stores the results when Results is set,
// and fails when Policy flags any result.
type QualityWork struct {
	Engine  *quality.Engine
	Checks  []quality.Check
	Policy  quality.Policy
	Results domain.QualityResultRepository
}

// Execute implements Work.
func (w QualityWork) Execute(ctx context.Context, rc domain.RunContext) (map[string]int64, error) {
	results, runErr := w.Engine.Run(ctx, rc, w.Checks...)
	if w.Results != nil && len(results) > 0 {
		if err := w.Results.SaveResults(ctx, rc.RunID, results); err != nil {
			return nil, fmt.Errorf("save quality results: %w", err)
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	out := map[string]int64{"checks": int64(len(results))}
	for status, n := range quality.Summary(results) {
		out[status] = int64(n)
	}
	return out, w.Policy.Evaluate(results)
}

// Targets implements Work. Quality checks only read.
func (w QualityWork) Targets() []string { return nil }
