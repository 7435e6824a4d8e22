// Package refine builds silver datasets from bronze ones: join, derive,
// filter, stamp, and atomically overwrite.
package refine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lakehouse/internal/domain"
	"lakehouse/internal/transform"
)

// Inputs holds the bronze rowsets a refinement reads, keyed by dataset name.
type Inputs map[string]domain.Rowset

// Refinement describes one silver dataset. Build must be a pure function of
// its inputs and the run context.
type Refinement struct {
	Target domain.Dataset
	Inputs []domain.Dataset
	Build  func(in Inputs, rc domain.RunContext) domain.Rowset
	Rules  []transform.Rule
}

// Stats reports row counts for one refined dataset.
type Stats struct {
	Dataset string
	BatchID string
	Built   int
	Dropped int
	Loaded  int
}

// Engine runs refinements against a DatasetStore.
type Engine struct {
	store  domain.DatasetStore
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a refine Engine.
func NewEngine(store domain.DatasetStore, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger, now: time.Now}
}

// SetClock overrides the clock used for the refined_at stamp.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Run executes each refinement in order, sharing one batch id and reading
// each bronze input at most once per call.
func (e *Engine) Run(ctx context.Context, rc domain.RunContext, refinements ...Refinement) ([]Stats, error) {
	now := e.now().UTC()
	stamp := transform.Lineage{At: now, BatchID: domain.NewBatchID(now)}
	logger := e.logger.With("run_id", rc.RunID, "batch_id", stamp.BatchID)
	cache := make(Inputs)

	out := make([]Stats, 0, len(refinements))
	for _, r := range refinements {
		st, err := e.refineOne(ctx, rc, r, stamp, cache)
		if err != nil {
			return out, fmt.Errorf("refine %s: %w", r.Target.Name, err)
		}
		logger.Info("silver dataset loaded",
			"dataset", r.Target.Name,
			"built", st.Built,
			"dropped", st.Dropped,
			"rows", st.Loaded)
		out = append(out, st)
	}
	return out, nil
}

// Compute builds the refinement's final rowset without lineage columns.
func (r Refinement) Compute(in Inputs, rc domain.RunContext) (domain.Rowset, Stats) {
	built := r.Build(in, rc)
	cleaned, cs := transform.Clean(built, r.Rules...)

	keys := make([]transform.SortKey, len(r.Target.Key))
	for i, k := range r.Target.Key {
		keys[i] = transform.Asc(k)
	}
	transform.SortRows(cleaned.Rows, keys)

	final := transform.Project(cleaned, businessColumns(r.Target))
	return final, Stats{Dataset: r.Target.Name, Built: cs.Input, Dropped: cs.Dropped, Loaded: final.Len()}
}

func (e *Engine) refineOne(ctx context.Context, rc domain.RunContext, r Refinement, stamp transform.Lineage, cache Inputs) (Stats, error) {
	for _, ds := range r.Inputs {
		if _, ok := cache[ds.Name]; ok {
			continue
		}
		rs, err := e.store.Query(ctx, ds.Ref(rc), nil)
		if err != nil {
			return Stats{}, fmt.Errorf("read %s: %w", ds.Name, err)
		}
		cache[ds.Name] = rs
	}

	final, st := r.Compute(cache, rc)
	final = transform.StampRefined(final, stamp)
	st.BatchID = stamp.BatchID

	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	if err := e.store.Replace(ctx, r.Target.Ref(rc), r.Target, final); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func businessColumns(ds domain.Dataset) []string {
	out := make([]string, 0, len(ds.Columns))
	for _, c := range ds.Columns {
		switch c.Name {
		case domain.ColRefinedAt, domain.ColBatchID:
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

func col(name, typ string) domain.Column {
	return domain.Column{Name: name, Type: typ, Nullable: true}
}

// silver builds a silver dataset: key columns are NOT NULL and the lineage
// columns are appended.
func silver(name string, key []string, cols ...domain.Column) domain.Dataset {
	for i := range cols {
		for _, k := range key {
			if cols[i].Name == k {
				cols[i].Nullable = false
			}
		}
	}
	cols = append(cols,
		domain.Column{Name: domain.ColRefinedAt, Type: domain.TypeTimestamp},
		domain.Column{Name: domain.ColBatchID, Type: domain.TypeVarchar},
	)
	return domain.Dataset{Name: name, Layer: domain.LayerSilver, Columns: cols, Key: key}
}

// Datasets returns every silver dataset.
func Datasets() []domain.Dataset {
	return []domain.Dataset{OrderDetails, CustomerOrders, SupplierParts}
}

// All returns every refinement.
func All() []Refinement {
	return []Refinement{OrderDetailsRefinement, CustomerOrdersRefinement, SupplierPartsRefinement}
}
