package engine

import (
	"context"
	"strings"
	"sync"

	"lakehouse/internal/domain"
)

type memTable struct {
	ds   domain.Dataset
	rows []domain.Row
}

// MemoryStore is an in-process DatasetStore. Replace builds the new contents
// off to the side and swaps the table pointer under the lock, so readers hold
// either the old or the new snapshot.
type MemoryStore struct {
	mu      sync.RWMutex
	tables  map[string]*memTable
	schemas map[string]bool
}

var _ domain.DatasetStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*memTable), schemas: make(map[string]bool)}
}

func schemaKey(catalog, schema string) string {
	return strings.ToLower(catalog + "." + schema)
}

// CreateSchema records catalog.schema.
func (s *MemoryStore) CreateSchema(_ context.Context, catalog, schema string) error {
	if err := (domain.DatasetRef{Catalog: catalog, Schema: schema, Name: "_"}).Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[schemaKey(catalog, schema)] = true
	return nil
}

// SchemaExists reports whether catalog.schema has been created.
func (s *MemoryStore) SchemaExists(catalog, schema string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemas[schemaKey(catalog, schema)]
}

func memKey(ref domain.DatasetRef) string {
	return strings.ToLower(ref.String())
}

// CreateIfAbsent registers an empty dataset unless it already exists.
func (s *MemoryStore) CreateIfAbsent(_ context.Context, ref domain.DatasetRef, ds domain.Dataset) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[schemaKey(ref.Catalog, ref.Schema)] = true
	if _, ok := s.tables[memKey(ref)]; !ok {
		s.tables[memKey(ref)] = &memTable{ds: ds}
	}
	return nil
}

// Replace swaps the dataset contents. The dataset must exist.
func (s *MemoryStore) Replace(ctx context.Context, ref domain.DatasetRef, ds domain.Dataset, rows domain.Rowset) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	cols := ds.ColumnNames()
	next := make([]domain.Row, 0, len(rows.Rows))
	for _, r := range rows.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := make(domain.Row, len(cols))
		for _, c := range cols {
			row[c] = r[c]
		}
		next = append(next, row)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[memKey(ref)]; !ok {
		return domain.ErrNotFound("dataset %s does not exist", ref)
	}
	s.tables[memKey(ref)] = &memTable{ds: ds, rows: next}
	return nil
}

// Query returns copies of the rows accepted by where.
func (s *MemoryStore) Query(_ context.Context, ref domain.DatasetRef, where domain.Predicate) (domain.Rowset, error) {
	s.mu.RLock()
	t, ok := s.tables[memKey(ref)]
	s.mu.RUnlock()
	if !ok {
		return domain.Rowset{}, domain.ErrNotFound("dataset %s does not exist", ref)
	}

	out := domain.Rowset{Columns: t.ds.ColumnNames()}
	for _, r := range t.rows {
		if where != nil && !where(r) {
			continue
		}
		out.Rows = append(out.Rows, r.Clone())
	}
	return out, nil
}

// Exists reports whether the dataset has been created.
func (s *MemoryStore) Exists(ref domain.DatasetRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[memKey(ref)]
	return ok
}

// MemorySource is an in-process SourceReader over fixed rowsets.
type MemorySource struct {
	mu        sync.RWMutex
	relations map[string]domain.Rowset
}

var _ domain.SourceReader = (*MemorySource)(nil)

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{relations: make(map[string]domain.Rowset)}
}

// Put sets the contents of a source relation.
func (s *MemorySource) Put(ref domain.DatasetRef, rs domain.Rowset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations[memKey(ref)] = rs
}

// ReadSource projects cols from the relation, failing with SchemaMismatch
// when a column is not declared by the relation.
func (s *MemorySource) ReadSource(_ context.Context, ref domain.DatasetRef, cols []domain.Column) (domain.Rowset, error) {
	s.mu.RLock()
	rs, ok := s.relations[memKey(ref)]
	s.mu.RUnlock()
	if !ok {
		return domain.Rowset{}, domain.ErrSourceUnavailable("source %s does not exist", ref)
	}

	names := make([]string, len(cols))
	var missing []string
	for i, c := range cols {
		names[i] = c.Name
		if !rs.HasColumn(c.Name) {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		return domain.Rowset{}, domain.ErrSchemaMismatch("source %s is missing column(s): %s", ref, strings.Join(missing, ", "))
	}

	out := domain.Rowset{Columns: names, Rows: make([]domain.Row, len(rs.Rows))}
	for i, r := range rs.Rows {
		row := make(domain.Row, len(names))
		for _, n := range names {
			row[n] = r[n]
		}
		out.Rows[i] = row
	}
	return out, nil
}
