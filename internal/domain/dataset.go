package domain

import (
	"regexp"
	"strings"
	"time"
)

// Layer is the maturity tier of a dataset.
type Layer string

// Dataset layers.
const (
	LayerBronze Layer = "bronze"
	LayerSilver Layer = "silver"
	LayerGold   Layer = "gold"
)

// Lineage column names.
const (
	ColIngestedAt   = "_ingested_at"
	ColSourceSystem = "_source_system"
	ColBatchID      = "_batch_id"
	ColRefinedAt    = "_refined_at"
)

// Column types used in dataset schemas. Values are DuckDB type names.
const (
	TypeBigInt    = "BIGINT"
	TypeInteger   = "INTEGER"
	TypeDouble    = "DOUBLE"
	TypeVarchar   = "VARCHAR"
	TypeDate      = "DATE"
	TypeTimestamp = "TIMESTAMP"
	TypeBoolean   = "BOOLEAN"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsValidIdentifier reports whether name may be used as a catalog, schema,
// table, or column identifier.
func IsValidIdentifier(name string) bool {
	return validIdentifier.MatchString(name)
}

// ValidateIdentifiers returns a ValidationError naming the first identifier
// that is not on the allow-list.
func ValidateIdentifiers(kind string, names ...string) error {
	for _, n := range names {
		if !IsValidIdentifier(n) {
			return ErrValidation("invalid %s identifier: %q", kind, n)
		}
	}
	return nil
}

// Column is one column of a dataset schema.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// DatasetRef addresses a dataset as catalog.schema.name.
type DatasetRef struct {
	Catalog string
	Schema  string
	Name    string
}

// Validate checks every part against the identifier allow-list.
// The catalog may be empty.
func (r DatasetRef) Validate() error {
	if r.Catalog != "" {
		if err := ValidateIdentifiers("catalog", r.Catalog); err != nil {
			return err
		}
	}
	return ValidateIdentifiers("dataset", r.Schema, r.Name)
}

func (r DatasetRef) String() string {
	if r.Catalog == "" {
		return r.Schema + "." + r.Name
	}
	return r.Catalog + "." + r.Schema + "." + r.Name
}

// Dataset describes a named table in a layer. Key lists the natural key columns.
type Dataset struct {
	Name    string
	Layer   Layer
	Columns []Column
	Key     []string
}

// ColumnNames returns the schema's column names in order.
func (d Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Ref resolves the dataset against a run context.
func (d Dataset) Ref(rc RunContext) DatasetRef {
	return DatasetRef{Catalog: rc.Catalog, Schema: rc.SchemaFor(d.Layer), Name: d.Name}
}

// LineageColumn returns the timestamp lineage column for the dataset's layer.
func (d Dataset) LineageColumn() string {
	if d.Layer == LayerBronze {
		return ColIngestedAt
	}
	return ColRefinedAt
}

// Row is one record, keyed by column name. Values are nil, int64, float64,
// string, bool, or time.Time.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Int returns the column as int64. ok is false for NULL or non-numeric values.
func (r Row) Int(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Float returns the column as float64. ok is false for NULL or non-numeric values.
func (r Row) Float(col string) (float64, bool) {
	switch v := r[col].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Text returns the column as a string. ok is false for NULL or non-string values.
func (r Row) Text(col string) (string, bool) {
	v, ok := r[col].(string)
	return v, ok
}

// Time returns the column as a time.Time. ok is false for NULL or non-time values.
func (r Row) Time(col string) (time.Time, bool) {
	v, ok := r[col].(time.Time)
	return v, ok
}

// IsNull reports whether the column is absent or NULL.
func (r Row) IsNull(col string) bool {
	return r[col] == nil
}

// Rowset is an ordered collection of rows sharing a column list.
type Rowset struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (rs Rowset) Len() int { return len(rs.Rows) }

// HasColumn reports whether the rowset declares the column.
func (rs Rowset) HasColumn(name string) bool {
	for _, c := range rs.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// Predicate selects rows.
type Predicate func(Row) bool
