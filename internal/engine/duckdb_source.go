package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lakehouse/internal/domain"
)

// DuckDBSource implements domain.SourceReader over relations reachable from
// a DuckDB connection.
type DuckDBSource struct {
	db *sql.DB
}

var _ domain.SourceReader = (*DuckDBSource)(nil)

// NewDuckDBSource creates a DuckDBSource.
func NewDuckDBSource(db *sql.DB) *DuckDBSource {
	return &DuckDBSource{db: db}
}

// ReadSource checks the relation's columns in information_schema and then
// reads the requested columns, casting each to its declared type.
func (s *DuckDBSource) ReadSource(ctx context.Context, ref domain.DatasetRef, cols []domain.Column) (domain.Rowset, error) {
	if err := ref.Validate(); err != nil {
		return domain.Rowset{}, err
	}

	available, err := s.columns(ctx, ref)
	if err != nil {
		return domain.Rowset{}, domain.ErrSourceUnavailable("source %s: %v", ref, err)
	}
	if len(available) == 0 {
		return domain.Rowset{}, domain.ErrSourceUnavailable("source %s does not exist", ref)
	}

	var missing []string
	exprs := make([]string, len(cols))
	for i, c := range cols {
		if err := domain.ValidateIdentifiers("column", c.Name); err != nil {
			return domain.Rowset{}, err
		}
		if !isKnownType(c.Type) {
			return domain.Rowset{}, domain.ErrSchemaMismatch("source %s column %s: unsupported type %q", ref, c.Name, c.Type)
		}
		if !available[strings.ToLower(c.Name)] {
			missing = append(missing, c.Name)
			continue
		}
		exprs[i] = fmt.Sprintf("CAST(%s AS %s) AS %s", quoteIdent(c.Name), c.Type, quoteIdent(c.Name))
	}
	if len(missing) > 0 {
		return domain.Rowset{}, domain.ErrSchemaMismatch("source %s is missing column(s): %s", ref, strings.Join(missing, ", "))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), relationFQN(ref))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "conversion") || strings.Contains(strings.ToLower(err.Error()), "cast") {
			return domain.Rowset{}, domain.ErrSchemaMismatch("source %s: %v", ref, err)
		}
		return domain.Rowset{}, domain.ErrSourceUnavailable("source %s: %v", ref, err)
	}
	defer rows.Close() //nolint:errcheck

	rs, err := scanRowset(rows, nil)
	if err != nil {
		return domain.Rowset{}, domain.ErrSourceUnavailable("source %s: %v", ref, err)
	}
	return rs, nil
}

// columns returns the lower-cased column names of the relation.
func (s *DuckDBSource) columns(ctx context.Context, ref domain.DatasetRef) (map[string]bool, error) {
	query := "SELECT column_name FROM information_schema.columns WHERE table_schema = ? AND table_name = ?"
	args := []any{ref.Schema, ref.Name}
	if ref.Catalog != "" {
		query += " AND table_catalog = ?"
		args = append(args, ref.Catalog)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[strings.ToLower(name)] = true
	}
	return out, rows.Err()
}
