package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lakehouse/internal/domain"
)

// DuckDBStore implements domain.DatasetStore on a DuckDB connection.
// Replace runs in a single transaction, so readers on other connections see
// either the previous or the new contents.
type DuckDBStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.DatasetStore = (*DuckDBStore)(nil)

// NewDuckDBStore creates a DuckDBStore.
func NewDuckDBStore(db *sql.DB, logger *slog.Logger) *DuckDBStore {
	return &DuckDBStore{db: db, logger: logger}
}

// CreateSchema creates catalog.schema when missing.
func (s *DuckDBStore) CreateSchema(ctx context.Context, catalog, schema string) error {
	ref := domain.DatasetRef{Catalog: catalog, Schema: schema}
	if catalog != "" {
		if err := domain.ValidateIdentifiers("catalog", catalog); err != nil {
			return err
		}
	}
	if err := domain.ValidateIdentifiers("schema", schema); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schemaFQN(ref)); err != nil {
		return fmt.Errorf("create schema %s: %w", schemaFQN(ref), err)
	}
	return nil
}

// CreateIfAbsent creates the dataset's schema and table when missing.
func (s *DuckDBStore) CreateIfAbsent(ctx context.Context, ref domain.DatasetRef, ds domain.Dataset) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if len(ds.Columns) == 0 {
		return domain.ErrValidation("dataset %s has no columns", ref)
	}

	defs := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		if err := domain.ValidateIdentifiers("column", c.Name); err != nil {
			return err
		}
		if !isKnownType(c.Type) {
			return domain.ErrValidation("column %s: unsupported type %q", c.Name, c.Type)
		}
		defs[i] = quoteIdent(c.Name) + " " + c.Type
		if !c.Nullable {
			defs[i] += " NOT NULL"
		}
	}

	if err := s.CreateSchema(ctx, ref.Catalog, ref.Schema); err != nil {
		return err
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", relationFQN(ref), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", ref, err)
	}
	return nil
}

// Replace atomically swaps the dataset's contents for rows. Only the
// dataset's declared columns are written.
func (s *DuckDBStore) Replace(ctx context.Context, ref domain.DatasetRef, ds domain.Dataset, rows domain.Rowset) (err error) {
	if err := ref.Validate(); err != nil {
		return err
	}
	cols := ds.ColumnNames()
	if err := domain.ValidateIdentifiers("column", cols...); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace %s: %w", ref, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback failed", "dataset", ref.String(), "error", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM "+relationFQN(ref)); err != nil {
		return fmt.Errorf("clear %s: %w", ref, err)
	}

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		marks[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		relationFQN(ref), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", ref, err)
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, len(cols))
	for _, r := range rows.Rows {
		if err = ctx.Err(); err != nil {
			return err
		}
		for i, c := range cols {
			args[i] = r[c]
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", ref, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %s: %w", ref, err)
	}
	s.logger.Debug("dataset replaced", "dataset", ref.String(), "rows", len(rows.Rows))
	return nil
}

// Query returns every row of the dataset accepted by where (nil selects all).
func (s *DuckDBStore) Query(ctx context.Context, ref domain.DatasetRef, where domain.Predicate) (domain.Rowset, error) {
	if err := ref.Validate(); err != nil {
		return domain.Rowset{}, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+relationFQN(ref))
	if err != nil {
		return domain.Rowset{}, fmt.Errorf("query %s: %w", ref, err)
	}
	defer rows.Close() //nolint:errcheck
	return scanRowset(rows, where)
}

func isKnownType(t string) bool {
	switch t {
	case domain.TypeBigInt, domain.TypeInteger, domain.TypeDouble, domain.TypeVarchar,
		domain.TypeDate, domain.TypeTimestamp, domain.TypeBoolean:
		return true
	}
	return false
}
