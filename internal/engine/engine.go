// Package engine provides the DuckDB-backed dataset store and source reader,
// plus an in-memory store used by tests and dry runs.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"lakehouse/internal/domain"
)

// InstallExtensions installs and loads DuckDB extensions by name.
func InstallExtensions(ctx context.Context, db *sql.DB, names ...string) error {
	for _, name := range names {
		if !domain.IsValidIdentifier(name) {
			return domain.ErrValidation("invalid extension name: %q", name)
		}
		stmt := fmt.Sprintf("INSTALL %s; LOAD %s;", name, name)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("extension setup (%s): %w", name, err)
		}
	}
	return nil
}

// AttachCatalog attaches a DuckDB database file as catalog name unless a
// catalog with that name is already attached. An empty dir attaches an
// in-memory database.
func AttachCatalog(ctx context.Context, db *sql.DB, name, dir string) error {
	if err := domain.ValidateIdentifiers("catalog", name); err != nil {
		return err
	}
	attached, err := IsCatalogAttached(ctx, db, name)
	if err != nil {
		return err
	}
	if attached {
		return nil
	}
	path := ":memory:"
	if dir != "" {
		path = filepath.Join(dir, name+".duckdb")
	}
	stmt := fmt.Sprintf("ATTACH %s AS %s", quoteLiteral(path), quoteIdent(name))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("attach catalog %s: %w", name, err)
	}
	return nil
}

// IsCatalogAttached reports whether a database with the given name is attached.
func IsCatalogAttached(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM duckdb_databases() WHERE database_name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("list catalogs: %w", err)
	}
	return n > 0, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func relationFQN(ref domain.DatasetRef) string {
	if ref.Catalog == "" {
		return quoteIdent(ref.Schema) + "." + quoteIdent(ref.Name)
	}
	return quoteIdent(ref.Catalog) + "." + quoteIdent(ref.Schema) + "." + quoteIdent(ref.Name)
}

func schemaFQN(ref domain.DatasetRef) string {
	if ref.Catalog == "" {
		return quoteIdent(ref.Schema)
	}
	return quoteIdent(ref.Catalog) + "." + quoteIdent(ref.Schema)
}
