package db

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// migrationsFS holds the run-history schema, applied in file-name order.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies every pending goose migration to the metastore.
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// SchemaVersion returns the current migration version.
func SchemaVersion(db *sql.DB) (int64, error) {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("goose set dialect: %w", err)
	}
	return goose.GetDBVersion(db)
}
