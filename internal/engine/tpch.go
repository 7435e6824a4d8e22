package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	"lakehouse/internal/domain"
)

// TPCHRelations are the relations produced by dbgen.
var TPCHRelations = []string{"customer", "lineitem", "nation", "orders", "part", "partsupp", "region", "supplier"}

// SeedTPCH generates the TPC-H relations at the given scale factor into
// catalog.schema using DuckDB's tpch extension. Existing relations are
// replaced. The catalog must already be attached.
func SeedTPCH(ctx context.Context, db *sql.DB, catalog, schema string, scale float64, logger *slog.Logger) error {
	if err := domain.ValidateIdentifiers("catalog", catalog); err != nil {
		return err
	}
	if err := domain.ValidateIdentifiers("schema", schema); err != nil {
		return err
	}
	if scale <= 0 {
		return domain.ErrValidation("scale factor must be positive, got %g", scale)
	}
	if err := InstallExtensions(ctx, db, "tpch"); err != nil {
		return err
	}

	ref := domain.DatasetRef{Catalog: catalog, Schema: schema}
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schemaFQN(ref)); err != nil {
		return fmt.Errorf("create source schema: %w", err)
	}
	for _, rel := range TPCHRelations {
		ref.Name = rel
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+relationFQN(ref)); err != nil {
			return fmt.Errorf("drop %s: %w", ref, err)
		}
	}

	stmt := fmt.Sprintf("CALL dbgen(sf = %s, catalog = %s, schema = %s)",
		strconv.FormatFloat(scale, 'f', -1, 64), quoteLiteral(catalog), quoteLiteral(schema))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("dbgen: %w", err)
	}
	logger.Info("tpch source seeded", "catalog", catalog, "schema", schema, "scale", scale)
	return nil
}
