package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"lakehouse/internal/config"
	"lakehouse/internal/engine"
)

// attachCatalogs attaches the lakehouse and source catalogs of every
// environment. ATTACH does not survive a DuckDB restart, so this runs at
// startup. An environment whose file cannot be resolved is skipped with a
// warning; an ATTACH failure is fatal.
func attachCatalogs(ctx context.Context, duck *sql.DB, envs *config.Environments, dir string, logger *slog.Logger) error {
	seen := map[string]bool{}
	for _, env := range config.ValidEnvironments {
		rc, err := envs.Resolve(env)
		if err != nil {
			logger.Warn("skipping environment", "env", env, "error", err)
			continue
		}
		for _, name := range []string{rc.Catalog, rc.SourceCatalog} {
			if seen[name] {
				continue
			}
			seen[name] = true
			if err := engine.AttachCatalog(ctx, duck, name, dir); err != nil {
				return fmt.Errorf("environment %s: %w", env, err)
			}
		}
	}
	logger.Debug("catalogs attached", "count", len(seen), "dir", dir)
	return nil
}
