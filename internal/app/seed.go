package app

import (
	"context"

	"lakehouse/internal/engine"
)

// SeedSource generates the TPC-H source relations for env at scale.
func (a *App) SeedSource(ctx context.Context, env string, scale float64) error {
	rc, err := a.Environments.Resolve(env)
	if err != nil {
		return err
	}
	return engine.SeedTPCH(ctx, a.duck, rc.SourceCatalog, rc.SourceSchema, scale, a.logger.With("env", env))
}
