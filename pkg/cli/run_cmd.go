package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lakehouse/internal/api"
	"lakehouse/internal/domain"
	"lakehouse/internal/service/pipeline"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run a pipeline to completion and print its summary",
		Long: "Runs the named pipeline in the selected environment. The command exits\n" +
			"non-zero when the run ends FAILED.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := opts.logger()
			a, err := opts.open(ctx, logger)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			run, runErr := a.Service.Run(ctx, args[0], opts.cfg.LakehouseEnv, domain.TriggerTypeManual)
			if run == nil {
				return runErr
			}
			if opts.output == "json" {
				if err := printJSON(cmd.OutOrStdout(), api.RunFromDomain(*run)); err != nil {
					return err
				}
			} else if err := pipeline.WriteSummary(cmd.OutOrStdout(), run); err != nil {
				return err
			}
			return runErr
		},
	}
}

func newSeedSourceCmd(opts *rootOptions) *cobra.Command {
	var scale float64
	cmd := &cobra.Command{
		Use:   "seed-source",
		Short: "Generate the TPC-H source relations for the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scale <= 0 {
				return fmt.Errorf("--scale must be positive, got %g", scale)
			}
			ctx := cmd.Context()
			logger := opts.logger()
			a, err := opts.open(ctx, logger)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if err := a.SeedSource(ctx, opts.cfg.LakehouseEnv, scale); err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"env": opts.cfg.LakehouseEnv, "scale": scale})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "seeded TPC-H sf=%g for %s\n", scale, opts.cfg.LakehouseEnv)
			return nil
		},
	}
	cmd.Flags().Float64Var(&scale, "scale", 0.01, "TPC-H scale factor")
	return cmd
}
