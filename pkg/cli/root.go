// Package cli implements the lakehouse command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lakehouse/internal/app"
	"lakehouse/internal/config"
	"lakehouse/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// rootOptions carries the resolved process config into subcommands.
type rootOptions struct {
	cfg     *config.Config
	output  string
	profile string
	stderr  io.Writer
}

// Execute runs the CLI against cfg and returns the process exit code.
func Execute(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(cfg)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]any{"error": err.Error()}
			var crit *domain.CriticalStageFailedError
			var failed *domain.PipelineFailedError
			switch {
			case errors.As(err, &crit):
				errObj["run_id"] = crit.RunID
				errObj["stages"] = crit.Stages
			case errors.As(err, &failed):
				errObj["run_id"] = failed.RunID
				errObj["stages"] = failed.Stages
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &rootOptions{cfg: cfg, stderr: os.Stderr}
	var (
		env        = cfg.LakehouseEnv
		duckDBPath = cfg.DuckDBPath
		metaDBPath = cfg.MetaDBPath
		configDir  = cfg.ConfigDir
	)

	rootCmd := &cobra.Command{
		Use:           "lakehouse",
		Short:         "Medallion lakehouse pipelines",
		Long:          "Runs and inspects the bronze/silver lakehouse pipelines over DuckDB.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// The profile file is optional.
			uc, err := LoadUserConfig()
			if err != nil {
				uc = &UserConfig{Profiles: map[string]Profile{}}
			}
			p, err := uc.ActiveProfile(opts.profile)
			if err != nil {
				return err
			}

			// Precedence: flag > env > profile > default.
			resolve := func(flag, envKey, fromProfile string, dst *string) {
				if cmd.Flags().Changed(flag) {
					return
				}
				if v := os.Getenv(envKey); v != "" {
					*dst = v
				} else if fromProfile != "" {
					*dst = fromProfile
				}
			}
			resolve("env", "LAKEHOUSE_ENV", p.Env, &env)
			resolve("duckdb-path", "DUCKDB_PATH", p.DuckDBPath, &duckDBPath)
			resolve("meta-db-path", "META_DB_PATH", p.MetaDBPath, &metaDBPath)
			resolve("config-dir", "CONFIG_DIR", p.ConfigDir, &configDir)
			resolve("output", "LAKEHOUSE_OUTPUT", p.Output, &opts.output)

			if err := validateOutputFormat(opts.output); err != nil {
				return err
			}
			cfg.LakehouseEnv = env
			cfg.DuckDBPath = duckDBPath
			cfg.MetaDBPath = metaDBPath
			cfg.ConfigDir = configDir
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", env, "Data environment (dev, stage, prod)")
	rootCmd.PersistentFlags().StringVar(&duckDBPath, "duckdb-path", duckDBPath, "DuckDB database file (:memory: for in-memory)")
	rootCmd.PersistentFlags().StringVar(&metaDBPath, "meta-db-path", metaDBPath, "SQLite run-history file")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", configDir, "Directory holding <env>.yaml files")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&opts.profile, "profile", "p", "", "Config profile to use")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newRunsCmd(opts))
	rootCmd.AddCommand(newQualityCmd(opts))
	rootCmd.AddCommand(newSeedSourceCmd(opts))
	rootCmd.AddCommand(newEnvsCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// logger returns a text logger on stderr at the configured level.
func (o *rootOptions) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(o.stderr, &slog.HandlerOptions{Level: o.cfg.SlogLevel()}))
}

// open wires the application for a single command invocation.
func (o *rootOptions) open(ctx context.Context, logger *slog.Logger) (*app.App, error) {
	for _, w := range o.cfg.Warnings {
		logger.Warn(w)
	}
	return app.Open(ctx, o.cfg, logger)
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
