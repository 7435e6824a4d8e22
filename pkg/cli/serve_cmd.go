package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg
			logger := slog.New(slog.NewJSONHandler(opts.stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

			a, err := opts.open(ctx, logger)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			handler, err := a.Router(ctx)
			if err != nil {
				return err
			}
			if !noSchedule {
				a.Scheduler.Start(cfg.Schedules)
				defer a.Scheduler.Stop()
			}

			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", "addr", cfg.ListenAddr, "env", cfg.LakehouseEnv)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Serve the API without starting the cron scheduler")
	return cmd
}
