package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lakehouse/internal/api"
	"lakehouse/internal/domain"
	"lakehouse/internal/service/pipeline"
)

func newRunsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect pipeline run history",
	}
	cmd.AddCommand(newRunsListCmd(opts))
	cmd.AddCommand(newRunsShowCmd(opts))
	return cmd
}

func newRunsListCmd(opts *rootOptions) *cobra.Command {
	var (
		pipelineName string
		status       string
		limit        int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter domain.PipelineRunFilter
			if pipelineName != "" {
				filter.Pipeline = &pipelineName
			}
			if status != "" {
				status = strings.ToUpper(status)
				switch status {
				case domain.RunStatusRunning, domain.RunStatusSuccess, domain.RunStatusFailed:
				default:
					return fmt.Errorf("--status must be RUNNING, SUCCESS or FAILED, got %q", status)
				}
				filter.Status = &status
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			filter.Limit = limit

			ctx := cmd.Context()
			a, err := opts.open(ctx, opts.logger())
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			runs, err := a.Service.ListRuns(ctx, filter)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				data := make([]api.Run, 0, len(runs))
				for _, r := range runs {
					data = append(data, api.RunFromDomain(r))
				}
				return printJSON(cmd.OutOrStdout(), api.List[api.Run]{Data: data})
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.RunID, r.Pipeline, r.Env, r.TriggerType, r.Status,
					formatTimestamp(r.StartedAt), formatSeconds(r.Duration()),
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"run id", "pipeline", "env", "trigger", "status", "started", "duration"}, rows)
		},
	}
	cmd.Flags().StringVar(&pipelineName, "pipeline", "", "Only runs of this pipeline")
	cmd.Flags().StringVar(&status, "status", "", "Only runs in this status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs (0 uses the default)")
	return cmd
}

func newRunsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its stage results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, opts.logger())
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			run, err := a.Service.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), api.RunFromDomain(*run))
			}
			if err := pipeline.WriteSummary(cmd.OutOrStdout(), run); err != nil {
				return err
			}
			for _, s := range run.Stages {
				if s.ErrorMessage != nil {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", s.Stage, *s.ErrorMessage)
				}
			}
			return nil
		},
	}
}

func newQualityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quality <run-id>",
		Short: "Show the quality check results recorded for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, opts.logger())
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			results, err := a.Service.QualityResults(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				data := make([]api.QualityResult, 0, len(results))
				for _, r := range results {
					data = append(data, api.QualityResultFromDomain(r))
				}
				return printJSON(cmd.OutOrStdout(), api.List[api.QualityResult]{Data: data})
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{
					r.CheckType, r.CheckName, strconv.FormatFloat(r.Value, 'f', -1, 64), r.Status,
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"type", "check", "value", "status"}, rows)
		},
	}
}
