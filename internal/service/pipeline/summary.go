package pipeline

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"lakehouse/internal/domain"
)

// WriteSummary renders a run as a per-stage status table followed by the
// overall result line.
func WriteSummary(w io.Writer, run *domain.PipelineRun) error {
	rule := strings.Repeat("=", 65)
	thin := strings.Repeat("-", 65)

	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "  PIPELINE SUMMARY: %s\n", run.Pipeline)
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "  Run ID:   %s\n", run.RunID)
	fmt.Fprintf(&b, "  Env:      %s\n", run.Env)
	fmt.Fprintf(&b, "  Duration: %.2fs\n", run.Duration().Seconds())
	fmt.Fprintln(&b, thin)

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  STAGE\tGROUP\tSTATUS\tTIME")
	for _, s := range run.Stages {
		status := "OK"
		if s.Failed() {
			status = "FAIL"
			if s.FailureKind == domain.FailureTimeout {
				status = "TIMEOUT"
			}
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%.2fs\n", s.Stage, s.Group, status, s.Elapsed.Seconds())
	}
	for _, name := range run.NotRun {
		fmt.Fprintf(tw, "  %s\t\tNOT RUN\t\n", name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(&b, thin)
	fmt.Fprintf(&b, "  Result: %s\n", ResultLine(run))
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

// ResultLine is "SUCCESS" or "FAILED (n failures)".
func ResultLine(run *domain.PipelineRun) string {
	failed := run.FailedStages()
	if len(failed) == 0 {
		return domain.RunStatusSuccess
	}
	return fmt.Sprintf("%s (%d failures)", domain.RunStatusFailed, len(failed))
}
