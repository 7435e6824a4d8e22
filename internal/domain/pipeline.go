package domain

import "time"

// Run and stage status constants.
const (
	RunStatusPending = "PENDING"
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"

	StageStatusPending = "PENDING"
	StageStatusRunning = "RUNNING"
	StageStatusSuccess = "SUCCESS"
	StageStatusFailed  = "FAILED"

	TriggerTypeManual    = "MANUAL"
	TriggerTypeScheduled = "SCHEDULED"
)

// Stage failure kinds recorded alongside a FAILED status.
const (
	FailureTimeout   = "timeout"
	FailureExecution = "execution-error"
)

// MaxErrorMessageLen bounds the error text kept on a StageResult.
const MaxErrorMessageLen = 200

// StageResult is the outcome of one stage execution.
type StageResult struct {
	Stage        string
	Group        string
	Critical     bool
	Status       string
	FailureKind  string
	Elapsed      time.Duration
	ErrorMessage *string
	// Outputs carries optional counters reported by the stage (e.g. row counts).
	Outputs map[string]int64
}

// Failed reports whether the stage failed.
func (r StageResult) Failed() bool { return r.Status == StageStatusFailed }

// TruncateError bounds an error message to MaxErrorMessageLen bytes.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorMessageLen {
		return msg
	}
	return msg[:MaxErrorMessageLen]
}

// PipelineRun is the summary of one execution of a pipeline.
type PipelineRun struct {
	ID          string // storage key
	RunID       string // <pipeline>_<timestamp>
	Pipeline    string
	Env         string
	TriggerType string
	Status      string
	Parameters  map[string]string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Stages      []StageResult
	// NotRun lists stages skipped because a critical stage aborted the run.
	NotRun       []string
	Aborted      bool
	ErrorMessage *string
}

// FailedStages returns the names of every FAILED stage, in execution order.
func (r *PipelineRun) FailedStages() []string {
	var names []string
	for _, s := range r.Stages {
		if s.Failed() {
			names = append(names, s.Stage)
		}
	}
	return names
}

// DeriveStatus returns FAILED iff any recorded stage failed.
func (r *PipelineRun) DeriveStatus() string {
	for _, s := range r.Stages {
		if s.Failed() {
			return RunStatusFailed
		}
	}
	return RunStatusSuccess
}

// Duration returns the elapsed run time, or zero for an unfinished run.
func (r *PipelineRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PipelineRunFilter holds filter parameters for querying pipeline runs.
type PipelineRunFilter struct {
	Pipeline *string
	Status   *string
	Limit    int
}

// Quality check types and statuses.
const (
	CheckTypeRowCount     = "Row Count"
	CheckTypeNull         = "Null Check"
	CheckTypeReferential  = "Referential Integrity"
	CheckTypeBusinessRule = "Business Rule"
	CheckTypeFreshness    = "Freshness"

	CheckStatusPass  = "PASS"
	CheckStatusFail  = "FAIL"
	CheckStatusStale = "STALE"
)

// QualityCheckResult is the outcome of one quality check.
type QualityCheckResult struct {
	CheckType string
	CheckName string
	Value     float64
	Status    string
	CheckedAt time.Time
}
