package api

import (
	"time"

	"lakehouse/internal/domain"
)

// Error is the JSON body of every non-2xx response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Pipeline describes a registered pipeline.
type Pipeline struct {
	Name        string  `json:"name"`
	ActiveRunID *string `json:"active_run_id,omitempty"`
}

// TriggerRunRequest is the optional body of a trigger call.
type TriggerRunRequest struct {
	Env string `json:"env,omitempty"`
}

// Stage is one stage result of a run.
type Stage struct {
	Name           string           `json:"name"`
	Group          string           `json:"group"`
	Critical       bool             `json:"critical"`
	Status         string           `json:"status"`
	FailureKind    string           `json:"failure_kind,omitempty"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
	ErrorMessage   *string          `json:"error_message,omitempty"`
	Outputs        map[string]int64 `json:"outputs,omitempty"`
}

// Run is a pipeline run with its stage results.
type Run struct {
	ID              string            `json:"id"`
	RunID           string            `json:"run_id"`
	Pipeline        string            `json:"pipeline"`
	Env             string            `json:"env"`
	TriggerType     string            `json:"trigger_type"`
	Status          string            `json:"status"`
	Parameters      map[string]string `json:"parameters,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty"`
	DurationSeconds float64           `json:"duration_seconds"`
	Aborted         bool              `json:"aborted"`
	FailedStages    []string          `json:"failed_stages,omitempty"`
	NotRun          []string          `json:"not_run,omitempty"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	Stages          []Stage           `json:"stages,omitempty"`
}

// QualityResult is one stored quality check outcome.
type QualityResult struct {
	CheckType string    `json:"check_type"`
	CheckName string    `json:"check_name"`
	Value     float64   `json:"value"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
}

// List wraps collection responses.
type List[T any] struct {
	Data []T `json:"data"`
}

// RunFromDomain converts a run and its stages to the wire shape.
func RunFromDomain(r domain.PipelineRun) Run {
	out := Run{
		ID:              r.ID,
		RunID:           r.RunID,
		Pipeline:        r.Pipeline,
		Env:             r.Env,
		TriggerType:     r.TriggerType,
		Status:          r.Status,
		Parameters:      r.Parameters,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		DurationSeconds: r.Duration().Seconds(),
		Aborted:         r.Aborted,
		FailedStages:    r.FailedStages(),
		NotRun:          r.NotRun,
		ErrorMessage:    r.ErrorMessage,
	}
	for _, s := range r.Stages {
		out.Stages = append(out.Stages, Stage{
			Name:           s.Stage,
			Group:          s.Group,
			Critical:       s.Critical,
			Status:         s.Status,
			FailureKind:    s.FailureKind,
			ElapsedSeconds: s.Elapsed.Seconds(),
			ErrorMessage:   s.ErrorMessage,
			Outputs:        s.Outputs,
		})
	}
	return out
}

// QualityResultFromDomain converts a stored check result to the wire shape.
func QualityResultFromDomain(q domain.QualityCheckResult) QualityResult {
	return QualityResult{
		CheckType: q.CheckType,
		CheckName: q.CheckName,
		Value:     q.Value,
		Status:    q.Status,
		CheckedAt: q.CheckedAt,
	}
}
