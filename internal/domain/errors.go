// Package domain defines core types, interfaces, and errors for the lakehouse pipeline.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., a run of the same pipeline is already active).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// SourceUnavailableError indicates a source relation could not be read.
type SourceUnavailableError struct {
	Message string
}

func (e *SourceUnavailableError) Error() string { return e.Message }

// SchemaMismatchError indicates declared columns are absent or incompatible.
type SchemaMismatchError struct {
	Message string
}

func (e *SchemaMismatchError) Error() string { return e.Message }

// InvalidEnvironmentError indicates an environment name outside the closed set.
type InvalidEnvironmentError struct {
	Env   string
	Valid []string
}

func (e *InvalidEnvironmentError) Error() string {
	return fmt.Sprintf("invalid environment %q: must be one of %v", e.Env, e.Valid)
}

// StageTimeoutError indicates a stage exceeded its timeout and was canceled.
type StageTimeoutError struct {
	Stage   string
	Timeout time.Duration
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out after %s", e.Stage, e.Timeout)
}

// CriticalStageFailedError is returned when a critical stage failed and the run
// was aborted before its remaining groups executed. Stages names the critical
// failures that triggered the abort; Failed names every stage of the run that
// failed up to that point, critical or not.
type CriticalStageFailedError struct {
	RunID  string
	Group  string
	Stages []string
	Failed []string
}

func (e *CriticalStageFailedError) Error() string {
	return fmt.Sprintf("run %s aborted in group %s: critical stage(s) failed: %s",
		e.RunID, e.Group, strings.Join(e.Stages, ", "))
}

// PipelineFailedError is returned when a run completed all of its groups but
// at least one stage failed.
type PipelineFailedError struct {
	RunID  string
	Stages []string
}

func (e *PipelineFailedError) Error() string {
	return fmt.Sprintf("run %s finished with failures: %s", e.RunID, strings.Join(e.Stages, ", "))
}

// ReferentialViolationError reports orphaned child rows for one relationship.
type ReferentialViolationError struct {
	Check   string
	Orphans int64
}

func (e *ReferentialViolationError) Error() string {
	return fmt.Sprintf("referential check %s: %d orphan row(s)", e.Check, e.Orphans)
}

// QualityCheckFailedError reports the checks whose status the caller's policy
// treats as a failure.
type QualityCheckFailedError struct {
	Failed []QualityCheckResult
}

func (e *QualityCheckFailedError) Error() string {
	names := make([]string, len(e.Failed))
	for i, r := range e.Failed {
		names[i] = fmt.Sprintf("%s %s=%s", r.CheckType, r.CheckName, r.Status)
	}
	return fmt.Sprintf("%d quality check(s) failed: %s", len(e.Failed), strings.Join(names, "; "))
}

// Unwrap exposes a ReferentialViolationError for every failed referential check.
func (e *QualityCheckFailedError) Unwrap() []error {
	var errs []error
	for _, r := range e.Failed {
		if r.CheckType == CheckTypeReferential {
			errs = append(errs, &ReferentialViolationError{Check: r.CheckName, Orphans: int64(r.Value)})
		}
	}
	return errs
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrSourceUnavailable creates a SourceUnavailableError with a formatted message.
func ErrSourceUnavailable(format string, args ...interface{}) *SourceUnavailableError {
	return &SourceUnavailableError{Message: fmt.Sprintf(format, args...)}
}

// ErrSchemaMismatch creates a SchemaMismatchError with a formatted message.
func ErrSchemaMismatch(format string, args ...interface{}) *SchemaMismatchError {
	return &SchemaMismatchError{Message: fmt.Sprintf(format, args...)}
}
