package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lakehouse/internal/domain"
)

// Compile-time check.
var _ domain.PipelineRunRepository = (*RunRepo)(nil)

// DefaultListLimit bounds ListRuns when the filter leaves Limit unset.
const DefaultListLimit = 50

// RunRepo implements PipelineRunRepository using SQLite.
type RunRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewRunRepo creates a RunRepo. Writes go through write; reads through read,
// which may be the same pool.
func NewRunRepo(write, read *sql.DB) *RunRepo {
	if read == nil {
		read = write
	}
	return &RunRepo{write: write, read: read}
}

// CreateRun inserts a new pipeline run.
func (r *RunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	params, err := marshalJSON(orEmptyMap(run.Parameters))
	if err != nil {
		return err
	}
	notRun, err := marshalJSON(orEmptySlice(run.NotRun))
	if err != nil {
		return err
	}
	_, err = r.write.ExecContext(ctx, `
		INSERT INTO pipeline_runs
			(id, run_id, pipeline, env, trigger_type, status, parameters, aborted, not_run, error_message, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RunID, run.Pipeline, run.Env, run.TriggerType, run.Status, params,
		boolToInt(run.Aborted), notRun, nullStrFromPtr(run.ErrorMessage), formatTime(run.StartedAt),
	)
	return mapDBError(err)
}

// RecordStage appends one stage result to the run identified by runID.
func (r *RunRepo) RecordStage(ctx context.Context, runID string, res domain.StageResult) error {
	outputs, err := marshalJSON(orEmptyCounts(res.Outputs))
	if err != nil {
		return err
	}
	_, err = r.write.ExecContext(ctx, `
		INSERT INTO stage_results
			(run_id, stage, stage_group, critical, status, failure_kind, elapsed_ms, error_message, outputs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.Stage, res.Group, boolToInt(res.Critical), res.Status, nullStr(res.FailureKind),
		res.Elapsed.Milliseconds(), nullStrFromPtr(res.ErrorMessage), outputs,
	)
	return mapDBError(err)
}

// FinishRun stores the final status of a run.
func (r *RunRepo) FinishRun(ctx context.Context, run *domain.PipelineRun) error {
	notRun, err := marshalJSON(orEmptySlice(run.NotRun))
	if err != nil {
		return err
	}
	var finished sql.NullString
	if run.FinishedAt != nil {
		finished = sql.NullString{String: formatTime(*run.FinishedAt), Valid: true}
	}
	res, err := r.write.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, aborted = ?, not_run = ?, error_message = ?, finished_at = ?
		WHERE id = ?`,
		run.Status, boolToInt(run.Aborted), notRun, nullStrFromPtr(run.ErrorMessage), finished, run.ID,
	)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("run %q not found", run.ID)
	}
	return nil
}

const runColumns = `id, run_id, pipeline, env, trigger_type, status, parameters, aborted, not_run, error_message, started_at, finished_at`

// GetRun returns a run with its stage results. id may be the storage id or
// the <pipeline>_<timestamp> run id; the latest match wins for the latter.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.read.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM pipeline_runs
		WHERE id = ? OR run_id = ?
		ORDER BY (id = ?) DESC, started_at DESC
		LIMIT 1`, id, id, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound("run %q not found", id)
		}
		return nil, err
	}
	stages, err := r.listStages(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Stages = stages
	return run, nil
}

// ListRuns returns runs newest first. Stage results are not loaded.
func (r *RunRepo) ListRuns(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error) {
	var (
		where []string
		args  []any
	)
	if filter.Pipeline != nil {
		where = append(where, "pipeline = ?")
		args = append(args, *filter.Pipeline)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := `SELECT ` + runColumns + ` FROM pipeline_runs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.read.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *RunRepo) listStages(ctx context.Context, runID string) ([]domain.StageResult, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT stage, stage_group, critical, status, failure_kind, elapsed_ms, error_message, outputs
		FROM stage_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.StageResult
	for rows.Next() {
		var (
			s         domain.StageResult
			critical  int64
			kind, msg sql.NullString
			elapsedMS int64
			outputs   string
		)
		if err := rows.Scan(&s.Stage, &s.Group, &critical, &s.Status, &kind, &elapsedMS, &msg, &outputs); err != nil {
			return nil, err
		}
		s.Critical = critical != 0
		s.FailureKind = kind.String
		s.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		s.ErrorMessage = ptrFromNullStr(msg)
		if err := json.Unmarshal([]byte(outputs), &s.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs of %s: %w", s.Stage, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*domain.PipelineRun, error) {
	var (
		run            domain.PipelineRun
		params, notRun string
		aborted        int64
		msg, finished  sql.NullString
		started        string
	)
	if err := sc.Scan(&run.ID, &run.RunID, &run.Pipeline, &run.Env, &run.TriggerType, &run.Status,
		&params, &aborted, &notRun, &msg, &started, &finished); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &run.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters of %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(notRun), &run.NotRun); err != nil {
		return nil, fmt.Errorf("decode not_run of %s: %w", run.ID, err)
	}
	if len(run.NotRun) == 0 {
		run.NotRun = nil
	}
	run.Aborted = aborted != 0
	run.ErrorMessage = ptrFromNullStr(msg)

	t, err := parseTime(started)
	if err != nil {
		return nil, err
	}
	run.StartedAt = t
	if finished.Valid {
		ft, err := parseTime(finished.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &ft
	}
	return &run, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyCounts(m map[string]int64) map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
