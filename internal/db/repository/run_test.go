package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "lakehouse/internal/db"
	"lakehouse/internal/domain"
)

var started = time.Date(2026, 5, 4, 6, 0, 1, 0, time.UTC)

func setupRunRepo(t *testing.T) *RunRepo {
	t.Helper()
	m := internaldb.OpenTestMetastore(t)
	return NewRunRepo(m.Write, m.Read)
}

func newRun(pipeline string, start time.Time) *domain.PipelineRun {
	return &domain.PipelineRun{
		ID:          domain.NewID(),
		RunID:       domain.NewRunID(pipeline, start),
		Pipeline:    pipeline,
		Env:         "dev",
		TriggerType: domain.TriggerTypeManual,
		Status:      domain.RunStatusRunning,
		Parameters:  map[string]string{"catalog": "dev_lakehouse"},
		StartedAt:   start,
	}
}

func TestRunRepo_CreateRecordFinishGet(t *testing.T) {
	repo := setupRunRepo(t)
	ctx := context.Background()

	run := newRun("sales_analytics", started)
	require.NoError(t, repo.CreateRun(ctx, run))

	msg := "source relation orders unreadable"
	require.NoError(t, repo.RecordStage(ctx, run.ID, domain.StageResult{
		Stage: "schema_bronze", Group: "provisioning", Critical: true, Status: domain.StageStatusSuccess,
		Elapsed: 1500 * time.Millisecond, Outputs: map[string]int64{"datasets": 8},
	}))
	require.NoError(t, repo.RecordStage(ctx, run.ID, domain.StageResult{
		Stage: "ext_orders", Group: "extract", Critical: true, Status: domain.StageStatusFailed,
		FailureKind: domain.FailureExecution, ErrorMessage: &msg,
	}))

	finished := started.Add(90 * time.Second)
	run.Status = domain.RunStatusFailed
	run.FinishedAt = &finished
	run.Aborted = true
	run.NotRun = []string{"ref_order_details", "quality"}
	run.ErrorMessage = &msg
	require.NoError(t, repo.FinishRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	assert.Equal(t, "dev_lakehouse", got.Parameters["catalog"])
	assert.True(t, got.Aborted)
	assert.Equal(t, []string{"ref_order_details", "quality"}, got.NotRun)
	assert.Equal(t, started, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 90*time.Second, got.Duration())

	require.Len(t, got.Stages, 2)
	assert.Equal(t, "schema_bronze", got.Stages[0].Stage)
	assert.True(t, got.Stages[0].Critical)
	assert.Equal(t, 1500*time.Millisecond, got.Stages[0].Elapsed)
	assert.Equal(t, int64(8), got.Stages[0].Outputs["datasets"])
	assert.Nil(t, got.Stages[0].ErrorMessage)
	assert.Equal(t, domain.FailureExecution, got.Stages[1].FailureKind)
	require.NotNil(t, got.Stages[1].ErrorMessage)
	assert.Equal(t, msg, *got.Stages[1].ErrorMessage)
	assert.Equal(t, []string{"ext_orders"}, got.FailedStages())
}

func TestRunRepo_GetRunByRunID(t *testing.T) {
	repo := setupRunRepo(t)
	ctx := context.Background()

	run := newRun("sales_analytics", started)
	require.NoError(t, repo.CreateRun(ctx, run))

	got, err := repo.GetRun(ctx, "sales_analytics_20260504_060001")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Nil(t, got.FinishedAt)
	assert.Empty(t, got.Stages)
}

func TestRunRepo_NotFound(t *testing.T) {
	repo := setupRunRepo(t)
	ctx := context.Background()

	_, err := repo.GetRun(ctx, "missing")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	err = repo.FinishRun(ctx, newRun("p", started))
	assert.ErrorAs(t, err, &nf)

	err = repo.RecordStage(ctx, "missing", domain.StageResult{Stage: "a", Group: "g", Status: domain.StageStatusSuccess})
	assert.ErrorAs(t, err, &nf)
}

func TestRunRepo_DuplicateIDConflicts(t *testing.T) {
	repo := setupRunRepo(t)
	ctx := context.Background()

	run := newRun("p", started)
	require.NoError(t, repo.CreateRun(ctx, run))
	err := repo.CreateRun(ctx, run)
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestRunRepo_ListRuns(t *testing.T) {
	repo := setupRunRepo(t)
	ctx := context.Background()

	for i, p := range []string{"sales_analytics", "supplier_analytics", "sales_analytics"} {
		run := newRun(p, started.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.CreateRun(ctx, run))
		if i == 1 {
			run.Status = domain.RunStatusFailed
			require.NoError(t, repo.FinishRun(ctx, run))
		}
	}

	sales := "sales_analytics"
	failed := domain.RunStatusFailed

	tests := []struct {
		name   string
		filter domain.PipelineRunFilter
		want   []string
	}{
		{"all newest first", domain.PipelineRunFilter{}, []string{
			"sales_analytics_20260504_080001", "supplier_analytics_20260504_070001", "sales_analytics_20260504_060001",
		}},
		{"by pipeline", domain.PipelineRunFilter{Pipeline: &sales}, []string{
			"sales_analytics_20260504_080001", "sales_analytics_20260504_060001",
		}},
		{"by status", domain.PipelineRunFilter{Status: &failed}, []string{"supplier_analytics_20260504_070001"}},
		{"limit", domain.PipelineRunFilter{Limit: 1}, []string{"sales_analytics_20260504_080001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := repo.ListRuns(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, r := range runs {
				ids = append(ids, r.RunID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestRunRepo_ListRunsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT (.+) FROM pipeline_runs WHERE pipeline = \\? ORDER BY started_at DESC").
		WithArgs("sales_analytics", DefaultListLimit).
		WillReturnError(errors.New("disk I/O error"))

	name := "sales_analytics"
	_, err = NewRunRepo(db, nil).ListRuns(context.Background(), domain.PipelineRunFilter{Pipeline: &name})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs: disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepo_FinishRunNoRowsIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("UPDATE pipeline_runs").
		WithArgs(domain.RunStatusSuccess, int64(0), "[]", nil, nil, "r1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewRunRepo(db, nil).FinishRun(context.Background(), &domain.PipelineRun{ID: "r1", Status: domain.RunStatusSuccess})
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapDBError(t *testing.T) {
	assert.NoError(t, mapDBError(nil))

	var nf *domain.NotFoundError
	assert.ErrorAs(t, mapDBError(errors.New("FOREIGN KEY constraint failed")), &nf)

	var conflict *domain.ConflictError
	assert.ErrorAs(t, mapDBError(errors.New("UNIQUE constraint failed: pipeline_runs.id")), &conflict)

	other := errors.New("boom")
	assert.Equal(t, other, mapDBError(other))
}
