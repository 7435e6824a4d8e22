package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakehouse/internal/config"
	"lakehouse/internal/domain"
	"lakehouse/internal/testutil"
)

func newTestService(t *testing.T, reg Registry, repo *testutil.MockRunRepo, results *testutil.MockQualityRepo) *Service {
	t.Helper()
	var runs domain.PipelineRunRepository
	if repo != nil {
		runs = repo
	}
	var qr domain.QualityResultRepository
	if results != nil {
		qr = results
	}
	svc := NewService(reg, newTestOrchestrator(runs, 1), config.NewEnvironments(t.TempDir()), runs, qr, discardLogger())
	svc.SetClock(func() time.Time { return runStart })
	return svc
}

func TestService_RunResolvesEnvironment(t *testing.T) {
	var got domain.RunContext
	reg := Registry{"sales_analytics": {Name: "sales_analytics", Groups: []Group{{Name: "g", Stages: []Stage{{
		Name: "capture", Work: fakeWork{fn: func(_ context.Context, rc domain.RunContext) (map[string]int64, error) {
			got = rc
			return nil, nil
		}},
	}}}}}}
	svc := newTestService(t, reg, &testutil.MockRunRepo{}, nil)

	run, err := svc.Run(context.Background(), "sales_analytics", "stage", domain.TriggerTypeManual)
	require.NoError(t, err)
	assert.Equal(t, "sales_analytics_20260504_060001", run.RunID)
	assert.Equal(t, "stage", run.Env)
	assert.Equal(t, "stage_lakehouse", got.Catalog)
	assert.Equal(t, "bronze", got.ExtractSchema)
	assert.Equal(t, runStart, got.StartedAt)

	_, busy := svc.Active("sales_analytics")
	assert.False(t, busy)
}

func TestService_RunErrors(t *testing.T) {
	reg := Registry{"p": {Name: "p", Groups: []Group{{Name: "g", Stages: []Stage{stage("a")}}}}}
	svc := newTestService(t, reg, nil, nil)

	_, err := svc.Run(context.Background(), "missing", "dev", domain.TriggerTypeManual)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = svc.Run(context.Background(), "p", "qa", domain.TriggerTypeManual)
	var inv *domain.InvalidEnvironmentError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "qa", inv.Env)
}

func TestService_ConcurrentRunOfSamePipelineConflicts(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	reg := Registry{"p": {Name: "p", Groups: []Group{{Name: "g", Stages: []Stage{{
		Name: "block", Work: fakeWork{fn: func(context.Context, domain.RunContext) (map[string]int64, error) {
			close(started)
			<-release
			return nil, nil
		}},
	}}}}}}
	repo := &testutil.MockRunRepo{}
	svc := newTestService(t, reg, repo, nil)

	first, err := svc.Start(context.Background(), "p", "dev", domain.TriggerTypeManual)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, first.Status)
	<-started

	_, err = svc.Run(context.Background(), "p", "dev", domain.TriggerTypeManual)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	id, busy := svc.Active("p")
	assert.True(t, busy)
	assert.Equal(t, first.RunID, id)

	close(release)
	svc.Wait()
	_, busy = svc.Active("p")
	assert.False(t, busy)

	got, err := svc.GetRun(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, got.Status)
}

func TestService_StartRecordsRunBeforeReturning(t *testing.T) {
	reg := Registry{"p": {Name: "p", Groups: []Group{{Name: "g", Stages: []Stage{stage("a")}}}}}
	repo := &testutil.MockRunRepo{}
	svc := newTestService(t, reg, repo, nil)

	run, err := svc.Start(context.Background(), "p", "dev", domain.TriggerTypeManual)
	require.NoError(t, err)
	require.Len(t, repo.Created, 1)
	assert.Equal(t, run.ID, repo.Created[0].ID)
	svc.Wait()
	assert.Equal(t, 1, repo.FinishedCount())
}

func TestService_ListRunsValidatesPipeline(t *testing.T) {
	reg := Registry{"p": {Name: "p"}}
	repo := &testutil.MockRunRepo{
		ListRunsFn: func(_ context.Context, f domain.PipelineRunFilter) ([]domain.PipelineRun, error) {
			return []domain.PipelineRun{{RunID: "p_1", Pipeline: *f.Pipeline}}, nil
		},
	}
	svc := newTestService(t, reg, repo, nil)

	name := "p"
	runs, err := svc.ListRuns(context.Background(), domain.PipelineRunFilter{Pipeline: &name})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	unknown := "nope"
	_, err = svc.ListRuns(context.Background(), domain.PipelineRunFilter{Pipeline: &unknown})
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestService_QualityResults(t *testing.T) {
	repo := &testutil.MockRunRepo{
		GetRunFn: func(_ context.Context, id string) (*domain.PipelineRun, error) {
			if id != "abc" {
				return nil, domain.ErrNotFound("run %q not found", id)
			}
			return &domain.PipelineRun{ID: "abc", RunID: "sales_analytics_20260504_060001"}, nil
		},
	}
	results := &testutil.MockQualityRepo{}
	require.NoError(t, results.SaveResults(context.Background(), "sales_analytics_20260504_060001",
		[]domain.QualityCheckResult{{CheckType: domain.CheckTypeRowCount, CheckName: "bronze.orders", Status: domain.CheckStatusPass}}))
	svc := newTestService(t, Registry{}, repo, results)

	got, err := svc.QualityResults(context.Background(), "abc")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.QualityResults(context.Background(), "zzz")
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestWriteSummary(t *testing.T) {
	finished := runStart.Add(90 * time.Second)
	msg := "source relation orders unreadable"
	run := &domain.PipelineRun{
		RunID: "sales_analytics_20260504_060001", Pipeline: "sales_analytics", Env: "dev",
		StartedAt: runStart, FinishedAt: &finished,
		Stages: []domain.StageResult{
			{Stage: "schema_bronze", Group: "provisioning", Status: domain.StageStatusSuccess, Elapsed: 1500 * time.Millisecond},
			{Stage: "ext_orders", Group: "extract", Status: domain.StageStatusFailed, FailureKind: domain.FailureExecution, ErrorMessage: &msg},
			{Stage: "ext_lineitem", Group: "extract", Status: domain.StageStatusFailed, FailureKind: domain.FailureTimeout},
		},
		NotRun: []string{"ref_order_details"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, run))
	out := buf.String()
	assert.Contains(t, out, "PIPELINE SUMMARY: sales_analytics")
	assert.Contains(t, out, "Duration: 90.00s")
	assert.Contains(t, out, "schema_bronze")
	assert.Contains(t, out, "1.50s")
	assert.Contains(t, out, "TIMEOUT")
	assert.Contains(t, out, "NOT RUN")
	assert.Contains(t, out, "Result: FAILED (2 failures)")

	assert.Equal(t, "SUCCESS", ResultLine(&domain.PipelineRun{}))
}
