package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakehouse/internal/config"
	"lakehouse/internal/domain"
	"lakehouse/internal/service/pipeline"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DuckDBPath:         ":memory:",
		MetaDBPath:         filepath.Join(dir, "meta.sqlite"),
		ConfigDir:          dir,
		LakehouseEnv:       "dev",
		MaxParallelStages:  1,
		FreshnessThreshold: config.DefaultFreshnessThreshold,
		CORSAllowedOrigins: []string{"*"},
		RateLimitRPS:       100,
		RateLimitBurst:     100,
	}
}

func openTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := Open(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpen_WiresPipelines(t *testing.T) {
	a := openTestApp(t, testConfig(t))
	assert.Equal(t, []string{pipeline.SalesAnalytics, pipeline.SupplierAnalytics}, a.Service.Pipelines())
}

func TestRun_MissingSourceAbortsAndIsPersisted(t *testing.T) {
	a := openTestApp(t, testConfig(t))
	ctx := context.Background()

	run, err := a.Service.Run(ctx, pipeline.SalesAnalytics, "dev", domain.TriggerTypeManual)
	var crit *domain.CriticalStageFailedError
	require.ErrorAs(t, err, &crit)
	assert.ElementsMatch(t, []string{"ext_orders", "ext_lineitem"}, crit.Stages)
	assert.ElementsMatch(t, []string{"ref_order_details", "ref_customer_orders", "quality"}, run.NotRun)

	got, err := a.Service.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	assert.True(t, got.Aborted)
	require.Len(t, got.Stages, 9)
	for _, st := range got.Stages {
		if st.Group == pipeline.GroupProvisioning {
			assert.Equal(t, domain.StageStatusSuccess, st.Status, st.Stage)
			continue
		}
		assert.Equal(t, domain.StageStatusFailed, st.Status, st.Stage)
		require.NotNil(t, st.ErrorMessage)
		assert.Contains(t, *st.ErrorMessage, "does not exist")
	}

	runs, err := a.Service.ListRuns(ctx, domain.PipelineRunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRun_UnknownEnvironment(t *testing.T) {
	a := openTestApp(t, testConfig(t))
	_, err := a.Service.Run(context.Background(), pipeline.SalesAnalytics, "qa", domain.TriggerTypeManual)
	var inv *domain.InvalidEnvironmentError
	assert.ErrorAs(t, err, &inv)
}

func TestRouter(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWTSecret = "s3cret"
	a := openTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h, err := a.Router(ctx)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pipelines", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pipelines/sales_analytics/runs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCatalogDir(t *testing.T) {
	assert.Empty(t, catalogDir(":memory:"))
	assert.Empty(t, catalogDir(""))
	assert.Equal(t, "/var/lib/lake", catalogDir("/var/lib/lake/lakehouse.duckdb"))
	assert.Empty(t, duckDBPath(":memory:"))
}
