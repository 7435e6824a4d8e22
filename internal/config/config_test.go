package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakehouse/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DUCKDB_PATH", "META_DB_PATH", "CONFIG_DIR", "LISTEN_ADDR", "LOG_LEVEL", "ENV",
		"LAKEHOUSE_ENV", "MAX_PARALLEL_STAGES", "STAGE_TIMEOUT", "FRESHNESS_THRESHOLD",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS",
		"JWT_SECRET", "OIDC_ISSUER_URL", "OIDC_AUDIENCE", "QUALITY_FAIL_ON", "QUALITY_CRITICAL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "lakehouse.duckdb", cfg.DuckDBPath)
	assert.Equal(t, "lakehouse_meta.sqlite", cfg.MetaDBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "dev", cfg.LakehouseEnv)
	assert.Equal(t, 1, cfg.MaxParallelStages)
	assert.Zero(t, cfg.StageTimeout)
	assert.Equal(t, 25*time.Hour, cfg.FreshnessThreshold)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.InDelta(t, 100.0, cfg.RateLimitRPS, 0)
	assert.Equal(t, 200, cfg.RateLimitBurst)
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("DUCKDB_PATH", "/data/lake.duckdb")
	t.Setenv("META_DB_PATH", "/tmp/test.sqlite")
	t.Setenv("LAKEHOUSE_ENV", "prod")
	t.Setenv("MAX_PARALLEL_STAGES", "4")
	t.Setenv("STAGE_TIMEOUT", "30m")
	t.Setenv("FRESHNESS_THRESHOLD", "48h")
	t.Setenv("PIPELINE_SCHEDULES", "sales_analytics=0 6 * * *; supplier_analytics=30 6 * * *")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/data/lake.duckdb", cfg.DuckDBPath)
	assert.Equal(t, "/tmp/test.sqlite", cfg.MetaDBPath)
	assert.Equal(t, "prod", cfg.LakehouseEnv)
	assert.Equal(t, 4, cfg.MaxParallelStages)
	assert.Equal(t, 30*time.Minute, cfg.StageTimeout)
	assert.Equal(t, 48*time.Hour, cfg.FreshnessThreshold)
	assert.Equal(t, map[string]string{
		"sales_analytics":    "0 6 * * *",
		"supplier_analytics": "30 6 * * *",
	}, cfg.Schedules)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "parallel_zero", key: "MAX_PARALLEL_STAGES", val: "0"},
		{name: "parallel_text", key: "MAX_PARALLEL_STAGES", val: "many"},
		{name: "timeout", key: "STAGE_TIMEOUT", val: "soon"},
		{name: "freshness_negative", key: "FRESHNESS_THRESHOLD", val: "-1h"},
		{name: "schedule", key: "PIPELINE_SCHEDULES", val: "sales_analytics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadFromEnv_ProductionRejectsWildcardCORS(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS")

	t.Setenv("CORS_ALLOWED_ORIGINS", "https://lake.example")
	_, err = LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.True(t, cfg.IsProduction())
}

func TestLoadFromEnv_QualityPolicy(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUALITY_FAIL_ON", "fail, stale")
	t.Setenv("QUALITY_CRITICAL", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{domain.CheckStatusFail, domain.CheckStatusStale}, cfg.QualityFailOn)
	assert.True(t, cfg.QualityCritical)

	t.Setenv("QUALITY_FAIL_ON", "PASS")
	_, err = LoadFromEnv()
	assert.Error(t, err)

	t.Setenv("QUALITY_FAIL_ON", "")
	t.Setenv("QUALITY_CRITICAL", "maybe")
	_, err = LoadFromEnv()
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]string{"debug": "DEBUG", "warning": "WARN", "error": "ERROR", "": "INFO", "bogus": "INFO"} {
		cfg := &Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel().String(), in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nLAKEHOUSE_TEST_A=\"quoted\"\nLAKEHOUSE_TEST_B='single'\nLAKEHOUSE_TEST_C=plain\nnot a pair\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("LAKEHOUSE_TEST_A", "")
	t.Setenv("LAKEHOUSE_TEST_B", "")
	t.Setenv("LAKEHOUSE_TEST_C", "preset")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "quoted", os.Getenv("LAKEHOUSE_TEST_A"))
	assert.Equal(t, "single", os.Getenv("LAKEHOUSE_TEST_B"))
	assert.Equal(t, "preset", os.Getenv("LAKEHOUSE_TEST_C"), "environment takes precedence")

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestEnvironments_Resolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prod.yaml"),
		[]byte("catalog: main_lakehouse\nsource_catalog: landing\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stage.yaml"),
		[]byte("catalog: \"stage-lake; DROP\"\n"), 0o600))
	envs := NewEnvironments(dir)

	t.Run("defaults_without_file", func(t *testing.T) {
		rc, err := envs.Resolve("dev")
		require.NoError(t, err)
		assert.Equal(t, "dev_lakehouse", rc.Catalog)
		assert.Equal(t, "bronze", rc.ExtractSchema)
		assert.Equal(t, "silver", rc.RefinedSchema)
		assert.Equal(t, "gold", rc.ViewsSchema)
		assert.Equal(t, "samples", rc.SourceCatalog)
		assert.Equal(t, "tpch", rc.SourceSchema)
	})

	t.Run("file_overrides_merge_with_defaults", func(t *testing.T) {
		rc, err := envs.Resolve("prod")
		require.NoError(t, err)
		assert.Equal(t, "main_lakehouse", rc.Catalog)
		assert.Equal(t, "landing", rc.SourceCatalog)
		assert.Equal(t, "bronze", rc.ExtractSchema)
	})

	t.Run("unknown_environment", func(t *testing.T) {
		_, err := envs.Resolve("qa")
		var target *domain.InvalidEnvironmentError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "qa", target.Env)
		assert.Equal(t, ValidEnvironments, target.Valid)
	})

	t.Run("identifier_not_on_allow_list", func(t *testing.T) {
		_, err := envs.Resolve("stage")
		var target *domain.ValidationError
		assert.ErrorAs(t, err, &target)
	})
}

func TestEnvironments_NewRunContext(t *testing.T) {
	start := time.Date(2026, 5, 4, 6, 0, 1, 0, time.UTC)
	rc, err := NewEnvironments("").NewRunContext("dev", "sales_analytics", start)
	require.NoError(t, err)
	assert.Equal(t, "sales_analytics_20260504_060001", rc.RunID)
	assert.Equal(t, start, rc.StartedAt)
}
