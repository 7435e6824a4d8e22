package db

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		contains []string
		excludes []string
	}{
		{
			name:     "write mode takes an immediate lock",
			mode:     ModeWrite,
			contains: []string{"_journal_mode=WAL", "_busy_timeout=5000", "_synchronous=NORMAL", "_foreign_keys=on", "_txlock=immediate"},
		},
		{
			name:     "read mode is deferred",
			mode:     ModeRead,
			contains: []string{"_journal_mode=WAL", "_busy_timeout=5000", "_foreign_keys=on"},
			excludes: []string{"_txlock"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := buildDSN("/tmp/meta.sqlite", tt.mode)
			assert.True(t, len(dsn) > len("/tmp/meta.sqlite?"))
			for _, s := range tt.contains {
				assert.Contains(t, dsn, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, dsn, s)
			}
		})
	}
}

func TestOpenSQLite_Modes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.sqlite")

	w, err := OpenSQLite(path, ModeWrite, 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	assert.Equal(t, 1, w.Stats().MaxOpenConnections)

	r, err := OpenSQLite(path, ModeRead, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	assert.Equal(t, 4, r.Stats().MaxOpenConnections)

	var fk int
	require.NoError(t, w.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "x.sqlite"), Mode("rw"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/meta.sqlite", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}

func TestOpenMetastore_MigratesAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.sqlite")

	m, err := OpenMetastore(path)
	require.NoError(t, err)
	v, err := SchemaVersion(m.Write)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	for _, table := range []string{"pipeline_runs", "stage_results", "quality_results"} {
		var n int
		require.NoError(t, m.Read.QueryRow("SELECT count(*) FROM "+table).Scan(&n), table)
		assert.Zero(t, n)
	}
	require.NoError(t, m.Close())

	m, err = OpenMetastore(path)
	require.NoError(t, err)
	require.NoError(t, m.Close())
}

func TestMetastore_ConcurrentReadsDuringWrites(t *testing.T) {
	m := OpenTestMetastore(t)
	_, err := m.Write.Exec(`INSERT INTO quality_results (run_id, check_type, check_name, value, status, checked_at)
		VALUES ('r', 'Row Count', 'bronze.orders', 1, 'PASS', '2026-05-04T06:00:01.000000000Z')`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if idx%2 == 0 {
				_, errs[idx] = m.Write.Exec(`UPDATE quality_results SET value = value + 1 WHERE run_id = 'r'`)
				return
			}
			var n int
			errs[idx] = m.Read.QueryRow("SELECT count(*) FROM quality_results").Scan(&n)
		}(i)
	}
	wg.Wait()

	for i, e := range errs {
		assert.NoError(t, e, "worker %d", i)
	}
	var v float64
	require.NoError(t, m.Read.QueryRow("SELECT value FROM quality_results WHERE run_id = 'r'").Scan(&v))
	assert.Equal(t, 9.0, v)
}
