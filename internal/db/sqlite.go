// Package db opens the SQLite metastore that holds pipeline run history and
// applies its migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver
)

// Mode selects the pool shape of a metastore connection.
type Mode string

// Pool modes. A single writer avoids SQLITE_BUSY under concurrent runs;
// readers share a small pool.
const (
	ModeWrite Mode = "write"
	ModeRead  Mode = "read"
)

// SQLite DSN parameters for production hardening.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
	defaultReadConns   = 4
)

// OpenSQLite opens a *sql.DB pool for the given SQLite file path.
//
// ModeWrite uses one connection and immediate transactions; ModeRead uses
// maxOpen connections (0 selects 4). Both set WAL journaling,
// busy_timeout=5000ms, synchronous=NORMAL, and foreign keys.
func OpenSQLite(path string, mode Mode, maxOpen int) (*sql.DB, error) {
	if mode != ModeRead && mode != ModeWrite {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be %q or %q", mode, ModeRead, ModeWrite)
	}

	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	if mode == ModeWrite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if maxOpen <= 0 {
			maxOpen = defaultReadConns
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}
	return db, nil
}

// Metastore is the write and read pool pair over one SQLite file.
type Metastore struct {
	Write *sql.DB
	Read  *sql.DB
}

// OpenMetastore opens both pools for path and applies pending migrations
// through the write pool.
func OpenMetastore(path string) (*Metastore, error) {
	w, err := OpenSQLite(path, ModeWrite, 0)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(w); err != nil {
		_ = w.Close()
		return nil, err
	}
	r, err := OpenSQLite(path, ModeRead, 0)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	return &Metastore{Write: w, Read: r}, nil
}

// Close closes both pools.
func (m *Metastore) Close() error {
	rerr := m.Read.Close()
	if err := m.Write.Close(); err != nil {
		return err
	}
	return rerr
}

func buildDSN(path string, mode Mode) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")
	if mode == ModeWrite {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}
