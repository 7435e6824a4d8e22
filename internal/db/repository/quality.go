package repository

import (
	"context"
	"database/sql"
	"fmt"

	"lakehouse/internal/domain"
)

// Compile-time check.
var _ domain.QualityResultRepository = (*QualityRepo)(nil)

// QualityRepo implements QualityResultRepository using SQLite.
type QualityRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewQualityRepo creates a QualityRepo.
func NewQualityRepo(write, read *sql.DB) *QualityRepo {
	if read == nil {
		read = write
	}
	return &QualityRepo{write: write, read: read}
}

// SaveResults stores every result of one quality pass in a single
// transaction.
func (r *QualityRepo) SaveResults(ctx context.Context, runID string, results []domain.QualityCheckResult) (err error) {
	if len(results) == 0 {
		return nil
	}
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO quality_results (run_id, check_type, check_name, value, status, checked_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for _, res := range results {
		if _, err = stmt.ExecContext(ctx, runID, res.CheckType, res.CheckName, res.Value, res.Status, formatTime(res.CheckedAt)); err != nil {
			return mapDBError(err)
		}
	}
	return tx.Commit()
}

// ListResults returns the results of runID in insertion order.
func (r *QualityRepo) ListResults(ctx context.Context, runID string) ([]domain.QualityCheckResult, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT check_type, check_name, value, status, checked_at
		FROM quality_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list quality results: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.QualityCheckResult
	for rows.Next() {
		var (
			res     domain.QualityCheckResult
			checked string
		)
		if err := rows.Scan(&res.CheckType, &res.CheckName, &res.Value, &res.Status, &checked); err != nil {
			return nil, err
		}
		if res.CheckedAt, err = parseTime(checked); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
