// Package repository implements the run-history ports over the SQLite
// metastore.
package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lakehouse/internal/domain"
)

// timeLayout keeps lexical order equal to chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &domain.ConflictError{Message: "resource already exists"}
	}
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return &domain.NotFoundError{Message: "referenced run not found"}
	}
	return err
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullStrFromPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptrFromNullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return string(b), nil
}
