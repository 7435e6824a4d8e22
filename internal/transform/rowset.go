// Package transform implements the pure rowset transforms shared by the
// extract and refine engines: capture, clean, dedup, join, and derived columns.
package transform

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"lakehouse/internal/domain"
)

const keySep = "\x1f"

// Lineage is the stamp attached to every row produced by one invocation.
type Lineage struct {
	At           time.Time
	SourceSystem string
	BatchID      string
}

// Capture projects cols from src and attaches bronze lineage columns.
// Columns absent from a source row are projected as NULL.
func Capture(src domain.Rowset, cols []string, stamp Lineage) domain.Rowset {
	out := domain.Rowset{
		Columns: append(append([]string{}, cols...), domain.ColIngestedAt, domain.ColSourceSystem, domain.ColBatchID),
		Rows:    make([]domain.Row, 0, len(src.Rows)),
	}
	for _, r := range src.Rows {
		row := make(domain.Row, len(cols)+3)
		for _, c := range cols {
			row[c] = r[c]
		}
		row[domain.ColIngestedAt] = stamp.At
		row[domain.ColSourceSystem] = stamp.SourceSystem
		row[domain.ColBatchID] = stamp.BatchID
		out.Rows = append(out.Rows, row)
	}
	return out
}

// StampRefined attaches silver lineage columns to every row in place.
func StampRefined(rs domain.Rowset, stamp Lineage) domain.Rowset {
	for _, r := range rs.Rows {
		r[domain.ColRefinedAt] = stamp.At
		r[domain.ColBatchID] = stamp.BatchID
	}
	if !rs.HasColumn(domain.ColRefinedAt) {
		rs.Columns = append(rs.Columns, domain.ColRefinedAt)
	}
	if !rs.HasColumn(domain.ColBatchID) {
		rs.Columns = append(rs.Columns, domain.ColBatchID)
	}
	return rs
}

// Project returns a rowset restricted to cols. Missing columns become NULL.
func Project(rs domain.Rowset, cols []string) domain.Rowset {
	out := domain.Rowset{Columns: append([]string{}, cols...), Rows: make([]domain.Row, len(rs.Rows))}
	for i, r := range rs.Rows {
		row := make(domain.Row, len(cols))
		for _, c := range cols {
			row[c] = r[c]
		}
		out.Rows[i] = row
	}
	return out
}

// KeyOf encodes the values of cols into a single comparable key.
// ok is false when any key column is NULL.
func KeyOf(r domain.Row, cols []string) (string, bool) {
	var b strings.Builder
	for i, c := range cols {
		v := r[c]
		if v == nil {
			return "", false
		}
		if i > 0 {
			b.WriteString(keySep)
		}
		writeValue(&b, v)
	}
	return b.String(), true
}

// Canonical encodes every column of the row, in the given column order.
func Canonical(r domain.Row, cols []string) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteString(keySep)
		}
		writeValue(&b, r[c])
	}
	return b.String()
}

// Fingerprint hashes the canonical encoding of the row.
func Fingerprint(r domain.Row, cols []string) uint64 {
	return xxhash.Sum64String(Canonical(r, cols))
}

func writeValue(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("n")
	case int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case string:
		b.WriteString("s:")
		b.WriteString(x)
	case bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(x))
	case time.Time:
		b.WriteString("t:")
		b.WriteString(x.UTC().Format(time.RFC3339Nano))
	default:
		b.WriteString("?")
	}
}
