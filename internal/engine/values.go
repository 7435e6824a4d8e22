package engine

import (
	"database/sql"
	"fmt"
	"time"

	"lakehouse/internal/domain"
)

// normalizeValue maps driver values onto the row value set
// (nil, int64, float64, string, bool, time.Time).
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, int64, float64, string, bool, time.Time:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint32:
		return int64(x)
	case uint16:
		return int64(x)
	case uint8:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case interface{ Float64() float64 }:
		return x.Float64()
	default:
		return fmt.Sprint(x)
	}
}

// scanRowset reads every row into a Rowset, keeping rows accepted by where.
func scanRowset(rows *sql.Rows, where domain.Predicate) (domain.Rowset, error) {
	cols, err := rows.Columns()
	if err != nil {
		return domain.Rowset{}, fmt.Errorf("read columns: %w", err)
	}
	out := domain.Rowset{Columns: cols}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return domain.Rowset{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(domain.Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(vals[i])
		}
		if where != nil && !where(row) {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return domain.Rowset{}, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
