package transform

import (
	"fmt"
	"strings"

	"lakehouse/internal/domain"
)

// Rule is a named keep-predicate. Rows for which Keep returns false are dropped.
type Rule struct {
	Name string
	Keep domain.Predicate
}

// CleanStats reports how many rows each rule dropped. A row is attributed to
// the first rule it fails.
type CleanStats struct {
	Input   int
	Dropped int
	ByRule  map[string]int
}

// Clean drops every row failing any rule.
func Clean(rs domain.Rowset, rules ...Rule) (domain.Rowset, CleanStats) {
	stats := CleanStats{Input: len(rs.Rows), ByRule: make(map[string]int, len(rules))}
	out := domain.Rowset{Columns: rs.Columns, Rows: make([]domain.Row, 0, len(rs.Rows))}
rows:
	for _, r := range rs.Rows {
		for _, rule := range rules {
			if !rule.Keep(r) {
				stats.Dropped++
				stats.ByRule[rule.Name]++
				continue rows
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out, stats
}

// NotNull keeps rows where every column is non-NULL.
func NotNull(cols ...string) Rule {
	return Rule{
		Name: strings.Join(cols, ",") + " not null",
		Keep: func(r domain.Row) bool {
			for _, c := range cols {
				if r.IsNull(c) {
					return false
				}
			}
			return true
		},
	}
}

// Positive keeps rows where col is a number greater than zero.
func Positive(col string) Rule {
	return Rule{
		Name: col + " > 0",
		Keep: func(r domain.Row) bool {
			v, ok := r.Float(col)
			return ok && v > 0
		},
	}
}

// NonNegative keeps rows where col is a number greater than or equal to zero.
func NonNegative(col string) Rule {
	return Rule{
		Name: col + " >= 0",
		Keep: func(r domain.Row) bool {
			v, ok := r.Float(col)
			return ok && v >= 0
		},
	}
}

// Between keeps rows where col is a number within [lo, hi].
func Between(col string, lo, hi float64) Rule {
	return Rule{
		Name: fmt.Sprintf("%s in [%g,%g]", col, lo, hi),
		Keep: func(r domain.Row) bool {
			v, ok := r.Float(col)
			return ok && v >= lo && v <= hi
		},
	}
}
