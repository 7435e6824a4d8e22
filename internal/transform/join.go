package transform

import "lakehouse/internal/domain"

// JoinKind selects join semantics.
type JoinKind int

const (
	// InnerJoin excludes left rows without a match.
	InnerJoin JoinKind = iota
	// LeftJoin keeps every left row; unmatched right columns are NULL.
	LeftJoin
)

// JoinSpec describes an equi-join. LeftKeys and RightKeys pair up by position.
// NULL keys never match, as in SQL.
type JoinSpec struct {
	Kind      JoinKind
	LeftKeys  []string
	RightKeys []string
}

// Join combines left and right. Output rows carry the union of both column
// sets; right values win on name clashes. Output order follows left order,
// then right order for multiple matches.
func Join(left, right domain.Rowset, spec JoinSpec) domain.Rowset {
	index := make(map[string][]domain.Row, len(right.Rows))
	for _, r := range right.Rows {
		k, ok := KeyOf(r, spec.RightKeys)
		if !ok {
			continue
		}
		index[k] = append(index[k], r)
	}

	cols := append([]string{}, left.Columns...)
	for _, c := range right.Columns {
		if !left.HasColumn(c) {
			cols = append(cols, c)
		}
	}

	out := domain.Rowset{Columns: cols, Rows: make([]domain.Row, 0, len(left.Rows))}
	for _, l := range left.Rows {
		var matches []domain.Row
		if k, ok := KeyOf(l, spec.LeftKeys); ok {
			matches = index[k]
		}
		if len(matches) == 0 {
			if spec.Kind == LeftJoin {
				row := l.Clone()
				for _, c := range right.Columns {
					if _, exists := row[c]; !exists {
						row[c] = nil
					}
				}
				out.Rows = append(out.Rows, row)
			}
			continue
		}
		for _, m := range matches {
			row := l.Clone()
			for c, v := range m {
				row[c] = v
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Rename returns rows with columns renamed per mapping (old → new). Columns
// not in the mapping are dropped; the output column order follows cols.
func Rename(rs domain.Rowset, cols []string, mapping map[string]string) domain.Rowset {
	out := domain.Rowset{Columns: make([]string, 0, len(cols)), Rows: make([]domain.Row, len(rs.Rows))}
	for _, c := range cols {
		out.Columns = append(out.Columns, mapping[c])
	}
	for i, r := range rs.Rows {
		row := make(domain.Row, len(cols))
		for _, c := range cols {
			row[mapping[c]] = r[c]
		}
		out.Rows[i] = row
	}
	return out
}
