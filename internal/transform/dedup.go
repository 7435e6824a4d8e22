package transform

import (
	"time"

	"lakehouse/internal/domain"
)

// dedupCandidate is the current survivor for one natural key.
type dedupCandidate struct {
	row   domain.Row
	at    time.Time
	fp    uint64
	canon string
	pos   int
}

// businessColumns drops lineage columns so the tiebreak is stable across
// runs that stamp different batch ids.
func businessColumns(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		switch c {
		case domain.ColIngestedAt, domain.ColSourceSystem, domain.ColBatchID, domain.ColRefinedAt:
			continue
		}
		out = append(out, c)
	}
	return out
}

// outranks reports whether c should replace cur as the survivor for a key.
func (c *dedupCandidate) outranks(cur *dedupCandidate, cols []string) bool {
	if !c.at.Equal(cur.at) {
		return c.at.After(cur.at)
	}
	if c.fp != cur.fp {
		return c.fp > cur.fp
	}
	// Fingerprint collision or identical content; fall back to the full encoding.
	if c.canon == "" {
		c.canon = Canonical(c.row, cols)
	}
	if cur.canon == "" {
		cur.canon = Canonical(cur.row, cols)
	}
	if c.canon != cur.canon {
		return c.canon > cur.canon
	}
	return c.pos < cur.pos
}

// Dedup keeps one row per natural key: the row with the greatest orderCol
// timestamp ("latest wins"). Rows sharing the maximum timestamp are ranked by
// content fingerprint (descending), then canonical encoding (descending), then
// earliest input position, so the survivor does not depend on source scan
// order. Lineage columns are excluded from the fingerprint. Rows with a NULL
// key column are dropped.
//
// Survivors are emitted in the input position of the first row seen for each
// key. The second return value is the number of rows removed.
func Dedup(rs domain.Rowset, key []string, orderCol string) (domain.Rowset, int) {
	cols := businessColumns(rs.Columns)
	best := make(map[string]*dedupCandidate, len(rs.Rows))
	order := make([]string, 0, len(rs.Rows))
	for i, r := range rs.Rows {
		k, ok := KeyOf(r, key)
		if !ok {
			continue
		}
		at, _ := r.Time(orderCol)
		c := &dedupCandidate{row: r, at: at, fp: Fingerprint(r, cols), pos: i}
		cur, seen := best[k]
		if !seen {
			best[k] = c
			order = append(order, k)
			continue
		}
		if c.outranks(cur, cols) {
			best[k] = c
		}
	}

	out := domain.Rowset{Columns: rs.Columns, Rows: make([]domain.Row, 0, len(order))}
	for _, k := range order {
		out.Rows = append(out.Rows, best[k].row)
	}
	return out, len(rs.Rows) - len(out.Rows)
}
