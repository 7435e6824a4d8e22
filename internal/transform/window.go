package transform

import (
	"sort"
	"strings"
	"time"

	"lakehouse/internal/domain"
)

// SortKey orders rows by one column. NULLs sort last in either direction.
type SortKey struct {
	Column string
	Desc   bool
}

// Asc and Desc build sort keys.
func Asc(col string) SortKey { return SortKey{Column: col} }
func Desc(col string) SortKey { return SortKey{Column: col, Desc: true} }

// CompareRows compares a and b over keys, returning -1, 0, or 1.
func CompareRows(a, b domain.Row, keys []SortKey) int {
	for _, k := range keys {
		av, bv := a[k.Column], b[k.Column]
		switch {
		case av == nil && bv == nil:
			continue
		case av == nil:
			return 1
		case bv == nil:
			return -1
		}
		c := compareValues(av, bv)
		if c == 0 {
			continue
		}
		if k.Desc {
			return -c
		}
		return c
	}
	return 0
}

func compareValues(a, b any) int {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return 0
}

// SortRows sorts rows in place by keys; equal rows keep their relative order.
func SortRows(rows []domain.Row, keys []SortKey) {
	sort.SliceStable(rows, func(i, j int) bool { return CompareRows(rows[i], rows[j], keys) < 0 })
}

// Ntile assigns out = bucket number 1..n over the whole rowset ordered by keys.
// As in SQL, the first len%n buckets receive one extra row. Callers include a
// unique column as the final key so ties resolve deterministically.
func Ntile(rows []domain.Row, n int, keys []SortKey, out string) {
	if n <= 0 || len(rows) == 0 {
		return
	}
	sorted := append([]domain.Row{}, rows...)
	SortRows(sorted, keys)

	size, rem := len(sorted)/n, len(sorted)%n
	idx := 0
	for bucket := 1; bucket <= n && idx < len(sorted); bucket++ {
		count := size
		if bucket <= rem {
			count++
		}
		for i := 0; i < count; i++ {
			sorted[idx][out] = int64(bucket)
			idx++
		}
	}
}

// DenseRank assigns out = dense rank within each partition ordered by keys.
// Rows with equal key values share a rank; ranks have no gaps.
func DenseRank(rows []domain.Row, partition []string, keys []SortKey, out string) {
	for _, group := range partitionRows(rows, partition) {
		SortRows(group, keys)
		rank := int64(0)
		for i, r := range group {
			if i == 0 || CompareRows(group[i-1], r, keys) != 0 {
				rank++
			}
			r[out] = rank
		}
	}
}

// PartitionAvg assigns out = average of col over each partition, ignoring NULLs.
// A partition with no non-NULL values gets NULL.
func PartitionAvg(rows []domain.Row, partition []string, col, out string) {
	for _, group := range partitionRows(rows, partition) {
		var sum float64
		var n int
		for _, r := range group {
			if v, ok := r.Float(col); ok {
				sum += v
				n++
			}
		}
		var avg any
		if n > 0 {
			avg = sum / float64(n)
		}
		for _, r := range group {
			r[out] = avg
		}
	}
}

// partitionRows groups rows by the partition columns. NULL partition values
// form their own group, as in SQL window partitions.
func partitionRows(rows []domain.Row, partition []string) [][]domain.Row {
	index := make(map[string]int)
	var groups [][]domain.Row
	for _, r := range rows {
		k := Canonical(r, partition)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}
