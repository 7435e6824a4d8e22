// Package quality runs declared data quality checks across the lakehouse
// layers and reports their results. It never halts a run by itself; callers
// apply a Policy to decide what counts as a failure.
package quality

import (
	"math"
	"time"

	"lakehouse/internal/domain"
	"lakehouse/internal/transform"
)

// snapshot serves dataset reads to checks; each dataset is read once per run.
type snapshot interface {
	rows(ds domain.Dataset) (domain.Rowset, error)
}

// Check is one declared quality check.
type Check struct {
	Type     string
	Name     string
	Datasets []domain.Dataset
	eval     func(s snapshot, now time.Time, threshold time.Duration) (float64, string, error)
}

func passIfZero(n int) string {
	if n == 0 {
		return domain.CheckStatusPass
	}
	return domain.CheckStatusFail
}

func label(ds domain.Dataset) string {
	return string(ds.Layer) + "." + ds.Name
}

// RowCount passes when the dataset is non-empty. The value is the row count.
func RowCount(ds domain.Dataset) Check {
	return Check{
		Type:     domain.CheckTypeRowCount,
		Name:     label(ds),
		Datasets: []domain.Dataset{ds},
		eval: func(s snapshot, _ time.Time, _ time.Duration) (float64, string, error) {
			rs, err := s.rows(ds)
			if err != nil {
				return 0, "", err
			}
			if rs.Len() > 0 {
				return float64(rs.Len()), domain.CheckStatusPass, nil
			}
			return 0, domain.CheckStatusFail, nil
		},
	}
}

// NotNull passes when column has no NULLs. The value is the NULL count.
func NotNull(ds domain.Dataset, column string) Check {
	return Check{
		Type:     domain.CheckTypeNull,
		Name:     ds.Name + "." + column,
		Datasets: []domain.Dataset{ds},
		eval: func(s snapshot, _ time.Time, _ time.Duration) (float64, string, error) {
			rs, err := s.rows(ds)
			if err != nil {
				return 0, "", err
			}
			n := 0
			for _, r := range rs.Rows {
				if r.IsNull(column) {
					n++
				}
			}
			return float64(n), passIfZero(n), nil
		},
	}
}

// Referential passes when every child row's key has a matching parent key.
// A child row with a NULL key counts as an orphan. The value is the orphan count.
func Referential(child domain.Dataset, childKey []string, parent domain.Dataset, parentKey []string) Check {
	return Check{
		Type:     domain.CheckTypeReferential,
		Name:     child.Name + " -> " + parent.Name,
		Datasets: []domain.Dataset{child, parent},
		eval: func(s snapshot, _ time.Time, _ time.Duration) (float64, string, error) {
			c, err := s.rows(child)
			if err != nil {
				return 0, "", err
			}
			p, err := s.rows(parent)
			if err != nil {
				return 0, "", err
			}
			keys := make(map[string]struct{}, p.Len())
			for _, r := range p.Rows {
				if k, ok := transform.KeyOf(r, parentKey); ok {
					keys[k] = struct{}{}
				}
			}
			orphans := 0
			for _, r := range c.Rows {
				k, ok := transform.KeyOf(r, childKey)
				if !ok {
					orphans++
					continue
				}
				if _, found := keys[k]; !found {
					orphans++
				}
			}
			return float64(orphans), passIfZero(orphans), nil
		},
	}
}

// BusinessRule passes when no row matches violation. The value is the
// violation count.
func BusinessRule(name string, ds domain.Dataset, violation domain.Predicate) Check {
	return Check{
		Type:     domain.CheckTypeBusinessRule,
		Name:     name,
		Datasets: []domain.Dataset{ds},
		eval: func(s snapshot, _ time.Time, _ time.Duration) (float64, string, error) {
			rs, err := s.rows(ds)
			if err != nil {
				return 0, "", err
			}
			n := 0
			for _, r := range rs.Rows {
				if violation(r) {
					n++
				}
			}
			return float64(n), passIfZero(n), nil
		},
	}
}

// Freshness passes when the newest lineage timestamp of the dataset is no
// older than the threshold. The value is the age in hours, rounded to one
// decimal; an empty dataset is STALE with value -1.
func Freshness(ds domain.Dataset) Check {
	col := ds.LineageColumn()
	return Check{
		Type:     domain.CheckTypeFreshness,
		Name:     label(ds),
		Datasets: []domain.Dataset{ds},
		eval: func(s snapshot, now time.Time, threshold time.Duration) (float64, string, error) {
			rs, err := s.rows(ds)
			if err != nil {
				return 0, "", err
			}
			var latest time.Time
			for _, r := range rs.Rows {
				if t, ok := r.Time(col); ok && t.After(latest) {
					latest = t
				}
			}
			if latest.IsZero() {
				return -1, domain.CheckStatusStale, nil
			}
			hours := math.Round(now.Sub(latest).Hours()*10) / 10
			if hours <= threshold.Hours() {
				return hours, domain.CheckStatusPass, nil
			}
			return hours, domain.CheckStatusStale, nil
		},
	}
}

// Range returns a violation predicate matching rows whose column lies
// outside [lo, hi]. NULLs are not violations.
func Range(column string, lo, hi float64) domain.Predicate {
	return func(r domain.Row) bool {
		v, ok := r.Float(column)
		return ok && (v < lo || v > hi)
	}
}

// Below returns a violation predicate matching rows whose column is < min.
func Below(column string, min float64) domain.Predicate {
	return func(r domain.Row) bool {
		v, ok := r.Float(column)
		return ok && v < min
	}
}

// AtMost returns a violation predicate matching rows whose column is <= max.
func AtMost(column string, max float64) domain.Predicate {
	return func(r domain.Row) bool {
		v, ok := r.Float(column)
		return ok && v <= max
	}
}

// IsNull returns a violation predicate matching rows whose column is NULL.
func IsNull(column string) domain.Predicate {
	return func(r domain.Row) bool { return r.IsNull(column) }
}
