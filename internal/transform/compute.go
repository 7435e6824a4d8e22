package transform

import (
	"math"
	"time"
)

// Div divides num by den. It returns nil when either side is NULL or den is zero.
func Div(num, den any) any {
	n, ok := toFloat(num)
	if !ok {
		return nil
	}
	d, ok := toFloat(den)
	if !ok || d == 0 {
		return nil
	}
	return n / d
}

// Round rounds v half away from zero to places decimals. NULL stays NULL.
func Round(v any, places int) any {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

// Mul multiplies every factor; any NULL factor yields NULL.
func Mul(factors ...any) any {
	out := 1.0
	for _, f := range factors {
		v, ok := toFloat(f)
		if !ok {
			return nil
		}
		out *= v
	}
	return out
}

// Sub returns a-b, or NULL when either side is NULL.
func Sub(a, b any) any {
	x, ok := toFloat(a)
	if !ok {
		return nil
	}
	y, ok := toFloat(b)
	if !ok {
		return nil
	}
	return x - y
}

// OneMinus returns 1-v, or NULL.
func OneMinus(v any) any { return Sub(1.0, v) }

// OnePlus returns 1+v, or NULL.
func OnePlus(v any) any {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return 1 + f
}

// DaysBetween returns the whole days from a to b (b-a) on calendar dates,
// or NULL when either side is NULL.
func DaysBetween(a, b any) any {
	x, ok := a.(time.Time)
	if !ok {
		return nil
	}
	y, ok := b.(time.Time)
	if !ok {
		return nil
	}
	return unixDay(y) - unixDay(x)
}

// unixDay counts calendar days since 1970-01-01 for t's date. Midnight UTC is
// a whole multiple of a day in Unix seconds, so the division is exact.
func unixDay(t time.Time) int64 {
	return truncateDay(t).Unix() / 86400
}

// After returns a > b for two dates; NULL on either side yields false.
func After(a, b any) bool {
	x, ok := a.(time.Time)
	if !ok {
		return false
	}
	y, ok := b.(time.Time)
	if !ok {
		return false
	}
	return x.After(y)
}

// Year, Month, and Quarter extract date parts, or NULL.
func Year(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return int64(t.Year())
}

func Month(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return int64(t.Month())
}

func Quarter(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return int64((int(t.Month())-1)/3 + 1)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
