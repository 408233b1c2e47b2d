package sqlprobe

import (
	"fmt"
	"strings"
)

// Matcher reports whether a row has the expected content.
type Matcher func(Row) bool

// ColumnEquals matches rows whose col renders exactly as want.
func ColumnEquals(col, want string) Matcher {
	return func(r Row) bool {
		_, ok := r.Get(col)
		return ok && r.String(col) == want
	}
}

// ColumnContains matches rows whose col contains substr.
func ColumnContains(col, substr string) Matcher {
	return func(r Row) bool {
		_, ok := r.Get(col)
		return ok && strings.Contains(r.String(col), substr)
	}
}

// ColumnIn matches rows whose col renders as one of values.
func ColumnIn(col string, values ...string) Matcher {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(r Row) bool {
		if _, ok := r.Get(col); !ok {
			return false
		}
		_, ok := set[r.String(col)]
		return ok
	}
}

// ColumnNotNull matches rows where col is present and not NULL.
func ColumnNotNull(col string) Matcher {
	return func(r Row) bool {
		v, ok := r.Get(col)
		return ok && v != nil
	}
}

// All matches rows accepted by every matcher. With no matchers it matches
// every row.
func All(matchers ...Matcher) Matcher {
	return func(r Row) bool {
		for _, m := range matchers {
			if m != nil && !m(r) {
				return false
			}
		}
		return true
	}
}

// ParseExpectation turns the shorthand used in wait files into a [Matcher]:
//
//	ACTIVE           → ColumnEquals(col, "ACTIVE")
//	contains:ACTIVE  → ColumnContains(col, "ACTIVE")
//	in:AES,RSA       → ColumnIn(col, "AES", "RSA")
//	notnull:         → ColumnNotNull(col)
//
// A value that needs a literal prefix can be written as "eq:contains:x".
func ParseExpectation(col, expr string) (Matcher, error) {
	kind, value, found := strings.Cut(expr, ":")
	if !found {
		return ColumnEquals(col, expr), nil
	}

	switch kind {
	case "eq":
		return ColumnEquals(col, value), nil
	case "contains":
		if value == "" {
			return nil, fmt.Errorf("column %q: contains requires text", col)
		}
		return ColumnContains(col, value), nil
	case "in":
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if value == "" {
			return nil, fmt.Errorf("column %q: in requires at least one value", col)
		}
		return ColumnIn(col, parts...), nil
	case "notnull":
		return ColumnNotNull(col), nil
	default:
		// a colon inside a plain value, e.g. a timestamp
		return ColumnEquals(col, expr), nil
	}
}
