package sqlprobe

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Row is a snapshot of a single result row.
//
// Column lookups are case-insensitive, matching how JDBC-style column labels
// behave across drivers that fold identifiers differently.
type Row struct {
	columns []string
	values  []any
}

// NewRow builds a Row from parallel column and value slices.
// Extra values or columns beyond the shorter slice are ignored.
func NewRow(columns []string, values []any) Row {
	n := min(len(columns), len(values))
	return Row{
		columns: append([]string(nil), columns[:n]...),
		values:  append([]any(nil), values[:n]...),
	}
}

// Columns returns a copy of the column names in result order.
func (r Row) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.columns)
}

// Get returns the raw value of col as scanned from the driver.
// The second result is false when the row has no such column.
func (r Row) Get(col string) (any, bool) {
	for i, c := range r.columns {
		if strings.EqualFold(c, col) {
			return r.values[i], true
		}
	}
	return nil, false
}

// String returns the value of col rendered as a string.
// NULL and missing columns render as "".
func (r Row) String(col string) string {
	v, ok := r.Get(col)
	if !ok {
		return ""
	}
	return valueString(v)
}

// Int64 returns the value of col as an int64.
// The second result is false for NULL, missing or non-numeric values.
func (r Row) Int64(col string) (int64, bool) {
	v, ok := r.Get(col)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Map returns the row as a column to string map.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r.columns))
	for i, c := range r.columns {
		m[c] = valueString(r.values[i])
	}
	return m
}

func valueString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

// scanRows reads up to limit rows (all rows if limit <= 0) and closes rows.
func scanRows(rows *sql.Rows, limit int) ([]Row, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlprobe: read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("sqlprobe: scan row: %w", err)
		}
		out = append(out, Row{columns: columns, values: values})
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlprobe: iterate rows: %w", err)
	}
	return out, nil
}
