package sqlprobe

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jpalmerr/dbwait"
)

// Querier runs a query. *sql.DB, *sql.Conn and *sql.Tx satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// FirstRow returns a probe that is satisfied as soon as query returns at
// least one row. The probe's value is that first row.
//
// Example:
//
//	probe := sqlprobe.FirstRow(db, "SELECT clnt_id, key_type FROM clnt_encrypt_dtl WHERE clnt_id = $1", clientID)
func FirstRow(q Querier, query string, args ...any) dbwait.Probe[Row] {
	return FirstRowWhere(q, query, nil, args...)
}

// FirstRowWhere returns a probe that is satisfied when query returns at
// least one row and the first row matches. A nil match accepts any row.
//
// The value of an unsatisfied attempt is the first row observed, if any, so
// callers can report what the database held when the wait timed out.
func FirstRowWhere(q Querier, query string, match Matcher, args ...any) dbwait.Probe[Row] {
	return func(ctx context.Context) (Row, bool, error) {
		rows, err := fetchRows(ctx, q, query, 1, args)
		if err != nil {
			return Row{}, false, err
		}
		if len(rows) == 0 {
			return Row{}, false, nil
		}
		return rows[0], match == nil || match(rows[0]), nil
	}
}

// AnyRow returns a probe that scans every row returned by query and is
// satisfied by the first one that matches. The probe's value is the
// matching row.
func AnyRow(q Querier, query string, match Matcher, args ...any) dbwait.Probe[Row] {
	return func(ctx context.Context) (Row, bool, error) {
		rows, err := fetchRows(ctx, q, query, 0, args)
		if err != nil {
			return Row{}, false, err
		}
		for _, r := range rows {
			if match == nil || match(r) {
				return r, true, nil
			}
		}
		return Row{}, false, nil
	}
}

// Rows returns a probe that reads the full result of query and is satisfied
// when accept returns true for it. A nil accept is satisfied by any
// non-empty result.
func Rows(q Querier, query string, accept func([]Row) bool, args ...any) dbwait.Probe[[]Row] {
	return func(ctx context.Context) ([]Row, bool, error) {
		rows, err := fetchRows(ctx, q, query, 0, args)
		if err != nil {
			return nil, false, err
		}
		if accept == nil {
			return rows, len(rows) > 0, nil
		}
		return rows, accept(rows), nil
	}
}

// Count returns a probe for a single-value count query, such as
// SELECT COUNT(*) ... It is satisfied once the count reaches atLeast.
// A query returning no rows counts as zero.
func Count(q Querier, query string, atLeast int64, args ...any) dbwait.Probe[int64] {
	return func(ctx context.Context) (int64, bool, error) {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return 0, false, fmt.Errorf("sqlprobe: query: %w", err)
		}
		defer func() { _ = rows.Close() }()

		var n int64
		if rows.Next() {
			if err := rows.Scan(&n); err != nil {
				return 0, false, fmt.Errorf("sqlprobe: scan count: %w", err)
			}
		}
		if err := rows.Err(); err != nil {
			return 0, false, fmt.Errorf("sqlprobe: iterate rows: %w", err)
		}
		return n, n >= atLeast, nil
	}
}

func fetchRows(ctx context.Context, q Querier, query string, limit int, args []any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlprobe: query: %w", err)
	}
	return scanRows(rows, limit)
}
