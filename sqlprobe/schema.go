package sqlprobe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Execer runs a statement. *sql.DB, *sql.Conn and *sql.Tx satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SchemaChange is a DDL statement together with the statement that undoes it,
// such as widening a column and restoring its original definition.
type SchemaChange struct {
	Apply  string
	Revert string
}

// IsZero reports whether the change has no statements.
func (c SchemaChange) IsZero() bool {
	return c.Apply == "" && c.Revert == ""
}

// WithSchemaChange executes change.Apply, runs fn, and then executes
// change.Revert whenever Apply succeeded, even if fn fails, panics or ctx is
// cancelled. Errors from fn and from the revert are joined; neither hides the
// other.
//
// The revert runs on a context detached from ctx's cancellation so that an
// aborted wait still restores the schema. A zero change runs fn alone.
//
// Example:
//
//	err := sqlprobe.WithSchemaChange(ctx, db, sqlprobe.SchemaChange{
//	    Apply:  "ALTER TABLE clnt_dtl ALTER COLUMN clnt_nm TYPE varchar(10)",
//	    Revert: "ALTER TABLE clnt_dtl ALTER COLUMN clnt_nm TYPE varchar(255)",
//	}, func(ctx context.Context) error {
//	    return dbwait.Until(ctx, cfg, onboardingRejected)
//	})
func WithSchemaChange(ctx context.Context, db Execer, change SchemaChange, fn func(ctx context.Context) error) (err error) {
	if change.IsZero() {
		return fn(ctx)
	}
	if change.Apply == "" || change.Revert == "" {
		return errors.New("sqlprobe: schema change needs both apply and revert statements")
	}

	if _, err := db.ExecContext(ctx, change.Apply); err != nil {
		return fmt.Errorf("sqlprobe: apply schema change: %w", err)
	}

	defer func() {
		if _, rerr := db.ExecContext(context.WithoutCancel(ctx), change.Revert); rerr != nil {
			err = errors.Join(err, fmt.Errorf("sqlprobe: revert schema change: %w", rerr))
		}
	}()

	return fn(ctx)
}
