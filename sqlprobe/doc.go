// Package sqlprobe builds [dbwait.Probe] values over database/sql handles.
//
// The probes run caller-written SQL against a caller-supplied [Querier]
// (a *sql.DB, *sql.Conn or *sql.Tx). They never open connections, build
// queries or manage transactions; they only decide, per attempt, whether the
// rows returned so far satisfy the wait.
//
// The main components are:
//
//   - [FirstRow], [FirstRowWhere], [AnyRow], [Rows], [Count]: probe builders
//   - [Row]: a snapshot of one result row with case-insensitive column lookup
//   - [ColumnEquals], [ColumnContains], [ColumnIn], [All]: row matchers
//   - [IsTransient]: a [dbwait.RetryPolicy] for connection-level failures
//   - [WithSchemaChange]: apply a DDL change, run a check, always revert
package sqlprobe
