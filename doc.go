// Package dbwait waits for an asynchronous write to become visible.
//
// After an API call or a schema change, the effect often lands in the
// database a little later. dbwait repeatedly runs a caller-supplied [Probe]
// until it reports the expected state, a deadline passes, the probe fails in
// a way that retrying cannot fix, or the caller cancels.
//
// # Quick Start
//
//	cfg, _ := dbwait.NewPollConfig(30*time.Second, 2*time.Second)
//
//	row, err := dbwait.Wait(ctx, sqlprobe.FirstRow(db,
//	    "SELECT clnt_id, clnt_stat FROM clnt_dtl WHERE clnt_id = $1", clientID), cfg)
//	if err != nil {
//	    return fmt.Errorf("client %s never appeared: %w", clientID, err)
//	}
//	fmt.Println(row.String("clnt_stat"))
//
// # Outcomes
//
// [Poll] returns an [Outcome] of exactly one kind:
//
//   - [Succeeded]: the probe reported the condition as satisfied
//   - [TimedOut]: the timeout elapsed first ([ErrTimedOut])
//   - [Cancelled]: the context ended the wait ([ErrCancelled])
//   - [Failed]: the probe returned a non-retryable error ([*ProbeError]) or
//     the configuration was invalid ([*ConfigError])
//
// # Errors
//
// Probe errors end the poll immediately unless they are retryable. A probe
// marks a transient error with [Retryable]; a caller declares classes of
// errors retryable with [WithRetryable] and the [RetryOn], [RetryIf] and
// [RetryAny] helpers. A permanently broken probe, such as a malformed query,
// therefore surfaces at once instead of after the full timeout.
//
// # Architecture
//
// The module consists of:
//
//   - dbwait: the polling core; no logging, no I/O of its own
//   - sqlprobe: probes over database/sql handles, transient error
//     classification, and the apply-then-revert schema change helper
//   - httpprobe: probes over HTTP responses
//   - config: YAML wait definitions for the dbwait command
//   - internal/runner: concurrent execution of a batch of named waits
//   - internal/report: the end-of-run summary as a table or JSON
//   - cmd/dbwait: the command-line tool
package dbwait
