// Package runner runs batches of named waits concurrently for the dbwait CLI.
//
// The main components are:
//
//   - [Runner]: Runs tasks through dbwait.Poll with a bounded worker pool
//   - [Task]: A named probe with its poll configuration
//   - [Result]: Outcome of a single wait
//
// Every batch carries a run id, and every result is logged with it. Probe
// panics are recovered and reported with a correlation id so that one broken
// wait cannot take the batch down.
package runner
