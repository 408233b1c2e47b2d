package dbwait

import "time"

// OutcomeKind identifies how a [Poll] call ended.
//
// Every call ends in exactly one of the four terminal kinds.
type OutcomeKind string

const (
	// Succeeded means the probe reported the condition as satisfied.
	Succeeded OutcomeKind = "succeeded"

	// TimedOut means the deadline passed without the condition being satisfied.
	TimedOut OutcomeKind = "timed_out"

	// Cancelled means the caller's context ended the wait.
	Cancelled OutcomeKind = "cancelled"

	// Failed means the probe returned an error that is not retryable, or the
	// configuration was invalid.
	Failed OutcomeKind = "failed"
)

// String returns the string representation of the kind.
func (k OutcomeKind) String() string {
	return string(k)
}

// Outcome is the terminal result of a [Poll] call.
//
// Outcome is immutable. Value is meaningful only when Kind is [Succeeded].
type Outcome[T any] struct {
	kind     OutcomeKind
	value    T
	err      error
	lastErr  error
	attempts int
	elapsed  time.Duration
}

// Kind returns how the poll ended.
func (o Outcome[T]) Kind() OutcomeKind {
	return o.kind
}

// OK reports whether the poll succeeded.
func (o Outcome[T]) OK() bool {
	return o.kind == Succeeded
}

// Value returns the probe's value from the satisfying attempt.
// The zero value of T is returned for any other outcome.
func (o Outcome[T]) Value() T {
	return o.value
}

// Err returns nil for [Succeeded]. Otherwise it returns an error that
// matches, via errors.Is / errors.As:
//   - [TimedOut]: [ErrTimedOut] and the last retryable probe error, if any
//   - [Cancelled]: [ErrCancelled] and the context's cause
//   - [Failed]: a [*ProbeError] or a [*ConfigError]
func (o Outcome[T]) Err() error {
	return o.err
}

// LastRetryableErr returns the most recent probe error that was retried,
// or nil if every attempt completed without error.
func (o Outcome[T]) LastRetryableErr() error {
	return o.lastErr
}

// Attempts returns the number of probe invocations.
func (o Outcome[T]) Attempts() int {
	return o.attempts
}

// Elapsed returns the monotonic time from the start of the poll until the
// outcome was decided.
func (o Outcome[T]) Elapsed() time.Duration {
	return o.elapsed
}
