package dbwait

import (
	"errors"
	"fmt"
)

var (
	// ErrTimedOut is returned when the condition was never satisfied before
	// the deadline.
	ErrTimedOut = errors.New("dbwait: condition not satisfied before timeout")

	// ErrCancelled is returned when the caller's context ended the wait.
	ErrCancelled = errors.New("dbwait: wait cancelled")

	// ErrProbeTimeout marks a single attempt that overran the probe timeout
	// set with [WithProbeTimeout].
	ErrProbeTimeout = errors.New("dbwait: probe attempt timed out")
)

// ConfigError reports an invalid [PollConfig]. It is produced before any
// probe invocation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("dbwait: invalid config: %s %s", e.Field, e.Reason)
}

// ProbeError wraps an error returned by a probe together with the attempt
// on which it happened.
type ProbeError struct {
	Attempt int
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("dbwait: probe failed on attempt %d: %v", e.Attempt, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// timeoutError is the error form of a [TimedOut] outcome. It matches
// [ErrTimedOut] and, when present, unwraps to the last retryable error.
type timeoutError struct {
	attempts int
	last     error
}

func (e *timeoutError) Error() string {
	if e.last != nil {
		return fmt.Sprintf("%v after %d attempts: last error: %v", ErrTimedOut, e.attempts, e.last)
	}
	return fmt.Sprintf("%v after %d attempts", ErrTimedOut, e.attempts)
}

func (e *timeoutError) Unwrap() []error {
	if e.last != nil {
		return []error{ErrTimedOut, e.last}
	}
	return []error{ErrTimedOut}
}

// cancelError is the error form of a [Cancelled] outcome. It matches
// [ErrCancelled] and the context's cause.
type cancelError struct {
	cause error
}

func (e *cancelError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%v: %v", ErrCancelled, e.cause)
	}
	return ErrCancelled.Error()
}

func (e *cancelError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrCancelled, e.cause}
	}
	return []error{ErrCancelled}
}
