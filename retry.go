package dbwait

import "errors"

// RetryPolicy reports whether a probe error should keep polling alive.
//
// Returning false ends the poll immediately with a [Failed] outcome.
type RetryPolicy func(err error) bool

// RetryOn returns a [RetryPolicy] that retries errors matching any of the
// targets via errors.Is.
//
// Example:
//
//	dbwait.WithRetryable(dbwait.RetryOn(sql.ErrNoRows, dbwait.ErrProbeTimeout))
func RetryOn(targets ...error) RetryPolicy {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// RetryIf adapts a predicate into a [RetryPolicy].
func RetryIf(pred func(error) bool) RetryPolicy {
	return RetryPolicy(pred)
}

// RetryAny returns a [RetryPolicy] that retries when any of the policies
// does. Nil policies are skipped.
func RetryAny(policies ...RetryPolicy) RetryPolicy {
	return func(err error) bool {
		for _, p := range policies {
			if p != nil && p(err) {
				return true
			}
		}
		return false
	}
}

// RetryAll is a [RetryPolicy] that retries every error. Probe failures then
// only surface through [Outcome.LastRetryableErr] when the poll times out.
var RetryAll RetryPolicy = func(error) bool { return true }

type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// Retryable marks err as transient so that [Poll] keeps polling regardless
// of the configured [RetryPolicy]. A probe uses it for failures it knows to
// be temporary. Retryable(nil) returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err, or any error it wraps, was marked with
// [Retryable].
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
