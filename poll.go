package dbwait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// Poll invokes probe until it reports the condition as satisfied, the
// timeout elapses, the probe fails with a non-retryable error, or ctx is
// done. It returns exactly one terminal [Outcome].
//
// The loop is:
//  1. wait the initial delay, if any
//  2. invoke the probe; if satisfied, return [Succeeded] at once
//  3. on a probe error, return [Failed] unless the error is retryable
//  4. if the timeout has elapsed, return [TimedOut]
//  5. sleep for the interval and go back to 2
//
// A probe error takes precedence over its satisfied flag. Elapsed time is
// measured on the monotonic clock, and each sleep starts from the end of the
// previous attempt, so a probe that never succeeds returns after at least
// the timeout and at most the timeout plus one interval (plus the duration
// of the last attempt).
//
// When ctx is cancelled before or during a sleep or an attempt, Poll returns
// [Cancelled] promptly, never [TimedOut]. An invalid configuration returns
// [Failed] with a [*ConfigError] before the probe is invoked.
//
// Poll does not log and spawns no goroutines; concurrent calls share nothing.
func Poll[T any](ctx context.Context, probe Probe[T], cfg PollConfig) Outcome[T] {
	if err := cfg.validate(); err != nil {
		return Outcome[T]{kind: Failed, err: err}
	}
	if probe == nil {
		return Outcome[T]{kind: Failed, err: &ConfigError{Field: "probe", Reason: "cannot be nil"}}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	clock := cfg.clockOrReal()
	start := clock.Now()
	next := cfg.delays()

	var (
		attempts int
		lastErr  error
		zero     T
	)
	finish := func(kind OutcomeKind, value T, err error) Outcome[T] {
		return Outcome[T]{
			kind:     kind,
			value:    value,
			err:      err,
			lastErr:  lastErr,
			attempts: attempts,
			elapsed:  clock.Since(start),
		}
	}
	cancelled := func() Outcome[T] {
		return finish(Cancelled, zero, &cancelError{cause: context.Cause(ctx)})
	}
	timedOut := func() Outcome[T] {
		return finish(TimedOut, zero, &timeoutError{attempts: attempts, last: lastErr})
	}

	if ctx.Err() != nil {
		return cancelled()
	}
	if cfg.initialDelay > 0 && !sleep(ctx, clock, cfg.initialDelay) {
		return cancelled()
	}

	for {
		attempts++
		value, satisfied, err := attempt(ctx, probe, cfg.probeTimeout)
		switch {
		case err == nil && satisfied:
			return finish(Succeeded, value, nil)
		case err != nil && ctx.Err() != nil:
			return cancelled()
		case err != nil && !cfg.isRetryable(err):
			return finish(Failed, zero, &ProbeError{Attempt: attempts, Err: err})
		case err != nil:
			lastErr = err
		}

		if ctx.Err() != nil {
			return cancelled()
		}
		if clock.Since(start) >= cfg.timeout {
			return timedOut()
		}

		delay, ok := next()
		if !ok {
			return timedOut()
		}
		if !sleep(ctx, clock, delay) {
			return cancelled()
		}
	}
}

// Wait is like [Poll] but returns the satisfying value and [Outcome.Err].
//
// Example:
//
//	row, err := dbwait.Wait(ctx, sqlprobe.FirstRow(db, query, clientID), cfg)
//	if errors.Is(err, dbwait.ErrTimedOut) {
//	    return fmt.Errorf("client %s not found: %w", clientID, err)
//	}
func Wait[T any](ctx context.Context, probe Probe[T], cfg PollConfig) (T, error) {
	out := Poll(ctx, probe, cfg)
	return out.Value(), out.Err()
}

// Until polls a boolean condition and returns nil once it holds, or the
// error of the [Outcome] otherwise.
func Until(ctx context.Context, cfg PollConfig, cond func(ctx context.Context) (bool, error)) error {
	return Poll(ctx, Check(cond), cfg).Err()
}

// delays returns the schedule of sleeps between attempts. The second result
// is false once a backoff schedule is exhausted.
func (c PollConfig) delays() func() (time.Duration, bool) {
	if c.newBackOff == nil {
		return func() (time.Duration, bool) {
			return c.interval, true
		}
	}

	b := c.newBackOff()
	b.Reset()
	return func() (time.Duration, bool) {
		d := b.NextBackOff()
		return d, d != backoff.Stop
	}
}

// attempt runs a single probe invocation, bounded by timeout when positive.
func attempt[T any](ctx context.Context, probe Probe[T], timeout time.Duration) (T, bool, error) {
	if timeout <= 0 {
		return probe(ctx)
	}

	attemptCtx, cancel := context.WithTimeoutCause(ctx, timeout, ErrProbeTimeout)
	defer cancel()

	value, satisfied, err := probe(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(attemptCtx), ErrProbeTimeout) && !errors.Is(err, ErrProbeTimeout) {
		err = fmt.Errorf("%w: %w", ErrProbeTimeout, err)
	}
	return value, satisfied, err
}

// sleep blocks for d on clock or until ctx is done. It reports whether the
// full duration elapsed with ctx still alive.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return ctx.Err() == nil
	}
}
