package dbwait

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultTimeout is the overall wait used when no timeout is configured.
	DefaultTimeout = 30 * time.Second

	// DefaultInterval is the pause between attempts used when no interval is configured.
	DefaultInterval = 2 * time.Second
)

// PollConfig holds the settings for a single [Poll] call.
//
// PollConfig is immutable after creation via [NewPollConfig]. The same value
// may be shared by any number of concurrent [Poll] calls; no state is kept
// between calls.
//
// The zero value is not valid. Passing it to [Poll] yields a [Failed] outcome
// carrying a [*ConfigError] without invoking the probe.
type PollConfig struct {
	timeout      time.Duration
	interval     time.Duration
	initialDelay time.Duration
	probeTimeout time.Duration
	retryable    RetryPolicy
	newBackOff   func() backoff.BackOff
	clock        clockwork.Clock
}

// ConfigOption configures a [PollConfig] during construction.
//
// Options return an error if validation fails. Built-in options:
// [WithInitialDelay], [WithProbeTimeout], [WithRetryable], [WithBackOff],
// [WithClock].
type ConfigOption func(*PollConfig) error

// NewPollConfig creates a [PollConfig] that gives up after timeout and waits
// interval between attempts.
//
// Both durations must be positive. An interval longer than the timeout is
// accepted; the probe then runs at most twice.
//
// Example:
//
//	cfg, err := dbwait.NewPollConfig(30*time.Second, 2*time.Second,
//	    dbwait.WithInitialDelay(500*time.Millisecond),
//	    dbwait.WithRetryable(sqlprobe.IsTransient),
//	)
func NewPollConfig(timeout, interval time.Duration, opts ...ConfigOption) (PollConfig, error) {
	cfg := PollConfig{
		timeout:  timeout,
		interval: interval,
	}

	if err := cfg.validate(); err != nil {
		return PollConfig{}, err
	}

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return PollConfig{}, err
		}
	}

	return cfg, nil
}

// DefaultPollConfig returns a 30 second timeout with a 2 second interval.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
	}
}

// Timeout returns the overall deadline measured from the start of [Poll].
func (c PollConfig) Timeout() time.Duration {
	return c.timeout
}

// Interval returns the pause between attempts.
func (c PollConfig) Interval() time.Duration {
	return c.interval
}

// InitialDelay returns the pause before the first attempt. Zero by default.
func (c PollConfig) InitialDelay() time.Duration {
	return c.initialDelay
}

// ProbeTimeout returns the per-attempt deadline applied to the probe's
// context. Zero means attempts are bounded only by the caller's context.
func (c PollConfig) ProbeTimeout() time.Duration {
	return c.probeTimeout
}

// With returns a copy of c with the given options applied.
// The receiver is left untouched.
func (c PollConfig) With(opts ...ConfigOption) (PollConfig, error) {
	cp := c
	for _, opt := range opts {
		if err := opt(&cp); err != nil {
			return PollConfig{}, err
		}
	}
	if err := cp.validate(); err != nil {
		return PollConfig{}, err
	}
	return cp, nil
}

func (c PollConfig) validate() error {
	if c.timeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: "must be positive, got " + c.timeout.String()}
	}
	if c.interval <= 0 {
		return &ConfigError{Field: "interval", Reason: "must be positive, got " + c.interval.String()}
	}
	if c.initialDelay < 0 {
		return &ConfigError{Field: "initial delay", Reason: "cannot be negative, got " + c.initialDelay.String()}
	}
	if c.probeTimeout < 0 {
		return &ConfigError{Field: "probe timeout", Reason: "cannot be negative, got " + c.probeTimeout.String()}
	}
	return nil
}

func (c PollConfig) clockOrReal() clockwork.Clock {
	if c.clock == nil {
		return clockwork.NewRealClock()
	}
	return c.clock
}

func (c PollConfig) isRetryable(err error) bool {
	if IsRetryable(err) {
		return true
	}
	return c.retryable != nil && c.retryable(err)
}

// WithInitialDelay waits d before the first attempt.
//
// Useful when the write that the probe observes is known to take a moment
// to land. Returns an error if d is negative.
func WithInitialDelay(d time.Duration) ConfigOption {
	return func(c *PollConfig) error {
		if d < 0 {
			return &ConfigError{Field: "initial delay", Reason: "cannot be negative, got " + d.String()}
		}
		c.initialDelay = d
		return nil
	}
}

// WithProbeTimeout bounds each attempt to d.
//
// The probe's context is cancelled after d. An attempt that overruns fails
// with an error matching [ErrProbeTimeout]; whether polling continues
// afterwards is decided by the retry policy. Zero disables the bound.
func WithProbeTimeout(d time.Duration) ConfigOption {
	return func(c *PollConfig) error {
		if d < 0 {
			return &ConfigError{Field: "probe timeout", Reason: "cannot be negative, got " + d.String()}
		}
		c.probeTimeout = d
		return nil
	}
}

// WithRetryable sets the policy deciding which probe errors keep polling alive.
//
// By default no error is retryable: the first unexpected probe error ends the
// poll with a [Failed] outcome. Errors wrapped with [Retryable] are always
// retried regardless of the policy. Passing nil restores the default.
//
// Example:
//
//	dbwait.WithRetryable(dbwait.RetryAny(
//	    sqlprobe.IsTransient,
//	    dbwait.RetryOn(dbwait.ErrProbeTimeout),
//	))
func WithRetryable(policy RetryPolicy) ConfigOption {
	return func(c *PollConfig) error {
		c.retryable = policy
		return nil
	}
}

// WithBackOff replaces the constant interval with a backoff schedule.
//
// newBackOff is called once per [Poll] so that the stateful BackOff is never
// shared between calls. When the BackOff returns [backoff.Stop] the poll ends
// as [TimedOut]. Returns an error if newBackOff is nil.
//
// Example:
//
//	dbwait.WithBackOff(func() backoff.BackOff {
//	    b := backoff.NewExponentialBackOff()
//	    b.InitialInterval = 200 * time.Millisecond
//	    b.MaxElapsedTime = 0
//	    return b
//	})
func WithBackOff(newBackOff func() backoff.BackOff) ConfigOption {
	return func(c *PollConfig) error {
		if newBackOff == nil {
			return &ConfigError{Field: "backoff", Reason: "factory cannot be nil"}
		}
		c.newBackOff = newBackOff
		return nil
	}
}

// WithClock sets the clock used for the deadline and the sleeps between
// attempts. Tests pass a [clockwork.FakeClock]. Returns an error if clock is nil.
func WithClock(clock clockwork.Clock) ConfigOption {
	return func(c *PollConfig) error {
		if clock == nil {
			return &ConfigError{Field: "clock", Reason: "cannot be nil"}
		}
		c.clock = clock
		return nil
	}
}
