package dbwait

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

var errBoom = errors.New("boom")

func mustConfig(t *testing.T, timeout, interval time.Duration, opts ...ConfigOption) PollConfig {
	t.Helper()
	cfg, err := NewPollConfig(timeout, interval, opts...)
	if err != nil {
		t.Fatalf("NewPollConfig() error = %v", err)
	}
	return cfg
}

// startPoll runs Poll in a goroutine so the test can drive the fake clock.
func startPoll[T any](ctx context.Context, probe Probe[T], cfg PollConfig) <-chan Outcome[T] {
	done := make(chan Outcome[T], 1)
	go func() {
		done <- Poll(ctx, probe, cfg)
	}()
	return done
}

// fakeClock is the part of the clockwork fake clock the tests drive.
type fakeClock interface {
	BlockUntilContext(ctx context.Context, n int) error
	Advance(d time.Duration)
}

// advance waits until the poller is sleeping on the fake clock, then moves
// the clock forward by d.
func advance(t *testing.T, clk fakeClock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("poller never started sleeping: %v", err)
	}
	clk.Advance(d)
}

func receive[T any](t *testing.T, done <-chan Outcome[T]) Outcome[T] {
	t.Helper()
	select {
	case out := <-done:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Poll to return")
		return Outcome[T]{}
	}
}

// countingProbe returns a probe that is satisfied on call n (never if n <= 0)
// with value 42, and the counter of invocations.
func countingProbe(n int32) (Probe[int], *atomic.Int32) {
	var calls atomic.Int32
	return func(ctx context.Context) (int, bool, error) {
		c := calls.Add(1)
		if n > 0 && c == n {
			return 42, true, nil
		}
		return 0, false, nil
	}, &calls
}

// TestPoll_SucceedsOnThirdAttempt walks the 6s/2s scenario: not satisfied on
// calls 1 and 2, satisfied with 42 on call 3 at 4s, and no attempt at 6s.
func TestPoll_SucceedsOnThirdAttempt(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cfg := mustConfig(t, 6*time.Second, 2*time.Second, WithClock(clk))
	probe, calls := countingProbe(3)

	done := startPoll(context.Background(), probe, cfg)
	advance(t, clk, 2*time.Second)
	advance(t, clk, 2*time.Second)
	out := receive(t, done)

	if out.Kind() != Succeeded {
		t.Fatalf("Kind() = %v, want %v (err: %v)", out.Kind(), Succeeded, out.Err())
	}
	if out.Value() != 42 {
		t.Errorf("Value() = %d, want 42", out.Value())
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("probe calls = %d, want 3", got)
	}
	if out.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", out.Attempts())
	}
	if out.Elapsed() != 4*time.Second {
		t.Errorf("Elapsed() = %v, want 4s", out.Elapsed())
	}
	if out.Err() != nil {
		t.Errorf("Err() = %v, want nil", out.Err())
	}
}

// TestPoll_FirstAttemptSuccessDoesNotSleep verifies that a probe satisfied on
// its first invocation is called once and no timer is ever created.
func TestPoll_FirstAttemptSuccessDoesNotSleep(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cfg := mustConfig(t, time.Minute, 10*time.Second, WithClock(clk))
	probe, calls := countingProbe(1)

	out := Poll(context.Background(), probe, cfg)

	if !out.OK() {
		t.Fatalf("OK() = false, kind %v", out.Kind())
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("probe calls = %d, want 1", got)
	}
	if out.Elapsed() != 0 {
		t.Errorf("Elapsed() = %v, want 0", out.Elapsed())
	}
}

func TestPoll_SucceedsOnNthAttempt(t *testing.T) {
	tests := []struct {
		name     string
		timeout  time.Duration
		interval time.Duration
		n        int32
	}{
		{name: "second of many", timeout: 10 * time.Second, interval: time.Second, n: 2},
		{name: "exactly at deadline", timeout: 5 * time.Second, interval: time.Second, n: 6},
		{name: "interval equals timeout", timeout: 2 * time.Second, interval: 2 * time.Second, n: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clockwork.NewFakeClock()
			cfg := mustConfig(t, tt.timeout, tt.interval, WithClock(clk))
			probe, calls := countingProbe(tt.n)

			done := startPoll(context.Background(), probe, cfg)
			for i := int32(1); i < tt.n; i++ {
				advance(t, clk, tt.interval)
			}
			out := receive(t, done)

			if out.Kind() != Succeeded {
				t.Fatalf("Kind() = %v, want %v", out.Kind(), Succeeded)
			}
			if got := calls.Load(); got != tt.n {
				t.Errorf("probe calls = %d, want %d", got, tt.n)
			}
			want := time.Duration(tt.n-1) * tt.interval
			if out.Elapsed() != want {
				t.Errorf("Elapsed() = %v, want %v", out.Elapsed(), want)
			}
		})
	}
}

// TestPoll_TimesOut verifies that a probe that is never satisfied ends with
// TimedOut, after the timeout and within one extra interval.
func TestPoll_TimesOut(t *testing.T) {
	tests := []struct {
		name         string
		timeout      time.Duration
		interval     time.Duration
		wantAttempts int
		wantElapsed  time.Duration
	}{
		{name: "interval divides timeout", timeout: 6 * time.Second, interval: 2 * time.Second, wantAttempts: 4, wantElapsed: 6 * time.Second},
		{name: "interval does not divide timeout", timeout: 5 * time.Second, interval: 2 * time.Second, wantAttempts: 4, wantElapsed: 6 * time.Second},
		{name: "interval longer than timeout", timeout: time.Second, interval: 3 * time.Second, wantAttempts: 2, wantElapsed: 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clockwork.NewFakeClock()
			cfg := mustConfig(t, tt.timeout, tt.interval, WithClock(clk))
			probe, calls := countingProbe(0)

			done := startPoll(context.Background(), probe, cfg)
			for i := 1; i < tt.wantAttempts; i++ {
				advance(t, clk, tt.interval)
			}
			out := receive(t, done)

			if out.Kind() != TimedOut {
				t.Fatalf("Kind() = %v, want %v", out.Kind(), TimedOut)
			}
			if !errors.Is(out.Err(), ErrTimedOut) {
				t.Errorf("Err() = %v, want ErrTimedOut", out.Err())
			}
			if got := int(calls.Load()); got != tt.wantAttempts {
				t.Errorf("probe calls = %d, want %d", got, tt.wantAttempts)
			}
			if out.Elapsed() != tt.wantElapsed {
				t.Errorf("Elapsed() = %v, want %v", out.Elapsed(), tt.wantElapsed)
			}
			if out.Elapsed() < tt.timeout || out.Elapsed() > tt.timeout+tt.interval {
				t.Errorf("Elapsed() = %v, want within [%v, %v]", out.Elapsed(), tt.timeout, tt.timeout+tt.interval)
			}
		})
	}
}

// TestPoll_FailsFastOnProbeError verifies that an unclassified probe error
// ends the poll immediately without further invocations.
func TestPoll_FailsFastOnProbeError(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cfg := mustConfig(t, 30*time.Second, 2*time.Second, WithClock(clk))

	var calls atomic.Int32
	probe := func(ctx context.Context) (string, bool, error) {
		calls.Add(1)
		return "", false, errBoom
	}

	out := Poll(context.Background(), probe, cfg)

	if out.Kind() != Failed {
		t.Fatalf("Kind() = %v, want %v", out.Kind(), Failed)
	}
	if !errors.Is(out.Err(), errBoom) {
		t.Errorf("Err() = %v, want to wrap errBoom", out.Err())
	}
	var pe *ProbeError
	if !errors.As(out.Err(), &pe) {
		t.Fatalf("Err() = %T, want *ProbeError", out.Err())
	}
	if pe.Attempt != 1 {
		t.Errorf("ProbeError.Attempt = %d, want 1", pe.Attempt)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("probe calls = %d, want 1", got)
	}
	if out.Elapsed() != 0 {
		t.Errorf("Elapsed() = %v, want 0", out.Elapsed())
	}
}

// TestPoll_ErrorTakesPrecedenceOverSatisfied verifies that a probe returning
// both satisfied and an error is treated as failing.
func TestPoll_ErrorTakesPrecedenceOverSatisfied(t *testing.T) {
	cfg := mustConfig(t, time.Second, 100*time.Millisecond)
	probe := func(ctx context.Context) (int, bool, error) {
		return 7, true, errBoom
	}

	out := Poll(context.Background(), probe, cfg)

	if out.Kind() != Failed {
		t.Fatalf("Kind() = %v, want %v", out.Kind(), Failed)
	}
	if out.Value() != 0 {
		t.Errorf("Value() = %d, want zero value", out.Value())
	}
}

func TestPoll_RetryableErrors(t *testing.T) {
	errTransient := errors.New("connection reset")

	tests := []struct {
		name    string
		opts    []ConfigOption
		probErr error
	}{
		{name: "marked retryable", probErr: Retryable(errTransient)},
		{name: "retry on target", opts: []ConfigOption{WithRetryable(RetryOn(errTransient))}, probErr: errTransient},
		{name: "retry if predicate", opts: []ConfigOption{WithRetryable(RetryIf(func(err error) bool {
			return err.Error() == "connection reset"
		}))}, probErr: errTransient},
		{name: "retry all", opts: []ConfigOption{WithRetryable(RetryAll)}, probErr: errTransient},
		{name: "retry any", opts: []ConfigOption{WithRetryable(RetryAny(nil, RetryOn(errBoom), RetryOn(errTransient)))}, probErr: errTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clockwork.NewFakeClock()
			cfg := mustConfig(t, 10*time.Second, time.Second, append(tt.opts, WithClock(clk))...)

			var calls atomic.Int32
			probe := func(ctx context.Context) (string, bool, error) {
				if calls.Add(1) < 3 {
					return "", false, tt.probErr
				}
				return "ready", true, nil
			}

			done := startPoll(context.Background(), probe, cfg)
			advance(t, clk, time.Second)
			advance(t, clk, time.Second)
			out := receive(t, done)

			if out.Kind() != Succeeded {
				t.Fatalf("Kind() = %v, want %v (err: %v)", out.Kind(), Succeeded, out.Err())
			}
			if out.Value() != "ready" {
				t.Errorf("Value() = %q, want %q", out.Value(), "ready")
			}
			if !errors.Is(out.LastRetryableErr(), errTransient) {
				t.Errorf("LastRetryableErr() = %v, want errTransient", out.LastRetryableErr())
			}
		})
	}
}

// TestPoll_TimeoutCarriesLastRetryableError verifies that a poll which kept
// retrying an error reports it alongside ErrTimedOut.
func TestPoll_TimeoutCarriesLastRetryableError(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cfg := mustConfig(t, 2*time.Second, time.Second, WithClock(clk), WithRetryable(RetryOn(errBoom)))
	probe := func(ctx context.Context) (int, bool, error) {
		return 0, false, errBoom
	}

	done := startPoll(context.Background(), probe, cfg)
	advance(t, clk, time.Second)
	advance(t, clk, time.Second)
	out := receive(t, done)

	if out.Kind() != TimedOut {
		t.Fatalf("Kind() = %v, want %v", out.Kind(), TimedOut)
	}
	if !errors.Is(out.Err(), ErrTimedOut) {
		t.Errorf("Err() = %v, want ErrTimedOut", out.Err())
	}
	if !errors.Is(out.Err(), errBoom) {
		t.Errorf("Err() = %v, want to wrap errBoom", out.Err())
	}
	if out.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", out.Attempts())
	}
}

// TestPoll_CancelledDuringSleep verifies that cancelling the context while
// the poller waits between attempts yields Cancelled without advancing time.
func TestPoll_CancelledDuringSleep(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cfg := mustConfig(t, time.Minute, 10*time.Second, WithClock(clk))
	probe, calls := countingProbe(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := startPoll(ctx, probe, cfg)

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	if err := clk.BlockUntilContext(blockCtx, 1); err != nil {
		t.Fatalf("poller never started sleeping: %v", err)
	}
	cancel()
	out := receive(t, done)

	if out.Kind() != Cancelled {
		t.Fatalf("Kind() = %v, want %v", out.Kind(), Cancelled)
	}
	if !errors.Is(out.Err(), ErrCancelled) {
		t.Errorf("Err() = %v, want ErrCancelled", out.Err())
	}
	if !errors.Is(out.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want to wrap context.Canceled", out.Err())
	}
	if errors.Is(out.Err(), ErrTimedOut) {
		t.Error("Err() matches ErrTimedOut, want only ErrCancelled")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("probe calls = %d, want 1", got)
	}
}

// TestPoll_CancelledDuringProbe verifies that a probe aborted by cancellation
// is reported as Cancelled, not Failed.
func TestPoll_CancelledDuringProbe(t *testing.T) {
	cfg := mustConfig(t, time.Minute, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	probe := func(ctx context.Context) (int, bool, error) {
		close(started)
		<-ctx.Done()
		return 0, false, ctx.Err()
	}

	done := startPoll(ctx, probe, cfg)
	<-started
	cancel()
	out := receive(t, done)

	if out.Kind() != Cancelled {
		t.Fatalf("Kind() = %v, want %v (err: %v)", out.Kind(), Cancelled, out.Err())
	}
}

// TestPoll_AlreadyCancelled verifies that a cancelled context stops the poll
// before the first attempt.
func TestPoll_AlreadyCancelled(t *testing.T) {
	cfg := mustConfig(t, time.Minute, time.Second)
	probe, calls := countingProbe(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := Poll(ctx, probe, cfg)

	if out.Kind() != Cancelled {
		t.Fatalf("Kind() = %v, want %v", out.Kind(), Cancelled)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("probe calls = %d, want 0", got)
	}
}

// TestPoll_CancelCauseIsPropagated verifies that a cancellation cause set by
// the caller is reachable from the outcome error.
func TestPoll_CancelCauseIsPropagated(t *testing.T) {
	errShutdown := errors.New("shutting down")
	cfg := mustConfig(t, time.Minute, time.Second)

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errShutdown)

	out := Poll(ctx, Check(func(ctx context.Context) (bool, error) { return true, nil }), cfg)

	if out.Kind() != Cancelled {
		t.Fatalf("Kind() = %v, want %v", out.Kind(), Cancelled)
	}
	if !errors.Is(out.Err(), errShutdown) {
		t.Errorf("Err() = %v, want to wrap the cancel cause", out.Err())
	}
}

func TestPoll_InitialDelay(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cfg := mustConfig(t, 10*time.Second, time.Second, WithClock(clk), WithInitialDelay(3*time.Second))
	probe, calls := countingProbe(1)

	done := startPoll(context.Background(), probe, cfg)

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	if err := clk.BlockUntilContext(blockCtx, 1); err != nil {
		t.Fatalf("poller never started the initial delay: %v", err)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("probe calls before initial delay = %d, want 0", got)
	}
	clk.Advance(3 * time.Second)
	out := receive(t, done)

	if !out.OK() {
		t.Fatalf("Kind() = %v, want %v", out.Kind(), Succeeded)
	}
	if out.Elapsed() != 3*time.Second {
		t.Errorf("Elapsed() = %v, want 3s", out.Elapsed())
	}
}

// TestPoll_ProbeTimeout verifies that an attempt overrunning the probe
// timeout fails with ErrProbeTimeout, and that the error can be opted into
// retrying.
func TestPoll_ProbeTimeout(t *testing.T) {
	hang := func(ctx context.Context) (int, bool, error) {
		<-ctx.Done()
		return 0, false, ctx.Err()
	}

	t.Run("not retried by default", func(t *testing.T) {
		cfg := mustConfig(t, time.Second, 10*time.Millisecond, WithProbeTimeout(10*time.Millisecond))

		out := Poll(context.Background(), hang, cfg)

		if out.Kind() != Failed {
			t.Fatalf("Kind() = %v, want %v", out.Kind(), Failed)
		}
		if !errors.Is(out.Err(), ErrProbeTimeout) {
			t.Errorf("Err() = %v, want ErrProbeTimeout", out.Err())
		}
		if !errors.Is(out.Err(), context.DeadlineExceeded) {
			t.Errorf("Err() = %v, want to wrap context.DeadlineExceeded", out.Err())
		}
		if out.Attempts() != 1 {
			t.Errorf("Attempts() = %d, want 1", out.Attempts())
		}
	})

	t.Run("retried when opted in", func(t *testing.T) {
		cfg := mustConfig(t, 60*time.Millisecond, 10*time.Millisecond,
			WithProbeTimeout(5*time.Millisecond),
			WithRetryable(RetryOn(ErrProbeTimeout)),
		)

		out := Poll(context.Background(), hang, cfg)

		if out.Kind() != TimedOut {
			t.Fatalf("Kind() = %v, want %v (err: %v)", out.Kind(), TimedOut, out.Err())
		}
		if !errors.Is(out.LastRetryableErr(), ErrProbeTimeout) {
			t.Errorf("LastRetryableErr() = %v, want ErrProbeTimeout", out.LastRetryableErr())
		}
		if out.Attempts() < 2 {
			t.Errorf("Attempts() = %d, want at least 2", out.Attempts())
		}
	})
}

func TestPoll_BackOff(t *testing.T) {
	t.Run("schedule exhausted", func(t *testing.T) {
		clk := clockwork.NewFakeClock()
		cfg := mustConfig(t, time.Hour, time.Second, WithClock(clk), WithBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 2)
		}))
		probe, calls := countingProbe(0)

		done := startPoll(context.Background(), probe, cfg)
		advance(t, clk, time.Second)
		advance(t, clk, time.Second)
		out := receive(t, done)

		if out.Kind() != TimedOut {
			t.Fatalf("Kind() = %v, want %v", out.Kind(), TimedOut)
		}
		if got := calls.Load(); got != 3 {
			t.Errorf("probe calls = %d, want 3", got)
		}
	})

	t.Run("stop immediately", func(t *testing.T) {
		cfg := mustConfig(t, time.Hour, time.Second, WithBackOff(func() backoff.BackOff {
			return &backoff.StopBackOff{}
		}))
		probe, calls := countingProbe(0)

		out := Poll(context.Background(), probe, cfg)

		if out.Kind() != TimedOut {
			t.Fatalf("Kind() = %v, want %v", out.Kind(), TimedOut)
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("probe calls = %d, want 1", got)
		}
	})

	t.Run("fresh schedule per poll", func(t *testing.T) {
		var created atomic.Int32
		cfg := mustConfig(t, time.Hour, time.Second, WithBackOff(func() backoff.BackOff {
			created.Add(1)
			return &backoff.StopBackOff{}
		}))
		probe, _ := countingProbe(0)

		Poll(context.Background(), probe, cfg)
		Poll(context.Background(), probe, cfg)

		if got := created.Load(); got != 2 {
			t.Errorf("backoff factory calls = %d, want 2", got)
		}
	})
}

// TestPoll_InvalidConfigNeverInvokesProbe verifies that an unusable config
// is rejected before any attempt.
func TestPoll_InvalidConfigNeverInvokesProbe(t *testing.T) {
	probe, calls := countingProbe(1)

	out := Poll(context.Background(), probe, PollConfig{})

	if out.Kind() != Failed {
		t.Fatalf("Kind() = %v, want %v", out.Kind(), Failed)
	}
	var ce *ConfigError
	if !errors.As(out.Err(), &ce) {
		t.Fatalf("Err() = %T, want *ConfigError", out.Err())
	}
	if ce.Field != "timeout" {
		t.Errorf("ConfigError.Field = %q, want %q", ce.Field, "timeout")
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("probe calls = %d, want 0", got)
	}
}

func TestPoll_NilProbe(t *testing.T) {
	out := Poll[int](context.Background(), nil, DefaultPollConfig())

	var ce *ConfigError
	if !errors.As(out.Err(), &ce) {
		t.Fatalf("Err() = %v, want *ConfigError", out.Err())
	}
}

// TestPoll_Idempotent verifies that polling the same fixed fact twice gives
// the same outcome both times.
func TestPoll_Idempotent(t *testing.T) {
	cfg := mustConfig(t, 50*time.Millisecond, 10*time.Millisecond)
	fact := map[string]string{"CLNT_STAT": "ACTIVE"}
	probe := Value(func(ctx context.Context) (string, error) {
		return fact["CLNT_STAT"], nil
	}, func(s string) bool { return s == "ACTIVE" })

	first := Poll(context.Background(), probe, cfg)
	second := Poll(context.Background(), probe, cfg)

	if first.Kind() != second.Kind() || first.Value() != second.Value() {
		t.Errorf("outcomes differ: (%v, %q) vs (%v, %q)",
			first.Kind(), first.Value(), second.Kind(), second.Value())
	}
	if first.Kind() != Succeeded {
		t.Errorf("Kind() = %v, want %v", first.Kind(), Succeeded)
	}
}

// TestPoll_WallClockBounds checks the timing bounds against the real clock.
func TestPoll_WallClockBounds(t *testing.T) {
	const (
		timeout  = 100 * time.Millisecond
		interval = 20 * time.Millisecond
		slack    = 50 * time.Millisecond
	)
	cfg := mustConfig(t, timeout, interval)
	probe, _ := countingProbe(0)

	start := time.Now()
	out := Poll(context.Background(), probe, cfg)
	elapsed := time.Since(start)

	if out.Kind() != TimedOut {
		t.Fatalf("Kind() = %v, want %v", out.Kind(), TimedOut)
	}
	if elapsed < timeout {
		t.Errorf("elapsed = %v, want at least %v", elapsed, timeout)
	}
	if elapsed > timeout+interval+slack {
		t.Errorf("elapsed = %v, want at most %v", elapsed, timeout+interval+slack)
	}
}

// TestPoll_CancellationLatency verifies that cancellation interrupts a long
// sleep instead of waiting out the interval.
func TestPoll_CancellationLatency(t *testing.T) {
	cfg := mustConfig(t, time.Minute, 30*time.Second)
	probe, _ := countingProbe(0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	out := Poll(ctx, probe, cfg)
	elapsed := time.Since(start)

	if out.Kind() != Cancelled {
		t.Fatalf("Kind() = %v, want %v", out.Kind(), Cancelled)
	}
	if !errors.Is(out.Err(), context.DeadlineExceeded) {
		t.Errorf("Err() = %v, want to wrap context.DeadlineExceeded", out.Err())
	}
	if elapsed > time.Second {
		t.Errorf("elapsed = %v, want well under the 30s interval", elapsed)
	}
}

// TestPoll_ConcurrentCallers verifies that independent polls share no state.
// Run with: go test -race .
func TestPoll_ConcurrentCallers(t *testing.T) {
	cfg := mustConfig(t, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int32) {
			defer wg.Done()
			probe, calls := countingProbe(n%4 + 1)
			out := Poll(context.Background(), probe, cfg)
			if !out.OK() {
				t.Errorf("poll %d: Kind() = %v, want %v", n, out.Kind(), Succeeded)
			}
			if got := calls.Load(); got != n%4+1 {
				t.Errorf("poll %d: probe calls = %d, want %d", n, got, n%4+1)
			}
		}(int32(i))
	}
	wg.Wait()
}

func TestWait(t *testing.T) {
	cfg := mustConfig(t, time.Second, 10*time.Millisecond)

	got, err := Wait(context.Background(), func(ctx context.Context) (string, bool, error) {
		return "found", true, nil
	}, cfg)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got != "found" {
		t.Errorf("Wait() = %q, want %q", got, "found")
	}

	_, err = Wait(context.Background(), func(ctx context.Context) (string, bool, error) {
		return "", false, errBoom
	}, cfg)
	if !errors.Is(err, errBoom) {
		t.Errorf("Wait() error = %v, want errBoom", err)
	}
}

func TestUntil(t *testing.T) {
	cfg := mustConfig(t, 30*time.Millisecond, 10*time.Millisecond)

	var n atomic.Int32
	err := Until(context.Background(), cfg, func(ctx context.Context) (bool, error) {
		return n.Add(1) >= 2, nil
	})
	if err != nil {
		t.Errorf("Until() error = %v, want nil", err)
	}

	err = Until(context.Background(), cfg, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, ErrTimedOut) {
		t.Errorf("Until() error = %v, want ErrTimedOut", err)
	}
}
