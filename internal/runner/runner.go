package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/dbwait"
	"github.com/jpalmerr/dbwait/sqlprobe"
)

// Result holds the outcome of a single wait.
type Result struct {
	// Name is the display name of the wait.
	Name string

	// Labels contains the key-value metadata of the wait, such as grid
	// dimension values.
	Labels map[string]string

	// Kind is how the wait ended.
	Kind dbwait.OutcomeKind

	// Value is a printable rendering of the last observed probe value.
	Value string

	// Attempts is the number of probe invocations.
	Attempts int

	// Elapsed is the time from the start of the poll to its end.
	Elapsed time.Duration

	// FinishedAt is the timestamp when the wait ended.
	FinishedAt time.Time

	// Err is nil only when Kind is Succeeded and any schema change was
	// reverted cleanly.
	Err error

	// RunID identifies the batch the wait ran in.
	RunID string
}

// SchemaStep is a schema change applied before a wait and reverted after it.
type SchemaStep struct {
	DB     sqlprobe.Execer
	Change sqlprobe.SchemaChange
}

// Task contains everything needed to run one wait.
type Task struct {
	// Name is the display name of the wait.
	Name string

	// Labels contains key-value metadata copied onto the result.
	Labels map[string]string

	// Config controls timing and retry behaviour of the poll.
	Config dbwait.PollConfig

	// Probe is invoked until it reports the condition satisfied.
	Probe dbwait.Probe[string]

	// Schema, if set, wraps the poll in a schema change.
	Schema *SchemaStep
}

// Runner runs a batch of waits concurrently.
//
// Runner implements a worker pool pattern: at most maxConcurrency waits poll
// at the same time. Each wait produces exactly one [Result] on the results
// channel, which is closed once every wait has finished or the runner is
// stopped.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Runner struct {
	tasks          []Task
	maxConcurrency int
	results        chan Result
	logger         *slog.Logger
	runID          string
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewRunner creates a new [Runner].
//
// Parameters:
//   - tasks: Waits to run
//   - maxConcurrency: Maximum number of waits polling at once; values below
//     one are treated as one
//   - logger: Logger for per-wait results and probe panics; nil uses
//     slog.Default()
//
// The runner must be started with [Runner.Start]. Results are available via
// [Runner.Results].
func NewRunner(tasks []Task, maxConcurrency int, logger *slog.Logger) *Runner {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		tasks:          tasks,
		maxConcurrency: maxConcurrency,
		results:        make(chan Result, len(tasks)),
		logger:         logger,
		runID:          uuid.NewString(),
	}
}

// RunID returns the identifier attached to every result of this runner.
func (r *Runner) RunID() string {
	return r.runID
}

// Results returns a receive-only channel that emits one [Result] per task.
//
// The channel is closed when the batch finishes or the runner stops.
func (r *Runner) Results() <-chan Result {
	return r.results
}

// Start runs the batch in a background goroutine and returns immediately.
//
// If ctx is nil, context.Background() is used as the parent context.
// Cancelling ctx ends every in-flight wait as Cancelled.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("starting waits", "run_id", r.runID, "waits", len(r.tasks), "max_concurrency", r.maxConcurrency)

	go func() {
		defer r.wg.Done()
		defer r.closeOnce.Do(func() { close(r.results) })
		defer cancel()

		r.runTasks(runCtx)
	}()
}

// Stop cancels in-flight waits and blocks until they have reported and the
// results channel is closed.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		if r.cancel != nil {
			r.cancel()
		}
	}
	r.mu.Unlock()

	r.wg.Wait()

	// ensure channel is closed even if Start() was never called
	r.closeOnce.Do(func() { close(r.results) })
}

// runTasks runs every task, respecting maxConcurrency.
func (r *Runner) runTasks(ctx context.Context) {
	jobs := make(chan Task, len(r.tasks))
	for _, t := range r.tasks {
		jobs <- t
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < r.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				// results is buffered for every task, so this never blocks
				r.results <- r.runTask(ctx, t)
			}
		}()
	}
	wg.Wait()
}

// runTask polls a single task and returns the result.
func (r *Runner) runTask(ctx context.Context, t Task) Result {
	probe := r.safeProbe(t.Name, t.Probe)

	// Poll keeps only the satisfying value; keep the last observed one so a
	// timed out wait still reports what it saw.
	var last string
	if probe != nil {
		inner := probe
		probe = func(ctx context.Context) (string, bool, error) {
			v, ok, err := inner(ctx)
			if err == nil {
				last = v
			}
			return v, ok, err
		}
	}

	var out dbwait.Outcome[string]
	poll := func(ctx context.Context) error {
		out = dbwait.Poll(ctx, probe, t.Config)
		return out.Err()
	}

	var err error
	if t.Schema != nil {
		err = sqlprobe.WithSchemaChange(ctx, t.Schema.DB, t.Schema.Change, poll)
	} else {
		err = poll(ctx)
	}

	kind := out.Kind()
	// apply failed before polling, or the poll succeeded but the revert did not
	if kind == "" || (kind == dbwait.Succeeded && err != nil) {
		kind = dbwait.Failed
	}

	value := out.Value()
	if kind != dbwait.Succeeded {
		value = last
	}

	result := Result{
		Name:       t.Name,
		Labels:     t.Labels,
		Kind:       kind,
		Value:      value,
		Attempts:   out.Attempts(),
		Elapsed:    out.Elapsed(),
		FinishedAt: time.Now(),
		Err:        err,
		RunID:      r.runID,
	}
	r.logResult(result)
	return result
}

func (r *Runner) logResult(res Result) {
	attrs := []any{
		"run_id", res.RunID,
		"wait", res.Name,
		"outcome", res.Kind.String(),
		"attempts", res.Attempts,
		"elapsed", res.Elapsed,
	}
	if res.Kind == dbwait.Succeeded {
		r.logger.Debug("wait finished", attrs...)
		return
	}
	r.logger.Warn("wait finished", append(attrs, "error", res.Err)...)
}

// safeProbe wraps probe with panic recovery.
// If the probe panics, it logs the full stack trace with a correlation ID
// and fails the attempt with an error containing the ID. The error is not
// retryable, so the wait ends as Failed.
func (r *Runner) safeProbe(name string, probe dbwait.Probe[string]) dbwait.Probe[string] {
	if probe == nil {
		return nil
	}
	return func(ctx context.Context) (value string, satisfied bool, err error) {
		defer func() {
			if p := recover(); p != nil {
				correlationID := uuid.NewString()
				stack := debug.Stack()

				r.logger.Error("probe panic",
					"run_id", r.runID,
					"wait", name,
					"correlation_id", correlationID,
					"panic", fmt.Sprintf("%v", p),
					"stack", string(stack),
				)

				value, satisfied = "", false
				err = fmt.Errorf("probe panic (correlation_id: %s)", correlationID)
			}
		}()
		return probe(ctx)
	}
}
