package report

import (
	"time"

	"github.com/jpalmerr/dbwait/internal/runner"
)

// Entry represents a finished wait in storage.
//
// Entry is decoupled from the runner's Result so that it can be serialized
// to JSON without carrying error values or durations in nanoseconds.
type Entry struct {
	// Name is the wait's display name.
	Name string `json:"name"`

	// Outcome is how the wait ended ("succeeded", "timed_out", ...).
	Outcome string `json:"outcome"`

	// Labels contains key-value metadata such as grid dimension values.
	Labels map[string]string `json:"labels,omitempty"`

	// Value is the last value the probe observed.
	Value string `json:"value,omitempty"`

	// Attempts is the number of probe invocations.
	Attempts int `json:"attempts"`

	// ElapsedMs is the poll duration in milliseconds.
	ElapsedMs int64 `json:"elapsed_ms"`

	// FinishedAt is the timestamp when the wait ended.
	FinishedAt time.Time `json:"finished_at"`

	// RunID identifies the batch the wait ran in.
	RunID string `json:"run_id"`

	// Error contains the error message if the wait did not succeed.
	Error *string `json:"error"`
}

// FromResult converts a runner result to its storage representation.
func FromResult(r runner.Result) Entry {
	e := Entry{
		Name:       r.Name,
		Outcome:    r.Kind.String(),
		Labels:     r.Labels,
		Value:      r.Value,
		Attempts:   r.Attempts,
		ElapsedMs:  r.Elapsed.Milliseconds(),
		FinishedAt: r.FinishedAt,
		RunID:      r.RunID,
	}
	if r.Err != nil {
		msg := r.Err.Error()
		e.Error = &msg
	}
	return e
}

// Succeeded reports whether the wait ended with its condition satisfied.
func (e Entry) Succeeded() bool {
	return e.Error == nil && e.Outcome == "succeeded"
}

// Store defines the interface for storing wait results.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores an entry. Entries are keyed by Name, so a later update
	// replaces the previous value.
	Update(entry Entry)

	// GetAll returns all stored entries ordered by name.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []Entry
}
