package dbwait

import "context"

// Probe checks whether the awaited condition holds.
//
// A probe returns the observed value, whether that value satisfies the
// condition, and an error if the check itself could not be performed. The
// context is cancelled when the caller gives up or when the per-attempt
// timeout set with [WithProbeTimeout] expires; probes doing I/O should pass
// it on.
//
// [Poll] may invoke a probe many times and never caches or deduplicates its
// results, so a probe must tolerate repeated calls. Any state a probe needs,
// such as a prepared statement, belongs to the caller.
type Probe[T any] func(ctx context.Context) (value T, satisfied bool, err error)

// Check adapts a boolean condition into a [Probe].
//
// Example:
//
//	probe := dbwait.Check(func(ctx context.Context) (bool, error) {
//	    return userExists(ctx, db, userID)
//	})
func Check(fn func(ctx context.Context) (bool, error)) Probe[struct{}] {
	return func(ctx context.Context) (struct{}, bool, error) {
		ok, err := fn(ctx)
		return struct{}{}, ok, err
	}
}

// Value adapts a fetch function and an acceptance predicate into a [Probe].
// The probe is satisfied when fetch succeeds and accept returns true.
//
// Example:
//
//	probe := dbwait.Value(loadStatus, func(s string) bool { return s == "ACTIVE" })
func Value[T any](fetch func(ctx context.Context) (T, error), accept func(T) bool) Probe[T] {
	return func(ctx context.Context) (T, bool, error) {
		v, err := fetch(ctx)
		if err != nil {
			var zero T
			return zero, false, err
		}
		return v, accept(v), nil
	}
}
