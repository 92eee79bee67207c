// Package scheduler dispatches task waves with bounded parallelism.
//
// The scheduler walks the waves derived by internal/graph in order. Within a
// wave every eligible task is dispatched concurrently, but never more than
// MaxParallel at once; a freed slot is reused immediately rather than
// waiting for the whole batch to drain. A failed task marks every task
// transitively depending on it as blocked; blocked tasks are never
// dispatched. The scheduler reports per-wave terminal counts and leaves the
// tolerate-or-abort decision to its caller.
package scheduler
