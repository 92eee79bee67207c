// Package flow drives the fixed multi-phase workflow with durable,
// resumable state.
//
// # Phases
//
// The sequence is closed and ordered:
//
//	ingest -> review_graph -> plan_tasks -> implement -> qa -> summarize
//
// Phases are a closed enum with an exhaustive handler table (Handlers), so
// adding or removing a phase is a compile-time-checked change.
//
// # Persistence
//
// FlowState is owned exclusively by the Executor and persisted with atomic
// replace-on-write: the new document is written to a temp file in the same
// directory, fsynced, and renamed over the old one. A concurrent reader
// never observes a partial write. State is saved on phase entry (so a crash
// between "marked active" and "work started" simply re-runs the phase) and
// again after every transition.
//
// # Recovery
//
// A phase failure carries a severity (critical, recoverable, ignorable) and
// is answered with a decision (retry, skip, abort). Retries are counted per
// phase and bounded; exhausting the budget escalates to abort. The Executor
// is the only component that may halt the workflow.
package flow
