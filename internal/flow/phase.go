// ABOUTME: Closed phase enum, phase status values, and strict parsing.
// ABOUTME: Unknown names or statuses are fatal for resume, never ignored.

package flow

import "fmt"

// Phase is one stage of the fixed workflow sequence.
type Phase string

const (
	PhaseIngest      Phase = "ingest"
	PhaseReviewGraph Phase = "review_graph"
	PhasePlanTasks   Phase = "plan_tasks"
	PhaseImplement   Phase = "implement"
	PhaseQA          Phase = "qa"
	PhaseSummarize   Phase = "summarize"
)

// Sequence returns the phases in execution order.
func Sequence() []Phase {
	return []Phase{
		PhaseIngest,
		PhaseReviewGraph,
		PhasePlanTasks,
		PhaseImplement,
		PhaseQA,
		PhaseSummarize,
	}
}

// ParsePhase validates a phase name from a persisted document.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseIngest, PhaseReviewGraph, PhasePlanTasks, PhaseImplement, PhaseQA, PhaseSummarize:
		return Phase(s), nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// PhaseStatus is the lifecycle state of one phase.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseActive    PhaseStatus = "active"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseSkipped   PhaseStatus = "skipped"
)

// ParsePhaseStatus validates a status value from a persisted document.
func ParsePhaseStatus(s string) (PhaseStatus, error) {
	switch PhaseStatus(s) {
	case PhasePending, PhaseActive, PhaseCompleted, PhaseFailed, PhaseSkipped:
		return PhaseStatus(s), nil
	}
	return "", fmt.Errorf("unknown phase status %q", s)
}
