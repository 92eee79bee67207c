// ABOUTME: Phase executor — resumable state machine over the fixed phase sequence.
// ABOUTME: Persist-on-entry, persist-on-transition, bounded retries, recovery decisions.

package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Severity classifies a phase failure for the recovery decision.
type Severity string

const (
	SeverityCritical    Severity = "critical"
	SeverityRecoverable Severity = "recoverable"
	SeverityIgnorable   Severity = "ignorable"
)

// Decision is the recovery action for a failed phase.
type Decision string

const (
	DecisionRetry Decision = "retry"
	DecisionSkip  Decision = "skip"
	DecisionAbort Decision = "abort"
)

// Failure is a classified phase failure.
type Failure struct {
	Phase    Phase
	Severity Severity
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("phase %s failed (%s): %v", f.Phase, f.Severity, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Failf builds a classified failure.
func Failf(severity Severity, format string, args ...any) *Failure {
	return &Failure{Severity: severity, Err: fmt.Errorf(format, args...)}
}

// PhaseFunc is the body of one phase. Returning a *Failure sets the
// severity explicitly; any other error is treated as recoverable.
type PhaseFunc func(ctx context.Context) error

// Handlers binds a body to every phase. The struct is exhaustive over the
// phase enum; a nil handler is a successful no-op phase.
type Handlers struct {
	Ingest      PhaseFunc
	ReviewGraph PhaseFunc
	PlanTasks   PhaseFunc
	Implement   PhaseFunc
	QA          PhaseFunc
	Summarize   PhaseFunc
}

func (h Handlers) handler(p Phase) PhaseFunc {
	switch p {
	case PhaseIngest:
		return h.Ingest
	case PhaseReviewGraph:
		return h.ReviewGraph
	case PhasePlanTasks:
		return h.PlanTasks
	case PhaseImplement:
		return h.Implement
	case PhaseQA:
		return h.QA
	case PhaseSummarize:
		return h.Summarize
	}
	return nil
}

// Decider supplies the recovery decision for a classified failure.
type Decider interface {
	Decide(ctx context.Context, failure *Failure, retries int) Decision
}

// PolicyDecider is the default mapping: critical aborts, recoverable
// retries (the executor bounds the retry count), ignorable skips.
type PolicyDecider struct{}

// Decide implements Decider.
func (PolicyDecider) Decide(_ context.Context, failure *Failure, _ int) Decision {
	switch failure.Severity {
	case SeverityCritical:
		return DecisionAbort
	case SeverityIgnorable:
		return DecisionSkip
	default:
		return DecisionRetry
	}
}

// Options configures an Executor.
type Options struct {
	// Decider resolves failures; defaults to PolicyDecider.
	Decider Decider
	Logger  *slog.Logger
}

// Executor owns a FlowState and drives it through the phase sequence.
type Executor struct {
	store    *Store
	state    *State
	handlers Handlers
	decider  Decider
	logger   *slog.Logger
}

// NewExecutor creates an executor over a state the caller loaded or created.
// The executor has exclusive ownership of the state from here on.
func NewExecutor(store *Store, state *State, handlers Handlers, opts Options) (*Executor, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	if opts.Decider == nil {
		opts.Decider = PolicyDecider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{
		store:    store,
		state:    state,
		handlers: handlers,
		decider:  opts.Decider,
		logger:   opts.Logger.With("component", "flow"),
	}, nil
}

// State returns the executor's state for inspection. Callers must not
// mutate it.
func (e *Executor) State() *State {
	return e.state
}

// Run executes the sequence from the first non-completed phase. Phases
// already completed or skipped are not re-run. Run returns nil when the
// whole sequence finished, or the aborting *Failure.
func (e *Executor) Run(ctx context.Context) error {
	for _, phase := range Sequence() {
		ps := e.state.Phase(phase)
		if ps.Status == PhaseCompleted || ps.Status == PhaseSkipped {
			e.logger.Debug("phase already terminal, skipping", "phase", phase, "status", ps.Status)
			continue
		}
		if err := e.runPhase(ctx, phase); err != nil {
			return err
		}
	}

	e.state.CurrentPhase = ""
	if err := e.store.Save(e.state); err != nil {
		return err
	}
	e.logger.Info("workflow complete", "tag", e.state.Tag)
	return nil
}

// runPhase drives one phase through its retry loop to a terminal status.
func (e *Executor) runPhase(ctx context.Context, phase Phase) error {
	ps := e.state.Phase(phase)
	budget := e.state.Config.RetryBudgetPerPhase

	for {
		if err := ctx.Err(); err != nil {
			return e.abort(phase, &Failure{Phase: phase, Severity: SeverityCritical, Err: err})
		}

		// Mark active and persist before doing any work: a crash here is
		// safe, resume just re-runs the phase.
		ps.Status = PhaseActive
		e.state.CurrentPhase = string(phase)
		if err := e.store.Save(e.state); err != nil {
			return err
		}

		e.logger.Info("phase starting", "phase", phase, "retries", ps.Retries)
		start := time.Now()
		err := e.callHandler(ctx, phase)
		if err == nil {
			now := time.Now().UTC()
			ps.Status = PhaseCompleted
			ps.CompletedAt = &now
			ps.LastError = ""
			if serr := e.store.Save(e.state); serr != nil {
				return serr
			}
			e.logger.Info("phase completed", "phase", phase, "duration", time.Since(start))
			return nil
		}

		failure := classify(phase, err)
		ps.LastError = failure.Error()
		e.logger.Warn("phase failed",
			"phase", phase,
			"severity", failure.Severity,
			"retries", ps.Retries,
			"error", failure.Err,
		)

		decision := e.decider.Decide(ctx, failure, ps.Retries)
		if decision == DecisionRetry && ps.Retries >= budget {
			// Retry budget exhaustion is itself critical.
			e.logger.Error("retry budget exhausted", "phase", phase, "budget", budget)
			failure.Severity = SeverityCritical
			decision = DecisionAbort
		}

		switch decision {
		case DecisionRetry:
			ps.Retries++
			if serr := e.store.Save(e.state); serr != nil {
				return serr
			}

		case DecisionSkip:
			ps.Status = PhaseSkipped
			if serr := e.store.Save(e.state); serr != nil {
				return serr
			}
			e.logger.Info("phase skipped", "phase", phase)
			return nil

		case DecisionAbort:
			return e.abort(phase, failure)

		default:
			return e.abort(phase, &Failure{
				Phase:    phase,
				Severity: SeverityCritical,
				Err:      fmt.Errorf("decider returned unknown decision %q", decision),
			})
		}
	}
}

func (e *Executor) callHandler(ctx context.Context, phase Phase) error {
	fn := e.handlers.handler(phase)
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// abort marks the phase failed, persists, and surfaces the failure.
func (e *Executor) abort(phase Phase, failure *Failure) error {
	ps := e.state.Phase(phase)
	ps.Status = PhaseFailed
	ps.LastError = failure.Error()
	if err := e.store.Save(e.state); err != nil {
		e.logger.Error("persisting aborted state", "error", err)
	}
	e.logger.Error("workflow aborted", "phase", phase, "severity", failure.Severity, "error", failure.Err)
	return failure
}

// classify wraps any handler error into a phase-tagged failure. Errors that
// are not already classified default to recoverable.
func classify(phase Phase, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return &Failure{Phase: phase, Severity: f.Severity, Err: f.Err}
	}
	return &Failure{Phase: phase, Severity: SeverityRecoverable, Err: err}
}
