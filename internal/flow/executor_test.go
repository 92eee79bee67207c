// ABOUTME: Tests for the phase executor — resume, retries, and recovery decisions.
// ABOUTME: Phase bodies are in-test functions; persistence uses a real temp file.

package flow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExecutor(t *testing.T, state *State, handlers Handlers) (*Executor, *Store) {
	t.Helper()
	st := NewStore(filepath.Join(t.TempDir(), "flow-state.json"))
	exec, err := NewExecutor(st, state, handlers, Options{})
	require.NoError(t, err)
	return exec, st
}

func TestRun_AllPhasesComplete(t *testing.T) {
	var order []Phase
	record := func(p Phase) PhaseFunc {
		return func(context.Context) error {
			order = append(order, p)
			return nil
		}
	}

	exec, st := testExecutor(t, NewState("tag", testConfig()), Handlers{
		Ingest:      record(PhaseIngest),
		ReviewGraph: record(PhaseReviewGraph),
		PlanTasks:   record(PhasePlanTasks),
		Implement:   record(PhaseImplement),
		QA:          record(PhaseQA),
		Summarize:   record(PhaseSummarize),
	})

	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, Sequence(), order)

	loaded, err := st.Load()
	require.NoError(t, err)
	for _, p := range Sequence() {
		assert.Equal(t, PhaseCompleted, loaded.Phase(p).Status, "phase %s", p)
		assert.NotNil(t, loaded.Phase(p).CompletedAt)
	}
	assert.Empty(t, loaded.CurrentPhase)
}

func TestRun_NilHandlersAreNoOps(t *testing.T) {
	exec, _ := testExecutor(t, NewState("", testConfig()), Handlers{})
	require.NoError(t, exec.Run(context.Background()))
	for _, p := range Sequence() {
		assert.Equal(t, PhaseCompleted, exec.State().Phase(p).Status)
	}
}

func TestRun_ResumeSkipsCompletedPhases(t *testing.T) {
	state := NewState("resume", testConfig())
	state.Phase(PhaseIngest).Status = PhaseCompleted
	state.Phase(PhaseReviewGraph).Status = PhaseCompleted

	var ran []Phase
	record := func(p Phase) PhaseFunc {
		return func(context.Context) error {
			ran = append(ran, p)
			return nil
		}
	}
	exec, _ := testExecutor(t, state, Handlers{
		Ingest:      record(PhaseIngest),
		ReviewGraph: record(PhaseReviewGraph),
		PlanTasks:   record(PhasePlanTasks),
		Implement:   record(PhaseImplement),
		QA:          record(PhaseQA),
		Summarize:   record(PhaseSummarize),
	})

	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, []Phase{PhasePlanTasks, PhaseImplement, PhaseQA, PhaseSummarize}, ran)
}

func TestRun_RecoverableRetriesThenSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBudgetPerPhase = 1

	calls := 0
	exec, st := testExecutor(t, NewState("", cfg), Handlers{
		Implement: func(context.Context) error {
			calls++
			if calls == 1 {
				return Failf(SeverityRecoverable, "transient")
			}
			return nil
		},
	})

	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, 2, calls)

	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, loaded.Phase(PhaseImplement).Status)
	assert.Equal(t, 1, loaded.Phase(PhaseImplement).Retries)
}

func TestRun_RetryBudgetExhaustedAborts(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBudgetPerPhase = 2

	calls := 0
	exec, st := testExecutor(t, NewState("", cfg), Handlers{
		QA: func(context.Context) error {
			calls++
			return Failf(SeverityRecoverable, "still broken")
		},
	})

	err := exec.Run(context.Background())
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, PhaseQA, failure.Phase)
	assert.Equal(t, SeverityCritical, failure.Severity)
	// Initial attempt plus the full budget.
	assert.Equal(t, 3, calls)

	loaded, lerr := st.Load()
	require.NoError(t, lerr)
	assert.Equal(t, PhaseFailed, loaded.Phase(PhaseQA).Status)
	// Phases after the failed one never start.
	assert.Equal(t, PhasePending, loaded.Phase(PhaseSummarize).Status)
}

func TestRun_CriticalAbortsImmediately(t *testing.T) {
	calls := 0
	exec, _ := testExecutor(t, NewState("", testConfig()), Handlers{
		Ingest: func(context.Context) error {
			calls++
			return Failf(SeverityCritical, "bad input")
		},
	})

	err := exec.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, SeverityCritical, failure.Severity)
}

func TestRun_IgnorableSkips(t *testing.T) {
	exec, st := testExecutor(t, NewState("", testConfig()), Handlers{
		QA: func(context.Context) error {
			return Failf(SeverityIgnorable, "cosmetic")
		},
	})

	require.NoError(t, exec.Run(context.Background()))

	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, PhaseSkipped, loaded.Phase(PhaseQA).Status)
	assert.Equal(t, PhaseCompleted, loaded.Phase(PhaseSummarize).Status)
}

func TestRun_SkippedPhaseNotRerunOnResume(t *testing.T) {
	state := NewState("", testConfig())
	state.Phase(PhaseQA).Status = PhaseSkipped

	ran := false
	exec, _ := testExecutor(t, state, Handlers{
		QA: func(context.Context) error {
			ran = true
			return nil
		},
	})

	require.NoError(t, exec.Run(context.Background()))
	assert.False(t, ran)
}

func TestRun_PlainErrorsDefaultRecoverable(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBudgetPerPhase = 1

	calls := 0
	exec, _ := testExecutor(t, NewState("", cfg), Handlers{
		PlanTasks: func(context.Context) error {
			calls++
			if calls == 1 {
				return errors.New("unclassified")
			}
			return nil
		},
	})

	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestRun_ContextCancelledAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec, _ := testExecutor(t, NewState("", testConfig()), Handlers{})
	err := exec.Run(ctx)
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, SeverityCritical, failure.Severity)
}

func TestRun_CustomDecider(t *testing.T) {
	exec, st := testExecutor(t, NewState("", testConfig()), Handlers{
		Implement: func(context.Context) error {
			return Failf(SeverityRecoverable, "flaky")
		},
	})
	// Skip instead of the default retry.
	exec.decider = deciderFunc(func(context.Context, *Failure, int) Decision {
		return DecisionSkip
	})

	require.NoError(t, exec.Run(context.Background()))
	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, PhaseSkipped, loaded.Phase(PhaseImplement).Status)
}

type deciderFunc func(ctx context.Context, failure *Failure, retries int) Decision

func (f deciderFunc) Decide(ctx context.Context, failure *Failure, retries int) Decision {
	return f(ctx, failure, retries)
}
