// ABOUTME: The durable FlowState document and its strict validation.
// ABOUTME: One JSON document; unknown phases/statuses fail resume loudly.

package flow

import (
	"fmt"
	"time"
)

const stateVersion = "1"

// PhaseState is the persisted record for one phase.
type PhaseState struct {
	Status      PhaseStatus `json:"status"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Retries     int         `json:"retries"`
	LastError   string      `json:"last_error,omitempty"`
}

// Config is the workflow configuration persisted with the state so a resume
// runs under the same knobs as the original invocation.
type Config struct {
	MaxParallelTasks    int  `json:"max_parallel_tasks"`
	RetryBudgetPerPhase int  `json:"retry_budget_per_phase"`
	AutoCommit          bool `json:"auto_commit"`
}

// Validate rejects unusable scheduler configuration.
func (c Config) Validate() error {
	if c.MaxParallelTasks < 1 {
		return fmt.Errorf("max_parallel_tasks must be >= 1, got %d", c.MaxParallelTasks)
	}
	if c.RetryBudgetPerPhase < 0 {
		return fmt.Errorf("retry_budget_per_phase must be >= 0, got %d", c.RetryBudgetPerPhase)
	}
	return nil
}

// State is the complete durable workflow snapshot.
type State struct {
	Version      string                 `json:"version"`
	Tag          string                 `json:"tag,omitempty"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CurrentPhase string                 `json:"current_phase,omitempty"`
	Phases       map[string]*PhaseState `json:"phases"`
	Config       Config                 `json:"config"`
}

// NewState creates a fresh state with every phase pending.
func NewState(tag string, cfg Config) *State {
	now := time.Now().UTC()
	s := &State{
		Version:   stateVersion,
		Tag:       tag,
		StartedAt: &now,
		Phases:    make(map[string]*PhaseState, len(Sequence())),
		Config:    cfg,
	}
	for _, p := range Sequence() {
		s.Phases[string(p)] = &PhaseState{Status: PhasePending}
	}
	return s
}

// Validate checks a loaded document. Readers must treat unknown phase names
// or status values as fatal for resume rather than silently ignoring them.
func (s *State) Validate() error {
	if s.Version != stateVersion {
		return fmt.Errorf("unsupported flow state version %q", s.Version)
	}
	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("flow state config: %w", err)
	}
	if s.CurrentPhase != "" {
		if _, err := ParsePhase(s.CurrentPhase); err != nil {
			return fmt.Errorf("flow state: %w", err)
		}
	}
	for name, ps := range s.Phases {
		if _, err := ParsePhase(name); err != nil {
			return fmt.Errorf("flow state: %w", err)
		}
		if ps == nil {
			return fmt.Errorf("flow state: phase %q has no record", name)
		}
		if _, err := ParsePhaseStatus(string(ps.Status)); err != nil {
			return fmt.Errorf("flow state phase %q: %w", name, err)
		}
		if ps.Retries < 0 {
			return fmt.Errorf("flow state phase %q: negative retries", name)
		}
	}
	for _, p := range Sequence() {
		if _, ok := s.Phases[string(p)]; !ok {
			return fmt.Errorf("flow state: missing phase %q", p)
		}
	}
	return nil
}

// Phase returns the record for p, which always exists on a validated state.
func (s *State) Phase(p Phase) *PhaseState {
	return s.Phases[string(p)]
}
