// ABOUTME: Append and query operations for run-history events.
// ABOUTME: Agent lifecycle, task transitions, and per-wave summaries.

package store

import (
	"context"
	"fmt"
	"time"
)

// AgentEvent is one agent lifecycle record.
type AgentEvent struct {
	ID        int64
	RunID     string
	AgentID   string
	Event     string
	Reason    string
	CreatedAt time.Time
}

// TaskEvent is one task status transition record.
type TaskEvent struct {
	ID        int64
	RunID     string
	TaskID    string
	Wave      int
	Status    string
	CreatedAt time.Time
}

// WaveEvent is one per-wave summary record.
type WaveEvent struct {
	ID        int64
	RunID     string
	Wave      int
	Done      int
	Failed    int
	Blocked   int
	Duration  time.Duration
	CreatedAt time.Time
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID     string
	Tasks     int
	Failed    int
	StartedAt time.Time
}

// RecordAgentEvent appends an agent lifecycle event.
func (s *Store) RecordAgentEvent(ctx context.Context, runID, agentID, event, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_events (run_id, agent_id, event, reason) VALUES (?, ?, ?, ?)`,
		runID, agentID, event, reason)
	if err != nil {
		return fmt.Errorf("recording agent event: %w", err)
	}
	return nil
}

// RecordTaskEvent appends a task status transition.
func (s *Store) RecordTaskEvent(ctx context.Context, runID, taskID string, wave int, status string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_events (run_id, task_id, wave, status) VALUES (?, ?, ?, ?)`,
		runID, taskID, wave, status)
	if err != nil {
		return fmt.Errorf("recording task event: %w", err)
	}
	return nil
}

// RecordWaveEvent appends a per-wave summary.
func (s *Store) RecordWaveEvent(ctx context.Context, runID string, wave, done, failed, blocked int, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wave_events (run_id, wave, done, failed, blocked, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, wave, done, failed, blocked, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("recording wave event: %w", err)
	}
	return nil
}

// ListAgentEvents returns all agent events for a run in insertion order.
func (s *Store) ListAgentEvents(ctx context.Context, runID string) ([]AgentEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, agent_id, event, reason, created_at
		 FROM agent_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing agent events: %w", err)
	}
	defer rows.Close()

	var events []AgentEvent
	for rows.Next() {
		var e AgentEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.AgentID, &e.Event, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning agent event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListTaskEvents returns all task events for a run in insertion order.
func (s *Store) ListTaskEvents(ctx context.Context, runID string) ([]TaskEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, task_id, wave, status, created_at
		 FROM task_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing task events: %w", err)
	}
	defer rows.Close()

	var events []TaskEvent
	for rows.Next() {
		var e TaskEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.TaskID, &e.Wave, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning task event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListWaveEvents returns all wave summaries for a run in wave order.
func (s *Store) ListWaveEvents(ctx context.Context, runID string) ([]WaveEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, wave, done, failed, blocked, duration_ms, created_at
		 FROM wave_events WHERE run_id = ? ORDER BY wave`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing wave events: %w", err)
	}
	defer rows.Close()

	var events []WaveEvent
	for rows.Next() {
		var e WaveEvent
		var ms int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Wave, &e.Done, &e.Failed, &e.Blocked, &ms, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning wave event: %w", err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListRuns returns recent runs, newest first, summarized from task events.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id,
		        COUNT(DISTINCT task_id),
		        COUNT(DISTINCT CASE WHEN status = 'failed' THEN task_id END),
		        MIN(created_at)
		 FROM task_events
		 GROUP BY run_id
		 ORDER BY MIN(created_at) DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Tasks, &r.Failed, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning run summary: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
