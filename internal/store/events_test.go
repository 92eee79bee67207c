// ABOUTME: Tests for run-history event recording and queries.
// ABOUTME: Real sqlite database in a temp directory per test.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAgentEvents_RecordAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordAgentEvent(ctx, "run-1", "agent-a", "spawned", ""))
	require.NoError(t, s.RecordAgentEvent(ctx, "run-1", "agent-a", "failed", "exit status 2"))
	require.NoError(t, s.RecordAgentEvent(ctx, "run-2", "agent-b", "spawned", ""))

	events, err := s.ListAgentEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "spawned", events[0].Event)
	assert.Equal(t, "failed", events[1].Event)
	assert.Equal(t, "exit status 2", events[1].Reason)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestTaskEvents_RecordAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTaskEvent(ctx, "run-1", "build", 0, "dispatched"))
	require.NoError(t, s.RecordTaskEvent(ctx, "run-1", "build", 0, "done"))
	require.NoError(t, s.RecordTaskEvent(ctx, "run-1", "test", 1, "blocked"))

	events, err := s.ListTaskEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "build", events[0].TaskID)
	assert.Equal(t, "done", events[1].Status)
	assert.Equal(t, 1, events[2].Wave)
}

func TestWaveEvents_RecordAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordWaveEvent(ctx, "run-1", 1, 2, 1, 0, 1500*time.Millisecond))
	require.NoError(t, s.RecordWaveEvent(ctx, "run-1", 0, 3, 0, 0, 250*time.Millisecond))

	events, err := s.ListWaveEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Ordered by wave index regardless of insertion order.
	assert.Equal(t, 0, events[0].Wave)
	assert.Equal(t, 3, events[0].Done)
	assert.Equal(t, 250*time.Millisecond, events[0].Duration)
	assert.Equal(t, 1, events[1].Failed)
}

func TestListRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTaskEvent(ctx, "run-1", "a", 0, "done"))
	require.NoError(t, s.RecordTaskEvent(ctx, "run-1", "b", 0, "failed"))
	require.NoError(t, s.RecordTaskEvent(ctx, "run-2", "a", 0, "done"))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]RunSummary{}
	for _, r := range runs {
		byID[r.RunID] = r
	}
	assert.Equal(t, 2, byID["run-1"].Tasks)
	assert.Equal(t, 1, byID["run-1"].Failed)
	assert.Equal(t, 1, byID["run-2"].Tasks)
	assert.Equal(t, 0, byID["run-2"].Failed)
}

func TestListEvents_EmptyRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	events, err := s.ListAgentEvents(ctx, "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, events)
}
