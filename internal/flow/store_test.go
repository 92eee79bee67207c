// ABOUTME: Tests for flow state persistence and strict document validation.
// ABOUTME: Atomic replace semantics and fatal unknown phase/status values.

package flow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{MaxParallelTasks: 2, RetryBudgetPerPhase: 3, AutoCommit: true}
}

func TestStore_Roundtrip(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "nested", "flow-state.json"))
	assert.False(t, st.Exists())

	state := NewState("release-1", testConfig())
	state.Phase(PhaseIngest).Status = PhaseCompleted
	require.NoError(t, st.Save(state))
	assert.True(t, st.Exists())

	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "release-1", loaded.Tag)
	assert.Equal(t, PhaseCompleted, loaded.Phase(PhaseIngest).Status)
	assert.Equal(t, PhasePending, loaded.Phase(PhaseQA).Status)
	assert.Equal(t, 2, loaded.Config.MaxParallelTasks)
}

func TestStore_LoadMissing(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "flow-state.json"))
	_, err := st.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStore_SaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(filepath.Join(dir, "flow-state.json"))

	first := NewState("one", testConfig())
	require.NoError(t, st.Save(first))

	second := NewState("two", testConfig())
	require.NoError(t, st.Save(second))

	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "two", loaded.Tag)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "flow-state.json", entries[0].Name())
}

func TestStore_RejectsInvalidState(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "flow-state.json"))
	state := NewState("", testConfig())
	state.Config.MaxParallelTasks = 0
	assert.Error(t, st.Save(state))
}

func writeStateFile(t *testing.T, mutate func(doc map[string]any)) *Store {
	t.Helper()
	st := NewStore(filepath.Join(t.TempDir(), "flow-state.json"))
	require.NoError(t, st.Save(NewState("tag", testConfig())))

	data, err := os.ReadFile(st.Path())
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	mutate(doc)
	data, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(st.Path(), data, 0o644))
	return st
}

func TestStore_UnknownPhaseIsFatal(t *testing.T) {
	st := writeStateFile(t, func(doc map[string]any) {
		phases := doc["phases"].(map[string]any)
		phases["deploy"] = map[string]any{"status": "pending", "retries": 0}
	})
	_, err := st.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deploy")
}

func TestStore_UnknownStatusIsFatal(t *testing.T) {
	st := writeStateFile(t, func(doc map[string]any) {
		phases := doc["phases"].(map[string]any)
		phases["qa"] = map[string]any{"status": "paused", "retries": 0}
	})
	_, err := st.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paused")
}

func TestStore_MissingPhaseIsFatal(t *testing.T) {
	st := writeStateFile(t, func(doc map[string]any) {
		phases := doc["phases"].(map[string]any)
		delete(phases, "summarize")
	})
	_, err := st.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize")
}

func TestStore_CorruptJSON(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "flow-state.json"))
	require.NoError(t, os.WriteFile(st.Path(), []byte("{truncated"), 0o644))
	_, err := st.Load()
	require.Error(t, err)
}

func TestParsePhase(t *testing.T) {
	for _, p := range Sequence() {
		got, err := ParsePhase(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePhase("deploy")
	assert.Error(t, err)
}

func TestParsePhaseStatus(t *testing.T) {
	for _, s := range []PhaseStatus{PhasePending, PhaseActive, PhaseCompleted, PhaseFailed, PhaseSkipped} {
		got, err := ParsePhaseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParsePhaseStatus("unknown")
	assert.Error(t, err)
}
