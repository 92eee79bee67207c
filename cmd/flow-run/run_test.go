// ABOUTME: Tests for the runner's phase handlers on the resumed-run path.
// ABOUTME: A resumed run enters later phases without ingest in this process.

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-flow/internal/client"
	"github.com/2389/coven-flow/internal/config"
	"github.com/2389/coven-flow/internal/store"
)

func writeGraphFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// newResumedRunner builds a runner in the state a resumed run enters later
// phases with: no graph loaded yet, history store open, client constructed
// but unconnected.
func newResumedRunner(t *testing.T, graphPath string) *runner {
	t.Helper()
	hist, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	return &runner{
		cfg:       config.Default(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		graphPath: graphPath,
		taskCmd:   "fake-agent",
		runID:     "test-run",
		hist:      hist,
		cli:       client.New("ws://127.0.0.1:1/ws", client.Options{}),
	}
}

func TestReviewGraph_LoadsGraphLazily(t *testing.T) {
	path := writeGraphFile(t, "[tasks.a]\n[tasks.b]\ndepends_on = [\"a\"]\n")
	r := newResumedRunner(t, path)

	require.NoError(t, r.reviewGraph(context.Background()))
	require.NotNil(t, r.g)
	assert.Equal(t, 2, r.g.Len())
}

func TestImplement_LoadsGraphLazily(t *testing.T) {
	path := writeGraphFile(t, "[tasks.a]\n")
	r := newResumedRunner(t, path)

	// The unconnected client makes every dispatch fail, but the phase must
	// run the scheduler rather than crash on the missing graph.
	err := r.implement(context.Background())
	require.Error(t, err)
	require.NotNil(t, r.g)
	require.Len(t, r.results, 1)
	assert.Equal(t, 1, r.results[0].Failed)
}

func TestImplement_MissingGraphFile(t *testing.T) {
	r := newResumedRunner(t, filepath.Join(t.TempDir(), "absent.toml"))

	err := r.implement(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task graph")
}
