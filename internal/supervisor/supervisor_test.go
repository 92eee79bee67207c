// ABOUTME: Tests for the process supervisor using real child processes.
// ABOUTME: Spawns /bin/sh one-liners; asserts lifecycle, output, and limits.

//go:build unix

package supervisor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-flow/internal/protocol"
)

func testSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	s := New(Options{StopGrace: 500 * time.Millisecond})
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, s *Supervisor, id string) protocol.AgentStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := s.Wait(ctx, id)
	require.NoError(t, err)
	return st
}

func TestSpawn_EchoLifecycle(t *testing.T) {
	s := testSupervisor(t)

	id, err := s.Spawn("/bin/sh", []string{"-c", "echo hello"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	st := waitFor(t, s, id)
	assert.Equal(t, protocol.StateStopped, st.State)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 0, *st.ExitCode)

	out, err := s.Output(id, protocol.StreamStdout, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out.Data))
	assert.Equal(t, uint64(6), out.NextOffset)
}

func TestSpawn_Validation(t *testing.T) {
	s := testSupervisor(t)

	_, err := s.Spawn("", nil, protocol.Limits{Wallclock: time.Minute})
	assert.Equal(t, protocol.KindSpawnError, protocol.KindOf(err))

	_, err = s.Spawn("/bin/sh", nil, protocol.Limits{})
	assert.Equal(t, protocol.KindSpawnError, protocol.KindOf(err))

	_, err = s.Spawn("/no/such/binary", nil, protocol.Limits{Wallclock: time.Minute})
	assert.Equal(t, protocol.KindSpawnError, protocol.KindOf(err))
}

func TestExit_NonZeroMarksFailed(t *testing.T) {
	s := testSupervisor(t)

	id, err := s.Spawn("/bin/sh", []string{"-c", "exit 3"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)

	st := waitFor(t, s, id)
	assert.Equal(t, protocol.StateFailed, st.State)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 3, *st.ExitCode)
	assert.Contains(t, st.FailureReason, "3")
}

func TestStop_GracefulAndIdempotent(t *testing.T) {
	s := testSupervisor(t)

	id, err := s.Spawn("/bin/sh", []string{"-c", "sleep 30"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)

	require.NoError(t, s.Stop(id, true))
	st, err := s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.StateStopped, st.State)

	// Stopping an already-terminal agent succeeds without effect.
	require.NoError(t, s.Stop(id, true))
	require.NoError(t, s.Stop(id, false))
}

func TestPauseResume(t *testing.T) {
	s := testSupervisor(t)

	id, err := s.Spawn("/bin/sh", []string{"-c", "sleep 30"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)

	require.NoError(t, s.Pause(id))
	st, err := s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatePaused, st.State)

	// Pausing twice is an error: the agent is no longer running.
	require.Error(t, s.Pause(id))

	require.NoError(t, s.Resume(id))
	st, err = s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.StateRunning, st.State)

	require.Error(t, s.Resume(id))
	require.NoError(t, s.Stop(id, false))
}

func TestStop_PausedAgent(t *testing.T) {
	s := testSupervisor(t)

	id, err := s.Spawn("/bin/sh", []string{"-c", "sleep 30"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)
	require.NoError(t, s.Pause(id))

	require.NoError(t, s.Stop(id, true))
	st, err := s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.StateStopped, st.State)
}

func TestUnknownAgent(t *testing.T) {
	s := testSupervisor(t)

	_, err := s.Status("ghost")
	assert.Equal(t, protocol.KindNotFound, protocol.KindOf(err))
	assert.Equal(t, protocol.KindNotFound, protocol.KindOf(s.Pause("ghost")))
	assert.Equal(t, protocol.KindNotFound, protocol.KindOf(s.Stop("ghost", true)))
	_, err = s.Output("ghost", protocol.StreamStdout, 0)
	assert.Equal(t, protocol.KindNotFound, protocol.KindOf(err))
}

func TestBatchStatus(t *testing.T) {
	s := testSupervisor(t)

	id1, err := s.Spawn("/bin/sh", []string{"-c", "sleep 30"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)
	id2, err := s.Spawn("/bin/sh", []string{"-c", "sleep 30"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)

	res := s.BatchStatus([]string{id1, id2, "ghost"})
	assert.Len(t, res.Statuses, 2)
	assert.Equal(t, []string{"ghost"}, res.Missing)
	assert.Equal(t, protocol.StateRunning, res.Statuses[id1].State)

	require.NoError(t, s.Stop(id1, false))
	require.NoError(t, s.Stop(id2, false))
}

func TestWriteStdin(t *testing.T) {
	s := testSupervisor(t)

	id, err := s.Spawn("/bin/sh", []string{"-c", "read line; echo got:$line"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)

	require.NoError(t, s.WriteStdin(id, []byte("ping\n")))
	st := waitFor(t, s, id)
	assert.Equal(t, protocol.StateStopped, st.State)

	out, err := s.Output(id, protocol.StreamStdout, 0)
	require.NoError(t, err)
	assert.Equal(t, "got:ping\n", string(out.Data))

	// Stdin is closed once the agent is terminal.
	assert.Error(t, s.WriteStdin(id, []byte("late\n")))
}

func TestOutput_StderrAndUnknownStream(t *testing.T) {
	s := testSupervisor(t)

	id, err := s.Spawn("/bin/sh", []string{"-c", "echo oops >&2"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)
	waitFor(t, s, id)

	out, err := s.Output(id, protocol.StreamStderr, 0)
	require.NoError(t, err)
	assert.Equal(t, "oops\n", string(out.Data))

	_, err = s.Output(id, protocol.Stream("mixed"), 0)
	assert.Equal(t, protocol.KindProtocolError, protocol.KindOf(err))
}

func TestWallclockLimitEnforced(t *testing.T) {
	s := testSupervisor(t)

	id, err := s.Spawn("/bin/sh", []string{"-c", "sleep 30"}, protocol.Limits{Wallclock: 50 * time.Millisecond})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	s.Sample()

	st := waitFor(t, s, id)
	assert.Equal(t, protocol.StateFailed, st.State)
	assert.Contains(t, st.FailureReason, "ResourceLimitExceeded")
	assert.Contains(t, st.FailureReason, "wallclock")
}

func TestCustomAction(t *testing.T) {
	s := testSupervisor(t)

	t.Setenv("FLOW_TEST_VALUE", "42")
	id, err := s.Spawn("/bin/sh", []string{"-c", "sleep 30"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)
	defer func() { _ = s.Stop(id, false) }()

	t.Run("echo", func(t *testing.T) {
		out, err := s.CustomAction(id, "echo", json.RawMessage(`{"x":1}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"echo":{"x":1}}`, string(out))
	})

	t.Run("get_env", func(t *testing.T) {
		out, err := s.CustomAction(id, "get_env", json.RawMessage(`{"name":"FLOW_TEST_VALUE"}`))
		require.NoError(t, err)
		var res struct {
			Name  string `json:"name"`
			Value string `json:"value"`
			Found bool   `json:"found"`
		}
		require.NoError(t, json.Unmarshal(out, &res))
		assert.True(t, res.Found)
		assert.Equal(t, "42", res.Value)
	})

	t.Run("get_env missing variable", func(t *testing.T) {
		out, err := s.CustomAction(id, "get_env", json.RawMessage(`{"name":"FLOW_NO_SUCH_VAR"}`))
		require.NoError(t, err)
		var res struct {
			Found bool `json:"found"`
		}
		require.NoError(t, json.Unmarshal(out, &res))
		assert.False(t, res.Found)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := s.CustomAction(id, "reboot", nil)
		assert.Equal(t, protocol.KindUnsupported, protocol.KindOf(err))
	})
}

func TestList(t *testing.T) {
	s := testSupervisor(t)
	assert.Empty(t, s.List())

	id, err := s.Spawn("/bin/sh", []string{"-c", "true"}, protocol.Limits{Wallclock: time.Minute})
	require.NoError(t, err)
	waitFor(t, s, id)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].AgentID)
}
