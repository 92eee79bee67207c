// ABOUTME: Agent record tracking one supervised child process.
// ABOUTME: Holds the exclusive process handle, output buffers, and lifecycle state.

package supervisor

import (
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/2389/coven-flow/internal/protocol"
)

// agent is the supervisor's private record for one child process. The
// process handle never leaves this struct.
type agent struct {
	id     string
	limits protocol.Limits
	env    []string

	stdout *ringBuffer
	stderr *ringBuffer

	mu            sync.Mutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	state         protocol.AgentState
	startedAt     time.Time
	lastSeen      time.Time
	exitCode      *int
	failureReason string
	stopRequested bool

	// done closes when the waiter goroutine has recorded the exit.
	done chan struct{}
}

// snapshot returns the transportable view of the agent.
func (a *agent) snapshot() protocol.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := protocol.AgentStatus{
		AgentID:       a.id,
		State:         a.state,
		StartedAt:     a.startedAt,
		LastSeen:      a.lastSeen,
		FailureReason: a.failureReason,
	}
	if a.cmd != nil && a.cmd.Process != nil {
		st.PID = a.cmd.Process.Pid
	}
	if a.exitCode != nil {
		code := *a.exitCode
		st.ExitCode = &code
	}
	return st
}

// terminal reports whether the agent has reached stopped or failed.
func (a *agent) terminal() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == protocol.StateStopped || a.state == protocol.StateFailed
}

// markFailed transitions to failed unless already terminal.
func (a *agent) markFailed(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == protocol.StateStopped || a.state == protocol.StateFailed {
		return
	}
	a.state = protocol.StateFailed
	a.failureReason = reason
}

// recordExit is called exactly once by the waiter goroutine.
func (a *agent) recordExit(code int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.exitCode = &code
	a.lastSeen = time.Now()

	// A limit breach or explicit failure recorded before the exit wins.
	if a.state == protocol.StateFailed {
		return
	}
	switch {
	case a.stopRequested:
		a.state = protocol.StateStopped
	case err == nil && code == 0:
		a.state = protocol.StateStopped
	default:
		a.state = protocol.StateFailed
		if a.failureReason == "" {
			a.failureReason = exitReason(code, err)
		}
	}
}

func exitReason(code int, err error) string {
	if err != nil && code < 0 {
		return err.Error()
	}
	if code != 0 {
		return "exit status " + strconv.Itoa(code)
	}
	return ""
}
