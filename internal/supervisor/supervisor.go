// ABOUTME: Process supervisor — spawn, pause, resume, stop, status, output.
// ABOUTME: Sole owner of agent process handles; failures are values, never panics.

package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-flow/internal/protocol"
)

// ErrUnsupported indicates a capability the current platform cannot provide.
var ErrUnsupported = errors.New("unsupported on this platform")

const defaultBufferSize = 1 << 20 // per stream, per agent

// Options configures a Supervisor.
type Options struct {
	// StopGrace is how long a graceful stop waits before force-killing.
	StopGrace time.Duration
	// MonitorInterval is the resource sampling period. Zero disables the
	// monitor (tests drive sampling manually).
	MonitorInterval time.Duration
	// BufferSize bounds each output ring buffer in bytes.
	BufferSize int
	// OnSpawn and OnExit, when set, observe agent lifecycle transitions.
	// Called from supervisor goroutines; must be safe for concurrent use.
	OnSpawn func(status protocol.AgentStatus)
	OnExit  func(status protocol.AgentStatus)
	Logger  *slog.Logger
}

// Supervisor launches and controls agent processes.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex
	agents map[string]*agent

	closed  chan struct{}
	monitor sync.WaitGroup
}

// New creates a Supervisor and starts its resource monitor if an interval
// was configured.
func New(opts Options) *Supervisor {
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Supervisor{
		opts:   opts,
		logger: opts.Logger.With("component", "supervisor"),
		agents: make(map[string]*agent),
		closed: make(chan struct{}),
	}
	if opts.MonitorInterval > 0 {
		s.monitor.Add(1)
		go s.runMonitor()
	}
	return s
}

// Close stops the monitor and force-stops every live agent.
func (s *Supervisor) Close() {
	close(s.closed)
	s.monitor.Wait()

	s.mu.RLock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		_ = s.Stop(id, false)
	}
}

// Spawn launches command with args under the given limits and returns the
// new agent's id. The returned id is valid immediately for all other calls.
func (s *Supervisor) Spawn(command string, args []string, limits protocol.Limits) (string, error) {
	if command == "" {
		return "", protocol.Errorf(protocol.KindSpawnError, "command must not be empty")
	}
	if err := limits.Validate(); err != nil {
		return "", err
	}

	a := &agent{
		id:     uuid.New().String(),
		limits: limits,
		env:    os.Environ(),
		stdout: newRingBuffer(s.opts.BufferSize),
		stderr: newRingBuffer(s.opts.BufferSize),
		state:  protocol.StateSpawning,
		done:   make(chan struct{}),
	}

	cmd := exec.Command(command, args...)
	cmd.Env = a.env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", protocol.Errorf(protocol.KindSpawnError, "stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", protocol.Errorf(protocol.KindSpawnError, "stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", protocol.Errorf(protocol.KindSpawnError, "stderr pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		return "", protocol.Errorf(protocol.KindSpawnError, "starting %s: %v", command, err)
	}

	now := time.Now()
	a.mu.Lock()
	a.cmd = cmd
	a.stdin = stdin
	a.state = protocol.StateRunning
	a.startedAt = now
	a.lastSeen = now
	a.mu.Unlock()

	s.mu.Lock()
	s.agents[a.id] = a
	s.mu.Unlock()

	var pumps sync.WaitGroup
	pumps.Add(2)
	go pump(&pumps, a.stdout, stdout)
	go pump(&pumps, a.stderr, stderr)

	go func() {
		pumps.Wait()
		err := cmd.Wait()
		code := cmd.ProcessState.ExitCode()
		a.recordExit(code, err)
		close(a.done)
		st := a.snapshot()
		s.logger.Info("agent exited",
			"agent_id", a.id,
			"exit_code", code,
			"state", st.State,
		)
		if s.opts.OnExit != nil {
			s.opts.OnExit(st)
		}
	}()

	s.logger.Info("agent spawned",
		"agent_id", a.id,
		"command", command,
		"pid", cmd.Process.Pid,
	)
	if s.opts.OnSpawn != nil {
		s.opts.OnSpawn(a.snapshot())
	}
	return a.id, nil
}

func pump(wg *sync.WaitGroup, dst io.Writer, src io.Reader) {
	defer wg.Done()
	_, _ = io.Copy(dst, src)
}

// Pause suspends an agent's process. Best-effort: on platforms without
// process suspension it reports Unsupported.
func (s *Supervisor) Pause(agentID string) error {
	a, err := s.get(agentID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != protocol.StateRunning {
		return protocol.Errorf(protocol.KindInternal, "agent %s is %s, not running", agentID, a.state)
	}
	if err := suspendProcess(a.cmd.Process.Pid); err != nil {
		if errors.Is(err, ErrUnsupported) {
			return protocol.Errorf(protocol.KindUnsupported, "pause: %v", err)
		}
		return protocol.Errorf(protocol.KindInternal, "pause %s: %v", agentID, err)
	}
	a.state = protocol.StatePaused
	a.lastSeen = time.Now()
	return nil
}

// Resume continues a paused agent.
func (s *Supervisor) Resume(agentID string) error {
	a, err := s.get(agentID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != protocol.StatePaused {
		return protocol.Errorf(protocol.KindInternal, "agent %s is %s, not paused", agentID, a.state)
	}
	if err := resumeProcess(a.cmd.Process.Pid); err != nil {
		if errors.Is(err, ErrUnsupported) {
			return protocol.Errorf(protocol.KindUnsupported, "resume: %v", err)
		}
		return protocol.Errorf(protocol.KindInternal, "resume %s: %v", agentID, err)
	}
	a.state = protocol.StateRunning
	a.lastSeen = time.Now()
	return nil
}

// Stop terminates an agent. Graceful stops send a termination signal and
// wait for the grace window before force-killing. Stopping an agent that
// already reached a terminal state is a successful no-op.
func (s *Supervisor) Stop(agentID string, graceful bool) error {
	a, err := s.get(agentID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.state == protocol.StateStopped || a.state == protocol.StateFailed {
		a.mu.Unlock()
		return nil
	}
	a.stopRequested = true
	paused := a.state == protocol.StatePaused
	pid := a.cmd.Process.Pid
	proc := a.cmd.Process
	a.mu.Unlock()

	// A paused process cannot handle SIGTERM; continue it first.
	if paused {
		_ = resumeProcess(pid)
	}

	if graceful {
		if err := terminateProcess(proc); err == nil {
			select {
			case <-a.done:
				return nil
			case <-time.After(s.opts.StopGrace):
				s.logger.Warn("grace window expired, force-killing", "agent_id", agentID)
			}
		}
	}

	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return protocol.Errorf(protocol.KindInternal, "kill %s: %v", agentID, err)
	}
	<-a.done
	return nil
}

// Status returns the current snapshot for one agent.
func (s *Supervisor) Status(agentID string) (protocol.AgentStatus, error) {
	a, err := s.get(agentID)
	if err != nil {
		return protocol.AgentStatus{}, err
	}
	return a.snapshot(), nil
}

// BatchStatus snapshots several agents at one instant. Unknown ids are
// collected rather than failing the batch.
func (s *Supervisor) BatchStatus(agentIDs []string) protocol.BatchStatusResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := protocol.BatchStatusResult{Statuses: make(map[string]protocol.AgentStatus, len(agentIDs))}
	for _, id := range agentIDs {
		a, ok := s.agents[id]
		if !ok {
			res.Missing = append(res.Missing, id)
			continue
		}
		res.Statuses[id] = a.snapshot()
	}
	return res
}

// List returns snapshots for every known agent.
func (s *Supervisor) List() []protocol.AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]protocol.AgentStatus, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a.snapshot())
	}
	return out
}

// Output returns buffered stream data at or past sinceOffset. The buffers
// are bounded, so this is a best-effort tail, not a complete history.
func (s *Supervisor) Output(agentID string, stream protocol.Stream, sinceOffset uint64) (protocol.OutputResult, error) {
	a, err := s.get(agentID)
	if err != nil {
		return protocol.OutputResult{}, err
	}

	var buf *ringBuffer
	switch stream {
	case protocol.StreamStdout:
		buf = a.stdout
	case protocol.StreamStderr:
		buf = a.stderr
	default:
		return protocol.OutputResult{}, protocol.Errorf(protocol.KindProtocolError, "unknown stream %q", stream)
	}

	data, next := buf.ReadSince(sinceOffset)
	return protocol.OutputResult{Data: data, NextOffset: next}, nil
}

// WriteStdin forwards data to the agent's stdin pipe.
func (s *Supervisor) WriteStdin(agentID string, data []byte) error {
	a, err := s.get(agentID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	stdin := a.stdin
	state := a.state
	a.mu.Unlock()

	if state != protocol.StateRunning && state != protocol.StatePaused {
		return protocol.Errorf(protocol.KindInternal, "agent %s is %s, stdin closed", agentID, state)
	}
	if _, err := stdin.Write(data); err != nil {
		return protocol.Errorf(protocol.KindInternal, "write stdin %s: %v", agentID, err)
	}
	return nil
}

// CustomAction executes an agent-scoped action outside the core verbs.
// Built-ins: "echo" returns its params verbatim, "get_env" resolves a
// variable from the agent's environment. Unknown actions are Unsupported.
func (s *Supervisor) CustomAction(agentID, name string, params json.RawMessage) (json.RawMessage, error) {
	a, err := s.get(agentID)
	if err != nil {
		return nil, err
	}

	switch name {
	case "echo":
		if len(params) == 0 {
			params = json.RawMessage(`null`)
		}
		out, merr := json.Marshal(map[string]json.RawMessage{"echo": params})
		if merr != nil {
			return nil, protocol.Errorf(protocol.KindInternal, "echo: %v", merr)
		}
		return out, nil

	case "get_env":
		var p struct {
			Name string `json:"name"`
		}
		if err := protocol.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, protocol.Errorf(protocol.KindProtocolError, "get_env requires name")
		}
		value, found := lookupEnv(a.env, p.Name)
		out, merr := json.Marshal(map[string]any{"name": p.Name, "value": value, "found": found})
		if merr != nil {
			return nil, protocol.Errorf(protocol.KindInternal, "get_env: %v", merr)
		}
		return out, nil
	}

	return nil, protocol.Errorf(protocol.KindUnsupported, "unknown custom action %q", name)
}

// Wait blocks until the agent exits or ctx is done, returning the final
// status. Used by dispatchers that treat a spawn as one unit of work.
func (s *Supervisor) Wait(ctx context.Context, agentID string) (protocol.AgentStatus, error) {
	a, err := s.get(agentID)
	if err != nil {
		return protocol.AgentStatus{}, err
	}
	select {
	case <-a.done:
		return a.snapshot(), nil
	case <-ctx.Done():
		return a.snapshot(), ctx.Err()
	}
}

func (s *Supervisor) get(agentID string) (*agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	if !ok {
		return nil, protocol.Errorf(protocol.KindNotFound, "unknown agent %s", agentID)
	}
	return a, nil
}

func lookupEnv(env []string, name string) (string, bool) {
	prefix := name + "="
	for i := len(env) - 1; i >= 0; i-- {
		if len(env[i]) > len(prefix) && env[i][:len(prefix)] == prefix {
			return env[i][len(prefix):], true
		}
	}
	return "", false
}

// runMonitor samples every live agent on the configured interval.
func (s *Supervisor) runMonitor() {
	defer s.monitor.Done()
	ticker := time.NewTicker(s.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.sampleAll()
		}
	}
}

// sampleAll enforces limits across all agents. Exposed to tests through
// Sample; a breach force-stops the agent and marks it failed.
func (s *Supervisor) sampleAll() {
	s.mu.RLock()
	agents := make([]*agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	s.mu.RUnlock()

	for _, a := range agents {
		if a.terminal() {
			continue
		}
		if reason := s.checkLimits(a); reason != "" {
			s.logger.Warn("resource limit exceeded",
				"agent_id", a.id,
				"reason", reason,
			)
			a.markFailed("ResourceLimitExceeded: " + reason)
			_ = s.Stop(a.id, false)
		}
	}
}

// Sample runs one monitor pass immediately. Tests use it to avoid waiting
// on the ticker.
func (s *Supervisor) Sample() {
	s.sampleAll()
}

func (s *Supervisor) checkLimits(a *agent) string {
	a.mu.Lock()
	limits := a.limits
	startedAt := a.startedAt
	var pid int
	if a.cmd != nil && a.cmd.Process != nil {
		pid = a.cmd.Process.Pid
	}
	a.lastSeen = time.Now()
	a.mu.Unlock()

	if limits.Wallclock > 0 && time.Since(startedAt) > limits.Wallclock {
		return fmt.Sprintf("wallclock %v exceeded", limits.Wallclock)
	}

	if pid == 0 || (limits.MaxMemoryBytes == 0 && limits.MaxCPU == 0) {
		return ""
	}
	rss, cpu, err := sampleUsage(pid)
	if err != nil {
		// No procfs (or the process just exited); wallclock still applies.
		return ""
	}
	if limits.MaxMemoryBytes > 0 && rss > limits.MaxMemoryBytes {
		return fmt.Sprintf("memory %d bytes over limit %d", rss, limits.MaxMemoryBytes)
	}
	if limits.MaxCPU > 0 && cpu > limits.MaxCPU {
		return fmt.Sprintf("cpu time %v over limit %v", cpu, limits.MaxCPU)
	}
	return ""
}
