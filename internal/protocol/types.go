// ABOUTME: Method parameter and result payloads plus shared agent types.
// ABOUTME: Mirrors the supervisor's view of agents for transport to clients.

package protocol

import (
	"encoding/json"
	"time"
)

// AgentState is the lifecycle state of a supervised agent process.
type AgentState string

const (
	StateSpawning AgentState = "spawning"
	StateRunning  AgentState = "running"
	StatePaused   AgentState = "paused"
	StateStopped  AgentState = "stopped"
	StateFailed   AgentState = "failed"
)

// Stream selects one of the agent's buffered output streams.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Limits bounds an agent's resource usage. Zero means unlimited for memory
// and CPU; Wallclock must be positive.
type Limits struct {
	MaxMemoryBytes uint64        `json:"max_memory_bytes,omitempty"`
	MaxCPU         time.Duration `json:"max_cpu_ns,omitempty"`
	Wallclock      time.Duration `json:"wallclock_ns,omitempty"`
}

// Validate rejects limits the supervisor cannot enforce.
func (l Limits) Validate() error {
	if l.Wallclock <= 0 {
		return Errorf(KindSpawnError, "wallclock timeout must be positive, got %v", l.Wallclock)
	}
	if l.MaxCPU < 0 {
		return Errorf(KindSpawnError, "max cpu must not be negative, got %v", l.MaxCPU)
	}
	return nil
}

// AgentStatus is the transportable snapshot of one agent.
type AgentStatus struct {
	AgentID       string     `json:"agent_id"`
	State         AgentState `json:"state"`
	PID           int        `json:"pid,omitempty"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	LastSeen      time.Time  `json:"last_seen"`
}

// SpawnParams launches a new agent process.
type SpawnParams struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Limits  Limits   `json:"limits"`
}

// SpawnResult reports the id assigned to a spawned agent.
type SpawnResult struct {
	AgentID string `json:"agent_id"`
}

// AgentParams addresses a single agent.
type AgentParams struct {
	AgentID string `json:"agent_id"`
}

// StopParams requests agent termination. Graceful stops get a grace window
// before the force kill.
type StopParams struct {
	AgentID  string `json:"agent_id"`
	Graceful bool   `json:"graceful"`
}

// BatchStatusParams queries several agents in one consistent snapshot.
type BatchStatusParams struct {
	AgentIDs []string `json:"agent_ids"`
}

// BatchStatusResult maps agent id to status. Unknown ids are reported via
// the Missing list rather than failing the whole batch.
type BatchStatusResult struct {
	Statuses map[string]AgentStatus `json:"statuses"`
	Missing  []string               `json:"missing,omitempty"`
}

// OutputParams requests buffered output past SinceOffset.
type OutputParams struct {
	AgentID     string `json:"agent_id"`
	Stream      Stream `json:"stream"`
	SinceOffset uint64 `json:"since_offset"`
}

// OutputResult returns a best-effort tail of the stream. NextOffset is the
// absolute offset one past the returned data; if the ring buffer dropped
// data, Data begins later than SinceOffset.
type OutputResult struct {
	Data       []byte `json:"data"`
	NextOffset uint64 `json:"next_offset"`
}

// WriteStdinParams forwards bytes to the agent's stdin.
type WriteStdinParams struct {
	AgentID string `json:"agent_id"`
	Data    []byte `json:"data"`
}

// ListResult enumerates all known agents.
type ListResult struct {
	Agents []AgentStatus `json:"agents"`
}

// CustomActionParams is the extensible passthrough for agent-specific
// commands outside the core verbs.
type CustomActionParams struct {
	AgentID string          `json:"agent_id"`
	Name    string          `json:"name"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// CustomActionResult carries the action's verbatim result.
type CustomActionResult struct {
	Result json.RawMessage `json:"result"`
}

// MethodStat is the served-call counter for one method.
type MethodStat struct {
	Calls        uint64        `json:"calls"`
	Errors       uint64        `json:"errors"`
	TotalLatency time.Duration `json:"total_latency_ns"`
}

// StatsResult is the server's running counters.
type StatsResult struct {
	UptimeSeconds  int64                 `json:"uptime_seconds"`
	RequestsServed uint64                `json:"requests_served"`
	AgentsSpawned  uint64                `json:"agents_spawned"`
	Failures       uint64                `json:"failures"`
	ActiveAgents   int                   `json:"active_agents"`
	Methods        map[string]MethodStat `json:"methods"`
}
