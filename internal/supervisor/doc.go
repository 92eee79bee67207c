// Package supervisor owns spawned agent processes and their lifecycles.
//
// # Overview
//
// A Supervisor launches child processes, captures their stdout/stderr into
// bounded ring buffers, enforces resource limits, and exposes the lifecycle
// primitives the transport server forwards to: spawn, pause, resume, stop,
// status, output, stdin writes, and custom actions.
//
// Exactly one Supervisor instance owns an agent's process handle. All state
// transitions happen inside the supervisor; callers only ever observe
// snapshots.
//
// # Lifecycle
//
//	spawning -> running -> stopped            (natural or requested exit)
//	                    -> failed             (nonzero exit, limit breach)
//	running  <-> paused                       (best-effort, unix only)
//
// Stop is idempotent: stopping an agent that already reached a terminal
// state is a successful no-op.
//
// # Pause semantics
//
// Pause and resume map to SIGSTOP/SIGCONT where the platform has them and
// report Unsupported elsewhere. Paused state is not durable: if the
// supervisor process dies, its children die with it, and a resumed server
// reports NotFound for agents from the previous incarnation.
//
// # Resource enforcement
//
// A background monitor samples wall-clock age, resident memory, and CPU time
// per agent. A breach force-stops the process and marks the agent failed
// with reason ResourceLimitExceeded. Memory and CPU sampling need procfs;
// on platforms without it only the wall-clock limit is enforced.
package supervisor
