// Package protocol defines the wire protocol between flow clients and the
// flow server.
//
// # Envelope
//
// Every exchange is one JSON object per websocket text message. A request
// carries a caller-chosen correlation id, a method name, and method
// parameters:
//
//	{"id": "b2f7...", "method": "agent.status", "params": {"agent_id": "..."}}
//
// A response echoes the correlation id and carries exactly one of result or
// error:
//
//	{"id": "b2f7...", "result": {"status": "running", ...}}
//	{"id": "b2f7...", "error": {"kind": "NotFound", "message": "..."}}
//
// # Methods
//
// Agent lifecycle: agent.spawn, agent.pause, agent.resume, agent.stop.
// Read-only: agent.status, agent.batch_status, agent.output, agent.list.
// I/O: agent.write_stdin. Extensibility: agent.custom_action.
// Server: server.stats, server.ping.
//
// # Errors
//
// Errors cross the wire as {kind, message}. Kinds are a closed set; an
// unknown kind on the receiving side is treated as Internal. A malformed
// envelope is answered with a ProtocolError response when the correlation id
// could be recovered; the connection itself stays usable either way.
package protocol
