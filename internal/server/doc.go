// Package server exposes the supervisor's operations to remote clients over
// websocket connections.
//
// # Overview
//
// Each client connection is a websocket carrying JSON protocol envelopes
// (see internal/protocol). A connection may issue many concurrent requests;
// every request is handled on its own goroutine and answered with exactly
// one response carrying the request's correlation id.
//
// # Serialization discipline
//
// Mutating requests (pause, resume, stop, write_stdin) targeting the same
// agent id are strictly serialized through a per-agent lock; a second
// mutating request for an in-flight agent waits for the first to finish.
// Read-only requests (status, output, list, batch_status) and server.ping
// never touch that lock, so clients can always distinguish "server busy"
// from "server unreachable".
//
// # Authentication
//
// When a token verifier is configured, the handshake must carry
// "Authorization: Bearer <jwt>"; connections without a valid token are
// rejected before the websocket upgrade.
//
// # Statistics
//
// The server keeps running counters of requests served, agents spawned,
// failures, and per-method call counts and cumulative latency, served by the
// server.stats method.
package server
