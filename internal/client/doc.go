// Package client is the reconnecting transport client for the flow server.
//
// # State machine
//
//	Disconnected -> Connecting -> Connected
//	Connected    -> Reconnecting        (any I/O failure)
//	Reconnecting -> Connected           (successful re-dial)
//	any          -> Disconnected        (explicit Close)
//
// While Reconnecting the client retries the dial indefinitely with
// exponential backoff (doubling from an initial delay up to a cap, with
// optional jitter) until it reconnects or the caller closes it. New requests
// issued while not Connected fail immediately with ConnectionError — the
// client never queues silently, so retry policy stays at the caller.
//
// # Requests
//
// Every request carries a timeout. If no response arrives in time the
// request fails with Timeout and its correlation id is forgotten; a late
// response for a forgotten id is discarded. A request never yields both a
// response and a timeout. The client does not retry application requests;
// only the connection itself is retried.
package client
