// Package store provides the sqlite-backed run-history store.
//
// # Overview
//
// Every workflow run leaves a queryable trail: agent lifecycle events from
// the server side, task status transitions and per-wave summaries from the
// runner side. The store is append-only; history is read back by run id.
//
// # Schema
//
// Three tables, all keyed by run id:
//
//	agent_events: agent spawned/stopped/failed, with failure reason
//	task_events:  task status transitions, with wave index
//	wave_events:  per-wave done/failed/blocked counts and duration
//
// # Database
//
// SQLite via modernc.org/sqlite (pure Go, no cgo). WAL mode for concurrent
// readers, busy timeout for writer contention. The schema is created on
// open; there are no migrations yet.
package store
