// Package config handles configuration loading for coven-flow.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${FLOW_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agents:
//	  monitor_interval: "2s"
//	  stop_grace: "5s"
//
// # Configuration Sections
//
// Server:
//
//	server:
//	  addr: "127.0.0.1:7433"
//
// Authentication (optional; omit jwt_secret to disable auth):
//
//	auth:
//	  jwt_secret: "${FLOW_JWT_SECRET}"
//
// Database (run-history store):
//
//	database:
//	  path: "~/.local/share/coven-flow/history.db"
//
// Agents:
//
//	agents:
//	  monitor_interval: "2s"
//	  stop_grace: "5s"
//	  default_wallclock: "30m"
//	  output_buffer_bytes: 1048576
//
// Flow:
//
//	flow:
//	  max_parallel_tasks: 3
//	  retry_budget_per_phase: 3
//	  auto_commit: true
//	  state_path: ".coven-flow/flow-state.json"
//
// Client:
//
//	client:
//	  request_timeout: "30s"
//	  backoff_initial: "250ms"
//	  backoff_max: "30s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
