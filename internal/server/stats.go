// ABOUTME: Running request/agent counters with per-method latency totals.
// ABOUTME: Snapshot feeds the server.stats method.

package server

import (
	"sync"
	"time"

	"github.com/2389/coven-flow/internal/protocol"
)

// stats aggregates served-request counters. All methods are safe for
// concurrent use.
type stats struct {
	mu             sync.Mutex
	startedAt      time.Time
	requestsServed uint64
	agentsSpawned  uint64
	failures       uint64
	methods        map[string]protocol.MethodStat
}

func newStats() *stats {
	return &stats{
		startedAt: time.Now(),
		methods:   make(map[string]protocol.MethodStat),
	}
}

// record tallies one completed request.
func (s *stats) record(method string, latency time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestsServed++
	if failed {
		s.failures++
	}
	m := s.methods[method]
	m.Calls++
	m.TotalLatency += latency
	if failed {
		m.Errors++
	}
	s.methods[method] = m
}

func (s *stats) recordSpawn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentsSpawned++
}

// snapshot copies the counters into the wire shape.
func (s *stats) snapshot(activeAgents int) protocol.StatsResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	methods := make(map[string]protocol.MethodStat, len(s.methods))
	for k, v := range s.methods {
		methods[k] = v
	}
	return protocol.StatsResult{
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		RequestsServed: s.requestsServed,
		AgentsSpawned:  s.agentsSpawned,
		Failures:       s.failures,
		ActiveAgents:   activeAgents,
		Methods:        methods,
	}
}
