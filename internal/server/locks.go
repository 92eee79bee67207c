// ABOUTME: Per-agent-id mutex registry serializing mutating requests.
// ABOUTME: Entries are reference-counted and removed when idle.

package server

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// agentLocks hands out one mutex per agent id on demand.
type agentLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newAgentLocks() *agentLocks {
	return &agentLocks{locks: make(map[string]*lockEntry)}
}

// lock acquires the mutex for id and returns its release func. Release must
// be called exactly once.
func (l *agentLocks) lock(id string) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
