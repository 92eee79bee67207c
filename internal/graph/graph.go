// ABOUTME: Task dependency graph with cycle detection and wave leveling.
// ABOUTME: Validation happens at build time; a cyclic graph never dispatches.

package graph

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle indicates the task set contains a circular dependency.
var ErrCycle = errors.New("dependency cycle detected")

// Status is a task's scheduling state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusReady      Status = "ready"
	StatusDispatched Status = "dispatched"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

// Terminal reports whether a status is final for scheduling purposes.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusBlocked
}

// Task is one schedulable unit of work.
type Task struct {
	ID     string
	Weight int
	// DependsOn lists task ids that must be Done before this task runs.
	DependsOn []string
	Status    Status
}

// Wave is one topological level: every task in it may run concurrently once
// all earlier waves are terminal.
type Wave struct {
	Index int
	Tasks []string
}

// Graph is a validated task DAG.
type Graph struct {
	tasks map[string]*Task
	// dependents is the reverse adjacency: dependents[a] lists tasks that
	// depend on a.
	dependents map[string][]string
}

// Build validates the task set and constructs a Graph. It rejects duplicate
// ids, references to unknown tasks, and cycles (ErrCycle).
func Build(tasks []Task) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]*Task, len(tasks)),
		dependents: make(map[string][]string),
	}

	for i := range tasks {
		t := tasks[i]
		if t.ID == "" {
			return nil, fmt.Errorf("task %d has empty id", i)
		}
		if _, dup := g.tasks[t.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %q", t.ID)
		}
		if t.Status == "" {
			t.Status = StatusPending
		}
		g.tasks[t.ID] = &t
	}

	for _, t := range g.tasks {
		for _, dep := range t.DependsOn {
			if _, ok := g.tasks[dep]; !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
			if dep == t.ID {
				return nil, fmt.Errorf("task %q: %w (self-dependency)", t.ID, ErrCycle)
			}
			g.dependents[dep] = append(g.dependents[dep], t.ID)
		}
	}

	if cyclic(g.tasks) {
		return nil, ErrCycle
	}
	return g, nil
}

// cyclic runs a depth-first search with three-color marking.
func cyclic(tasks map[string]*Task) bool {
	const (
		white = iota
		gray
		black
	)
	colors := make(map[string]int, len(tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, dep := range tasks[id].DependsOn {
			switch colors[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for id := range tasks {
		if colors[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// Task returns a copy of the task with the given id.
func (g *Graph) Task(id string) (Task, bool) {
	t, ok := g.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Tasks returns copies of all tasks, ordered by id.
func (g *Graph) Tasks() []Task {
	out := make([]Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.tasks)
}

// SetStatus updates one task's status.
func (g *Graph) SetStatus(id string, status Status) error {
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("unknown task %q", id)
	}
	t.Status = status
	return nil
}

// Dependents returns the ids of tasks directly depending on id.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// TransitiveDependents returns every task reachable from id along dependent
// edges. Used to mark the blocked set after a failure.
func (g *Graph) TransitiveDependents(id string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range g.dependents[cur] {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
				walk(dep)
			}
		}
	}
	walk(id)
	sort.Strings(out)
	return out
}

// Waves levels the graph: wave k contains every task whose dependencies all
// lie in waves strictly earlier than k. The graph is already known acyclic,
// so leveling always terminates with every task assigned.
func (g *Graph) Waves() []Wave {
	level := make(map[string]int, len(g.tasks))
	assigned := 0
	var waves []Wave

	for assigned < len(g.tasks) {
		var ids []string
		for id, t := range g.tasks {
			if _, done := level[id]; done {
				continue
			}
			ready := true
			for _, dep := range t.DependsOn {
				if _, ok := level[dep]; !ok {
					ready = false
					break
				}
			}
			if ready {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		idx := len(waves)
		for _, id := range ids {
			level[id] = idx
		}
		assigned += len(ids)
		waves = append(waves, Wave{Index: idx, Tasks: ids})
	}
	return waves
}
