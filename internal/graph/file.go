// ABOUTME: TOML task graph file loading and validation.
// ABOUTME: [tasks.<id>] tables with weight and depends_on.

package graph

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type taskFile struct {
	Tasks map[string]taskEntry `toml:"tasks"`
}

type taskEntry struct {
	Weight    int      `toml:"weight"`
	DependsOn []string `toml:"depends_on"`
}

// LoadFile reads a TOML task graph document and builds a validated Graph.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task graph: %w", err)
	}
	return Parse(data)
}

// Parse builds a Graph from TOML bytes.
func Parse(data []byte) (*Graph, error) {
	var f taskFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing task graph: %w", err)
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("task graph defines no tasks")
	}

	tasks := make([]Task, 0, len(f.Tasks))
	for id, entry := range f.Tasks {
		weight := entry.Weight
		if weight <= 0 {
			weight = 1
		}
		tasks = append(tasks, Task{
			ID:        id,
			Weight:    weight,
			DependsOn: entry.DependsOn,
		})
	}

	g, err := Build(tasks)
	if err != nil {
		return nil, fmt.Errorf("invalid task graph: %w", err)
	}
	return g, nil
}
