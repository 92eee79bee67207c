// ABOUTME: Wave scheduler — bounded-parallel dispatch over a task DAG.
// ABOUTME: Slot semaphore, asynchronous completion, failure -> blocked propagation.

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-flow/internal/graph"
)

// Dispatcher executes a single task to completion. A nil return marks the
// task done; any error marks it failed.
type Dispatcher interface {
	Dispatch(ctx context.Context, task graph.Task) error
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, task graph.Task) error

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(ctx context.Context, task graph.Task) error {
	return f(ctx, task)
}

// Options configures a Scheduler.
type Options struct {
	// MaxParallel bounds concurrently dispatched tasks. Must be >= 1.
	MaxParallel int
	// OnTransition, when set, observes every task status change. Called
	// from dispatch goroutines; implementations must be safe for
	// concurrent use.
	OnTransition func(taskID string, wave int, status graph.Status)
	Logger       *slog.Logger
}

// WaveResult summarizes one completed wave.
type WaveResult struct {
	Index    int
	Done     int
	Failed   int
	Blocked  int
	Duration time.Duration
}

// Scheduler drives wave-ordered task dispatch.
type Scheduler struct {
	dispatcher Dispatcher
	opts       Options
	logger     *slog.Logger

	// mu guards graph status mutation during concurrent dispatch.
	mu sync.Mutex
}

// New creates a Scheduler. MaxParallel below 1 is an error surfaced at Run.
func New(d Dispatcher, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		dispatcher: d,
		opts:       opts,
		logger:     opts.Logger.With("component", "scheduler"),
	}
}

// Run executes the graph wave by wave and returns per-wave terminal counts.
// Done tasks (from a resumed run) are counted, not re-run; failed and
// blocked tasks return to pending so a re-run retries them. Run only errors
// on invalid configuration or context cancellation; task failures are
// reported through the results.
func (s *Scheduler) Run(ctx context.Context, g *graph.Graph) ([]WaveResult, error) {
	if s.opts.MaxParallel < 1 {
		return nil, fmt.Errorf("max parallel tasks must be >= 1, got %d", s.opts.MaxParallel)
	}

	for _, t := range g.Tasks() {
		if t.Status == graph.StatusFailed || t.Status == graph.StatusBlocked {
			_ = g.SetStatus(t.ID, graph.StatusPending)
		}
	}

	waves := g.Waves()
	waveOf := make(map[string]int, g.Len())
	for _, w := range waves {
		for _, id := range w.Tasks {
			waveOf[id] = w.Index
		}
	}
	results := make([]WaveResult, 0, len(waves))
	sem := make(chan struct{}, s.opts.MaxParallel)

	for _, wave := range waves {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		var wg sync.WaitGroup

		for _, id := range wave.Tasks {
			task, _ := g.Task(id)
			if task.Status.Terminal() {
				continue
			}
			s.transition(g, id, wave.Index, graph.StatusReady)

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return results, ctx.Err()
			}

			wg.Add(1)
			go func(task graph.Task, waveIdx int) {
				defer wg.Done()
				defer func() { <-sem }()

				s.transition(g, task.ID, waveIdx, graph.StatusDispatched)
				if err := s.dispatcher.Dispatch(ctx, task); err != nil {
					s.logger.Warn("task failed",
						"task_id", task.ID,
						"wave", waveIdx,
						"error", err,
					)
					s.transition(g, task.ID, waveIdx, graph.StatusFailed)
					return
				}
				s.transition(g, task.ID, waveIdx, graph.StatusDone)
			}(task, wave.Index)
		}

		wg.Wait()

		// Failure fallout: everything transitively downstream of a failed
		// task will never become ready.
		s.mu.Lock()
		for _, id := range wave.Tasks {
			task, _ := g.Task(id)
			if task.Status != graph.StatusFailed {
				continue
			}
			for _, dep := range g.TransitiveDependents(id) {
				if t, _ := g.Task(dep); !t.Status.Terminal() {
					_ = g.SetStatus(dep, graph.StatusBlocked)
					if s.opts.OnTransition != nil {
						s.opts.OnTransition(dep, waveOf[dep], graph.StatusBlocked)
					}
				}
			}
		}
		s.mu.Unlock()

		res := s.tally(g, wave)
		res.Duration = time.Since(start)
		results = append(results, res)

		s.logger.Info("wave complete",
			"wave", wave.Index,
			"done", res.Done,
			"failed", res.Failed,
			"blocked", res.Blocked,
		)
	}

	return results, nil
}

func (s *Scheduler) transition(g *graph.Graph, id string, wave int, status graph.Status) {
	s.mu.Lock()
	_ = g.SetStatus(id, status)
	s.mu.Unlock()
	if s.opts.OnTransition != nil {
		s.opts.OnTransition(id, wave, status)
	}
}

func (s *Scheduler) tally(g *graph.Graph, wave graph.Wave) WaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := WaveResult{Index: wave.Index}
	for _, id := range wave.Tasks {
		task, _ := g.Task(id)
		switch task.Status {
		case graph.StatusDone:
			res.Done++
		case graph.StatusFailed:
			res.Failed++
		case graph.StatusBlocked:
			res.Blocked++
		}
	}
	return res
}
