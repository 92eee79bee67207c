// ABOUTME: Workflow runner — wires the phase executor, scheduler, and client.
// ABOUTME: Each task becomes one spawned agent driven to a terminal state.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/coven-flow/internal/client"
	"github.com/2389/coven-flow/internal/config"
	"github.com/2389/coven-flow/internal/flow"
	"github.com/2389/coven-flow/internal/graph"
	"github.com/2389/coven-flow/internal/protocol"
	"github.com/2389/coven-flow/internal/scheduler"
	"github.com/2389/coven-flow/internal/store"
)

// statusPollInterval is how often the dispatcher polls a spawned agent.
const statusPollInterval = 500 * time.Millisecond

type runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	graphPath string
	taskCmd   string
	tag       string
	resume    bool
	token     string

	runID   string
	hist    *store.Store
	cli     *client.Client
	g       *graph.Graph
	results []scheduler.WaveResult
}

func (r *runner) run(ctx context.Context) error {
	r.runID = uuid.New().String()

	hist, err := store.Open(r.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer hist.Close()
	r.hist = hist

	stateStore := flow.NewStore(r.cfg.Flow.StatePath)
	state, err := r.loadState(stateStore)
	if err != nil {
		return err
	}

	r.cli = client.New("ws://"+r.cfg.Server.Addr+"/ws", client.Options{
		Token:          r.token,
		RequestTimeout: r.cfg.Client.RequestTimeout,
		BackoffInitial: r.cfg.Client.BackoffInitial,
		BackoffMax:     r.cfg.Client.BackoffMax,
		Jitter:         true,
		Logger:         r.logger,
	})
	if err := r.cli.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", r.cfg.Server.Addr, err)
	}
	defer r.cli.Close()

	exec, err := flow.NewExecutor(stateStore, state, flow.Handlers{
		Ingest:      r.ingest,
		ReviewGraph: r.reviewGraph,
		PlanTasks:   r.planTasks,
		Implement:   r.implement,
		QA:          r.qa,
		Summarize:   r.summarize,
	}, flow.Options{Logger: r.logger})
	if err != nil {
		return err
	}

	if err := exec.Run(ctx); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "workflow failed: %v\n", err)
		return err
	}
	color.New(color.FgGreen, color.Bold).Printf("workflow complete (run %s)\n", r.runID)
	return nil
}

// loadState resumes an existing flow state or starts a fresh one. A fresh
// run replaces any leftover state file.
func (r *runner) loadState(st *flow.Store) (*flow.State, error) {
	if r.resume {
		state, err := st.Load()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("nothing to resume: no flow state at %s", st.Path())
			}
			return nil, err
		}
		r.logger.Info("resuming workflow", "tag", state.Tag, "state", st.Path())
		return state, nil
	}

	state := flow.NewState(r.tag, flow.Config{
		MaxParallelTasks:    r.cfg.Flow.MaxParallelTasks,
		RetryBudgetPerPhase: r.cfg.Flow.RetryBudgetPerPhase,
		AutoCommit:          r.cfg.Flow.AutoCommit,
	})
	return state, nil
}

// ensureGraph loads the task graph on first use. A resumed run skips the
// ingest phase, so every later phase loads lazily rather than assuming
// ingest ran in this process. A bad graph can never succeed on retry, so
// any error here is critical.
func (r *runner) ensureGraph() (*graph.Graph, error) {
	if r.g != nil {
		return r.g, nil
	}
	g, err := graph.LoadFile(r.graphPath)
	if err != nil {
		return nil, flow.Failf(flow.SeverityCritical, "loading task graph: %v", err)
	}
	r.g = g
	return g, nil
}

// ingest loads and validates the task graph file.
func (r *runner) ingest(context.Context) error {
	g, err := r.ensureGraph()
	if err != nil {
		return err
	}
	r.logger.Info("task graph loaded", "path", r.graphPath, "tasks", g.Len())
	return nil
}

// reviewGraph computes the wave plan and reports it.
func (r *runner) reviewGraph(context.Context) error {
	g, err := r.ensureGraph()
	if err != nil {
		return err
	}
	for _, w := range g.Waves() {
		r.logger.Info("planned wave", "wave", w.Index, "tasks", w.Tasks)
	}
	return nil
}

// planTasks records the planned work in the history store and checks the
// server is reachable before any dispatch.
func (r *runner) planTasks(ctx context.Context) error {
	if err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	g, err := r.ensureGraph()
	if err != nil {
		return err
	}
	for _, w := range g.Waves() {
		for _, id := range w.Tasks {
			if err := r.hist.RecordTaskEvent(ctx, r.runID, id, w.Index, string(graph.StatusPending)); err != nil {
				return fmt.Errorf("recording plan: %w", err)
			}
		}
	}
	return nil
}

// implement dispatches the graph wave by wave, one spawned agent per task.
func (r *runner) implement(ctx context.Context) error {
	g, err := r.ensureGraph()
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.DispatchFunc(r.dispatch), scheduler.Options{
		MaxParallel: r.cfg.Flow.MaxParallelTasks,
		OnTransition: func(taskID string, wave int, status graph.Status) {
			if err := r.hist.RecordTaskEvent(ctx, r.runID, taskID, wave, string(status)); err != nil {
				r.logger.Warn("recording task event", "task_id", taskID, "error", err)
			}
		},
		Logger: r.logger,
	})

	results, err := sched.Run(ctx, g)
	r.results = results
	for _, res := range results {
		if herr := r.hist.RecordWaveEvent(ctx, r.runID, res.Index, res.Done, res.Failed, res.Blocked, res.Duration); herr != nil {
			r.logger.Warn("recording wave event", "wave", res.Index, "error", herr)
		}
	}
	if err != nil {
		return flow.Failf(flow.SeverityCritical, "dispatch halted: %v", err)
	}
	return flow.ClassifyWaves(results)
}

// dispatch spawns one agent for a task and drives it to a terminal state.
func (r *runner) dispatch(ctx context.Context, task graph.Task) error {
	agentID, err := r.cli.Spawn(ctx, r.taskCmd, []string{task.ID}, protocol.Limits{
		Wallclock: r.cfg.Agents.DefaultWallclock,
	})
	if err != nil {
		return fmt.Errorf("spawning agent for %s: %w", task.ID, err)
	}

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = r.cli.Stop(context.WithoutCancel(ctx), agentID, false)
			return ctx.Err()
		case <-ticker.C:
		}

		st, err := r.cli.Status(ctx, agentID)
		if err != nil {
			return fmt.Errorf("polling agent %s: %w", agentID, err)
		}
		switch st.State {
		case protocol.StateStopped:
			return nil
		case protocol.StateFailed:
			return fmt.Errorf("agent %s failed: %s", agentID, st.FailureReason)
		}
	}
}

// qa verifies no task's agent is still live on the server.
func (r *runner) qa(ctx context.Context) error {
	stats, err := r.cli.Stats(ctx)
	if err != nil {
		return fmt.Errorf("fetching server stats: %w", err)
	}
	if stats.ActiveAgents > 0 {
		return flow.Failf(flow.SeverityRecoverable, "%d agents still active after dispatch", stats.ActiveAgents)
	}
	return nil
}

// summarize prints the human-facing run report.
func (r *runner) summarize(context.Context) error {
	bold := color.New(color.Bold)
	bold.Printf("run %s", r.runID)
	if r.tag != "" {
		fmt.Printf(" (%s)", r.tag)
	}
	fmt.Println()

	for _, res := range r.results {
		line := fmt.Sprintf("  wave %d: %d done, %d failed, %d blocked in %s",
			res.Index, res.Done, res.Failed, res.Blocked, res.Duration.Round(time.Millisecond))
		if res.Failed > 0 || res.Blocked > 0 {
			color.Yellow(line)
		} else {
			fmt.Println(line)
		}
	}
	return nil
}
