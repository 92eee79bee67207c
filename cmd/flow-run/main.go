// ABOUTME: Entry point for the flow-run workflow CLI.
// ABOUTME: Drives the phase sequence against a flow-server and prints history.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-flow/internal/config"
	"github.com/2389/coven-flow/internal/store"
)

func getConfigPath() string {
	if envPath := os.Getenv("FLOW_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "flow.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven-flow", "flow.yaml")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: flow-run <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run --graph FILE [--tag TAG] [--resume]   Execute a workflow")
		fmt.Println("  history [--run ID]                        Show run history")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runRun(ctx)
	case "history":
		err = runHistory(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runRun(ctx context.Context) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	graphPath := fs.String("graph", "", "task graph TOML file (required)")
	tag := fs.String("tag", "", "run tag recorded in the flow state")
	resume := fs.Bool("resume", false, "resume a previous run from its flow state")
	taskCmd := fs.String("task-cmd", "fake-agent", "command spawned for each task")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *graphPath == "" {
		return fmt.Errorf("--graph is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	r := &runner{
		cfg:       cfg,
		logger:    logger,
		graphPath: *graphPath,
		taskCmd:   *taskCmd,
		tag:       *tag,
		resume:    *resume,
		token:     os.Getenv("FLOW_TOKEN"),
	}
	return r.run(ctx)
}

func runHistory(ctx context.Context) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	runID := fs.String("run", "", "show one run's events instead of the run list")
	limit := fs.Int("limit", 20, "max runs to list")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	hist, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer hist.Close()

	if *runID == "" {
		return printRuns(ctx, hist, *limit)
	}
	return printRun(ctx, hist, *runID)
}

func printRuns(ctx context.Context, hist *store.Store, limit int) error {
	runs, err := hist.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, r := range runs {
		status := color.GreenString("ok")
		if r.Failed > 0 {
			status = color.RedString("%d failed", r.Failed)
		}
		fmt.Printf("%s  %s  %d tasks  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.RunID, r.Tasks, status)
	}
	return nil
}

func printRun(ctx context.Context, hist *store.Store, runID string) error {
	tasks, err := hist.ListTaskEvents(ctx, runID)
	if err != nil {
		return err
	}
	waves, err := hist.ListWaveEvents(ctx, runID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 && len(waves) == 0 {
		return fmt.Errorf("no events recorded for run %s", runID)
	}

	if len(tasks) > 0 {
		color.New(color.Bold).Println("Tasks")
		for _, e := range tasks {
			fmt.Printf("  %s  wave %d  %-12s %s\n",
				e.CreatedAt.Format("15:04:05"), e.Wave, e.Status, e.TaskID)
		}
	}
	if len(waves) > 0 {
		color.New(color.Bold).Println("Waves")
		for _, e := range waves {
			fmt.Printf("  wave %d: %d done, %d failed, %d blocked in %s\n",
				e.Wave, e.Done, e.Failed, e.Blocked, e.Duration)
		}
	}
	return nil
}
