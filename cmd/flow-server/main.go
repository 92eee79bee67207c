// ABOUTME: Entry point for the flow-server agent host.
// ABOUTME: Supervises agent processes and serves the websocket control protocol.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/coven-flow/internal/auth"
	"github.com/2389/coven-flow/internal/config"
	"github.com/2389/coven-flow/internal/protocol"
	"github.com/2389/coven-flow/internal/server"
	"github.com/2389/coven-flow/internal/store"
	"github.com/2389/coven-flow/internal/supervisor"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ___ _____   _____ _ __        / _| | _____      __
 / __/ _ \ \ / / _ \ '_ \ _____| |_| |/ _ \ \ /\ / /
| (_| (_) \ V /  __/ | | |_____|  _| | (_) \ V  V /
 \___\___/ \_/ \___|_| |_|     |_| |_|\___/ \_/\_/
`

// getConfigPath returns the path to the server config file.
// Priority: FLOW_CONFIG env var > XDG_CONFIG_HOME/coven-flow/flow.yaml > ~/.config/coven-flow/flow.yaml
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
	path := getConfigPath()
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: flow-server <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                    Start the agent host")
		fmt.Println("  health                   Check server health")
		fmt.Println("  token --subject NAME     Mint a client token")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:   %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("History:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	if cfg.Auth.JWTSecret == "" {
		color.New(color.FgYellow).Println("Auth:     disabled")
	} else {
		fmt.Println("Auth:     bearer token")
	}
	fmt.Println()

	hist, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer hist.Close()

	// One run id per server session groups the agent lifecycle trail.
	sessionID := uuid.New().String()

	sup := supervisor.New(supervisor.Options{
		StopGrace:       cfg.Agents.StopGrace,
		MonitorInterval: cfg.Agents.MonitorInterval,
		BufferSize:      cfg.Agents.OutputBufferBytes,
		OnSpawn: func(st protocol.AgentStatus) {
			if err := hist.RecordAgentEvent(ctx, sessionID, st.AgentID, "spawned", ""); err != nil {
				logger.Warn("recording spawn event", "error", err)
			}
		},
		OnExit: func(st protocol.AgentStatus) {
			event := "stopped"
			if st.State == protocol.StateFailed {
				event = "failed"
			}
			if err := hist.RecordAgentEvent(ctx, sessionID, st.AgentID, event, st.FailureReason); err != nil {
				logger.Warn("recording exit event", "error", err)
			}
		},
		Logger: logger,
	})
	defer sup.Close()

	opts := server.Options{Logger: logger}
	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return fmt.Errorf("creating token verifier: %w", err)
		}
		opts.Verifier = verifier
	}

	srv := server.New(sup, opts)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting flow-server",
		"config", configPath,
		"addr", cfg.Server.Addr,
		"session", sessionID,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runToken() error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "", "token subject (required)")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("--subject is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured in %s", getConfigPath())
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating token verifier: %w", err)
	}
	token, err := verifier.Generate(*subject, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}
