// ABOUTME: Configuration loading and parsing for coven-flow.
// ABOUTME: YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete coven-flow configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Agents   AgentsConfig   `yaml:"agents"`
	Flow     FlowConfig     `yaml:"flow"`
	Client   ClientConfig   `yaml:"client"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the transport listen address.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AuthConfig holds authentication configuration. An empty secret disables
// handshake authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DatabaseConfig holds the run-history store location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AgentsConfig holds supervisor tuning.
type AgentsConfig struct {
	MonitorInterval   time.Duration `yaml:"-"`
	StopGrace         time.Duration `yaml:"-"`
	DefaultWallclock  time.Duration `yaml:"-"`
	OutputBufferBytes int           `yaml:"output_buffer_bytes"`

	// Raw string values for YAML unmarshaling
	MonitorIntervalRaw  string `yaml:"monitor_interval"`
	StopGraceRaw        string `yaml:"stop_grace"`
	DefaultWallclockRaw string `yaml:"default_wallclock"`
}

// FlowConfig holds workflow configuration.
type FlowConfig struct {
	MaxParallelTasks    int    `yaml:"max_parallel_tasks"`
	RetryBudgetPerPhase int    `yaml:"retry_budget_per_phase"`
	AutoCommit          bool   `yaml:"auto_commit"`
	StatePath           string `yaml:"state_path"`
}

// ClientConfig holds transport client tuning.
type ClientConfig struct {
	RequestTimeout time.Duration `yaml:"-"`
	BackoffInitial time.Duration `yaml:"-"`
	BackoffMax     time.Duration `yaml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout"`
	BackoffInitialRaw string `yaml:"backoff_initial"`
	BackoffMaxRaw     string `yaml:"backoff_max"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: "127.0.0.1:7433"},
		Database: DatabaseConfig{Path: ".coven-flow/history.db"},
		Agents: AgentsConfig{
			MonitorInterval:   2 * time.Second,
			StopGrace:         5 * time.Second,
			DefaultWallclock:  30 * time.Minute,
			OutputBufferBytes: 1 << 20,
		},
		Flow: FlowConfig{
			MaxParallelTasks:    3,
			RetryBudgetPerPhase: 3,
			AutoCommit:          true,
			StatePath:           ".coven-flow/flow-state.json",
		},
		Client: ClientConfig{
			RequestTimeout: 30 * time.Second,
			BackoffInitial: 250 * time.Millisecond,
			BackoffMax:     30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file and returns a parsed Config. Environment
// variables in ${VAR_NAME} form are expanded before parsing. Fields absent
// from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		name := re.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// Validate checks that the configuration is usable. Returns an error
// describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Flow.MaxParallelTasks < 1 {
		return fmt.Errorf("flow.max_parallel_tasks must be >= 1")
	}
	if c.Flow.RetryBudgetPerPhase < 0 {
		return fmt.Errorf("flow.retry_budget_per_phase must be >= 0")
	}
	if c.Flow.StatePath == "" {
		return fmt.Errorf("flow.state_path is required")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}

// SlogLevel maps the configured level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseDurations converts raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Agents.MonitorIntervalRaw, &cfg.Agents.MonitorInterval, "agents.monitor_interval"},
		{cfg.Agents.StopGraceRaw, &cfg.Agents.StopGrace, "agents.stop_grace"},
		{cfg.Agents.DefaultWallclockRaw, &cfg.Agents.DefaultWallclock, "agents.default_wallclock"},
		{cfg.Client.RequestTimeoutRaw, &cfg.Client.RequestTimeout, "client.request_timeout"},
		{cfg.Client.BackoffInitialRaw, &cfg.Client.BackoffInitial, "client.backoff_initial"},
		{cfg.Client.BackoffMaxRaw, &cfg.Client.BackoffMax, "client.backoff_max"},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
