// Package config collapses the orchestrator's dynamic named parameters into
// a single Config struct, filled in cascading order: defaults, then an
// optional YAML file, then environment variables, then CLI flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all orchestrator configuration.
type Config struct {
	ProjectPath string `yaml:"project_path"`
	Port        int    `yaml:"port"`

	ContextThreshold int `yaml:"context_threshold"` // percent, default 65

	SessionDelay time.Duration `yaml:"session_delay"`

	MaxSessions            int `yaml:"max_sessions"` // 0 = unlimited
	MaxIterationsPerPhase  int `yaml:"max_iterations_per_phase"`
	MaxIterationsPerTask   int `yaml:"max_iterations_per_task"`

	FallbackTask string `yaml:"fallback_task"`
	StartPhase   string `yaml:"start_phase"`

	ContextAlertThresholds ContextAlertThresholds `yaml:"context_alert_thresholds"`

	AgentLogRoot string `yaml:"agent_log_root"` // root dir the context tracker watches

	Agent   AgentConfig   `yaml:"agent"`
	Claims  ClaimsConfig  `yaml:"claims"`
	Tasks   TasksConfig   `yaml:"tasks"`

	Logging LoggingConfig `yaml:"logging"`
}

// AgentConfig configures how the orchestrator spawns the agent CLI (§4.7.2).
type AgentConfig struct {
	Binary      string        `yaml:"binary"`
	Args        []string      `yaml:"args"`
	GracePeriod time.Duration `yaml:"grace_period"` // SIGTERM-to-SIGKILL window
	SessionLogDir string      `yaml:"session_log_dir"`
	PromptLogDir  string      `yaml:"prompt_log_dir"`
}

// ContextAlertThresholds are the three context-percent boundaries from §4.5.
type ContextAlertThresholds struct {
	Warning   int `yaml:"warning"`
	Critical  int `yaml:"critical"`
	Emergency int `yaml:"emergency"`
}

// ClaimsConfig configures the claim coordinator (C4).
type ClaimsConfig struct {
	DBPath            string        `yaml:"db_path"`
	DefaultTTL        time.Duration `yaml:"default_ttl"`
	CleanupExpired    time.Duration `yaml:"cleanup_expired_every"`
	CleanupOrphaned   time.Duration `yaml:"cleanup_orphaned_every"`
}

// TasksConfig configures the task store (C2).
type TasksConfig struct {
	StorePath string `yaml:"store_path"`
}

// LoggingConfig configures the category logger.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"`
	Dir       string `yaml:"dir"`
}

// Default returns the orchestrator's default configuration.
func Default() *Config {
	return &Config{
		ProjectPath:           ".",
		Port:                  3033,
		ContextThreshold:      65,
		SessionDelay:          5 * time.Second,
		MaxSessions:           0,
		MaxIterationsPerPhase: 10,
		MaxIterationsPerTask:  10,
		StartPhase:            "research",
		ContextAlertThresholds: ContextAlertThresholds{
			Warning:   50,
			Critical:  65,
			Emergency: 75,
		},
		AgentLogRoot: defaultAgentLogRoot(),
		Agent: AgentConfig{
			Binary:        "claude",
			Args:          []string{"--print", "--dangerously-skip-permissions"},
			GracePeriod:   5 * time.Second,
			SessionLogDir: ".claude/logs/sessions",
			PromptLogDir:  ".claude/logs",
		},
		Claims: ClaimsConfig{
			DBPath:          ".claude/dev-docs/.coordination/claims.db",
			DefaultTTL:      30 * time.Minute,
			CleanupExpired:  60 * time.Second,
			CleanupOrphaned: 5 * time.Minute,
		},
		Tasks: TasksConfig{
			StorePath: ".claude/dev-docs/tasks.json",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
			Dir:       ".claude/logs",
		},
	}
}

func defaultAgentLogRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agent-logs"
	}
	return home + "/.agent/projects"
}

// Load reads a YAML config file on top of the defaults. A missing file is
// not an error — the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays recognized environment variables onto cfg, per spec §6.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("CONTEXT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ContextThreshold = n
		}
	}
	if v := getenv("SESSION_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SessionDelay = time.Duration(n) * time.Millisecond
		}
	}
	if v := getenv("MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxSessions = n
		}
	}
	if v := getenv("MAX_ITERATIONS_PER_PHASE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterationsPerPhase = n
		}
	}
	if v := getenv("PROJECT_PATH"); v != "" {
		c.ProjectPath = v
	}
	if v := getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := getenv("CONTEXT_ALERT_THRESHOLD_WARNING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ContextAlertThresholds.Warning = n
		}
	}
	if v := getenv("CONTEXT_ALERT_THRESHOLD_CRITICAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ContextAlertThresholds.Critical = n
		}
	}
	if v := getenv("CONTEXT_ALERT_THRESHOLD_EMERGENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ContextAlertThresholds.Emergency = n
		}
	}
}
