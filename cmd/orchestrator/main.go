// Package main is the orchestrator daemon entry point. It wires every
// component (C1-C10), applies configuration in cascading order (defaults,
// YAML file, environment, CLI flags), runs the outer loop and HTTP control
// plane side by side, and stops every background loop together, through one
// shared context, when either exits or a signal arrives.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/codenerd/orchestrator-core/internal/audit"
	"github.com/codenerd/orchestrator-core/internal/claims"
	"github.com/codenerd/orchestrator-core/internal/config"
	"github.com/codenerd/orchestrator-core/internal/contexttracker"
	"github.com/codenerd/orchestrator-core/internal/controlplane"
	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/logging"
	"github.com/codenerd/orchestrator-core/internal/notifier"
	"github.com/codenerd/orchestrator-core/internal/orchestrator"
	"github.com/codenerd/orchestrator-core/internal/procsupervisor"
	"github.com/codenerd/orchestrator-core/internal/ratelimit"
	"github.com/codenerd/orchestrator-core/internal/registry"
	"github.com/codenerd/orchestrator-core/internal/tasks"
)

var (
	configPath string

	flagPhase         string
	flagThreshold     int
	flagMaxSessions   int
	flagMaxIterations int
	flagTask          string
	flagDelayMS       int
	verbose           bool

	cliLogger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Autonomous development orchestrator daemon",
	Long: `orchestrator drives an external coding-agent CLI through research,
design, implement and test phases, applying quality gates and fleet-wide
rate-limit accounting, and exposes a control-plane HTTP/SSE/WebSocket
surface over the run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("building CLI logger: %w", err)
		}
		cliLogger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cliLogger != nil {
			_ = cliLogger.Sync()
		}
	},
	RunE: runDaemon,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose CLI logging")
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	rootCmd.Flags().StringVar(&flagPhase, "phase", "", "starting phase (overrides config/start_phase)")
	rootCmd.Flags().IntVar(&flagThreshold, "threshold", 0, "context percent threshold for preempting a session (0 = unset)")
	rootCmd.Flags().IntVar(&flagMaxSessions, "max-sessions", 0, "session cap for this run (0 = unlimited)")
	rootCmd.Flags().IntVar(&flagMaxIterations, "max-iterations", 0, "max iterations per phase (0 = unset)")
	rootCmd.Flags().StringVar(&flagTask, "task", "", "fallback task description when tasks.json is absent")
	rootCmd.Flags().IntVar(&flagDelayMS, "delay", 0, "delay between sessions in milliseconds (0 = unset)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runDaemon applies config in cascading order, opens every store, and runs
// the outer loop and the control plane concurrently until either exits or
// ctx is cancelled by a signal.
func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)
	applyFlags(cfg)

	projectDir, err := filepath.Abs(cfg.ProjectPath)
	if err != nil {
		return fmt.Errorf("resolving project path: %w", err)
	}

	if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.DebugMode, cfg.Logging.Level, false); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize logging: %v\n", err)
	}
	cliLogger.Info("starting orchestrator", zap.String("projectPath", cfg.ProjectPath), zap.Int("port", cfg.Port), zap.String("startPhase", cfg.StartPhase))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()

	storePath := resolvePath(projectDir, cfg.Tasks.StorePath)
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return fmt.Errorf("preparing task store dir: %w", err)
	}
	tm, err := tasks.Open(storePath, bus)
	if err != nil {
		logging.Orchestrator("fatal: opening task store: %v", err)
		return err
	}
	defer tm.Close()
	if flagTask != "" {
		seedFallbackTask(tm, flagTask)
	}

	reg := registry.New(bus)

	claimsPath := resolvePath(projectDir, cfg.Claims.DBPath)
	if err := os.MkdirAll(filepath.Dir(claimsPath), 0o755); err != nil {
		return fmt.Errorf("preparing claims db dir: %w", err)
	}
	coord, err := claims.Open(claimsPath, bus)
	if err != nil {
		logging.Orchestrator("fatal: opening claims db: %v", err)
		return err
	}
	defer coord.Close()

	rl, err := ratelimit.Open(resolvePath(projectDir, ".claude/dev-docs/.coordination/ratelimit.json"), ratelimit.DefaultLimits(), bus)
	if err != nil {
		logging.Orchestrator("fatal: opening rate-limit tracker: %v", err)
		return err
	}

	sup := procsupervisor.New(bus, cfg.ContextThreshold)

	tracker := contexttracker.New(cfg.AgentLogRoot, contextLimitTokens, contexttracker.Thresholds{
		Warning:   cfg.ContextAlertThresholds.Warning,
		Critical:  cfg.ContextAlertThresholds.Critical,
		Emergency: cfg.ContextAlertThresholds.Emergency,
	}, bus)

	auditPath := resolvePath(projectDir, ".claude/logs/audit.jsonl")
	if err := os.MkdirAll(filepath.Dir(auditPath), 0o755); err != nil {
		return fmt.Errorf("preparing audit log dir: %w", err)
	}
	rec, err := audit.Open(auditPath)
	if err != nil {
		logging.Orchestrator("fatal: opening audit log: %v", err)
		return err
	}
	defer rec.Close()

	orch := orchestrator.New(orchestrator.Deps{
		Tasks:      tm,
		Registry:   reg,
		Claims:     coord,
		RateLimit:  rl,
		Supervisor: sup,
		Bus:        bus,
		Config:     cfg,
		Notifier:   notifier.LogNotifier{},
	}, projectDir)

	cp := controlplane.New(controlplane.Deps{
		Tasks:        tm,
		Registry:     reg,
		Claims:       coord,
		RateLimit:    rl,
		Orchestrator: orch,
		Bus:          bus,
		Config:       cfg,
	})
	defer cp.Close()

	addr := net.JoinHostPort("", strconv.Itoa(cfg.Port))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// RunCleanupScheduler blocks until gctx is cancelled.
		coord.RunCleanupScheduler(gctx, liveSessionChecker(reg))
		return nil
	})
	g.Go(func() error {
		rl.RunPersistLoop(gctx)
		return nil
	})
	g.Go(func() error {
		rec.Run(gctx, bus)
		return nil
	})
	g.Go(func() error {
		return tracker.Run(gctx)
	})
	g.Go(func() error {
		return cp.Run(gctx, addr)
	})
	g.Go(func() error {
		err := orch.Run(gctx)
		// The outer loop finishing (queue exhausted or session cap hit) is
		// the daemon's own orderly-shutdown trigger: tear everything else
		// down with it rather than waiting for a signal that will never come.
		stop()
		return err
	})

	runErr := g.Wait()
	if runErr != nil && runErr != context.Canceled {
		logging.Orchestrator("fatal: %v", runErr)
		cliLogger.Error("orchestrator exited with error", zap.Error(runErr))
		return runErr
	}
	logging.Orchestrator("orchestrator shut down")
	cliLogger.Info("orchestrator shut down")
	return nil
}

// contextLimitTokens is the assumed per-session context window; the tracker
// uses it only to turn raw token counts into the percentages spec §4.5
// thresholds against.
const contextLimitTokens = 200_000

func applyFlags(cfg *config.Config) {
	if flagPhase != "" {
		cfg.StartPhase = flagPhase
	}
	if flagThreshold != 0 {
		cfg.ContextThreshold = flagThreshold
	}
	if flagMaxSessions != 0 {
		cfg.MaxSessions = flagMaxSessions
	}
	if flagMaxIterations != 0 {
		cfg.MaxIterationsPerPhase = flagMaxIterations
	}
	if flagDelayMS != 0 {
		cfg.SessionDelay = time.Duration(flagDelayMS) * time.Millisecond
	}
}

func resolvePath(projectDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectDir, p)
}

func liveSessionChecker(reg *registry.Registry) claims.LiveSessionChecker {
	return func(sessionID int64) bool {
		_, err := reg.Get(sessionID)
		return err == nil
	}
}

// seedFallbackTask ensures the store has at least one task to work when
// tasks.json did not already exist (spec §6, --task flag).
func seedFallbackTask(tm *tasks.Manager, description string) {
	if len(tm.AllTasks()) > 0 {
		return
	}
	if _, err := tm.CreateTask(tasks.Spec{
		Title: description,
		Phase: "research",
	}); err != nil {
		logging.Orchestrator("seeding fallback task: %v", err)
	}
}
