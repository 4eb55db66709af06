package orchestrator

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/codenerd/orchestrator-core/internal/claims"
	"github.com/codenerd/orchestrator-core/internal/config"
	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/notifier"
	"github.com/codenerd/orchestrator-core/internal/procsupervisor"
	"github.com/codenerd/orchestrator-core/internal/ratelimit"
	"github.com/codenerd/orchestrator-core/internal/registry"
	"github.com/codenerd/orchestrator-core/internal/tasks"
)

// Deps bundles the components the orchestrator drives. All of them outlive
// the Orchestrator and are owned/closed by the caller (cmd/orchestrator).
// Notifier may be left nil; New defaults it to notifier.LogNotifier.
type Deps struct {
	Tasks      *tasks.Manager
	Registry   *registry.Registry
	Claims     *claims.Coordinator
	RateLimit  *ratelimit.Tracker
	Supervisor *procsupervisor.Supervisor
	Bus        *events.Bus
	Config     *config.Config
	Notifier   notifier.Notifier
}

// Orchestrator is the C7 outer loop: it owns the run state machine described
// in spec §4.7 and nothing else — no direct file I/O beyond prompt/artifact
// handling, no HTTP surface (that's C8).
type Orchestrator struct {
	deps Deps

	mu         sync.Mutex
	state      *State
	running    bool
	paused     bool
	cancelFunc func()

	orchestratorID string
	projectDir     string
}

// New constructs an Orchestrator rooted at projectDir (used to resolve the
// artifact/log paths under .claude/dev-docs and .claude/logs).
func New(deps Deps, projectDir string) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notifier.LogNotifier{}
	}
	return &Orchestrator{
		deps:           deps,
		state:          newState(deps.Config.StartPhase),
		orchestratorID: uuid.NewString(),
		projectDir:     projectDir,
	}
}

func (o *Orchestrator) artifactPath(name string) string {
	return filepath.Join(o.projectDir, ".claude", "dev-docs", name)
}

func (o *Orchestrator) sessionLogPath(n int) string {
	return filepath.Join(o.projectDir, ".claude", "logs", fmt.Sprintf("session-%d.log", n))
}

func (o *Orchestrator) promptLogPath(n int) string {
	return filepath.Join(o.projectDir, ".claude", "logs", fmt.Sprintf("prompt-%d.txt", n))
}

// Pause stops the loop from starting new sessions without tearing it down;
// the current session (if any) still runs to completion.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
}

// Resume clears a prior Pause.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
}

// Stop cancels the running loop, if any.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelFunc != nil {
		o.cancelFunc()
	}
}

// GetProgress returns a snapshot of the loop's current state.
func (o *Orchestrator) GetProgress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Progress{
		CurrentPhase:   o.state.CurrentPhase,
		PhaseIteration: o.state.PhaseIteration,
		TotalSessions:  o.state.TotalSessions,
		CurrentTaskID:  o.state.CurrentTaskID,
		Running:        o.running,
		Paused:         o.paused,
	}
}
