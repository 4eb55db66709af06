package procsupervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/logging"
)

// Supervisor runs one agent CLI subprocess at a time, per spec §4.7.2. A
// single Supervisor is reused across sessions; each RunSession call is a
// fresh spawn.
type Supervisor struct {
	bus              *events.Bus
	contextThreshold int
}

// New returns a Supervisor that preempts sessions once the context tracker
// reports them at or above contextThreshold percent. A non-positive
// threshold falls back to DefaultContextThreshold.
func New(bus *events.Bus, contextThreshold int) *Supervisor {
	if contextThreshold <= 0 {
		contextThreshold = DefaultContextThreshold
	}
	return &Supervisor{bus: bus, contextThreshold: contextThreshold}
}

// RunSession writes req.Prompt to a temp file, spawns the agent CLI with it
// on stdin, and blocks until the child exits, a context threshold event
// preempts it, or ctx is cancelled. It always flushes log streams and always
// unsubscribes from the event bus before returning.
func (s *Supervisor) RunSession(ctx context.Context, req SpawnRequest) (Result, error) {
	result := Result{StartedAt: time.Now()}

	promptPath, err := writePromptFile(req.Prompt)
	if err != nil {
		return result, fmt.Errorf("procsupervisor: write prompt: %w", err)
	}
	result.PromptPath = promptPath
	defer os.Remove(promptPath)

	promptFile, err := os.Open(promptPath)
	if err != nil {
		return result, fmt.Errorf("procsupervisor: open prompt: %w", err)
	}
	defer promptFile.Close()

	grace := req.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	cmd := exec.Command(req.Binary, req.Args...)
	cmd.Stdin = promptFile
	setupProcessGroup(cmd)

	var logFile *os.File
	if req.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(req.LogPath), 0o755); err == nil {
			logFile, _ = os.OpenFile(req.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		}
	}
	if logFile != nil {
		defer logFile.Close()
		cmd.Stdout = io.MultiWriter(os.Stdout, logFile)
		cmd.Stderr = io.MultiWriter(os.Stderr, logFile)
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		result.Err = err
		result.ExitReason = ExitError
		result.FinishedAt = time.Now()
		result.Duration = result.FinishedAt.Sub(result.StartedAt)
		return result, nil
	}

	var evtCh <-chan events.Event
	var unsubscribe func()
	if s.bus != nil {
		evtCh, unsubscribe = s.bus.Subscribe()
		defer unsubscribe()
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var killOnce sync.Once
	var killMu sync.Mutex
	reason := ExitError

	killFor := func(r ExitReason) {
		killOnce.Do(func() {
			killMu.Lock()
			reason = r
			killMu.Unlock()
			go terminateWithGrace(cmd, grace)
		})
	}

	for {
		select {
		case err := <-waitErr:
			if logFile != nil {
				logFile.Sync()
			}
			killMu.Lock()
			finalReason := reason
			killMu.Unlock()
			result.FinishedAt = time.Now()
			result.Duration = result.FinishedAt.Sub(result.StartedAt)
			if finalReason == ExitThreshold {
				result.ExitReason = ExitThreshold
			} else if err == nil {
				result.ExitReason = ExitComplete
			} else {
				result.ExitReason = ExitError
				result.Err = err
			}
			if cmd.ProcessState != nil {
				result.ExitCode = cmd.ProcessState.ExitCode()
			}
			return result, nil

		case <-ctx.Done():
			killFor(ExitError)

		case evt, ok := <-evtCh:
			if !ok {
				evtCh = nil
				continue
			}
			if s.matchesThreshold(evt, req) {
				logging.OrchestratorDebug("session %s preempted by context threshold event", req.SessionID)
				killFor(ExitThreshold)
			}
		}
	}
}

func (s *Supervisor) matchesThreshold(evt events.Event, req SpawnRequest) bool {
	if evt.Kind != events.KindContextThreshold {
		return false
	}
	payload, ok := evt.Payload.(events.ContextThresholdPayload)
	if !ok {
		return false
	}
	if payload.SessionID != req.SessionID && payload.ProjectPath != req.ProjectPath {
		return false
	}
	return payload.Utilization >= float64(s.contextThreshold)
}

// terminateWithGrace issues graceful termination, then force-kills after
// grace elapses, tolerating a process that exits in between.
func terminateWithGrace(cmd *exec.Cmd, grace time.Duration) {
	_ = terminateGraceful(cmd)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	<-timer.C
	_ = killHard(cmd)
}

func writePromptFile(prompt string) (string, error) {
	f, err := os.CreateTemp("", "orchestrator-prompt-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(prompt); err != nil {
		return "", err
	}
	return f.Name(), nil
}
