// Package procsupervisor spawns and supervises the agent CLI subprocess that
// does the actual work for one orchestrator session (§4.7.2). It owns the
// process's whole lifetime: writing the prompt to a temp file, wiring
// stdin/stdout/stderr, watching the context tracker's event stream for a
// threshold crossing attributed to this session, and killing the process
// group (graceful-then-forced) when a threshold crossing or context
// cancellation preempts it. A child that exits on its own is not killed.
package procsupervisor

import "time"

// ExitReason is why runSession returned, mirrored into the orchestrator's
// outer-loop decision per §4.7.1.
type ExitReason string

const (
	ExitComplete  ExitReason = "complete"
	ExitThreshold ExitReason = "threshold"
	ExitError     ExitReason = "error"
)

// SpawnRequest is everything a session needs to run one agent CLI child.
type SpawnRequest struct {
	Prompt      string
	SessionID   string // the agent CLI's own session id the context tracker attributes usage to
	ProjectPath string
	Binary      string
	Args        []string
	GracePeriod time.Duration // SIGTERM-to-SIGKILL window; 0 uses DefaultGracePeriod
	LogPath     string        // per-session transcript file; "" disables file teeing
}

// Result is what RunSession returns once the child has exited (by whatever
// path).
type Result struct {
	ExitReason ExitReason
	ExitCode   int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	PromptPath string
}

// DefaultGracePeriod matches spec §4.7.2's default bounded grace window.
const DefaultGracePeriod = 5 * time.Second

// DefaultContextThreshold is the percent at which a warning/critical/
// emergency context event preempts the running session (spec §4.7.2).
const DefaultContextThreshold = 65
