// Package notifier defines the seam C7 calls on terminal events. Real SMS
// or email transports are out of scope (spec §1 non-goals); this package
// only ships a log-only implementation, grounded on the small
// event-interface + no-op-implementation shape used elsewhere in the
// example pack for UI/output notification seams (OutputNotifier /
// NopOutputNotifier).
package notifier

import "github.com/codenerd/orchestrator-core/internal/logging"

// Notifier is called on the outer loop's terminal events. Implementations
// must not block the orchestrator loop for long; a real transport should
// queue and return.
type Notifier interface {
	// PhaseComplete fires when a task's phase passes its quality gate and
	// advances.
	PhaseComplete(taskID, phase string, score int)

	// TaskComplete fires when a task reaches its final (test) phase and is
	// marked completed.
	TaskComplete(taskID, title string, score int)

	// RunComplete fires when the outer loop exits because the task queue is
	// exhausted (spec §4.7.1).
	RunComplete(totalSessions int)

	// RunBlocked fires when a phase has blocked tasks but no ready one, just
	// before the loop advances past that phase anyway. Tasks that exhaust
	// their iteration budget do not trigger it.
	RunBlocked(phase, reason string)
}

// LogNotifier is the only shipped implementation: it writes one line per
// event through the category logger, at CategoryOrchestrator.
type LogNotifier struct{}

var _ Notifier = LogNotifier{}

func (LogNotifier) PhaseComplete(taskID, phase string, score int) {
	logging.Orchestrator("notify: task %s completed phase %s (score %d)", taskID, phase, score)
}

func (LogNotifier) TaskComplete(taskID, title string, score int) {
	logging.Orchestrator("notify: task %s (%q) completed (score %d)", taskID, title, score)
}

func (LogNotifier) RunComplete(totalSessions int) {
	logging.Orchestrator("notify: run complete after %d sessions", totalSessions)
}

func (LogNotifier) RunBlocked(phase, reason string) {
	logging.Orchestrator("notify: run blocked in phase %s: %s", phase, reason)
}
