// Package orchestrator implements the outer phase/task state machine (C7):
// a single-threaded loop that selects a task, spawns one agent CLI session
// at a time, interprets its completion artifacts, and decides whether to
// iterate, advance phase, move to a new task, or stop. See spec §4.7.
package orchestrator

import "time"

// phaseOrder is the fixed engineering-phase sequence a task walks through
// (spec §4.7.5); "complete" is a sentinel, not a real task phase.
var phaseOrder = []string{"research", "design", "implement", "test"}

// getNextPhase returns the phase after current, or "" once test has passed
// (the caller then treats the task as finished rather than advancing).
func getNextPhase(current string) string {
	for i, p := range phaseOrder {
		if p == current && i+1 < len(phaseOrder) {
			return phaseOrder[i+1]
		}
	}
	return ""
}

// State is the outer loop's mutable run state (spec §4.7 preamble).
type State struct {
	CurrentPhase            string
	PhaseIteration           int
	TotalSessions            int
	CurrentTaskID            string
	TaskIterations           map[string]int
	ContinueWithCurrentTask  bool
	PhaseScores              map[string]int
}

func newState(startPhase string) *State {
	return &State{
		CurrentPhase:   startPhase,
		TaskIterations: map[string]int{},
		PhaseScores:    map[string]int{},
	}
}

// TaskCompletion mirrors task-completion.json (spec §3).
type TaskCompletion struct {
	TaskID         string   `json:"taskId"`
	Status         string   `json:"status"`
	AcceptanceMet  []bool   `json:"acceptanceMet"`
	Deliverables   []string `json:"deliverables"`
	Notes          string   `json:"notes"`
	CompletedAt    time.Time `json:"completedAt"`
}

// completionVerdict is the orchestrator's own interpretation of a
// TaskCompletion read off disk, after applying the §4.7.4/P7 safety rule.
type completionVerdict struct {
	complete bool
	reason   string
}

// Progress is a read-only snapshot for dashboards/control-plane queries,
// grounded on the teacher's campaign Progress view.
type Progress struct {
	CurrentPhase   string `json:"currentPhase"`
	PhaseIteration int    `json:"phaseIteration"`
	TotalSessions  int    `json:"totalSessions"`
	CurrentTaskID  string `json:"currentTaskId"`
	Running        bool   `json:"running"`
	Paused         bool   `json:"paused"`
}
