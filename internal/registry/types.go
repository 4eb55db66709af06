// Package registry implements the session registry (C3): an in-memory
// directory of live agent processes, their dedup contract, parent/child
// delegation hierarchy, and idle-session reaping.
package registry

import "time"

// SessionType distinguishes a human-driven CLI session from an
// orchestrator-spawned autonomous one.
type SessionType string

const (
	SessionTypeCLI        SessionType = "cli"
	SessionTypeAutonomous SessionType = "autonomous"
)

// Status is a session's current lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusIdle   Status = "idle"
	StatusPaused Status = "paused"
	StatusError  Status = "error"
	StatusEnded  Status = "ended"
)

// Metrics is the rolling set of per-session counters the orchestrator and
// control plane read.
type Metrics struct {
	ContextPercent  float64 `json:"contextPercent"`
	InputTokens     int64   `json:"inputTokens"`
	OutputTokens    int64   `json:"outputTokens"`
	TotalTokens     int64   `json:"totalTokens"`
	Cost            float64 `json:"cost"`
	Messages        int     `json:"messages"`
	Iteration       int     `json:"iteration"`
	QualityScore    int     `json:"qualityScore"`
	ConfidenceScore int     `json:"confidenceScore"`
}

// DelegationStatus is a delegation record's lifecycle.
type DelegationStatus string

const (
	DelegationActive    DelegationStatus = "active"
	DelegationCompleted DelegationStatus = "completed"
	DelegationFailed    DelegationStatus = "failed"
)

// Delegation is an informational record of one session delegating work to
// another agent; the registry tracks these but never spawns children itself.
type Delegation struct {
	DelegationID string           `json:"delegationId"`
	TargetAgentID string          `json:"targetAgentId"`
	TaskID       string           `json:"taskId"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	Status       DelegationStatus `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
	Result       string           `json:"result,omitempty"`
}

// Session is a live agent process as tracked by the registry.
type Session struct {
	ID              int64        `json:"id"`
	Project         string       `json:"project"`
	ProjectPath     string       `json:"projectPath"`
	Status          Status       `json:"status"`
	CreatedAt       time.Time    `json:"createdAt"`
	StartTime       time.Time    `json:"startTime"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	EndedAt         *time.Time   `json:"endedAt,omitempty"`
	SessionType     SessionType  `json:"sessionType"`
	OrchestratorID  string       `json:"orchestratorId,omitempty"`
	AgentSessionID  string       `json:"agentSessionId,omitempty"`
	ParentSessionID int64        `json:"parentSessionId,omitempty"`
	Metrics         Metrics      `json:"metrics"`
	CurrentTaskID   string       `json:"currentTaskId,omitempty"`
	QueuedTaskIDs   []string     `json:"queuedTaskIds,omitempty"`
	SkippedTaskIDs  []string     `json:"skippedTaskIds,omitempty"`
	Delegations     []Delegation `json:"delegations,omitempty"`
}

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	Project        string
	ProjectPath    string
	SessionType    SessionType
	OrchestratorID string
	AgentSessionID string
	ParentSessionID int64
	CurrentTaskID  string
}

// Update is a partial update applied by UpdateSession; zero fields are
// left unchanged except where noted.
type Update struct {
	Status        *Status
	Metrics       *Metrics
	CurrentTaskID *string
	QueuedTaskIDs []string
	SkippedTaskIDs []string
}

// HierarchySummary augments a session listing with derived delegation depth.
type HierarchySummary struct {
	Sessions             []*Session `json:"sessions"`
	ActiveDelegationCount int       `json:"activeDelegationCount"`
	MaxDelegationDepth    int       `json:"maxDelegationDepth"`
}

// CompletionRecord is one entry in the bounded completion ring consumed by
// the control plane's fleet-summary endpoint.
type CompletionRecord struct {
	Project   string    `json:"project"`
	TaskID    string    `json:"taskId"`
	Score     int       `json:"score"`
	Cost      float64   `json:"cost"`
	At        time.Time `json:"at"`
}
