package events

// TaskCreatedPayload accompanies KindTaskCreated.
type TaskCreatedPayload struct {
	TaskID string
	Phase  string
	Tier   string
}

// TaskStatusChangedPayload accompanies KindTaskStatusChanged.
type TaskStatusChangedPayload struct {
	TaskID    string
	OldStatus string
	NewStatus string
}

// TaskCompletedPayload accompanies KindTaskCompleted.
type TaskCompletedPayload struct {
	TaskID       string
	QualityScore int
}

// TaskUnblockedPayload accompanies KindTaskUnblocked.
type TaskUnblockedPayload struct {
	TaskID      string
	UnblockedBy string
}

// TaskPromotedPayload accompanies KindTaskPromoted.
type TaskPromotedPayload struct {
	TaskID   string
	FromTier string
	ToTier   string
}

// TaskMovedPayload accompanies KindTaskMoved.
type TaskMovedPayload struct {
	TaskID   string
	FromTier string
	ToTier   string
}

// TaskDeletedPayload accompanies KindTaskDeleted.
type TaskDeletedPayload struct {
	TaskID string
}

// SessionPayload accompanies session lifecycle events.
type SessionPayload struct {
	SessionID int64
	Project   string
	Status    string
}

// ClaimPayload accompanies claim lifecycle events.
type ClaimPayload struct {
	TaskID    string
	SessionID int64
	Reason    string
}

// ContextThresholdPayload accompanies KindContextThreshold. SessionID is the
// agent CLI's own session identifier (derived from its JSONL log filename),
// not the orchestrator's int64 registry id. Metrics carries the session's
// full running usage accumulator at the moment of the crossing.
type ContextThresholdPayload struct {
	Level       string
	Project     string
	ProjectPath string
	SessionID   string
	Utilization float64
	Metrics     any
}

// AlertPayload accompanies alert:warning / alert:critical.
type AlertPayload struct {
	Window  string
	Used    int
	Limit   int
	Percent float64
}
