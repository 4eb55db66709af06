package registry

import (
	"sync"
	"time"

	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/logging"
)

const (
	// defaultIdleHorizon is how long a session may go without an update
	// before the reaper transitions it to ended (spec §4.3).
	defaultIdleHorizon = 30 * time.Minute

	// dedupUpgradeWindow bounds how recently a cli session must have started
	// for an autonomous registration on the same project to upgrade it in
	// place, rather than creating a new row (spec §4.3 rule 3).
	dedupUpgradeWindow = 5 * time.Minute

	// completionRingSize bounds recordCompletion's in-memory history.
	completionRingSize = 100
)

// Registry is the in-memory session directory, indexed by numeric id plus
// an agent-session-id index (used by the dedup contract) and a
// parent -> children index (used for delegation depth).
type Registry struct {
	mu sync.Mutex

	nextID   int64
	sessions map[int64]*Session

	byAgentSessionID map[string]int64
	children         map[int64][]int64

	completions []CompletionRecord
	dailyCounts map[string]map[string]int // project -> date -> count

	idleHorizon time.Duration
	bus         *events.Bus
}

// New creates an empty Registry.
func New(bus *events.Bus) *Registry {
	return &Registry{
		// Ids start at 1: a ParentSessionID of 0 means "no parent".
		nextID:           1,
		sessions:         map[int64]*Session{},
		byAgentSessionID: map[string]int64{},
		children:         map[int64][]int64{},
		dailyCounts:      map[string]map[string]int{},
		idleHorizon:      defaultIdleHorizon,
		bus:              bus,
	}
}

func (r *Registry) publish(kind events.Kind, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{Kind: kind, Payload: payload})
}

// Register applies the dedup contract (spec §4.3) and returns the id of the
// resulting (possibly merged/upgraded) session.
func (r *Registry) Register(req RegisterRequest) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	// Rule 1: same external agentSessionId merges into the existing row.
	if req.AgentSessionID != "" {
		if id, ok := r.byAgentSessionID[req.AgentSessionID]; ok {
			s := r.sessions[id]
			r.mergeLocked(s, req, now)
			return id
		}
	}

	if req.SessionType == SessionTypeAutonomous {
		// Rule 2: end stale autonomous sessions on the same project without
		// an agentSessionId — they are crash artefacts.
		for _, s := range r.sessions {
			if s.SessionType == SessionTypeAutonomous && s.ProjectPath == req.ProjectPath &&
				s.AgentSessionID == "" && s.Status != StatusEnded {
				r.endLocked(s, now)
			}
		}

		// Rule 3: upgrade a recent cli session on the same project in place.
		for _, s := range r.sessions {
			if s.SessionType == SessionTypeCLI && s.ProjectPath == req.ProjectPath &&
				s.Status != StatusEnded && now.Sub(s.StartTime) <= dedupUpgradeWindow {
				s.SessionType = SessionTypeAutonomous
				s.OrchestratorID = req.OrchestratorID
				s.UpdatedAt = now
				if req.CurrentTaskID != "" {
					s.CurrentTaskID = req.CurrentTaskID
				}
				logging.Registry("upgraded cli session %d to autonomous on %s", s.ID, req.ProjectPath)
				r.publish(events.KindSessionUpdated, SessionPayload(s))
				return s.ID
			}
		}
	}

	id := r.nextID
	r.nextID++
	s := &Session{
		ID:              id,
		Project:         req.Project,
		ProjectPath:     req.ProjectPath,
		Status:          StatusActive,
		CreatedAt:       now,
		StartTime:       now,
		UpdatedAt:       now,
		SessionType:     req.SessionType,
		OrchestratorID:  req.OrchestratorID,
		AgentSessionID:  req.AgentSessionID,
		ParentSessionID: req.ParentSessionID,
		CurrentTaskID:   req.CurrentTaskID,
	}
	r.sessions[id] = s
	if req.AgentSessionID != "" {
		r.byAgentSessionID[req.AgentSessionID] = id
	}
	if req.ParentSessionID != 0 {
		r.children[req.ParentSessionID] = append(r.children[req.ParentSessionID], id)
	}

	logging.Registry("registered session %d project=%s type=%s", id, req.Project, req.SessionType)
	r.publish(events.KindSessionRegistered, SessionPayload(s))
	return id
}

func (r *Registry) mergeLocked(s *Session, req RegisterRequest, now time.Time) {
	if req.SessionType == SessionTypeAutonomous {
		s.SessionType = SessionTypeAutonomous // never downgrade; autonomous stays autonomous, cli->autonomous allowed
	}
	if req.OrchestratorID != "" {
		s.OrchestratorID = req.OrchestratorID
	}
	if req.CurrentTaskID != "" {
		s.CurrentTaskID = req.CurrentTaskID
	}
	s.Status = StatusActive
	s.UpdatedAt = now
	logging.Registry("merged registration into existing session %d", s.ID)
	r.publish(events.KindSessionUpdated, SessionPayload(s))
}

// UpdateSession applies a partial update and bumps UpdatedAt.
func (r *Registry) UpdateSession(id int64, upd Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	if upd.Status != nil {
		s.Status = *upd.Status
	}
	if upd.Metrics != nil {
		s.Metrics = *upd.Metrics
	}
	if upd.CurrentTaskID != nil {
		s.CurrentTaskID = *upd.CurrentTaskID
	}
	if upd.QueuedTaskIDs != nil {
		s.QueuedTaskIDs = upd.QueuedTaskIDs
	}
	if upd.SkippedTaskIDs != nil {
		s.SkippedTaskIDs = upd.SkippedTaskIDs
	}
	s.UpdatedAt = time.Now()
	r.publish(events.KindSessionUpdated, SessionPayload(s))
	return nil
}

// End transitions a session to ended.
func (r *Registry) End(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	r.endLocked(s, time.Now())
	return nil
}

func (r *Registry) endLocked(s *Session, now time.Time) {
	if s.Status == StatusEnded {
		return
	}
	s.Status = StatusEnded
	s.UpdatedAt = now
	s.EndedAt = &now
	logging.Registry("ended session %d", s.ID)
	r.publish(events.KindSessionEnded, SessionPayload(s))
}

// Get returns a session by id.
func (r *Registry) Get(id int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	return s, nil
}

// List returns every tracked session.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// GetSummaryWithHierarchy returns all sessions plus derived delegation stats.
func (r *Registry) GetSummaryWithHierarchy() HierarchySummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := HierarchySummary{Sessions: make([]*Session, 0, len(r.sessions))}
	for _, s := range r.sessions {
		summary.Sessions = append(summary.Sessions, s)
		for _, d := range s.Delegations {
			if d.Status == DelegationActive {
				summary.ActiveDelegationCount++
			}
		}
	}
	summary.MaxDelegationDepth = r.maxDepthLocked()
	return summary
}

func (r *Registry) maxDepthLocked() int {
	var depth func(id int64) int
	memo := map[int64]int{}
	depth = func(id int64) int {
		if d, ok := memo[id]; ok {
			return d
		}
		best := 0
		for _, child := range r.children[id] {
			if d := depth(child); d+1 > best {
				best = d + 1
			}
		}
		memo[id] = best
		return best
	}

	max := 0
	for id, s := range r.sessions {
		if s.ParentSessionID == 0 {
			if d := depth(id); d > max {
				max = d
			}
		}
	}
	return max
}

// RegisterDelegation appends an informational delegation record to a
// session.
func (r *Registry) RegisterDelegation(id int64, d Delegation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	s.Delegations = append(s.Delegations, d)
	r.publish(events.KindDelegationStarted, SessionPayload(s))
	return nil
}

// RecordCompletion appends to the bounded completion ring and increments the
// project's daily counters.
func (r *Registry) RecordCompletion(project, taskID string, score int, cost float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := CompletionRecord{Project: project, TaskID: taskID, Score: score, Cost: cost, At: time.Now()}
	r.completions = append(r.completions, rec)
	if len(r.completions) > completionRingSize {
		r.completions = r.completions[len(r.completions)-completionRingSize:]
	}

	day := rec.At.Format("2006-01-02")
	if r.dailyCounts[project] == nil {
		r.dailyCounts[project] = map[string]int{}
	}
	r.dailyCounts[project][day]++
}

// RecentCompletions returns the completion ring, oldest first.
func (r *Registry) RecentCompletions() []CompletionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CompletionRecord, len(r.completions))
	copy(out, r.completions)
	return out
}

// ReapIdle transitions any session whose last update predates the idle
// horizon to ended. Intended to run on a periodic ticker.
func (r *Registry) ReapIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	reaped := 0
	for _, s := range r.sessions {
		if s.Status == StatusEnded {
			continue
		}
		if now.Sub(s.UpdatedAt) > r.idleHorizon {
			r.endLocked(s, now)
			reaped++
		}
	}
	if reaped > 0 {
		logging.Registry("reaped %d idle sessions", reaped)
	}
	return reaped
}

// SessionPayload builds the event payload for a session lifecycle change.
func SessionPayload(s *Session) events.SessionPayload {
	return events.SessionPayload{SessionID: s.ID, Project: s.Project, Status: string(s.Status)}
}
