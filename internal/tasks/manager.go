package tasks

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codenerd/orchestrator-core/internal/atomicfile"
	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/logging"
)

// Manager owns the on-disk task store. All mutating operations are
// serialized behind mu (spec §4.2: "single writer"); an OS-level advisory
// lock additionally guards against a second orchestrator process racing on
// the same store file.
type Manager struct {
	mu   sync.Mutex
	path string
	doc  *document
	bus  *events.Bus
	lock *atomicfile.Lock
}

// Open loads (or initializes) the store at path and acquires its advisory
// lock. Callers must call Close when done.
func Open(path string, bus *events.Bus) (*Manager, error) {
	lock, err := atomicfile.AcquireLock(path + ".lock")
	if err != nil {
		return nil, newError(ErrKindLocked, "%v", err)
	}
	doc, err := loadDocument(path)
	if err != nil {
		lock.Close()
		return nil, err
	}
	return &Manager{path: path, doc: doc, bus: bus, lock: lock}, nil
}

// Close releases the advisory lock. It does not persist; callers must have
// already saved via a mutating call.
func (m *Manager) Close() error {
	return m.lock.Close()
}

func (m *Manager) publish(kind events.Kind, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{Kind: kind, Payload: payload})
}

func (m *Manager) save() error {
	return saveDocument(m.path, m.doc)
}

// CreateTask validates spec, rejects requires-cycles, assigns an id and
// tier membership, and persists the new task.
func (m *Manager) CreateTask(spec Spec) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if spec.Priority == "" {
		spec.Priority = PriorityMedium
	}
	if !validPriorities[spec.Priority] {
		return nil, newError(ErrKindInvalidPriority, "%q", spec.Priority)
	}
	if spec.Tier == "" {
		spec.Tier = TierNow
	}
	if !validTiers[spec.Tier] {
		return nil, newError(ErrKindInvalidTier, "%q", spec.Tier)
	}
	phase := canonicalPhase(spec.Phase)
	if !validPhases[phase] {
		return nil, newError(ErrKindInvalidPhase, "%q", spec.Phase)
	}
	if err := validateEffort(spec.Effort); err != nil {
		return nil, newError(ErrKindInvalidPriority, "%v", err)
	}

	for _, depSet := range [][]string{spec.Dependencies.Requires, spec.Dependencies.Blocks, spec.Dependencies.Related} {
		for _, dep := range depSet {
			if _, ok := m.doc.Tasks[dep]; !ok {
				return nil, newError(ErrKindUnknownDependency, "%s", dep)
			}
		}
	}

	id := uuid.NewString()
	if detectCycle(m.doc.Tasks, id, spec.Dependencies.Requires) {
		return nil, newError(ErrKindCycle, "creating %s would cycle through requires", id)
	}

	now := time.Now()
	status := StatusReady
	if len(spec.Dependencies.Requires) > 0 {
		for _, req := range spec.Dependencies.Requires {
			if m.doc.Tasks[req].Status != StatusCompleted {
				status = StatusBlocked
				break
			}
		}
	}

	t := &Task{
		ID:                 id,
		Title:              spec.Title,
		Description:        spec.Description,
		Phase:              phase,
		Priority:           spec.Priority,
		Effort:             spec.Effort,
		Tags:               spec.Tags,
		Tier:               spec.Tier,
		Status:             status,
		AcceptanceCriteria: spec.AcceptanceCriteria,
		Dependencies:       spec.Dependencies,
		Timestamps:         Timestamps{Created: now, Updated: now},
	}

	m.doc.Tasks[id] = t
	m.doc.Tiers[t.Tier] = append(m.doc.Tiers[t.Tier], id)

	if err := m.save(); err != nil {
		delete(m.doc.Tasks, id)
		return nil, err
	}

	logging.Tasks("created %s %q phase=%s tier=%s", id, t.Title, t.Phase, t.Tier)
	m.publish(events.KindTaskCreated, events.TaskCreatedPayload{TaskID: id, Phase: t.Phase, Tier: string(t.Tier)})
	return t, nil
}

// CompletionUpdate carries the optional metadata attached on transition to
// completed.
type CompletionUpdate struct {
	Deliverables   []string
	Notes          string
	ActualDuration string
	QualityScore   int
}

// UpdateStatus transitions a task's status, stamping timestamps and cascading
// auto-unblock to dependents when the transition is to completed.
func (m *Manager) UpdateStatus(id string, newStatus Status, completion *CompletionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.doc.Tasks[id]
	if !ok {
		return newError(ErrKindNotFound, "%s", id)
	}
	if t.Status == StatusCompleted {
		return newError(ErrKindAlreadyCompleted, "%s", id)
	}

	old := t.Status
	t.Status = newStatus
	t.Timestamps.Updated = time.Now()

	switch newStatus {
	case StatusInProgress:
		if t.Timestamps.Started == nil {
			now := time.Now()
			t.Timestamps.Started = &now
		}
	case StatusCompleted:
		now := time.Now()
		t.Timestamps.Completed = &now
		if completion != nil {
			t.Completion = &Completion{
				Deliverables:   completion.Deliverables,
				Notes:          completion.Notes,
				ActualDuration: completion.ActualDuration,
				QualityScore:   completion.QualityScore,
			}
		}
	}

	if err := m.save(); err != nil {
		t.Status = old
		return err
	}

	logging.Tasks("status %s: %s -> %s", id, old, newStatus)
	m.publish(events.KindTaskStatusChanged, events.TaskStatusChangedPayload{TaskID: id, OldStatus: string(old), NewStatus: string(newStatus)})

	if newStatus == StatusCompleted {
		m.publish(events.KindTaskCompleted, events.TaskCompletedPayload{TaskID: id, QualityScore: qualityScoreOf(completion)})
		m.unblockDependents(id)
	}
	return nil
}

func qualityScoreOf(c *CompletionUpdate) int {
	if c == nil {
		return 0
	}
	return c.QualityScore
}

// AdvancePhase reassigns a task's phase in place (Open Question 1: a task
// keeps a single Phase field; completing one phase with a passing gate moves
// it to the next phase rather than spawning a new task).
func (m *Manager) AdvancePhase(id, nextPhase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.doc.Tasks[id]
	if !ok {
		return newError(ErrKindNotFound, "%s", id)
	}
	canon := canonicalPhase(nextPhase)
	if !validPhases[canon] {
		return newError(ErrKindInvalidPhase, "%q", nextPhase)
	}
	t.PhaseHistory = append(t.PhaseHistory, t.Phase)
	t.Phase = canon
	t.Timestamps.Updated = time.Now()
	return m.save()
}

// unblockDependents scans every task whose requires contained id and, if all
// of its other requires are now also completed, promotes it to ready.
func (m *Manager) unblockDependents(completedID string) {
	for _, t := range m.doc.Tasks {
		if t.Status == StatusCompleted || t.Status == StatusAbandoned || t.Status == StatusInProgress {
			continue
		}
		requiresCompleted := false
		for _, r := range t.Dependencies.Requires {
			if r == completedID {
				requiresCompleted = true
				break
			}
		}
		if !requiresCompleted {
			continue
		}
		allDone := true
		for _, r := range t.Dependencies.Requires {
			dep, ok := m.doc.Tasks[r]
			if !ok || dep.Status != StatusCompleted {
				allDone = false
				break
			}
		}
		if allDone && t.Status != StatusReady {
			t.Status = StatusReady
			t.Timestamps.Updated = time.Now()
			m.publish(events.KindTaskUnblocked, events.TaskUnblockedPayload{TaskID: t.ID, UnblockedBy: completedID})
		}
	}
	if err := m.save(); err != nil {
		logging.Tasks("error persisting after unblock cascade: %v", err)
	}
}

// GetReadyTasks returns ready tasks matching filter, ordered by descending
// score and, on ties, by older created timestamp first.
func (m *Manager) GetReadyTasks(currentPhase string, f Filter) []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getReadyTasksLocked(currentPhase, f)
}

func (m *Manager) getReadyTasksLocked(currentPhase string, f Filter) []*Task {
	history := newHistorySnapshot(m.doc.Tasks)
	var out []*Task
	for _, t := range m.doc.Tasks {
		if t.Status != StatusReady {
			continue
		}
		if f.Phase != "" && canonicalPhase(t.Phase) != canonicalPhase(f.Phase) {
			continue
		}
		if f.Backlog != "" && t.Tier != f.Backlog {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if len(f.Tags) > 0 && !anyTagMatches(t.Tags, f.Tags) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		si := score(out[i], currentPhase, history)
		sj := score(out[j], currentPhase, history)
		if si != sj {
			return si > sj
		}
		return out[i].Timestamps.Created.Before(out[j].Timestamps.Created)
	})
	return out
}

func anyTagMatches(have, want []string) bool {
	set := map[string]bool{}
	for _, t := range have {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

// GetNextTask returns the single best ready task in tier "now" for phase,
// promoting "next" -> "now" once and retrying if "now" is empty.
func (m *Manager) GetNextTask(currentPhase string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	ready := m.getReadyTasksLocked(currentPhase, Filter{Phase: currentPhase, Backlog: TierNow})
	if len(ready) > 0 {
		return ready[0]
	}

	nextReady := m.getReadyTasksLocked(currentPhase, Filter{Backlog: TierNext})
	if len(nextReady) == 0 {
		return nil
	}

	best := nextReady[0]
	m.moveTierLocked(best.ID, TierNext, TierNow, true)
	if err := m.save(); err != nil {
		logging.Tasks("error persisting after tier promotion: %v", err)
	}
	m.publish(events.KindTaskPromoted, events.TaskPromotedPayload{TaskID: best.ID, FromTier: string(TierNext), ToTier: string(TierNow)})

	ready = m.getReadyTasksLocked(currentPhase, Filter{Phase: currentPhase, Backlog: TierNow})
	if len(ready) > 0 {
		return ready[0]
	}
	return nil
}

// MoveToBacklog relocates a task to a different tier.
func (m *Manager) MoveToBacklog(id string, tier Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.doc.Tasks[id]
	if !ok {
		return newError(ErrKindNotFound, "%s", id)
	}
	if !validTiers[tier] {
		return newError(ErrKindInvalidTier, "%q", tier)
	}
	from := t.Tier
	m.moveTierLocked(id, from, tier, false)
	if err := m.save(); err != nil {
		return err
	}
	m.publish(events.KindTaskMoved, events.TaskMovedPayload{TaskID: id, FromTier: string(from), ToTier: string(tier)})
	return nil
}

// moveTierLocked removes id from the from-array and appends it to the
// to-array; toHead places it at the front of the target instead (used by
// tier promotion, which surfaces the promoted task first).
func (m *Manager) moveTierLocked(id string, from, to Tier, toHead bool) {
	m.doc.Tiers[from] = removeString(m.doc.Tiers[from], id)
	if toHead {
		m.doc.Tiers[to] = append([]string{id}, m.doc.Tiers[to]...)
	} else {
		m.doc.Tiers[to] = append(m.doc.Tiers[to], id)
	}
	m.doc.Tasks[id].Tier = to
	m.doc.Tasks[id].Timestamps.Updated = time.Now()
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// GetBlockedTasks returns every task whose status is blocked.
func (m *Manager) GetBlockedTasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Task
	for _, t := range m.doc.Tasks {
		if t.Status == StatusBlocked {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetDependencyGraph returns the transitive closure of requires/blocks/related
// rooted at id.
func (m *Manager) GetDependencyGraph(id string) (DependencyGraph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doc.Tasks[id]; !ok {
		return DependencyGraph{}, newError(ErrKindNotFound, "%s", id)
	}
	return getDependencyGraph(m.doc.Tasks, id), nil
}

// GetStats summarizes the store for dashboards and the control plane.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		ByStatus:           map[Status]int{},
		ByPhase:            map[string]int{},
		ByTier:             map[Tier]int{},
		AvgDurationByPhase: map[string]float64{},
	}
	durationSum := map[string]float64{}
	durationCount := map[string]int{}

	for _, t := range m.doc.Tasks {
		stats.Total++
		stats.ByStatus[t.Status]++
		stats.ByPhase[t.Phase]++
		stats.ByTier[t.Tier]++

		if t.Status == StatusCompleted && t.Timestamps.Started != nil && t.Timestamps.Completed != nil {
			hours := t.Timestamps.Completed.Sub(*t.Timestamps.Started).Hours()
			durationSum[t.Phase] += hours
			durationCount[t.Phase]++
		}
	}
	for phase, sum := range durationSum {
		stats.AvgDurationByPhase[phase] = sum / float64(durationCount[phase])
	}
	return stats
}

// GetTask returns a single task by id.
func (m *Manager) GetTask(id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.doc.Tasks[id]
	if !ok {
		return nil, newError(ErrKindNotFound, "%s", id)
	}
	return t, nil
}

// AllTasks returns every task in the store, for read-only inspection (e.g.
// the control plane's task list endpoint).
func (m *Manager) AllTasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.doc.Tasks))
	for _, t := range m.doc.Tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteTask removes a task outright (administrative operation, not part of
// the orchestrator's own lifecycle).
func (m *Manager) DeleteTask(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.doc.Tasks[id]
	if !ok {
		return newError(ErrKindNotFound, "%s", id)
	}
	for _, other := range m.doc.Tasks {
		for _, r := range other.Dependencies.Requires {
			if r == id {
				return fmt.Errorf("tasks: cannot delete %s: required by %s", id, other.ID)
			}
		}
	}
	delete(m.doc.Tasks, id)
	m.doc.Tiers[t.Tier] = removeString(m.doc.Tiers[t.Tier], id)
	if err := m.save(); err != nil {
		return err
	}
	m.publish(events.KindTaskDeleted, events.TaskDeletedPayload{TaskID: id})
	return nil
}
