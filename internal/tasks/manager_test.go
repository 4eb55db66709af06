package tasks

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codenerd/orchestrator-core/internal/events"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	m, err := Open(path, events.NewBus())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCreateTaskValidatesEnums(t *testing.T) {
	m := openTestManager(t)
	_, err := m.CreateTask(Spec{Title: "x", Phase: "bogus"})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrKindInvalidPhase))
}

func TestCreateTaskRejectsUnknownDependency(t *testing.T) {
	m := openTestManager(t)
	_, err := m.CreateTask(Spec{Title: "x", Phase: "research", Dependencies: Dependencies{Requires: []string{"missing"}}})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrKindUnknownDependency))
}

// P1: the requires graph never contains a cycle after any sequence of valid
// CreateTask calls, since a new task can only require ids that already exist.
func TestCreateTaskAcyclicByConstruction(t *testing.T) {
	m := openTestManager(t)
	a, err := m.CreateTask(Spec{Title: "a", Phase: "research"})
	require.NoError(t, err)
	b, err := m.CreateTask(Spec{Title: "b", Phase: "research", Dependencies: Dependencies{Requires: []string{a.ID}}})
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, b.Status)

	// a was created first and requires nothing, so no requires path leads
	// from a back to b.
	graph, err := m.GetDependencyGraph(a.ID)
	require.NoError(t, err)
	require.Empty(t, graph.Requires)
}

func TestCreateTaskBlockedWhenRequiresIncomplete(t *testing.T) {
	m := openTestManager(t)
	a, err := m.CreateTask(Spec{Title: "a", Phase: "research"})
	require.NoError(t, err)
	b, err := m.CreateTask(Spec{Title: "b", Phase: "research", Dependencies: Dependencies{Requires: []string{a.ID}}})
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, b.Status)
}

// Boundary scenario 1 (spec §8): completing T1 auto-unblocks T2 whose sole
// requires dependency was T1.
func TestUpdateStatusCompletedUnblocksDependents(t *testing.T) {
	m := openTestManager(t)
	t1, err := m.CreateTask(Spec{Title: "t1", Phase: "research"})
	require.NoError(t, err)
	t2, err := m.CreateTask(Spec{Title: "t2", Phase: "research", Dependencies: Dependencies{Requires: []string{t1.ID}}})
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, t2.Status)

	require.NoError(t, m.UpdateStatus(t1.ID, StatusInProgress, nil))
	require.NoError(t, m.UpdateStatus(t1.ID, StatusCompleted, &CompletionUpdate{QualityScore: 92}))

	got, err := m.GetTask(t2.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReady, got.Status)
}

// P2: unblock safety — a task with two requires only unblocks once both are
// completed, never early.
func TestUnblockRequiresAllDependenciesComplete(t *testing.T) {
	m := openTestManager(t)
	a, err := m.CreateTask(Spec{Title: "a", Phase: "research"})
	require.NoError(t, err)
	b, err := m.CreateTask(Spec{Title: "b", Phase: "research"})
	require.NoError(t, err)
	c, err := m.CreateTask(Spec{Title: "c", Phase: "research", Dependencies: Dependencies{Requires: []string{a.ID, b.ID}}})
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, c.Status)

	require.NoError(t, m.UpdateStatus(a.ID, StatusInProgress, nil))
	require.NoError(t, m.UpdateStatus(a.ID, StatusCompleted, nil))

	got, err := m.GetTask(c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, got.Status, "must stay blocked until b also completes")

	require.NoError(t, m.UpdateStatus(b.ID, StatusInProgress, nil))
	require.NoError(t, m.UpdateStatus(b.ID, StatusCompleted, nil))

	got, err = m.GetTask(c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReady, got.Status)
}

func TestUpdateStatusAlreadyCompletedRejected(t *testing.T) {
	m := openTestManager(t)
	a, err := m.CreateTask(Spec{Title: "a", Phase: "research"})
	require.NoError(t, err)
	require.NoError(t, m.UpdateStatus(a.ID, StatusCompleted, nil))
	err = m.UpdateStatus(a.ID, StatusCompleted, nil)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrKindAlreadyCompleted))
}

func TestGetNextTaskPromotesNextTier(t *testing.T) {
	m := openTestManager(t)
	a, err := m.CreateTask(Spec{Title: "a", Phase: "research", Tier: TierNext, Priority: PriorityCritical})
	require.NoError(t, err)

	next := m.GetNextTask("research")
	require.NotNil(t, next)
	require.Equal(t, a.ID, next.ID)

	got, err := m.GetTask(a.ID)
	require.NoError(t, err)
	require.Equal(t, TierNow, got.Tier, "getNextTask must promote next -> now before retrying")
}

func TestGetNextTaskNilWhenNothingReady(t *testing.T) {
	m := openTestManager(t)
	require.Nil(t, m.GetNextTask("research"))
}

func TestGetReadyTasksOrdersByScoreThenAge(t *testing.T) {
	m := openTestManager(t)
	low, err := m.CreateTask(Spec{Title: "low", Phase: "research", Priority: PriorityLow})
	require.NoError(t, err)
	high, err := m.CreateTask(Spec{Title: "high", Phase: "research", Priority: PriorityCritical})
	require.NoError(t, err)

	ready := m.GetReadyTasks("research", Filter{})
	require.Len(t, ready, 2)
	require.Equal(t, high.ID, ready[0].ID)
	require.Equal(t, low.ID, ready[1].ID)
}

func TestMoveToBacklog(t *testing.T) {
	m := openTestManager(t)
	a, err := m.CreateTask(Spec{Title: "a", Phase: "research"})
	require.NoError(t, err)
	require.NoError(t, m.MoveToBacklog(a.ID, TierLater))
	got, err := m.GetTask(a.ID)
	require.NoError(t, err)
	require.Equal(t, TierLater, got.Tier)
}

func TestGetDependencyGraphTransitiveClosure(t *testing.T) {
	m := openTestManager(t)
	a, err := m.CreateTask(Spec{Title: "a", Phase: "research"})
	require.NoError(t, err)
	b, err := m.CreateTask(Spec{Title: "b", Phase: "research", Dependencies: Dependencies{Requires: []string{a.ID}}})
	require.NoError(t, err)
	c, err := m.CreateTask(Spec{Title: "c", Phase: "research", Dependencies: Dependencies{Requires: []string{b.ID}}})
	require.NoError(t, err)

	graph, err := m.GetDependencyGraph(c.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a.ID, b.ID}, graph.Requires)
}

func TestAdvancePhaseKeepsSinglePhaseField(t *testing.T) {
	m := openTestManager(t)
	a, err := m.CreateTask(Spec{Title: "a", Phase: "research"})
	require.NoError(t, err)
	require.NoError(t, m.AdvancePhase(a.ID, "design"))
	got, err := m.GetTask(a.ID)
	require.NoError(t, err)
	require.Equal(t, "design", got.Phase)
	require.Equal(t, []string{"research"}, got.PhaseHistory)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	bus := events.NewBus()
	m, err := Open(path, bus)
	require.NoError(t, err)
	a, err := m.CreateTask(Spec{Title: "a", Phase: "research", Tags: []string{"infra"}})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	m2, err := Open(path, bus)
	require.NoError(t, err)
	defer m2.Close()
	got, err := m2.GetTask(a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Title, got.Title)
}
