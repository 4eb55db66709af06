package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codenerd/orchestrator-core/internal/events"
)

func TestRegisterAssignsIncrementingIDs(t *testing.T) {
	r := New(events.NewBus())
	id1 := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeCLI})
	id2 := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p2", SessionType: SessionTypeCLI})
	require.NotEqual(t, id1, id2)
}

// Rule 1: same agentSessionId merges rather than creating a new row.
func TestRegisterMergesOnSameAgentSessionID(t *testing.T) {
	r := New(events.NewBus())
	id1 := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeAutonomous, AgentSessionID: "abc"})
	id2 := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeAutonomous, AgentSessionID: "abc"})
	require.Equal(t, id1, id2)
	require.Len(t, r.List(), 1)
}

func TestRegisterNeverDowngradesSessionType(t *testing.T) {
	r := New(events.NewBus())
	id := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeAutonomous, AgentSessionID: "abc"})
	id2 := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeCLI, AgentSessionID: "abc"})
	require.Equal(t, id, id2)
	s, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, SessionTypeAutonomous, s.SessionType, "autonomous must never downgrade to cli")
}

// Boundary scenario 6 (spec §8): CLI session upgraded to autonomous in
// place, no second row created.
func TestRegisterDedupesAutonomousOnStaleCLI(t *testing.T) {
	r := New(events.NewBus())
	s1 := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeCLI})

	s2 := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeAutonomous})

	require.Equal(t, s1, s2, "the cli session must be upgraded in place, not duplicated")
	require.Len(t, r.List(), 1)

	got, err := r.Get(s1)
	require.NoError(t, err)
	require.Equal(t, SessionTypeAutonomous, got.SessionType)
}

// Rule 2: a stale autonomous session with no agentSessionId on the same
// project is force-ended by a fresh autonomous registration.
func TestRegisterEndsStaleAutonomousWithoutAgentSessionID(t *testing.T) {
	r := New(events.NewBus())
	stale := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeAutonomous})
	fresh := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeAutonomous})

	require.NotEqual(t, stale, fresh)
	got, err := r.Get(stale)
	require.NoError(t, err)
	require.Equal(t, StatusEnded, got.Status)
}

func TestGetSummaryWithHierarchyComputesDepth(t *testing.T) {
	r := New(events.NewBus())
	root := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeAutonomous})
	child := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p2", SessionType: SessionTypeAutonomous, ParentSessionID: root})
	_ = r.Register(RegisterRequest{Project: "p", ProjectPath: "/p3", SessionType: SessionTypeAutonomous, ParentSessionID: child})

	summary := r.GetSummaryWithHierarchy()
	require.Equal(t, 2, summary.MaxDelegationDepth)
	require.Len(t, summary.Sessions, 3)
}

func TestRecordCompletionBoundedRing(t *testing.T) {
	r := New(events.NewBus())
	for i := 0; i < completionRingSize+10; i++ {
		r.RecordCompletion("p", "t", 90, 0.1)
	}
	require.Len(t, r.RecentCompletions(), completionRingSize)
}

func TestReapIdleEndsStaleSessions(t *testing.T) {
	r := New(events.NewBus())
	r.idleHorizon = 0
	id := r.Register(RegisterRequest{Project: "p", ProjectPath: "/p", SessionType: SessionTypeCLI})
	reaped := r.ReapIdle()
	require.Equal(t, 1, reaped)
	got, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, StatusEnded, got.Status)
}

func TestUpdateSessionNotFound(t *testing.T) {
	r := New(events.NewBus())
	err := r.UpdateSession(999, Update{})
	require.Error(t, err)
}
