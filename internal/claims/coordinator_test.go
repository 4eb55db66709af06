package claims

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codenerd/orchestrator-core/internal/events"
)

func openTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claims.db")
	c, err := Open(path, events.NewBus())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// P4 / boundary scenario 4 (spec §8): claiming an already-claimed task fails
// with TASK_ALREADY_CLAIMED and getActiveClaims reflects exactly one owner.
func TestClaimConflict(t *testing.T) {
	c := openTestCoordinator(t)

	_, err := c.Claim("t1", 1, ClaimOptions{TTL: time.Minute})
	require.NoError(t, err)

	_, err = c.Claim("t1", 2, ClaimOptions{TTL: time.Minute})
	require.ErrorIs(t, err, ErrTaskAlreadyClaimed)

	active, err := c.GetActiveClaims()
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, int64(1), active[0].SessionID)
}

func TestClaimExpiredCanBeReclaimed(t *testing.T) {
	c := openTestCoordinator(t)
	_, err := c.Claim("t1", 1, ClaimOptions{TTL: -time.Second})
	require.NoError(t, err)

	_, err = c.Claim("t1", 2, ClaimOptions{TTL: time.Minute})
	require.NoError(t, err)

	active, err := c.GetActiveClaims()
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, int64(2), active[0].SessionID)
}

func TestRefreshRejectsNonOwner(t *testing.T) {
	c := openTestCoordinator(t)
	_, err := c.Claim("t1", 1, ClaimOptions{TTL: time.Minute})
	require.NoError(t, err)

	err = c.Refresh("t1", 2, time.Minute)
	require.ErrorIs(t, err, ErrNotClaimOwner)
}

func TestReleaseRejectsNonOwner(t *testing.T) {
	c := openTestCoordinator(t)
	_, err := c.Claim("t1", 1, ClaimOptions{TTL: time.Minute})
	require.NoError(t, err)

	err = c.Release("t1", 2, "test")
	require.ErrorIs(t, err, ErrNotClaimOwner)
}

func TestReleaseUnknownTask(t *testing.T) {
	c := openTestCoordinator(t)
	err := c.Release("missing", 1, "test")
	require.ErrorIs(t, err, ErrClaimNotFound)
}

func TestCleanupExpiredRemovesOnlyExpired(t *testing.T) {
	c := openTestCoordinator(t)
	_, err := c.Claim("expired", 1, ClaimOptions{TTL: -time.Second})
	require.NoError(t, err)
	_, err = c.Claim("fresh", 2, ClaimOptions{TTL: time.Minute})
	require.NoError(t, err)

	n, err := c.CleanupExpired()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	active, err := c.GetActiveClaims()
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "fresh", active[0].TaskID)
}

func TestCleanupOrphanedRequiresStaleHeartbeat(t *testing.T) {
	c := openTestCoordinator(t)
	_, err := c.Claim("t1", 1, ClaimOptions{TTL: time.Hour})
	require.NoError(t, err)

	neverLive := func(int64) bool { return false }
	n, err := c.CleanupOrphaned(neverLive)
	require.NoError(t, err)
	require.Equal(t, 0, n, "a fresh heartbeat within 2xTTL must not be reaped even if the session looks gone")
}

func TestGetClaimStatsBySession(t *testing.T) {
	c := openTestCoordinator(t)
	_, err := c.Claim("t1", 1, ClaimOptions{TTL: time.Minute})
	require.NoError(t, err)
	_, err = c.Claim("t2", 1, ClaimOptions{TTL: time.Minute})
	require.NoError(t, err)

	stats, err := c.GetClaimStats()
	require.NoError(t, err)
	require.Equal(t, 2, stats.ActiveClaims)
	require.Equal(t, 2, stats.BySession[1])
}
