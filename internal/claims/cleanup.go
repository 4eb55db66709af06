package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/logging"
)

const (
	expiredCleanupInterval  = 60 * time.Second
	orphanedCleanupInterval = 5 * time.Minute
)

// CleanupExpired deletes every row whose expiresAt has passed.
func (c *Coordinator) CleanupExpired() (int, error) {
	res, err := c.db.Exec(`DELETE FROM claims WHERE expires_at < ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("claims: cleanup expired: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Claims("cleaned up %d expired claims", n)
		c.publish(events.KindClaimsCleanup, map[string]any{"kind": "expired", "count": n})
	}
	return int(n), nil
}

// LiveSessionChecker reports whether sessionID still exists in the session
// registry; CleanupOrphaned uses it to find rows whose owning session is
// gone.
type LiveSessionChecker func(sessionID int64) bool

// CleanupOrphaned deletes claims whose owning session is no longer live and
// whose lastHeartbeat predates twice the claim's own TTL window.
func (c *Coordinator) CleanupOrphaned(isLive LiveSessionChecker) (int, error) {
	rows, err := c.db.Query(`SELECT task_id, session_id, claimed_at, expires_at, last_heartbeat, pattern, subtask_count, agent_type FROM claims`)
	if err != nil {
		return 0, fmt.Errorf("claims: query for orphan scan: %w", err)
	}
	all, err := scanClaims(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0
	for _, cl := range all {
		if isLive(cl.SessionID) {
			continue
		}
		ttl := cl.ExpiresAt.Sub(cl.ClaimedAt)
		if now.Sub(cl.LastHeartbeat) < 2*ttl {
			continue
		}
		if _, err := c.db.Exec(`DELETE FROM claims WHERE task_id = ?`, cl.TaskID); err != nil {
			logging.Claims("error deleting orphaned claim %s: %v", cl.TaskID, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logging.Claims("cleaned up %d orphaned claims", removed)
		c.publish(events.KindClaimsCleanup, map[string]any{"kind": "orphaned", "count": removed})
	}
	return removed, nil
}

// RunCleanupScheduler blocks, running CleanupExpired every 60s and
// CleanupOrphaned every 5 minutes, until ctx is cancelled.
func (c *Coordinator) RunCleanupScheduler(ctx context.Context, isLive LiveSessionChecker) {
	expiredTicker := time.NewTicker(expiredCleanupInterval)
	orphanedTicker := time.NewTicker(orphanedCleanupInterval)
	defer expiredTicker.Stop()
	defer orphanedTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-expiredTicker.C:
			if _, err := c.CleanupExpired(); err != nil {
				logging.Claims("expired cleanup error: %v", err)
			}
		case <-orphanedTicker.C:
			if _, err := c.CleanupOrphaned(isLive); err != nil {
				logging.Claims("orphaned cleanup error: %v", err)
			}
		}
	}
}
