package claims

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/logging"
)

// DefaultTTL is used when ClaimOptions.TTL is zero.
const DefaultTTL = 30 * time.Minute

// Coordinator owns the embedded claims database.
type Coordinator struct {
	db  *sql.DB
	bus *events.Bus
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema exists.
func Open(path string, bus *events.Bus) (*Coordinator, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("claims: mkdir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("claims: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Claims("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Claims("failed to set journal_mode=WAL: %v", err)
	}

	c := &Coordinator{db: db, bus: bus}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) migrate() error {
	_, err := c.db.Exec(`
CREATE TABLE IF NOT EXISTS claims (
	task_id        TEXT PRIMARY KEY,
	session_id     INTEGER NOT NULL,
	claimed_at     INTEGER NOT NULL,
	expires_at     INTEGER NOT NULL,
	last_heartbeat INTEGER NOT NULL,
	pattern        TEXT,
	subtask_count  INTEGER,
	agent_type     TEXT
);
CREATE TABLE IF NOT EXISTS sessions (
	session_id INTEGER PRIMARY KEY,
	last_seen  INTEGER NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("claims: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (c *Coordinator) Close() error {
	return c.db.Close()
}

func (c *Coordinator) publish(kind events.Kind, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{Kind: kind, Payload: payload})
}

func (c *Coordinator) touchSession(sessionID int64, now time.Time) error {
	_, err := c.db.Exec(`
INSERT INTO sessions(session_id, last_seen) VALUES (?, ?)
ON CONFLICT(session_id) DO UPDATE SET last_seen = excluded.last_seen`, sessionID, now.UnixMilli())
	return err
}

// Claim atomically grants taskID to sessionID if no active claim exists.
func (c *Coordinator) Claim(taskID string, sessionID int64, opts ClaimOptions) (Claim, error) {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	now := time.Now()

	tx, err := c.db.Begin()
	if err != nil {
		return Claim{}, fmt.Errorf("claims: begin tx: %w", err)
	}
	defer tx.Rollback()

	var expiresAtMs int64
	err = tx.QueryRow(`SELECT expires_at FROM claims WHERE task_id = ?`, taskID).Scan(&expiresAtMs)
	if err == nil && time.UnixMilli(expiresAtMs).After(now) {
		return Claim{}, ErrTaskAlreadyClaimed
	}
	if err != nil && err != sql.ErrNoRows {
		return Claim{}, fmt.Errorf("claims: check existing: %w", err)
	}

	claim := Claim{
		TaskID:        taskID,
		SessionID:     sessionID,
		ClaimedAt:     now,
		ExpiresAt:     now.Add(ttl),
		LastHeartbeat: now,
		Pattern:       opts.Pattern,
		SubtaskCount:  opts.SubtaskCount,
		AgentType:     opts.AgentType,
	}

	_, err = tx.Exec(`
INSERT INTO claims(task_id, session_id, claimed_at, expires_at, last_heartbeat, pattern, subtask_count, agent_type)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET
	session_id=excluded.session_id, claimed_at=excluded.claimed_at, expires_at=excluded.expires_at,
	last_heartbeat=excluded.last_heartbeat, pattern=excluded.pattern, subtask_count=excluded.subtask_count,
	agent_type=excluded.agent_type`,
		claim.TaskID, claim.SessionID, claim.ClaimedAt.UnixMilli(), claim.ExpiresAt.UnixMilli(),
		claim.LastHeartbeat.UnixMilli(), claim.Pattern, claim.SubtaskCount, claim.AgentType)
	if err != nil {
		return Claim{}, fmt.Errorf("claims: insert: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO sessions(session_id, last_seen) VALUES (?, ?)
ON CONFLICT(session_id) DO UPDATE SET last_seen = excluded.last_seen`, sessionID, now.UnixMilli()); err != nil {
		return Claim{}, fmt.Errorf("claims: touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Claim{}, fmt.Errorf("claims: commit: %w", err)
	}

	logging.Claims("claimed %s by session %d ttl=%s", taskID, sessionID, ttl)
	c.publish(events.KindClaimCreated, events.ClaimPayload{TaskID: taskID, SessionID: sessionID})
	return claim, nil
}

// Refresh extends the TTL of an owned claim.
func (c *Coordinator) Refresh(taskID string, sessionID int64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	owner, err := c.ownerOf(taskID)
	if err != nil {
		return err
	}
	if owner != sessionID {
		return ErrNotClaimOwner
	}
	now := time.Now()
	_, err = c.db.Exec(`UPDATE claims SET expires_at=?, last_heartbeat=? WHERE task_id=?`,
		now.Add(ttl).UnixMilli(), now.UnixMilli(), taskID)
	if err != nil {
		return fmt.Errorf("claims: refresh: %w", err)
	}
	return c.touchSession(sessionID, now)
}

// Release deletes an owned claim row.
func (c *Coordinator) Release(taskID string, sessionID int64, reason string) error {
	owner, err := c.ownerOf(taskID)
	if err != nil {
		return err
	}
	if owner != sessionID {
		return ErrNotClaimOwner
	}
	if _, err := c.db.Exec(`DELETE FROM claims WHERE task_id=?`, taskID); err != nil {
		return fmt.Errorf("claims: release: %w", err)
	}
	logging.Claims("released %s by session %d: %s", taskID, sessionID, reason)
	c.publish(events.KindClaimReleased, events.ClaimPayload{TaskID: taskID, SessionID: sessionID, Reason: reason})
	return nil
}

func (c *Coordinator) ownerOf(taskID string) (int64, error) {
	var sessionID int64
	err := c.db.QueryRow(`SELECT session_id FROM claims WHERE task_id=?`, taskID).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return 0, ErrClaimNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("claims: lookup owner: %w", err)
	}
	return sessionID, nil
}

// GetActiveClaims returns every non-expired claim.
func (c *Coordinator) GetActiveClaims() ([]Claim, error) {
	rows, err := c.db.Query(`SELECT task_id, session_id, claimed_at, expires_at, last_heartbeat, pattern, subtask_count, agent_type
		FROM claims WHERE expires_at >= ?`, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("claims: query active: %w", err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

// GetClaimsBySession returns every claim row held by sessionID, including
// expired ones.
func (c *Coordinator) GetClaimsBySession(sessionID int64) ([]Claim, error) {
	rows, err := c.db.Query(`SELECT task_id, session_id, claimed_at, expires_at, last_heartbeat, pattern, subtask_count, agent_type
		FROM claims WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("claims: query by session: %w", err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

func scanClaims(rows *sql.Rows) ([]Claim, error) {
	var out []Claim
	for rows.Next() {
		var cl Claim
		var claimedAt, expiresAt, lastHeartbeat int64
		var pattern, agentType sql.NullString
		var subtaskCount sql.NullInt64
		if err := rows.Scan(&cl.TaskID, &cl.SessionID, &claimedAt, &expiresAt, &lastHeartbeat, &pattern, &subtaskCount, &agentType); err != nil {
			return nil, fmt.Errorf("claims: scan: %w", err)
		}
		cl.ClaimedAt = time.UnixMilli(claimedAt)
		cl.ExpiresAt = time.UnixMilli(expiresAt)
		cl.LastHeartbeat = time.UnixMilli(lastHeartbeat)
		cl.Pattern = pattern.String
		cl.AgentType = agentType.String
		cl.SubtaskCount = int(subtaskCount.Int64)
		out = append(out, cl)
	}
	return out, rows.Err()
}

// GetClaimStats summarizes active claims by session.
func (c *Coordinator) GetClaimStats() (Stats, error) {
	active, err := c.GetActiveClaims()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ActiveClaims: len(active), BySession: map[int64]int{}}
	for _, cl := range active {
		stats.BySession[cl.SessionID]++
	}
	return stats, nil
}
