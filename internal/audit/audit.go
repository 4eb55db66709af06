// Package audit writes an append-only, JSON-lines trail of every state
// transition crossing the event bus (task/session/claim/alert changes):
// one durable record per Event, independent of whatever the category
// logger's rolling files retain. It is a structured subscriber on
// internal/events.Bus, adapted from the teacher's audit log (which wrote
// the same append-only JSON-lines shape to record shard/kernel/LLM
// activity for its own Mangle-fact derivation) with the Mangle-specific
// fact generation dropped — there is no Datalog engine in this domain, and
// the JSON-lines records are sufficient on their own for replay or
// grepping.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/codenerd/orchestrator-core/internal/events"
)

// Entry is one line of the audit trail.
type Entry struct {
	Timestamp time.Time   `json:"ts"`
	Kind      events.Kind `json:"kind"`
	Payload   any         `json:"payload"`
}

// Recorder appends Entry lines to a single open file.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
}

// Open creates (or appends to) the audit log at path.
func Open(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &Recorder{file: f}, nil
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

func (r *Recorder) record(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.file.Write(data)
	r.file.Write([]byte("\n"))
}

// auditedKinds are the events worth a durable record; high-frequency,
// purely-informational kinds (session metric updates) are left to the
// category logger instead of doubling up here.
var auditedKinds = map[events.Kind]bool{
	events.KindTaskCreated:        true,
	events.KindTaskStatusChanged:  true,
	events.KindTaskCompleted:      true,
	events.KindTaskUnblocked:      true,
	events.KindTaskPromoted:       true,
	events.KindTaskMoved:          true,
	events.KindTaskDeleted:        true,
	events.KindSessionRegistered:  true,
	events.KindSessionEnded:       true,
	events.KindDelegationStarted:  true,
	events.KindDelegationComplete: true,
	events.KindDelegationFailed:   true,
	events.KindClaimCreated:       true,
	events.KindClaimReleased:      true,
	events.KindClaimsCleanup:      true,
	events.KindContextThreshold:   true,
	events.KindAlertWarning:       true,
	events.KindAlertCritical:      true,
}

// Run subscribes to bus and appends a record for every auditedKinds event
// until ctx is cancelled. Callers run this on its own goroutine.
func (r *Recorder) Run(ctx context.Context, bus *events.Bus) {
	sub, cancel := bus.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if !auditedKinds[evt.Kind] {
				continue
			}
			r.record(Entry{Timestamp: evt.Timestamp, Kind: evt.Kind, Payload: evt.Payload})
		}
	}
}
