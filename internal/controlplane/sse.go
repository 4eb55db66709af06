package controlplane

import (
	"encoding/json"
	"net/http"
	"time"
)

const sseKeepAlive = 3 * time.Second

// snapshot is the full-state payload sent on connect and on every keep-alive
// tick (spec §4.8: "a 3-second periodic tick emits a snapshot as a keep-alive
// + drift-correction").
type snapshot struct {
	Tasks       []any `json:"tasks"`
	Sessions    []any `json:"sessions"`
	Claims      []any `json:"claims"`
	UsageAlerts []any `json:"usageAlerts"`
}

// buildSnapshot collapses concurrent callers via singleflight: when several
// SSE/WS clients connect or tick in the same instant, only one of them
// actually walks tasks/registry/claims/ratelimit — the rest share its result.
func (s *Server) buildSnapshot() snapshot {
	v, _, _ := s.snapshotGroup.Do("snapshot", func() (any, error) {
		return s.buildSnapshotUncached(), nil
	})
	return v.(snapshot)
}

func (s *Server) buildSnapshotUncached() snapshot {
	tm := s.primaryProjectManager()

	snap := snapshot{}
	if tm != nil {
		for _, t := range tm.AllTasks() {
			snap.Tasks = append(snap.Tasks, t)
		}
	}
	for _, sess := range s.deps.Registry.List() {
		snap.Sessions = append(snap.Sessions, sess)
	}
	if active, err := s.deps.Claims.GetActiveClaims(); err == nil {
		for _, c := range active {
			snap.Claims = append(snap.Claims, c)
		}
	}
	for _, a := range s.deps.RateLimit.GetAlerts() {
		snap.UsageAlerts = append(snap.UsageAlerts, a)
	}
	return snap
}

// delta is one event-driven update message.
type delta struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// handleSSE streams /api/events per spec §4.8: snapshot on connect, a delta
// line per relevant bus event, and a snapshot every 3s as keep-alive.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, wireError{Code: "INTERNAL_ERROR", Message: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, s.buildSnapshot())
	flusher.Flush()

	events, cancel := s.deps.Bus.Subscribe()
	defer cancel()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeSSE(w, s.buildSnapshot())
			flusher.Flush()
		case evt, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, delta{Kind: string(evt.Kind), Payload: evt.Payload})
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
}
