package controlplane

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codenerd/orchestrator-core/internal/claims"
	"github.com/codenerd/orchestrator-core/internal/tasks"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.projects))
	for p := range s.projects {
		paths = append(paths, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": paths})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tm, ok := s.projectManager(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, wireError{Code: "PROJECT_NOT_FOUND", Message: "unknown projectPath"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tm.AllTasks()})
}

func (s *Server) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	tm, ok := s.projectManager(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, wireError{Code: "PROJECT_NOT_FOUND", Message: "unknown projectPath"})
		return
	}
	id := chi.URLParam(r, "id")

	var body struct {
		Status     tasks.Status             `json:"status"`
		Completion *tasks.CompletionUpdate `json:"completion,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}

	if err := tm.UpdateStatus(id, body.Status, body.Completion); err != nil {
		writeError(w, err)
		return
	}
	task, err := tm.GetTask(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTaskGraph(w http.ResponseWriter, r *http.Request) {
	tm, ok := s.projectManager(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, wireError{Code: "PROJECT_NOT_FOUND", Message: "unknown projectPath"})
		return
	}
	id := chi.URLParam(r, "id")
	graph, err := tm.GetDependencyGraph(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleInFlightTasks(w http.ResponseWriter, r *http.Request) {
	active, err := s.deps.Claims.GetActiveClaims()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": active})
}

func (s *Server) handleClaimsCleanup(w http.ResponseWriter, r *http.Request) {
	expired, err := s.deps.Claims.CleanupExpired()
	if err != nil {
		writeError(w, err)
		return
	}
	orphaned, err := s.deps.Claims.CleanupOrphaned(liveSessionChecker(s.deps.Registry))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expiredRemoved": expired, "orphanedRemoved": orphaned})
}

func (s *Server) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		SessionID    int64  `json:"sessionId"`
		Pattern      string `json:"pattern,omitempty"`
		SubtaskCount int    `json:"subtaskCount,omitempty"`
		AgentType    string `json:"agentType,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}

	claim, err := s.deps.Claims.Claim(id, body.SessionID, claims.ClaimOptions{
		Pattern: body.Pattern, SubtaskCount: body.SubtaskCount, AgentType: body.AgentType,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claimed": true, "claim": claim})
}

func (s *Server) handleReleaseTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		SessionID int64  `json:"sessionId"`
		Reason    string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}

	if err := s.deps.Claims.Release(id, body.SessionID, body.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"released": true})
}

func (s *Server) handleHeartbeatClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		SessionID int64 `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}

	if err := s.deps.Claims.Refresh(id, body.SessionID, 0); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": true})
}
