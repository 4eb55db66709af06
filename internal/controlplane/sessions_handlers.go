package controlplane

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codenerd/orchestrator-core/internal/registry"
)

func sessionID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (s *Server) handleRegisterSession(w http.ResponseWriter, r *http.Request) {
	var req registry.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	id := s.deps.Registry.Register(req)
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id})
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_ID", Message: err.Error()})
		return
	}
	var upd registry.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	if err := s.deps.Registry.UpdateSession(id, upd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) setSessionStatus(w http.ResponseWriter, r *http.Request, status registry.Status) {
	id, err := sessionID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_ID", Message: err.Error()})
		return
	}
	st := status
	if err := s.deps.Registry.UpdateSession(id, registry.Update{Status: &st}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	s.setSessionStatus(w, r, registry.StatusPaused)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	s.setSessionStatus(w, r, registry.StatusActive)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_ID", Message: err.Error()})
		return
	}
	if err := s.deps.Registry.End(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ended": true})
}

func (s *Server) handleEndByClaudeID(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AgentSessionID string `json:"agentSessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	for _, sess := range s.deps.Registry.List() {
		if sess.AgentSessionID == body.AgentSessionID {
			if err := s.deps.Registry.End(sess.ID); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ended": true, "sessionId": sess.ID})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, wireError{Code: "SESSION_NOT_FOUND", Message: "no session with that agentSessionId"})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_ID", Message: err.Error()})
		return
	}
	sess, err := s.deps.Registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"hierarchy":   s.deps.Registry.GetSummaryWithHierarchy(),
		"completions": s.deps.Registry.RecentCompletions(),
	})
}

func (s *Server) handleSessionHierarchy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Registry.GetSummaryWithHierarchy())
}
