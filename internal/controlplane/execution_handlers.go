package controlplane

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Orchestrator.GetProgress())
}

// handleExecutionPhase pauses or resumes the outer loop; it does not force a
// specific phase value — phase advancement is the loop's own decision
// (spec §4.7.1), this endpoint only gates whether it keeps running.
func (s *Server) handleExecutionPhase(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"` // "pause" | "resume"
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	switch body.Action {
	case "pause":
		s.deps.Orchestrator.Pause()
	case "resume":
		s.deps.Orchestrator.Resume()
	default:
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_ACTION", Message: "action must be pause or resume"})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Orchestrator.GetProgress())
}

// handleGetTaskPhases returns the task store's stats, including how many tasks
// sit in each phase, for the project named by ?projectPath (the primary
// project when omitted) — the dashboard's phase-board view.
func (s *Server) handleGetTaskPhases(w http.ResponseWriter, r *http.Request) {
	tm, ok := s.projectManager(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, wireError{Code: "PROJECT_NOT_FOUND", Message: "unknown projectPath"})
		return
	}
	writeJSON(w, http.StatusOK, tm.GetStats())
}

// handleSetTaskPhases moves a task to a new phase directly, bypassing the
// loop's own evaluation — an operator override for stuck tasks.
func (s *Server) handleSetTaskPhases(w http.ResponseWriter, r *http.Request) {
	tm, ok := s.projectManager(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, wireError{Code: "PROJECT_NOT_FOUND", Message: "unknown projectPath"})
		return
	}
	var body struct {
		TaskID string `json:"taskId"`
		Phase  string `json:"phase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	if err := tm.AdvancePhase(body.TaskID, body.Phase); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"advanced": true})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"projectPath": s.deps.Config.ProjectPath,
		"port":        s.deps.Config.Port,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alerts": s.deps.RateLimit.GetAlerts()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
