package controlplane

import (
	"encoding/json"
	"net/http"

	"github.com/codenerd/orchestrator-core/internal/ratelimit"
)

func (s *Server) handleUsageLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"fiveHour": s.deps.RateLimit.FiveHourWindow(),
		"daily":    s.deps.RateLimit.DailyWindow(),
		"weekly":   s.deps.RateLimit.WeeklyWindow(),
		"alerts":   s.deps.RateLimit.GetAlerts(),
	})
}

func (s *Server) handleUsageRecord(w http.ResponseWriter, r *http.Request) {
	s.deps.RateLimit.RecordMessage()
	writeJSON(w, http.StatusOK, map[string]any{"recorded": true})
}

func (s *Server) handleSetUsageLimits(w http.ResponseWriter, r *http.Request) {
	var limits ratelimit.Limits
	if err := json.NewDecoder(r.Body).Decode(&limits); err != nil {
		writeJSON(w, http.StatusBadRequest, wireError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	s.deps.RateLimit.SetLimits(limits)
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) handleUsageReset(w http.ResponseWriter, r *http.Request) {
	s.deps.RateLimit.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}
