package controlplane

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/codenerd/orchestrator-core/internal/claims"
	"github.com/codenerd/orchestrator-core/internal/registry"
	"github.com/codenerd/orchestrator-core/internal/tasks"
)

// writeJSON marshals v as the response body, setting the status first.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to the HTTP status/code pair from §6/§7 and writes the
// wireError body. Unrecognized errors fall back to 500 INTERNAL_ERROR.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, wireError{Code: code, Message: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, claims.ErrTaskAlreadyClaimed):
		return http.StatusConflict, "TASK_ALREADY_CLAIMED"
	case errors.Is(err, claims.ErrNotClaimOwner):
		return http.StatusForbidden, "NOT_CLAIM_OWNER"
	case errors.Is(err, claims.ErrClaimNotFound):
		return http.StatusNotFound, "CLAIM_NOT_FOUND"
	}

	var notFound *registry.ErrNotFound
	if errors.As(err, &notFound) {
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	}

	var tErr *tasks.Error
	if errors.As(err, &tErr) {
		switch tErr.Kind {
		case tasks.ErrKindNotFound:
			return http.StatusNotFound, "TASK_NOT_FOUND"
		case tasks.ErrKindLocked, tasks.ErrKindCorruptStore:
			return http.StatusServiceUnavailable, "COORDINATION_DB_UNAVAILABLE"
		default:
			return http.StatusBadRequest, string(tErr.Kind)
		}
	}

	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
