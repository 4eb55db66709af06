package controlplane

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/codenerd/orchestrator-core/internal/claims"
	"github.com/codenerd/orchestrator-core/internal/config"
	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/orchestrator"
	"github.com/codenerd/orchestrator-core/internal/procsupervisor"
	"github.com/codenerd/orchestrator-core/internal/ratelimit"
	"github.com/codenerd/orchestrator-core/internal/registry"
	"github.com/codenerd/orchestrator-core/internal/tasks"
)

// TestMain ensures every test's wsHub goroutine (and anything else spawned
// under this package) is actually torn down via Server.Close, not just left
// to die with the test binary.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T) (*Server, *tasks.Manager) {
	t.Helper()
	dir := t.TempDir()
	bus := events.NewBus()

	tm, err := tasks.Open(filepath.Join(dir, "tasks.json"), bus)
	require.NoError(t, err)
	t.Cleanup(func() { tm.Close() })

	reg := registry.New(bus)
	claimsDB, err := claims.Open(filepath.Join(dir, "claims.db"), bus)
	require.NoError(t, err)
	t.Cleanup(func() { claimsDB.Close() })

	rl, err := ratelimit.Open(filepath.Join(dir, "ratelimit.json"), ratelimit.DefaultLimits(), bus)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.ProjectPath = dir

	sup := procsupervisor.New(bus, cfg.ContextThreshold)
	orch := orchestrator.New(orchestrator.Deps{
		Tasks: tm, Registry: reg, Claims: claimsDB, RateLimit: rl, Supervisor: sup, Bus: bus, Config: cfg,
	}, dir)

	srv := New(Deps{
		Tasks: tm, Registry: reg, Claims: claimsDB, RateLimit: rl, Orchestrator: orch, Bus: bus, Config: cfg,
	})
	t.Cleanup(srv.Close)
	return srv, tm
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndAlerts(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClaimTaskThenClaimAgainConflicts(t *testing.T) {
	srv, tm := newTestServer(t)
	router := srv.Router()

	task, err := tm.CreateTask(tasks.Spec{Title: "t", Description: "d", Phase: "research", AcceptanceCriteria: []string{"x"}})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/tasks/"+task.ID+"/claim", map[string]any{"sessionId": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/tasks/"+task.ID+"/claim", map[string]any{"sessionId": 2})
	require.Equal(t, http.StatusConflict, rec.Code)
	var body wireError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "TASK_ALREADY_CLAIMED", body.Code)
}

func TestReleaseByNonOwnerForbidden(t *testing.T) {
	srv, tm := newTestServer(t)
	router := srv.Router()

	task, err := tm.CreateTask(tasks.Spec{Title: "t", Description: "d", Phase: "research", AcceptanceCriteria: []string{"x"}})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/tasks/"+task.ID+"/claim", map[string]any{"sessionId": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/tasks/"+task.ID+"/release", map[string]any{"sessionId": 2})
	require.Equal(t, http.StatusForbidden, rec.Code)
	var body wireError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "NOT_CLAIM_OWNER", body.Code)
}

func TestGetUnknownSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/sessions/999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body wireError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "SESSION_NOT_FOUND", body.Code)
}

func TestListTasksUnknownProjectRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/tasks?projectPath=/nowhere", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateTaskStatusRoundTrips(t *testing.T) {
	srv, tm := newTestServer(t)
	router := srv.Router()

	task, err := tm.CreateTask(tasks.Spec{Title: "t", Description: "d", Phase: "research", AcceptanceCriteria: []string{"x"}})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/tasks/"+task.ID+"/status", map[string]any{"status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated tasks.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, tasks.StatusInProgress, updated.Status)
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/sessions/register", registry.RegisterRequest{
		Project: "demo", ProjectPath: "/tmp/demo", SessionType: registry.SessionTypeCLI,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var reg struct {
		SessionID int64 `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))

	sessionPath := "/api/sessions/" + strconv.FormatInt(reg.SessionID, 10)
	rec = doJSON(t, router, http.MethodGet, sessionPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, sessionPath+"/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestExecutionPausePersistsThroughProgress(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/execution/phase", map[string]any{"action": "pause"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/execution", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress orchestrator.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	require.True(t, progress.Paused)
}
