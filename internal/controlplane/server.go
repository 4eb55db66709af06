package controlplane

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/codenerd/orchestrator-core/internal/claims"
	"github.com/codenerd/orchestrator-core/internal/registry"
	"github.com/codenerd/orchestrator-core/internal/tasks"
)

// liveSessionChecker adapts the session registry to claims.LiveSessionChecker.
func liveSessionChecker(reg *registry.Registry) claims.LiveSessionChecker {
	return func(sessionID int64) bool {
		_, err := reg.Get(sessionID)
		return err == nil
	}
}

// New builds a Server over deps, registering deps.Tasks as the primary
// project at deps.Config.ProjectPath.
func New(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		projects: map[string]*tasks.Manager{normalizeProjectPath(deps.Config.ProjectPath): deps.Tasks},
		hub:      newWSHub(deps.Bus),
	}
	return s
}

// Close stops the WS fleet hub's bus subscription. Run's own shutdown
// (ctx cancellation) handles the HTTP listener; Close is for callers (tests,
// or a daemon tearing down without ever calling Run) that only need the
// background goroutine stopped.
func (s *Server) Close() {
	s.hub.Close()
}

func normalizeProjectPath(p string) string {
	if p == "" {
		return "."
	}
	return filepath.Clean(p)
}

// AddProject registers an additional project's task manager so dashboard
// reads spanning multiple projects can resolve it by projectPath (spec §9's
// task-manager-for-project registry). The primary project is already
// registered by New.
func (s *Server) AddProject(projectPath string, tm *tasks.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[normalizeProjectPath(projectPath)] = tm
}

func (s *Server) projectManager(r *http.Request) (*tasks.Manager, bool) {
	p := r.URL.Query().Get("projectPath")
	if p == "" {
		p = s.deps.Config.ProjectPath
	}
	return s.lookupProject(p)
}

func (s *Server) lookupProject(projectPath string) (*tasks.Manager, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tm, ok := s.projects[normalizeProjectPath(projectPath)]
	return tm, ok
}

// primaryProjectManager returns the task manager for deps.Config.ProjectPath,
// used by internal callers (the SSE snapshot) that have no request to read
// a projectPath override from.
func (s *Server) primaryProjectManager() *tasks.Manager {
	tm, _ := s.lookupProject(s.deps.Config.ProjectPath)
	return tm
}

// Router builds the chi mux wiring every endpoint in §6.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Get("/account", s.handleAccount)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/health", s.handleHealth)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Get("/in-flight", s.handleInFlightTasks)
			r.Post("/claims/cleanup", s.handleClaimsCleanup)
			r.Post("/{id}/status", s.handleUpdateTaskStatus)
			r.Get("/{id}/graph", s.handleTaskGraph)
			r.Post("/{id}/claim", s.handleClaimTask)
			r.Post("/{id}/release", s.handleReleaseTask)
			r.Post("/{id}/claim/heartbeat", s.handleHeartbeatClaim)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/register", s.handleRegisterSession)
			r.Post("/end-by-claude-id", s.handleEndByClaudeID)
			r.Get("/summary", s.handleSessionSummary)
			r.Post("/{id}/update", s.handleUpdateSession)
			r.Post("/{id}/pause", s.handlePauseSession)
			r.Post("/{id}/resume", s.handleResumeSession)
			r.Post("/{id}/end", s.handleEndSession)
			r.Get("/{id}", s.handleGetSession)
			r.Get("/{id}/hierarchy", s.handleSessionHierarchy)
		})

		r.Route("/usage", func(r chi.Router) {
			r.Get("/limits", s.handleUsageLimits)
			r.Post("/record", s.handleUsageRecord)
			r.Post("/limits", s.handleSetUsageLimits)
			r.Post("/reset", s.handleUsageReset)
		})

		r.Route("/execution", func(r chi.Router) {
			r.Get("/", s.handleExecutionStatus)
			r.Post("/phase", s.handleExecutionPhase)
			r.Get("/taskPhases", s.handleGetTaskPhases)
			r.Post("/taskPhases", s.handleSetTaskPhases)
		})

		r.Get("/events", s.handleSSE)
	})

	r.Get("/ws/fleet", s.handleWS)

	return r
}

// Run serves Router() on addr until ctx is cancelled, then shuts the HTTP
// server down gracefully. The daemon's other loops watch the same ctx, so
// they stop concurrently with this shutdown, not after it.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
