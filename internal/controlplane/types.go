// Package controlplane exposes the orchestrator's HTTP, SSE and WebSocket
// surfaces (C8): read-only lock-free snapshots plus writes that route
// through each owning component's own public operation. There is no teacher
// analogue for a network service — codenerd is a TUI — so the router shape
// is grounded on the broader example pack's chi-based HTTP layer instead.
package controlplane

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/codenerd/orchestrator-core/internal/claims"
	"github.com/codenerd/orchestrator-core/internal/config"
	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/orchestrator"
	"github.com/codenerd/orchestrator-core/internal/ratelimit"
	"github.com/codenerd/orchestrator-core/internal/registry"
	"github.com/codenerd/orchestrator-core/internal/tasks"
)

// Deps bundles the components the control plane reads from and writes
// through. All are owned and closed by the caller (cmd/orchestrator).
type Deps struct {
	Tasks        *tasks.Manager
	Registry     *registry.Registry
	Claims       *claims.Coordinator
	RateLimit    *ratelimit.Tracker
	Orchestrator *orchestrator.Orchestrator
	Bus          *events.Bus
	Config       *config.Config
}

// Server wires Deps to an HTTP router (§4.8/§6). Per-project reads accept a
// projectPath query parameter; this process serves its own (orchestrator-
// driven) project plus any other project whose task store has been opened
// into the projects map, per spec §9's "task-manager-for-project registry"
// singleton.
type Server struct {
	deps Deps

	mu       sync.RWMutex
	projects map[string]*tasks.Manager

	hub *wsHub

	// snapshotGroup collapses concurrent buildSnapshot callers (many SSE/WS
	// clients connecting or ticking at once) into one read of each component.
	snapshotGroup singleflight.Group
}

// wireError is the JSON body shape for every non-2xx response (spec §6/§7).
type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
