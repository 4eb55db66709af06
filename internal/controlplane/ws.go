package controlplane

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/logging"
)

const (
	wsPingInterval = 30 * time.Second
	wsPongTimeout  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage is the envelope every /ws/fleet frame uses.
type wsMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// mirroredKinds are the bus events the fleet feed mirrors out to WS clients;
// the rest are SSE-only.
var mirroredKinds = map[events.Kind]bool{
	events.KindSessionRegistered:  true,
	events.KindSessionUpdated:     true,
	events.KindSessionEnded:       true,
	events.KindDelegationStarted:  true,
	events.KindDelegationComplete: true,
	events.KindDelegationFailed:   true,
	events.KindTaskCompleted:      true,
	events.KindAlertWarning:       true,
	events.KindAlertCritical:      true,
}

// wsHub fans bus events out to every connected /ws/fleet client.
type wsHub struct {
	bus         *events.Bus
	unsubscribe func()

	mu      sync.Mutex
	clients map[*websocket.Conn]chan wsMessage
}

func newWSHub(bus *events.Bus) *wsHub {
	h := &wsHub{bus: bus, clients: make(map[*websocket.Conn]chan wsMessage)}
	sub, cancel := bus.Subscribe()
	h.unsubscribe = cancel
	go h.run(sub)
	return h
}

func (h *wsHub) run(sub <-chan events.Event) {
	for evt := range sub {
		if !mirroredKinds[evt.Kind] {
			continue
		}
		h.broadcast(wsMessage{Type: string(evt.Kind), Payload: evt.Payload})
	}
}

// Close unsubscribes from the bus, which ends run's goroutine, and closes
// every connected client's outbound channel.
func (h *wsHub) Close() {
	h.unsubscribe()
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		delete(h.clients, conn)
		close(ch)
	}
}

func (h *wsHub) broadcast(msg wsMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *wsHub) register(conn *websocket.Conn) chan wsMessage {
	ch := make(chan wsMessage, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *wsHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
}

// handleWS upgrades to /ws/fleet: an init message carrying the current
// snapshot, then a mirrored bus-event stream, with 30s ping/pong keep-alive.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.ControlPlane("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := s.hub.register(conn)
	defer s.hub.unregister(conn)

	if err := conn.WriteJSON(wsMessage{Type: "init", Payload: s.buildSnapshot()}); err != nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	// Drain (and discard) client frames on its own goroutine so pong
	// control frames are processed; the fleet feed is read-only otherwise.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
