// Package events implements the small typed event bus that C2 (tasks), C3
// (registry), C4 (claims), C5 (context tracker) and C6 (rate limits) publish
// onto, and that the orchestrator (C7) and control plane (C8) subscribe to.
//
// Kinds form a closed sum (spec §9 "tagged variants for events"); payloads
// are concrete structs per kind rather than a generic map, so subscribers can
// type-switch without parsing.
package events

import (
	"sync"
	"time"
)

// Kind identifies the shape of Event.Payload.
type Kind string

const (
	KindTaskCreated        Kind = "task:created"
	KindTaskStatusChanged  Kind = "task:status-changed"
	KindTaskCompleted      Kind = "task:completed"
	KindTaskUnblocked      Kind = "task:unblocked"
	KindTaskPromoted       Kind = "task:promoted"
	KindTaskMoved          Kind = "task:moved"
	KindTaskDeleted        Kind = "task:deleted"
	KindSessionRegistered  Kind = "session:registered"
	KindSessionUpdated     Kind = "session:updated"
	KindSessionEnded       Kind = "session:ended"
	KindDelegationStarted  Kind = "delegation:started"
	KindDelegationComplete Kind = "delegation:completed"
	KindDelegationFailed   Kind = "delegation:failed"
	KindClaimCreated       Kind = "claim:created"
	KindClaimReleased      Kind = "claim:released"
	KindClaimsCleanup      Kind = "claims:cleanup"
	KindContextThreshold   Kind = "context:threshold"
	KindAlertWarning       Kind = "alert:warning"
	KindAlertCritical      Kind = "alert:critical"
)

// Event is one message on the bus.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// subscriberBuffer bounds how many undelivered events a slow subscriber may
// queue before its events start being dropped; the bus itself never blocks.
const subscriberBuffer = 256

// maxConsecutiveDrops bounds how many publishes in a row may find a
// subscriber's buffer still full before the bus gives up on it. A subscriber
// that never drains is disconnected rather than silently starved forever
// (spec's edge-case table: "Event-bus subscriber failure | slow/blocked SSE
// client | disconnect that subscriber only").
const maxConsecutiveDrops = 32

// subscriber pairs a subscriber's channel with its consecutive-drop count.
type subscriber struct {
	ch        chan Event
	dropCount int
}

// Bus is a non-blocking, fan-out publish/subscribe channel multiplexer.
type Bus struct {
	mu   sync.Mutex
	subs map[int]*subscriber
	next int
}

// NewBus returns a ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a new subscriber and returns its event channel plus a
// cancel function that must be called to unsubscribe (spec §5: SSE/WS
// handlers unsubscribe on close).
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	b.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Publish fans Event out to every current subscriber. A subscriber whose
// buffer is full has the event dropped for it rather than blocking the
// publisher — slow consumers never back-pressure the producer. A subscriber
// that drops maxConsecutiveDrops publishes in a row is judged unresponsive
// and disconnected: its channel is closed so its reader loop (SSE/WS
// handler) unwinds instead of silently missing every event from then on.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- evt:
			sub.dropCount = 0
		default:
			sub.dropCount++
			if sub.dropCount >= maxConsecutiveDrops {
				delete(b.subs, id)
				close(sub.ch)
			}
		}
	}
}
