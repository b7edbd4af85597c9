package notify

import (
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind loses events rather than blocking publishers; clients
// re-render from the latest state on reconnect.
const subscriberBuffer = 32

// Hub multiplexes state changes onto two channel namespaces: one per group
// (facilitator dashboards) and one per session (a participant's open tabs).
// Safe for concurrent subscribe, unsubscribe and publish.
type Hub struct {
	mu       sync.RWMutex
	groups   map[string]map[chan Event]struct{}
	sessions map[string]map[chan Event]struct{}
}

// NewHub creates a new fan-out hub.
func NewHub() *Hub {
	return &Hub{
		groups:   make(map[string]map[chan Event]struct{}),
		sessions: make(map[string]map[chan Event]struct{}),
	}
}

// SubscribeGroup registers an observer of a group's event stream. The caller
// must invoke the returned cancel function when done.
func (h *Hub) SubscribeGroup(groupID string) (<-chan Event, func()) {
	return subscribe(h, h.groups, groupID)
}

// SubscribeSession registers an observer of a session's event stream.
func (h *Hub) SubscribeSession(sessionID string) (<-chan Event, func()) {
	return subscribe(h, h.sessions, sessionID)
}

func subscribe(h *Hub, reg map[string]map[chan Event]struct{}, key string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if _, ok := reg[key]; !ok {
		reg[key] = make(map[chan Event]struct{})
	}
	reg[key][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := reg[key]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(reg, key)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// PublishGroup delivers an event to all observers of a group.
func (h *Hub) PublishGroup(groupID string, ev Event) {
	ev.GroupID = groupID
	h.deliver(h.groups, groupID, ev)
}

// PublishSession delivers an event to all of a session's open tabs.
func (h *Hub) PublishSession(sessionID string, ev Event) {
	h.deliver(h.sessions, sessionID, ev)
}

// Publish delivers an event to the owning group channel and the owning
// session channel. The two namespaces are deliberately independent: a
// dashboard observer and a participant's second tab have different
// subscription lifetimes.
func (h *Hub) Publish(groupID, sessionID string, ev Event) {
	h.PublishGroup(groupID, ev)
	h.PublishSession(sessionID, ev)
}

func (h *Hub) deliver(reg map[string]map[chan Event]struct{}, key string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range reg[key] {
		select {
		case ch <- ev:
		default:
			slog.Debug("dropping event for slow subscriber", "kind", ev.Kind, "key", key)
		}
	}
}
