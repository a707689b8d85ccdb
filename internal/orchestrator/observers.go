package orchestrator

import (
	"log/slog"
	"sync"

	"github.com/easeaico/project-duet/internal/session"
)

// observerBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind is dropped rather than allowed to stall the session.
const observerBuffer = 32

// ObserverHub fans session events out to any number of watchers. Publishing
// never blocks.
type ObserverHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan session.Event]struct{}
}

// NewObserverHub creates an empty hub.
func NewObserverHub() *ObserverHub {
	return &ObserverHub{subs: make(map[string]map[chan session.Event]struct{})}
}

// Subscribe registers a watcher for one session. The returned cancel
// function is safe to call more than once.
func (h *ObserverHub) Subscribe(sessionID string) (<-chan session.Event, func()) {
	ch := make(chan session.Event, observerBuffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan session.Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[sessionID]; ok {
				if _, live := set[ch]; live {
					delete(set, ch)
					close(ch)
				}
			}
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers an event to every watcher of the session, best-effort.
// A watcher with a full buffer is dropped.
func (h *ObserverHub) Publish(sessionID string, ev session.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sessionID]
	for ch := range set {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping slow session observer", "session_id", sessionID)
			delete(set, ch)
			close(ch)
		}
	}
}

// CloseSession closes every watcher channel for a finished session.
func (h *ObserverHub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sessionID] {
		close(ch)
	}
	delete(h.subs, sessionID)
}
