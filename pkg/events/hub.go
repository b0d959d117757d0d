// Package events fans shopper-state change notifications out to per-session listeners.
package events

import (
	"sync"
	"time"
)

const (
	TypeCartChanged     = "cart.changed"
	TypeWishlistChanged = "wishlist.changed"
)

const defaultBuffer = 8

// Event announces that a session's cart or wishlist was overwritten.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Count     int       `json:"count"`
	At        time.Time `json:"at"`
}

// Hub delivers events to subscribers of the same session. Publishing never
// blocks: a subscriber whose buffer is full misses that event.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Event
	buffer int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Event), buffer: defaultBuffer}
}

// Subscribe registers a listener for the session. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[int]chan Event)
	}
	h.subs[sessionID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			close(ch)
		})
	}
}

// Publish delivers evt to every current listener of evt.SessionID.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[evt.SessionID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Listeners reports how many subscribers the session has.
func (h *Hub) Listeners(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
