package run

import (
	"log/slog"
	"sync"
	"time"
)

// EventType classifies push-channel events.
type EventType string

const (
	EventPhase      EventType = "phase"
	EventLog        EventType = "log"
	EventIngredient EventType = "ingredient"
	EventComplete   EventType = "complete"
	EventFailed     EventType = "failed"
)

// Event is one push-channel message scoped to a run. Delivery is best
// effort; the persisted record is authoritative.
type Event struct {
	Type    EventType `json:"type"`
	RunID   string    `json:"runId"`
	Phase   Phase     `json:"phase,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	At      time.Time `json:"at"`
}

// Terminal reports whether e ends its run's stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventFailed
}

// Sink receives run events. Publish must not block.
type Sink interface {
	Publish(Event)
}

// DefaultBuffer is the per-subscriber queue length used by NewHub when
// given a non-positive size.
const DefaultBuffer = 64

type subscriber struct {
	ch chan Event
}

// Hub fans run events out to in-process subscribers such as SSE streams.
// A subscriber that falls behind loses events rather than slowing the run.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe returns a channel of events for runID and a cancel func that
// closes it.
func (h *Hub) Subscribe(runID string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[*subscriber]struct{})
	}
	h.subs[runID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[runID], s)
			if len(h.subs[runID]) == 0 {
				delete(h.subs, runID)
			}
			close(s.ch)
		})
	}
	return s.ch, cancel
}

// Publish delivers e to every subscriber of its run without blocking. A full
// subscriber loses events, except that a terminal event displaces the oldest
// buffered one.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[e.RunID] {
		select {
		case s.ch <- e:
			continue
		default:
		}
		if !e.Terminal() {
			slog.Debug("dropping run event for slow subscriber", "run_id", e.RunID, "type", e.Type)
			continue
		}
		// Make room for the terminal event by dropping the oldest one.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- e:
		default:
			slog.Warn("dropping terminal run event", "run_id", e.RunID, "type", e.Type)
		}
	}
}

// Subscribers reports how many subscribers runID has.
func (h *Hub) Subscribers(runID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[runID])
}
