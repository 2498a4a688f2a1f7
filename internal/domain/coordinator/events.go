package coordinator

import (
	"sync"
	"time"
)

// Event types published over the task and batch lifecycles.
const (
	EventTaskQueued    = "task.queued"
	EventTaskStarted   = "task.started"
	EventTaskFinished  = "task.finished"
	EventBatchStarted  = "batch.started"
	EventBatchFinished = "batch.finished"
)

// Event is one lifecycle notification, shaped for JSON framing on the
// WebSocket stream. Task events carry TaskID; batch events carry
// BatchID and the URL count.
type Event struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	BatchID   string    `json:"batch_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Count     int       `json:"count,omitempty"`
	At        time.Time `json:"at"`
}

// Hub fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full loses the event, which keeps slow
// WebSocket clients from stalling task execution.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered listener. The cancel func removes the
// subscription and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	key := h.next
	h.next++
	h.subs[key] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, key)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish stamps and delivers the event to every subscriber that has
// buffer space.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the current listener count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
