package app

import (
	"sync"

	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/recognition"
)

// Hub fans task transitions out to subscribers. Slow subscribers lose
// transitions rather than stall the session that produced them.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan recognition.Task
	next   int
	logger *zap.Logger
}

// NewHub creates an empty Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[int]chan recognition.Task), logger: logger}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan recognition.Task, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan recognition.Task, buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// TaskChanged implements recognition.Observer
func (h *Hub) TaskChanged(task recognition.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- task:
		default:
			h.logger.Warn("dropping transition for slow subscriber",
				zap.Int("subscriber", id),
				zap.Stringer("state", task.State))
		}
	}
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
