package asr

import (
	"sync"

	"github.com/ambientscribe/asr-gateway/internal/observability"
	"github.com/rs/zerolog"
)

// UpdateQueue is a bounded FIFO of pending updates for one session. Producers
// are the session's handler and the housekeeper; the transport loop is the
// single consumer. Overflow policy: an incoming transient update is dropped
// when the queue is full; a final or metrics update displaces the oldest
// transient entry, and only when none exists is the oldest item lost outright.
type UpdateQueue struct {
	mu       sync.Mutex
	items    []Update
	capacity int
	logger   zerolog.Logger
}

// NewUpdateQueue creates a queue bounded at capacity pending items
func NewUpdateQueue(capacity int, logger zerolog.Logger) *UpdateQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &UpdateQueue{
		items:    make([]Update, 0, capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// Push enqueues an update, applying the overflow policy when full.
// It reports whether the update was accepted.
func (q *UpdateQueue) Push(u Update) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) < q.capacity {
		q.items = append(q.items, u)
		return true
	}

	if u.Transient() {
		// Partial/status hints are disposable under pressure
		q.logger.Debug().Msg("Update queue full, dropping transient update")
		observability.RecordDroppedUpdate("transient")
		return false
	}

	// Make room for a final/metrics update by evicting the oldest transient
	for i, item := range q.items {
		if item.Transient() {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.items = append(q.items, u)
			observability.RecordDroppedUpdate("transient")
			return true
		}
	}

	// Queue full of non-droppable updates; losing one is a real loss
	q.logger.Warn().Msg("Update queue full of final updates, dropping oldest")
	observability.RecordDroppedUpdate("final")
	q.items = append(q.items[1:], u)
	return true
}

// Drain returns and removes everything currently queued without waiting
func (q *UpdateQueue) Drain() []Update {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := make([]Update, len(q.items))
	copy(out, q.items)
	q.items = q.items[:0]
	return out
}

// Len returns the number of pending updates
func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
