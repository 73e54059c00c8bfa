package lifecycle

import (
	"sync"
	"time"
)

// QueuedEvent is one deferred analytics event awaiting a sync batch.
type QueuedEvent struct {
	Name     string         `json:"name"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	QueuedAt time.Time      `json:"queued_at"`
}

// SyncQueue buffers events for background sync. Nothing enqueues by
// default (analytics queuing is disabled) but the queue stays wired so
// batches, metrics and the SYNC_COMPLETE broadcast keep working.
type SyncQueue struct {
	mu     sync.Mutex
	events []QueuedEvent
}

// NewSyncQueue creates an empty queue.
func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// Enqueue appends an event.
func (q *SyncQueue) Enqueue(name string, attrs map[string]any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, QueuedEvent{
		Name:     name,
		Attrs:    attrs,
		QueuedAt: time.Now().UTC(),
	})
}

// Len reports the number of queued events.
func (q *SyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drain removes and returns all queued events.
func (q *SyncQueue) Drain() []QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.events
	q.events = nil
	return batch
}
