package events

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/google/uuid"
)

// DefaultQueueRetention is how long a finished queue waits for its reader
const DefaultQueueRetention = 5 * time.Minute

// Queue is an ordered list of status events read by a single consumer
type Queue struct {
	mu     sync.Mutex
	items  []domain.StatusEvent
	notify chan struct{}
	done   bool
}

func newQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Publish appends an event without blocking
func (q *Queue) Publish(ev domain.StatusEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	if ev.Terminal() {
		q.done = true
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available or ctx is done
func (q *Queue) Next(ctx context.Context) (domain.StatusEvent, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.StatusEvent{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Finished reports whether a terminal event has been published
func (q *Queue) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done
}

// Queues is the registry of per-operation event queues
type Queues struct {
	mu        sync.Mutex
	queues    map[uuid.UUID]*Queue
	retention time.Duration
}

// NewQueues creates an empty registry
func NewQueues(retention time.Duration) *Queues {
	if retention <= 0 {
		retention = DefaultQueueRetention
	}
	return &Queues{
		queues:    make(map[uuid.UUID]*Queue),
		retention: retention,
	}
}

// Create registers a fresh queue for id, replacing any previous one
func (r *Queues) Create(id uuid.UUID) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := newQueue()
	r.queues[id] = q
	return q
}

// Get returns the queue for id
func (r *Queues) Get(id uuid.UUID) (*Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[id]
	return q, ok
}

// GetOrCreate returns the queue for id, creating it when missing
func (r *Queues) GetOrCreate(id uuid.UUID) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[id]
	if !ok {
		q = newQueue()
		r.queues[id] = q
	}
	return q
}

// Remove drops the queue for id
func (r *Queues) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, id)
}

// Publish appends ev to the queue for id. After a terminal event the queue
// is dropped once the retention period passes, whether or not it was read.
func (r *Queues) Publish(id uuid.UUID, ev domain.StatusEvent) {
	q := r.GetOrCreate(id)
	q.Publish(ev)

	if ev.Terminal() {
		time.AfterFunc(r.retention, func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if current, ok := r.queues[id]; ok && current == q {
				delete(r.queues, id)
			}
		})
	}
}

// Len returns the number of registered queues
func (r *Queues) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}
