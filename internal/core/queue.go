package core

import (
	"context"
	"sync"

	"github.com/graaaaa/sms900/internal/event"
)

// Queue is an unbounded multi-producer, single-consumer FIFO. Push never
// blocks; Pop blocks until an event is available.
type Queue struct {
	mu     sync.Mutex
	items  []event.Event
	signal chan struct{}
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends e. Safe to call from any goroutine.
func (q *Queue) Push(e event.Event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop removes the oldest event, waiting until one is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (event.Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = event.Event{}
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return e, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
