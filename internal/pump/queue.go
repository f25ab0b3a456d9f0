package pump

import "sync"

// Queue is an unbounded, insertion-ordered queue safe for many producers and
// one consumer. Enqueue never blocks and never drops.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Enqueue appends v and wakes the consumer.
func (q *Queue[T]) Enqueue(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// DrainAll removes and returns every queued item in enqueue order.
// It returns nil when nothing is pending.
func (q *Queue[T]) DrainAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Ready is signalled after Enqueue. Signals coalesce, so a consumer must
// drain everything each time it wakes up.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
