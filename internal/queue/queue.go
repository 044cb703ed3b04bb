// Package queue provides the bounded hand-off between pipeline stages.
//
// A Queue never blocks its producer: when full, the oldest entry is
// evicted to make room. Consumers block on Pop for at most a timeout.
package queue

import (
	"sync"
	"time"

	"LoraFall/internal/model"
	"LoraFall/internal/timeutil"
)

const (
	// MaxCapacity is the largest supported queue depth.
	MaxCapacity = 16
	// DefaultCapacity is used by the node and receiver when unset.
	DefaultCapacity = 4
)

// Queue is a fixed-capacity FIFO ring with overwrite-oldest semantics.
// It is safe for one or more producers and consumers.
type Queue[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int
	count   int
	dropped uint64

	ready chan struct{}
	clock timeutil.Clock
}

// AlertQueue carries fall events from the detector to the transmitter.
type AlertQueue = Queue[model.FallEvent]

// New returns a queue whose capacity is clamped into [1, MaxCapacity].
// A nil clock means real time.
func New[T any](capacity int, clock timeutil.Clock) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	return &Queue[T]{
		buf:   make([]T, capacity),
		ready: make(chan struct{}, 1),
		clock: timeutil.OrReal(clock),
	}
}

// NewAlertQueue returns a fall event queue on real time.
func NewAlertQueue(capacity int) *AlertQueue {
	return New[model.FallEvent](capacity, nil)
}

// Push appends v, evicting the oldest entry when the queue is full.
// It never blocks and always reports success.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.count == len(q.buf) {
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.dropped++
	}
	q.buf[(q.head+q.count)%len(q.buf)] = v
	q.count++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest entry, waiting up to timeout for one to arrive.
// A timeout of zero or less polls once. The boolean is false on timeout.
func (q *Queue[T]) Pop(timeout time.Duration) (T, bool) {
	if v, ok := q.TryPop(); ok || timeout <= 0 {
		return v, ok
	}

	timer := q.clock.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.ready:
			if v, ok := q.TryPop(); ok {
				return v, true
			}
		case <-timer.C():
			return q.TryPop()
		}
	}
}

// TryPop removes the oldest entry without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.count == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	if q.count > 0 {
		// let another waiting consumer pick up the remainder
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return v, true
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the clamped capacity.
func (q *Queue[T]) Cap() int { return len(q.buf) }

// Dropped returns how many entries were evicted by Push.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
