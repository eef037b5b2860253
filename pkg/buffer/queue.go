package buffer

import (
	"sync"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
)

// Queue is an unbounded FIFO queue. Writes never block and never drop;
// reads never block. Items come out in the order they went in.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool

	stats   *Statistics
	metrics *bufferMetrics
}

// NewQueue creates an empty unbounded queue. Only WithMetrics applies.
func NewQueue[T any](options ...Option[T]) (*Queue[T], error) {
	opts := applyOptions(options...)
	metrics, err := opts.newMetrics("NewQueue")
	if err != nil {
		return nil, err
	}
	return &Queue[T]{
		stats:   NewStatistics(),
		metrics: metrics,
	}, nil
}

// Write appends an item. It fails only once the queue has been closed.
func (q *Queue[T]) Write(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Queue", "Write", "write to closed queue")
	}

	q.items = append(q.items, item)
	n := len(q.items) - q.head
	q.stats.recordWrite(n)
	q.metrics.recordWrite(n)
	return nil
}

// TryRead removes and returns the oldest item without blocking.
func (q *Queue[T]) TryRead() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.head == len(q.items) {
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	q.compact()

	n := len(q.items) - q.head
	q.stats.recordRead(1, n)
	q.metrics.recordRead(1, n)
	return item, true
}

// Read is TryRead, satisfying Buffer.
func (q *Queue[T]) Read() (T, bool) {
	return q.TryRead()
}

// ReadBatch removes up to max items, oldest first.
func (q *Queue[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.take(max)
}

// Drain removes and returns every queued item, oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.take(len(q.items) - q.head)
}

// take removes up to max items. Caller holds mu.
func (q *Queue[T]) take(max int) []T {
	n := min(max, len(q.items)-q.head)
	if n <= 0 {
		return nil
	}

	out := make([]T, n)
	copy(out, q.items[q.head:q.head+n])
	clear(q.items[q.head : q.head+n])
	q.head += n
	q.compact()

	remaining := len(q.items) - q.head
	q.stats.recordRead(n, remaining)
	q.metrics.recordRead(n, remaining)
	return out
}

// compact releases the consumed prefix once it dominates the backing array.
func (q *Queue[T]) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 64 && q.head*2 > len(q.items) {
		q.items = append(q.items[:0:0], q.items[q.head:]...)
		q.head = 0
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Size is Len, satisfying Buffer.
func (q *Queue[T]) Size() int {
	return q.Len()
}

// IsEmpty returns true if nothing is queued.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Clear discards all queued items.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.head = 0
	q.stats.updateSize(0)
	q.metrics.setSize(0)
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() *Statistics {
	return q.stats
}

// Close rejects further writes. Queued items remain readable.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

var (
	_ Buffer[int] = (*Queue[int])(nil)
	_ Buffer[int] = (*CircularBuffer[int])(nil)
)
