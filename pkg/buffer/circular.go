package buffer

import (
	"sync"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
)

// CircularBuffer is a fixed-capacity ring buffer with a configurable overflow policy.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	closed   bool

	stats   *Statistics
	metrics *bufferMetrics
	opts    *bufferOptions[T]
}

// NewCircularBuffer creates a ring buffer holding at most capacity items.
// Capacities below one are raised to one.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (*CircularBuffer[T], error) {
	opts := applyOptions(options...)
	if capacity <= 0 {
		capacity = 1
	}

	metrics, err := opts.newMetrics("NewCircularBuffer")
	if err != nil {
		return nil, err
	}

	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}, nil
}

// Write adds an item, applying the overflow policy when full.
func (cb *CircularBuffer[T]) Write(item T) error {
	var dropped T
	var didDrop bool

	cb.mu.Lock()
	if cb.closed {
		cb.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "CircularBuffer", "Write", "write to closed buffer")
	}

	if cb.size == cb.capacity {
		cb.stats.recordDrop()
		cb.metrics.recordDrop()
		didDrop = true

		if cb.opts.overflowPolicy == DropNewest {
			cb.mu.Unlock()
			cb.notifyDrop(item)
			return nil
		}

		var zero T
		dropped = cb.items[cb.tail]
		cb.items[cb.tail] = zero
		cb.tail = (cb.tail + 1) % cb.capacity
		cb.size--
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++
	cb.stats.recordWrite(cb.size)
	cb.metrics.recordWrite(cb.size)
	cb.mu.Unlock()

	// outside the lock so callbacks may touch the buffer
	if didDrop {
		cb.notifyDrop(dropped)
	}
	return nil
}

func (cb *CircularBuffer[T]) notifyDrop(item T) {
	if cb.opts.dropCallback != nil {
		cb.opts.dropCallback(item)
	}
}

// Read removes and returns the oldest item.
func (cb *CircularBuffer[T]) Read() (T, bool) {
	items := cb.ReadBatch(1)
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}

// ReadBatch removes up to max items, oldest first.
func (cb *CircularBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	n := min(max, cb.size)
	if n == 0 {
		return nil
	}

	var zero T
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = cb.items[cb.tail]
		cb.items[cb.tail] = zero
		cb.tail = (cb.tail + 1) % cb.capacity
	}
	cb.size -= n

	cb.stats.recordRead(n, cb.size)
	cb.metrics.recordRead(n, cb.size)
	return out
}

// Snapshot returns the buffered items oldest first without removing them.
func (cb *CircularBuffer[T]) Snapshot() []T {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	out := make([]T, cb.size)
	for i := 0; i < cb.size; i++ {
		out[i] = cb.items[(cb.tail+i)%cb.capacity]
	}
	return out
}

// Size returns the current number of items.
func (cb *CircularBuffer[T]) Size() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size
}

// Capacity returns the maximum number of items.
func (cb *CircularBuffer[T]) Capacity() int {
	return cb.capacity
}

// IsEmpty returns true if the buffer holds no items.
func (cb *CircularBuffer[T]) IsEmpty() bool {
	return cb.Size() == 0
}

// IsFull returns true if the next write will trigger the overflow policy.
func (cb *CircularBuffer[T]) IsFull() bool {
	return cb.Size() == cb.capacity
}

// Clear removes all items.
func (cb *CircularBuffer[T]) Clear() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	clear(cb.items)
	cb.head, cb.tail, cb.size = 0, 0, 0
	cb.stats.updateSize(0)
	cb.metrics.setSize(0)
}

// Stats returns buffer statistics.
func (cb *CircularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close rejects further writes.
func (cb *CircularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.closed = true
	return nil
}
