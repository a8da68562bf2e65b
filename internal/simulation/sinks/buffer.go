// Package sinks holds the shared plumbing for outbound subscribers: a bounded
// buffer between the tick loop and the network, and delivery metrics.
package sinks

import "sync"

const defaultCapacity = 1024

// RingBuffer is a bounded, thread-safe FIFO. When full, the oldest items are
// dropped to make room for new ones.
type RingBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int
	removed  uint64 // items ever taken off the tail

	dropped int64
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Enqueue adds an item, dropping the oldest if necessary. It reports whether
// an item was dropped.
func (b *RingBuffer[T]) Enqueue(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := false
	if b.count >= b.capacity {
		b.pop()
		b.dropped++
		dropped = true
	}

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	b.count++
	return dropped
}

// Peek returns up to n of the oldest items without removing them, and the
// position to pass to Commit once they have been handled.
func (b *RingBuffer[T]) Peek(n int) ([]T, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(n, b.count)
	if n <= 0 {
		return nil, b.removed
	}
	out := make([]T, n)
	for i := range n {
		out[i] = b.items[(b.tail+i)%b.capacity]
	}
	return out, b.removed + uint64(n)
}

// Commit removes every item before position pos. Items already evicted by
// overflow since the matching Peek are not removed twice.
func (b *RingBuffer[T]) Commit(pos uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.removed < pos && b.count > 0 {
		b.pop()
	}
}

// DequeueBatch removes and returns up to n of the oldest items.
func (b *RingBuffer[T]) DequeueBatch(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(n, b.count)
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	for i := range n {
		out[i] = b.pop()
	}
	return out
}

func (b *RingBuffer[T]) pop() T {
	var zero T
	item := b.items[b.tail]
	b.items[b.tail] = zero
	b.tail = (b.tail + 1) % b.capacity
	b.count--
	b.removed++
	return item
}

// Len returns the current number of buffered items.
func (b *RingBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of items evicted by overflow.
func (b *RingBuffer[T]) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
