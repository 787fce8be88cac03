package audit

import "sync"

// RingBuffer is a bounded FIFO queue. When full, Enqueue overwrites the
// oldest item so producers never block.
type RingBuffer[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int
	size    int
	dropped int64
}

// NewRingBuffer creates a buffer holding at most capacity items (minimum 1).
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Enqueue appends item and reports whether the oldest item was dropped to
// make room.
func (b *RingBuffer[T]) Enqueue(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.size) % len(b.items)
	b.items[tail] = item
	if b.size < len(b.items) {
		b.size++
		return false
	}
	b.head = (b.head + 1) % len(b.items)
	b.dropped++
	return true
}

// DequeueBatch removes and returns up to n items, oldest first.
func (b *RingBuffer[T]) DequeueBatch(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		out[i] = b.items[b.head]
		b.items[b.head] = zero
		b.head = (b.head + 1) % len(b.items)
	}
	b.size -= n
	return out
}

func (b *RingBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *RingBuffer[T]) Cap() int {
	return len(b.items)
}

// Dropped returns how many items were overwritten since creation.
func (b *RingBuffer[T]) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
