// Package ring implements a bounded, newest-first buffer.
package ring

import "sync"

// Buffer keeps at most capacity items. Push drops the oldest item once the
// buffer is full. Items are returned newest first.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // index of the next write
	count int
}

// New returns an empty buffer. capacity must be positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push inserts v as the newest item.
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
	if b.count < len(b.items) {
		b.count++
	}
	b.mu.Unlock()
}

// Latest returns up to n items, newest first. n <= 0 returns everything.
func (b *Buffer[T]) Latest(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]T, 0, n)
	idx := b.head
	for range n {
		idx = (idx - 1 + len(b.items)) % len(b.items)
		out = append(out, b.items[idx])
	}
	return out
}

// Filter returns up to n items matching keep, newest first.
func (b *Buffer[T]) Filter(n int, keep func(T) bool) []T {
	var out []T
	for _, v := range b.Latest(0) {
		if !keep(v) {
			continue
		}
		out = append(out, v)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// Len returns the number of stored items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}
