package rb

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// spscBuffer is the lock-free core of the ring buffer.
// It is only safe with one producer and one consumer goroutine.
type spscBuffer[T any] struct {
	head atomic.Uint64

	_ cpu.CacheLinePad

	tail atomic.Uint64

	_ cpu.CacheLinePad

	capacity uint64
	capMask  uint64

	buffer []T
}

func newSPSCBuffer[T any](capacity uint64) *spscBuffer[T] {
	return &spscBuffer[T]{
		capacity: capacity,
		capMask:  capacity - 1,

		buffer: make([]T, capacity),
	}
}

func (b *spscBuffer[T]) push(item T) bool {
	head := b.head.Load()
	tail := b.tail.Load()

	// Check if buffer is full
	if head-tail >= b.capacity {
		return false
	}

	b.buffer[head&b.capMask] = item

	// Publish the slot to the consumer
	b.head.Store(head + 1)

	return true
}

func (b *spscBuffer[T]) pop() (T, bool) {
	var zero T

	head := b.head.Load()
	tail := b.tail.Load()

	// Check if buffer is empty
	if head == tail {
		return zero, false
	}

	itemIndex := tail & b.capMask
	item := b.buffer[itemIndex]

	// Release the reference so the payload can be collected
	b.buffer[itemIndex] = zero

	b.tail.Store(tail + 1)

	return item, true
}

func (b *spscBuffer[T]) len() uint64 {
	tail := b.tail.Load()
	return b.head.Load() - tail
}
