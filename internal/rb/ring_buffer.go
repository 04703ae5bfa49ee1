// Package rb provides a bounded, blocking, single producer/single consumer
// generic ring buffer.
package rb

import (
	"context"
	"errors"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

var maxSpins = runtime.NumCPU() * 4

var (
	// ErrClosed is returned when the buffer is closed and drained.
	ErrClosed = errors.New("ring buffer: buffer is closed")
	// ErrAbandoned is returned to the producer when the consumer
	// will never read from the buffer again.
	ErrAbandoned = errors.New("ring buffer: buffer is abandoned by the consumer")
)

// RingBuffer is a bounded spsc generic ring buffer.
// The fast path is lock-free, while the slow path parks the goroutine
// on a doorbell channel until the other side makes progress.
type RingBuffer[T any] struct {
	spsc *spscBuffer[T]

	_ cpu.CacheLinePad

	// isClosed states whether the producer closed the buffer.
	isClosed atomic.Bool

	_ cpu.CacheLinePad

	// isAbandoned states whether the consumer stopped reading.
	isAbandoned atomic.Bool

	_ cpu.CacheLinePad

	// notEmpty and notFull hold at most one pending wake up each.
	notEmpty chan struct{}
	notFull  chan struct{}

	closedCh    chan struct{}
	abandonedCh chan struct{}

	closeOnce   sync.Once
	abandonOnce sync.Once
}

// NewRingBuffer returns a new ring buffer.
// The capacity is rounded up to the next power of 2.
func NewRingBuffer[T any](capacity uint64) *RingBuffer[T] {
	return &RingBuffer[T]{
		spsc: newSPSCBuffer[T](roundToPowerOf2(capacity)),

		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),

		closedCh:    make(chan struct{}),
		abandonedCh: make(chan struct{}),
	}
}

func roundToPowerOf2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}

	return 1 << bits.Len64(n-1)
}

func ring(doorbell chan struct{}) {
	select {
	case doorbell <- struct{}{}:
	default:
	}
}

// Write pushes the item into the buffer.
// It blocks while the buffer is full.
//
// It returns:
//   - [ErrClosed] if the buffer is closed
//   - [ErrAbandoned] if the consumer abandoned the buffer
//   - the context error if the context is done before the item is pushed
func (rb *RingBuffer[T]) Write(ctx context.Context, item T) error {
	spins := 0

	for {
		if rb.isClosed.Load() {
			return ErrClosed
		}

		if rb.isAbandoned.Load() {
			return ErrAbandoned
		}

		if rb.spsc.push(item) {
			ring(rb.notEmpty)
			return nil
		}

		// The buffer is full, yield before parking
		if spins < maxSpins {
			spins++
			runtime.Gosched()
			continue
		}

		select {
		case <-rb.notFull:
		case <-rb.abandonedCh:
			return ErrAbandoned
		case <-rb.closedCh:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Read pops an item from the buffer.
// It blocks while the buffer is empty and not closed.
//
// It returns:
//   - [ErrClosed] if the buffer is closed and empty
//   - the context error if the context is done before an item is available
func (rb *RingBuffer[T]) Read(ctx context.Context) (T, error) {
	spins := 0

	for {
		if item, ok := rb.spsc.pop(); ok {
			ring(rb.notFull)
			return item, nil
		}

		if rb.isClosed.Load() {
			// Items pushed before the close are visible now
			if item, ok := rb.spsc.pop(); ok {
				ring(rb.notFull)
				return item, nil
			}

			var zero T
			return zero, ErrClosed
		}

		// The buffer is empty, yield before parking
		if spins < maxSpins {
			spins++
			runtime.Gosched()
			continue
		}

		select {
		case <-rb.notEmpty:
		case <-rb.closedCh:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of items in the buffer.
func (rb *RingBuffer[T]) Len() uint64 {
	return rb.spsc.len()
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer[T]) Cap() uint64 {
	return rb.spsc.capacity
}

// Close closes the buffer from the producer side.
// The consumer can still read the buffered items.
// It is safe to call it more than once.
func (rb *RingBuffer[T]) Close() {
	rb.closeOnce.Do(func() {
		rb.isClosed.Store(true)
		close(rb.closedCh)
	})
}

// Abandon marks the buffer as abandoned from the consumer side,
// any pending or future write fails with [ErrAbandoned].
// It is safe to call it more than once.
func (rb *RingBuffer[T]) Abandon() {
	rb.abandonOnce.Do(func() {
		rb.isAbandoned.Store(true)
		close(rb.abandonedCh)
	})
}

// IsClosed states whether the buffer is closed.
func (rb *RingBuffer[T]) IsClosed() bool {
	return rb.isClosed.Load()
}
