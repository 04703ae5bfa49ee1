package connector

import (
	"github.com/FerroO2000/ordo/internal/rb"
)

var (
	// ErrClosed is returned when reading from a closed and empty connector,
	// or when writing into a closed one.
	ErrClosed = rb.ErrClosed
	// ErrBrokenPipe is returned when writing into a connector
	// whose consumer has terminated.
	ErrBrokenPipe = rb.ErrAbandoned
)

var _ Connector[any] = (*RingBuffer[any])(nil)

// RingBuffer is a bounded spsc generic ring buffer.
type RingBuffer[T any] = rb.RingBuffer[T]

// NewRingBuffer returns a new spsc generic ring buffer.
// The capacity is rounded up to the next power of 2.
func NewRingBuffer[T any](capacity uint64) *RingBuffer[T] {
	return rb.NewRingBuffer[T](capacity)
}
