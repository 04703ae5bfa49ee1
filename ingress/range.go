package ingress

import (
	"context"
	"io"
)

// Range generates the indexes from 0 to n-1.
type Range struct {
	n    uint64
	next uint64
}

// NewRange returns a generator of n indexes.
func NewRange(n uint64) *Range {
	return &Range{n: n}
}

// Open rewinds the range.
func (r *Range) Open(_ context.Context) error {
	r.next = 0
	return nil
}

// Next returns the next index.
func (r *Range) Next(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if r.next >= r.n {
		return 0, io.EOF
	}

	idx := r.next
	r.next++

	return idx, nil
}

// Close is a no-op.
func (r *Range) Close() error {
	return nil
}

// Slice generates the items of an in-memory slice.
type Slice[T any] struct {
	items []T
	next  int
}

// NewSlice returns a generator over the given items.
// The slice is not copied.
func NewSlice[T any](items []T) *Slice[T] {
	return &Slice[T]{items: items}
}

// Open rewinds the slice.
func (s *Slice[T]) Open(_ context.Context) error {
	s.next = 0
	return nil
}

// Next returns the next item.
func (s *Slice[T]) Next(ctx context.Context) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	if s.next >= len(s.items) {
		return zero, io.EOF
	}

	item := s.items[s.next]
	s.next++

	return item, nil
}

// Close is a no-op.
func (s *Slice[T]) Close() error {
	return nil
}
