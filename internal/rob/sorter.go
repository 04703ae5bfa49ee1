package rob

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
)

// Sorter collects every item of a stream and sorts them by sequence number
// once the stream is over.
type Sorter[T Item] struct {
	items []T
}

// NewSorter returns a new [Sorter] with the given initial capacity.
func NewSorter[T Item](capacity int) *Sorter[T] {
	return &Sorter[T]{
		items: make([]T, 0, capacity),
	}
}

// Add appends the item to the collection.
func (s *Sorter[T]) Add(item T) {
	s.items = append(s.items, item)
}

// Len returns the number of collected items.
func (s *Sorter[T]) Len() int {
	return len(s.items)
}

// Sorted sorts the collected items and returns an iterator over them.
// It fails if a sequence number is duplicated or if there are gaps
// starting from firstSeqNum.
func (s *Sorter[T]) Sorted(firstSeqNum uint64) (iter.Seq[T], error) {
	slices.SortFunc(s.items, func(a, b T) int {
		return cmp.Compare(a.GetSequenceNumber(), b.GetSequenceNumber())
	})

	expected := firstSeqNum
	for _, item := range s.items {
		seqNum := item.GetSequenceNumber()

		switch {
		case seqNum < expected:
			return nil, fmt.Errorf("%w: %d", ErrSeqNumDuplicated, seqNum)
		case seqNum > expected:
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrSeqNumMissing, expected, seqNum)
		}

		expected++
	}

	return slices.Values(s.items), nil
}

// Reset drops the collected items.
func (s *Sorter[T]) Reset() {
	clear(s.items)
	s.items = s.items[:0]
}
