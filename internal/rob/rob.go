// Package rob implements the re-order buffers used to restore
// the emission order of fragments coming from parallel workers.
package rob

import (
	"errors"
	"fmt"
)

var (
	// ErrSeqNumOutOfWindow is returned when the sequence number is out of the window.
	ErrSeqNumOutOfWindow = errors.New("sequence number out of window")
	// ErrSeqNumDuplicated is returned when the sequence number is duplicated.
	ErrSeqNumDuplicated = errors.New("sequence number duplicated")
	// ErrSeqNumMissing is returned when the stream ended with gaps.
	ErrSeqNumMissing = errors.New("sequence number missing")
)

// Item is the interface that re-orderable items must implement.
type Item interface {
	// GetSequenceNumber returns the sequence number of the item.
	GetSequenceNumber() uint64
}

// EnqueueStatus is the status of the enqueue operation.
type EnqueueStatus uint8

const (
	// EnqueueStatusInOrder is returned when the item is the next expected one,
	// so it is delivered without being buffered.
	EnqueueStatusInOrder EnqueueStatus = iota
	// EnqueueStatusBuffered is returned when the item is kept
	// until the missing ones arrive.
	EnqueueStatusBuffered
	// EnqueueStatusErr is returned when the item cannot be enqueued.
	EnqueueStatusErr
)

func (es EnqueueStatus) String() string {
	switch es {
	case EnqueueStatusInOrder:
		return "in-order"
	case EnqueueStatusBuffered:
		return "buffered"
	case EnqueueStatusErr:
		return "error"
	default:
		return "unknown"
	}
}

// DeliverFunc is called by the [ROB] for every item, in sequence order.
type DeliverFunc[T Item] func(item T) error

// ROB is a streaming re-order buffer.
// It keeps the out of order items keyed by sequence number
// and delivers them as soon as the sequence has no gaps.
type ROB[T Item] struct {
	deliver DeliverFunc[T]

	pending    map[uint64]T
	nextSeqNum uint64
	window     uint64

	delivered uint64
	reordered uint64
}

// NewROB returns a new [ROB] (re-order buffer) with the given configuration.
func NewROB[T Item](deliver DeliverFunc[T], cfg *Config) *ROB[T] {
	return &ROB[T]{
		deliver: deliver,

		pending:    make(map[uint64]T),
		nextSeqNum: cfg.FirstSeqNum,
		window:     cfg.Window,
	}
}

func (rob *ROB[T]) deliverItem(item T) error {
	if err := rob.deliver(item); err != nil {
		return fmt.Errorf("deliver sequence number %d: %w", item.GetSequenceNumber(), err)
	}

	rob.nextSeqNum++
	rob.delivered++

	return nil
}

func (rob *ROB[T]) deliverConsecutives() error {
	for {
		item, ok := rob.pending[rob.nextSeqNum]
		if !ok {
			return nil
		}

		delete(rob.pending, rob.nextSeqNum)

		if err := rob.deliverItem(item); err != nil {
			return err
		}
	}
}

// Enqueue adds the item into the ROB and returns the status.
// If the item is the next expected one, it is delivered together
// with all the buffered items that follow it without gaps.
//
// It returns:
//   - [ErrSeqNumDuplicated] if the sequence number was already delivered or buffered
//   - [ErrSeqNumOutOfWindow] if the sequence number is too far ahead
//   - the error returned by the deliver function
func (rob *ROB[T]) Enqueue(item T) (EnqueueStatus, error) {
	seqNum := item.GetSequenceNumber()

	if seqNum < rob.nextSeqNum {
		return EnqueueStatusErr, fmt.Errorf("%w: %d", ErrSeqNumDuplicated, seqNum)
	}

	if seqNum == rob.nextSeqNum {
		if err := rob.deliverItem(item); err != nil {
			return EnqueueStatusErr, err
		}

		return EnqueueStatusInOrder, rob.deliverConsecutives()
	}

	if rob.window > 0 && seqNum-rob.nextSeqNum >= rob.window {
		return EnqueueStatusErr, fmt.Errorf("%w: %d (next %d, window %d)",
			ErrSeqNumOutOfWindow, seqNum, rob.nextSeqNum, rob.window)
	}

	if _, ok := rob.pending[seqNum]; ok {
		return EnqueueStatusErr, fmt.Errorf("%w: %d", ErrSeqNumDuplicated, seqNum)
	}

	rob.pending[seqNum] = item
	rob.reordered++

	return EnqueueStatusBuffered, nil
}

// Finish checks that no item is still waiting for a missing predecessor.
// It must be called once the input stream is over.
func (rob *ROB[T]) Finish() error {
	if len(rob.pending) == 0 {
		return nil
	}

	return fmt.Errorf("%w: expected %d, %d items pending", ErrSeqNumMissing, rob.nextSeqNum, len(rob.pending))
}

// NextSeqNum returns the next expected sequence number.
func (rob *ROB[T]) NextSeqNum() uint64 {
	return rob.nextSeqNum
}

// Pending returns the number of buffered items.
func (rob *ROB[T]) Pending() int {
	return len(rob.pending)
}

// Delivered returns the number of delivered items.
func (rob *ROB[T]) Delivered() uint64 {
	return rob.delivered
}

// Reordered returns the number of items that arrived out of order.
func (rob *ROB[T]) Reordered() uint64 {
	return rob.reordered
}

// Reset drops the buffered items and restarts the sequence.
func (rob *ROB[T]) Reset(firstSeqNum uint64) {
	clear(rob.pending)
	rob.nextSeqNum = firstSeqNum
	rob.delivered = 0
	rob.reordered = 0
}
