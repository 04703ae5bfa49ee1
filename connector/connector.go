// Package connector defines the conduits used to connect the stages of a graph.
package connector

import "context"

// Connector is the interface for a bounded, ordered conduit
// between exactly one producer and one consumer.
type Connector[T any] interface {
	// Write sends the item, blocking while the connector is full.
	Write(ctx context.Context, item T) error
	// Read receives the next item, blocking while the connector is empty.
	// It returns [ErrClosed] once the connector is closed and drained.
	Read(ctx context.Context) (T, error)
	// Close is called by the producer when no more items will be written.
	Close()
	// Abandon is called by the consumer when no more items will be read.
	Abandon()
}
