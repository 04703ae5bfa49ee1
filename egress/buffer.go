package egress

import (
	"context"
	"slices"
	"sync"
)

var _ Writer[any] = (*BufferWriter[any])(nil)

// BufferWriter keeps the payloads in memory.
// The committed payloads are available through [BufferWriter.Items].
type BufferWriter[P any] struct {
	mux sync.Mutex

	staging   []P
	committed []P
	isAborted bool
}

// NewBufferWriter returns a new in-memory writer.
func NewBufferWriter[P any]() *BufferWriter[P] {
	return &BufferWriter[P]{}
}

// Open resets the staging buffer.
func (bw *BufferWriter[P]) Open(_ context.Context) error {
	bw.mux.Lock()
	defer bw.mux.Unlock()

	bw.staging = nil
	bw.isAborted = false

	return nil
}

// Write appends the payload to the staging buffer.
func (bw *BufferWriter[P]) Write(_ context.Context, _ uint64, payload P) error {
	bw.mux.Lock()
	defer bw.mux.Unlock()

	bw.staging = append(bw.staging, payload)

	return nil
}

// Commit publishes the staging buffer.
func (bw *BufferWriter[P]) Commit(_ context.Context) error {
	bw.mux.Lock()
	defer bw.mux.Unlock()

	bw.committed = bw.staging
	bw.staging = nil

	return nil
}

// Abort drops the staging buffer.
func (bw *BufferWriter[P]) Abort() error {
	bw.mux.Lock()
	defer bw.mux.Unlock()

	bw.staging = nil
	bw.isAborted = true

	return nil
}

// Items returns a copy of the committed payloads.
func (bw *BufferWriter[P]) Items() []P {
	bw.mux.Lock()
	defer bw.mux.Unlock()

	return slices.Clone(bw.committed)
}

// IsAborted states whether the last run was aborted.
func (bw *BufferWriter[P]) IsAborted() bool {
	bw.mux.Lock()
	defer bw.mux.Unlock()

	return bw.isAborted
}

// DiscardWriter is a writer that drops every payload.
// It is intended for testing purposes.
type DiscardWriter[P any] struct{}

// Open is a no-op.
func (DiscardWriter[P]) Open(context.Context) error { return nil }

// Write is a no-op.
func (DiscardWriter[P]) Write(context.Context, uint64, P) error { return nil }

// Commit is a no-op.
func (DiscardWriter[P]) Commit(context.Context) error { return nil }

// Abort is a no-op.
func (DiscardWriter[P]) Abort() error { return nil }
