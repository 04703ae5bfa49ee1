// Package message contains the fragment passed between stages.
package message

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Fragment is the unit of work flowing through a graph.
// The sequence number is assigned once by the source stage
// and it is carried unchanged by every following stage.
type Fragment[P any] struct {
	sequenceNumber uint64
	createTime     time.Time
	span           trace.SpanContext

	payload P
}

// NewFragment creates a new fragment with the given sequence number.
func NewFragment[P any](sequenceNumber uint64, payload P) *Fragment[P] {
	return &Fragment[P]{
		sequenceNumber: sequenceNumber,
		createTime:     time.Now(),
		payload:        payload,
	}
}

// GetSequenceNumber returns the sequence number of the fragment.
func (f *Fragment[P]) GetSequenceNumber() uint64 {
	return f.sequenceNumber
}

// GetCreateTime returns the time the fragment was emitted by the source.
func (f *Fragment[P]) GetCreateTime() time.Time {
	return f.createTime
}

// GetPayload returns the payload of the fragment.
func (f *Fragment[P]) GetPayload() P {
	return f.payload
}

// SetPayload replaces the payload of the fragment.
func (f *Fragment[P]) SetPayload(payload P) {
	f.payload = payload
}

// SaveSpan saves the trace span for the fragment.
func (f *Fragment[P]) SaveSpan(span trace.Span) {
	f.span = span.SpanContext()
}

// LoadSpanContext loads the trace of the fragment
// into the provided context.
func (f *Fragment[P]) LoadSpanContext(ctx context.Context) context.Context {
	if !f.span.IsValid() {
		return ctx
	}

	return trace.ContextWithSpanContext(ctx, f.span)
}

// Derive returns a new fragment carrying the given payload
// and the sequence number, create time, and span of the original one.
func Derive[P, Q any](f *Fragment[P], payload Q) *Fragment[Q] {
	return &Fragment[Q]{
		sequenceNumber: f.sequenceNumber,
		createTime:     f.createTime,
		span:           f.span,
		payload:        payload,
	}
}
