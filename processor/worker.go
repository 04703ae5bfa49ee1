package processor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

///////////////
//  METRICS  //
///////////////

type workerMetrics struct {
	processedFragments atomic.Int64
	processingErrors   atomic.Int64

	processingTime *telemetry.Histogram
}

func (wm *workerMetrics) init(tel *telemetry.Telemetry) {
	tel.NewCounter("processed_fragments", func() int64 { return wm.processedFragments.Load() })
	tel.NewCounter("processing_errors", func() int64 { return wm.processingErrors.Load() })

	wm.processingTime = tel.NewHistogram("processing_time", "ms")
}

//////////////
//  WORKER  //
//////////////

// worker applies the handler to the fragments received by a stage.
type worker[P any] struct {
	tel *telemetry.Telemetry

	handler Handler[P]

	traceString string

	metrics *workerMetrics
}

func newWorker[P any](tel *telemetry.Telemetry, name string, handler Handler[P]) *worker[P] {
	w := &worker[P]{
		tel: tel,

		handler: handler,

		traceString: fmt.Sprintf("handle %s fragment", name),

		metrics: &workerMetrics{},
	}

	w.metrics.init(tel)

	return w
}

// process replaces the payload of the fragment with the result of the handler.
// The sequence number of the fragment is left untouched.
func (w *worker[P]) process(ctx context.Context, frag *ordo.Fragment[P]) error {
	// Extract the span context from the input fragment
	ctx, span := w.tel.NewTrace(frag.LoadSpanContext(ctx), w.traceString)
	defer span.End()

	seqNum := frag.GetSequenceNumber()
	span.SetAttributes(attribute.Int64("sequence_number", int64(seqNum)))

	start := time.Now()

	payload, err := w.handler.Handle(ctx, frag.GetPayload())
	if err != nil {
		w.metrics.processingErrors.Add(1)
		return fmt.Errorf("failed to handle fragment %d: %w", seqNum, err)
	}

	w.metrics.processingTime.Record(ctx, float64(time.Since(start).Microseconds())/1000)
	w.metrics.processedFragments.Add(1)

	frag.SetPayload(payload)
	frag.SaveSpan(span)

	return nil
}
