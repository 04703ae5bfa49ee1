package egress

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

type sinkMetrics struct {
	receivedFragments  atomic.Int64
	writtenFragments   atomic.Int64
	writeErrors        atomic.Int64
	reorderedFragments atomic.Int64
	pendingFragments   atomic.Int64

	totFragmentTime *telemetry.Histogram
}

func (sm *sinkMetrics) init(tel *telemetry.Telemetry) {
	tel.NewCounter("received_fragments", func() int64 { return sm.receivedFragments.Load() })
	tel.NewCounter("written_fragments", func() int64 { return sm.writtenFragments.Load() })
	tel.NewCounter("write_errors", func() int64 { return sm.writeErrors.Load() })
	tel.NewCounter("reordered_fragments", func() int64 { return sm.reorderedFragments.Load() })
	tel.NewUpDownCounter("pending_fragments", func() int64 { return sm.pendingFragments.Load() })

	sm.totFragmentTime = tel.NewHistogram("total_fragment_time", "ms")
}

//////////////
//  WORKER  //
//////////////

// deliverer writes the reassembled fragments into the writer, in order.
type deliverer[P any] struct {
	tel    *telemetry.Telemetry
	writer Writer[P]

	metrics *sinkMetrics
}

func newDeliverer[P any](tel *telemetry.Telemetry, writer Writer[P], metrics *sinkMetrics) *deliverer[P] {
	return &deliverer[P]{
		tel:    tel,
		writer: writer,

		metrics: metrics,
	}
}

func (d *deliverer[P]) deliver(ctx context.Context, frag *ordo.Fragment[P]) error {
	// Extract the span context from the fragment
	ctx, span := d.tel.NewTrace(frag.LoadSpanContext(ctx), "write fragment")
	defer span.End()

	seqNum := frag.GetSequenceNumber()
	span.SetAttributes(attribute.Int64("sequence_number", int64(seqNum)))

	if err := d.writer.Write(ctx, seqNum, frag.GetPayload()); err != nil {
		d.metrics.writeErrors.Add(1)
		return fmt.Errorf("failed to write fragment %d: %w", seqNum, err)
	}

	d.metrics.writtenFragments.Add(1)
	d.metrics.totFragmentTime.Record(ctx, float64(time.Since(frag.GetCreateTime()).Microseconds())/1000)

	return nil
}
