package processor

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/internal/message"
	"go.opentelemetry.io/otel/attribute"
)

var _ ordo.Action[any] = (*Tee[any])(nil)

// Tee is the action of a stage that copies every fragment to all of its outputs.
// Each copy keeps the sequence number of the input fragment, so every branch
// can be reassembled independently.
//
// If clone is nil the copies share the payload, which must then be
// treated as read-only by the downstream stages.
type Tee[P any] struct {
	clone func(P) P

	// Metrics
	clonedFragments atomic.Int64
}

// NewTee returns a new tee action.
func NewTee[P any](clone func(P) P) *Tee[P] {
	return &Tee[P]{
		clone: clone,
	}
}

// Run copies the fragments until every input is closed and drained.
func (t *Tee[P]) Run(ctx context.Context, ports *ordo.Ports[P]) error {
	tel := ports.Telemetry()
	tel.NewCounter("cloned_fragments", func() int64 { return t.clonedFragments.Load() })

	outputs := ports.Outputs()
	if len(outputs) == 0 {
		return ordo.ErrNoOutputs
	}

	tel.LogInfo("running", "clone_count", len(outputs))

	fanIn := ordo.NewFanIn(ports, ordo.FanInRoundRobin)

	for {
		frag, err := fanIn.Next(ctx)
		if err != nil {
			if errors.Is(err, ordo.ErrClosed) {
				tel.LogInfo("inputs are closed, stopping")
				return nil
			}

			return err
		}

		if err := t.copyTo(ctx, ports, outputs, frag); err != nil {
			return err
		}
	}
}

func (t *Tee[P]) copyTo(ctx context.Context, ports *ordo.Ports[P], outputs []ordo.StageID, frag *ordo.Fragment[P]) error {
	// Extract the span context from the input fragment
	ctx, span := ports.Telemetry().NewTrace(frag.LoadSpanContext(ctx), "clone fragment")
	defer span.End()

	span.SetAttributes(attribute.Int("clone_count", len(outputs)))

	// The copies are made before any send, since the receivers
	// own the fragment as soon as it is sent
	frags := make([]*ordo.Fragment[P], len(outputs))
	frags[0] = frag
	for idx := 1; idx < len(outputs); idx++ {
		payload := frag.GetPayload()
		if t.clone != nil {
			payload = t.clone(payload)
		}

		frags[idx] = message.Derive(frag, payload)
		t.clonedFragments.Add(1)
	}

	for idx, to := range outputs {
		if err := ports.Send(ctx, to, frags[idx]); err != nil {
			return err
		}
	}

	return nil
}
