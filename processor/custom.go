package processor

import (
	"context"

	"github.com/FerroO2000/ordo/internal/telemetry"
)

///////////////
//  HANDLER  //
///////////////

// Handler interface defines the methods that the handler
// of a processor stage must implement.
type Handler[P any] interface {
	// Init method is called once, before the graph starts.
	Init(ctx context.Context) error

	// Handle method is called for each fragment received by the stage.
	// It returns the new payload of the fragment.
	Handle(ctx context.Context, payload P) (P, error)

	// Close is called once, when the stage terminates.
	Close()

	// SetTelemetry sets the telemetry for the handler.
	// It can be used to add traces, logs, and metrics to the
	// user defined handler.
	SetTelemetry(tel *telemetry.Telemetry)
}

// HandlerBase is a base implementation of the Handler interface.
// It provides a Telemetry field that can be used to add traces,
// logs, and metrics to the handler.
// It also provides a default implementation for the Init and Close methods,
// but not for the Handle method.
type HandlerBase struct {
	Telemetry *telemetry.Telemetry
}

// Init is a no-op implementation of the handler Init method.
func (hb *HandlerBase) Init(_ context.Context) error {
	return nil
}

// Close is a no-op implementation of the handler Close method.
func (hb *HandlerBase) Close() {}

// SetTelemetry sets the telemetry for the handler.
func (hb *HandlerBase) SetTelemetry(tel *telemetry.Telemetry) {
	hb.Telemetry = tel
}

// TransformFunc is a function transforming the payload of a fragment.
type TransformFunc[P any] func(ctx context.Context, payload P) (P, error)

type funcHandler[P any] struct {
	HandlerBase

	fn TransformFunc[P]
}

// HandlerFunc adapts a transform function to the [Handler] interface.
func HandlerFunc[P any](fn TransformFunc[P]) Handler[P] {
	return &funcHandler[P]{fn: fn}
}

func (fh *funcHandler[P]) Handle(ctx context.Context, payload P) (P, error) {
	return fh.fn(ctx, payload)
}
