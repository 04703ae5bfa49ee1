// Package telemetry provides logs, metrics, and traces for the components
// of the library.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/FerroO2000/ordo"

// Telemetry bundles the logger, the meter, and the tracer
// of a single component (a stage, a writer, the runner).
type Telemetry struct {
	kind string
	name string

	logArgs  []any
	attrSet  attribute.Set
	metricOp metric.MeasurementOption

	tracer trace.Tracer
	meter  metric.Meter
}

// NewTelemetry returns the telemetry for the component
// of the given kind (e.g. "processor") and name.
func NewTelemetry(kind, name string) *Telemetry {
	attrSet := attribute.NewSet(
		attribute.String("component", kind),
		attribute.String("name", name),
	)

	return &Telemetry{
		kind: kind,
		name: name,

		logArgs:  []any{"component", kind, "name", name},
		attrSet:  attrSet,
		metricOp: metric.WithAttributeSet(attrSet),

		tracer: otel.Tracer(scopeName),
		meter:  otel.Meter(scopeName),
	}
}

// Name returns the name of the component.
func (t *Telemetry) Name() string {
	return t.name
}

func (t *Telemetry) logger() *slog.Logger {
	return slog.Default().With(t.logArgs...)
}

// With returns a copy of the telemetry whose logs carry
// the given key-value pairs.
func (t *Telemetry) With(args ...any) *Telemetry {
	cp := *t
	cp.logArgs = append(append([]any{}, t.logArgs...), args...)
	return &cp
}

// LogDebug logs a debug message.
func (t *Telemetry) LogDebug(msg string, args ...any) {
	t.logger().Debug(msg, args...)
}

// LogInfo logs an info message.
func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.logger().Info(msg, args...)
}

// LogWarn logs a warning message.
func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.logger().Warn(msg, args...)
}

// LogError logs an error message.
// The error is attached as the "error" attribute when not nil.
func (t *Telemetry) LogError(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err)
	}

	t.logger().Error(msg, args...)
}

// NewTrace starts a new span named after the component.
func (t *Telemetry) NewTrace(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, trace.WithAttributes(t.attrSet.ToSlice()...))
}

// InjectTrace injects the span context into the carrier
// with the global propagator.
func (t *Telemetry) InjectTrace(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// NewCounter registers an observable counter.
// The callback is invoked at each collection.
func (t *Telemetry) NewCounter(name string, callback func() int64) {
	_, err := t.meter.Int64ObservableCounter(name,
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(callback(), t.metricOp)
			return nil
		}),
	)

	if err != nil {
		t.LogError("failed to create counter", err, "counter", name)
	}
}

// NewUpDownCounter registers an observable up-down counter.
// The callback is invoked at each collection.
func (t *Telemetry) NewUpDownCounter(name string, callback func() int64) {
	_, err := t.meter.Int64ObservableUpDownCounter(name,
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(callback(), t.metricOp)
			return nil
		}),
	)

	if err != nil {
		t.LogError("failed to create up-down counter", err, "counter", name)
	}
}

// Histogram records float values with the attributes of the component.
type Histogram struct {
	histogram metric.Float64Histogram
	metricOp  metric.RecordOption
}

// Record records the value.
func (h *Histogram) Record(ctx context.Context, value float64) {
	if h.histogram == nil {
		return
	}

	h.histogram.Record(ctx, value, h.metricOp)
}

// NewHistogram returns a new histogram with the given unit (e.g. "ms").
func (t *Telemetry) NewHistogram(name, unit string) *Histogram {
	histogram, err := t.meter.Float64Histogram(name, metric.WithUnit(unit))
	if err != nil {
		t.LogError("failed to create histogram", err, "histogram", name)
		return &Histogram{}
	}

	return &Histogram{
		histogram: histogram,
		metricOp:  metric.WithAttributeSet(t.attrSet),
	}
}
