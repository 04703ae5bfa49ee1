package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ProviderConfig is the configuration of the OpenTelemetry exporters.
type ProviderConfig struct {
	// Endpoint is the address of the OTLP gRPC collector.
	// When it is empty, the global providers are left untouched (no-op).
	Endpoint string

	// ServiceName is the service name attached to every signal.
	//
	// Default: ordo
	ServiceName string

	// ServiceVersion is the service version attached to every signal.
	ServiceVersion string

	// TraceRatio is the sampling ratio for traces.
	//
	// Default: 0.05
	TraceRatio float64

	// MetricInterval is the export interval of the metrics.
	//
	// Default: 1s
	MetricInterval time.Duration
}

// NewProviderConfig returns the default provider configuration.
func NewProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		ServiceName:    "ordo",
		ServiceVersion: "0.1.0",
		TraceRatio:     0.05,
		MetricInterval: time.Second,
	}
}

// ShutdownFunc flushes and stops the providers.
type ShutdownFunc func(ctx context.Context) error

// SetupProviders installs the global trace and meter providers
// exporting to the configured collector, the trace context propagator,
// and the runtime instrumentation.
func SetupProviders(ctx context.Context, cfg *ProviderConfig) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	// Propagation works even without exporters
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if cfg.Endpoint == "" {
		return noop, nil
	}

	grpcTransport := grpc.WithTransportCredentials(insecure.NewCredentials())
	grpcConn, err := grpc.NewClient(cfg.Endpoint, grpcTransport)
	if err != nil {
		return noop, fmt.Errorf("failed to create gRPC client: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return noop, err
	}

	traceExporter, err := newTraceExporter(ctx, grpcConn)
	if err != nil {
		return noop, err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.TraceRatio)),
	)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(grpcConn))
	if err != nil {
		return noop, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.MetricInterval)),
		),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return noop, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
			grpcConn.Close(),
		)
	}

	return shutdown, nil
}

func newResource(cfg *ProviderConfig) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return res, nil
}

func newTraceExporter(ctx context.Context, conn *grpc.ClientConn) (*otlptrace.Exporter, error) {
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	return exporter, nil
}
