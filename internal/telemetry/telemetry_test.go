package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type recordingHandler struct {
	level   slog.Level
	records []slog.Record
}

func (h *recordingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	h.records = append(h.records, record)
	return nil
}

func (h *recordingHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(_ string) slog.Handler      { return h }

func Test_fanOutHandler(t *testing.T) {
	assert := assert.New(t)

	debugHandler := &recordingHandler{level: slog.LevelDebug}
	errorHandler := &recordingHandler{level: slog.LevelError}

	logger := slog.New(newFanOutHandler(debugHandler, errorHandler))

	logger.Debug("debug")
	logger.Error("error")

	assert.Len(debugHandler.records, 2)
	assert.Len(errorHandler.records, 1)
	assert.Equal("error", errorHandler.records[0].Message)
}

func Test_newHandler(t *testing.T) {
	assert := assert.New(t)

	buf := &bytes.Buffer{}

	cfg := NewLogConfig()
	cfg.Output = buf
	cfg.OTelBridge = false

	logger := slog.New(newHandler(cfg))
	logger.Info("running", "stage", "source")
	logger.Debug("hidden")

	assert.Contains(buf.String(), "running")
	assert.Contains(buf.String(), "stage=source")
	assert.NotContains(buf.String(), "hidden")
}

func Test_ParseLevel(t *testing.T) {
	assert := assert.New(t)

	lvl, err := ParseLevel("debug")
	assert.NoError(err)
	assert.Equal(slog.LevelDebug, lvl)

	lvl, err = ParseLevel("WARN")
	assert.NoError(err)
	assert.Equal(slog.LevelWarn, lvl)

	_, err = ParseLevel("loud")
	assert.Error(err)
}

func Test_Telemetry(t *testing.T) {
	assert := assert.New(t)

	tel := NewTelemetry("processor", "compress-0")
	assert.Equal("compress-0", tel.Name())

	// The no-op providers must not fail
	tel.NewCounter("fragments", func() int64 { return 1 })
	tel.NewUpDownCounter("pending", func() int64 { return 0 })
	tel.NewHistogram("latency", "ms").Record(t.Context(), 1.5)

	ctx, span := tel.NewTrace(t.Context(), "handle fragment")
	defer span.End()
	assert.NotNil(ctx)

	tel.With("lane", 0).LogError("failed", errors.New("boom"))
	tel.LogError("failed without error", nil)
}

func Test_KafkaHeaderCarrier(t *testing.T) {
	assert := assert.New(t)

	carrier := NewKafkaHeaderCarrier([]kafka.Header{{Key: "seq", Value: []byte("1")}})

	carrier.Set("seq", "2")
	carrier.Set("codec", "gzip")

	assert.Equal("2", carrier.Get("seq"))
	assert.Equal("gzip", carrier.Get("codec"))
	assert.Empty(carrier.Get("missing"))
	assert.ElementsMatch([]string{"seq", "codec"}, carrier.Keys())
	assert.Len(carrier.Headers(), 2)

	// Round trip of a span context through the headers
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xa},
		SpanID:     trace.SpanID{0xb},
		TraceFlags: trace.FlagsSampled,
	})

	propagator := propagation.TraceContext{}
	propagator.Inject(trace.ContextWithSpanContext(t.Context(), spanCtx), carrier)

	extracted := trace.SpanContextFromContext(propagator.Extract(t.Context(), carrier))
	assert.Equal(spanCtx.TraceID(), extracted.TraceID())
}
