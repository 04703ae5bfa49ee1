package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// LogConfig is the configuration of the process-wide logger.
type LogConfig struct {
	// Level is the minimum level of the console logs.
	//
	// Default: info
	Level slog.Level

	// TimeFormat is the layout of the console timestamps.
	//
	// Default: 15:04:05.000
	TimeFormat string

	// Output is where the console logs are written.
	// When it is nil, the colored stdout is used.
	Output io.Writer

	// OTelBridge states whether the records are also forwarded
	// to the global OpenTelemetry logger provider.
	//
	// Default: true
	OTelBridge bool
}

// NewLogConfig returns the default logging configuration.
func NewLogConfig() *LogConfig {
	return &LogConfig{
		Level:      slog.LevelInfo,
		TimeFormat: "15:04:05.000",
		OTelBridge: true,
	}
}

var setupLoggingOnce sync.Once

// SetupLogging installs the process-wide default logger.
// Only the first call has effect.
func SetupLogging(cfg *LogConfig) {
	setupLoggingOnce.Do(func() {
		slog.SetDefault(slog.New(newHandler(cfg)))
	})
}

func newHandler(cfg *LogConfig) slog.Handler {
	out := cfg.Output
	noColor := true

	if out == nil {
		out = colorable.NewColorable(os.Stdout)
		noColor = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	consoleHandler := tint.NewHandler(out, &tint.Options{
		Level:      cfg.Level,
		TimeFormat: cfg.TimeFormat,
		NoColor:    noColor,
	})

	if !cfg.OTelBridge {
		return consoleHandler
	}

	return newFanOutHandler(consoleHandler, otelslog.NewHandler(scopeName))
}

// fanOutHandler forwards each record to all the handlers enabled for its level.
type fanOutHandler struct {
	handlers []slog.Handler
}

func newFanOutHandler(handlers ...slog.Handler) *fanOutHandler {
	return &fanOutHandler{handlers: handlers}
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (h *fanOutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error

	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}

		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		handlers = append(handlers, handler.WithAttrs(attrs))
	}

	return newFanOutHandler(handlers...)
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		handlers = append(handlers, handler.WithGroup(name))
	}

	return newFanOutHandler(handlers...)
}

// ParseLevel parses a level name (debug, info, warn, error).
func ParseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(level))
	return lvl, err
}
