package ingress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the source stage configuration.
const (
	DefaultSourceConfigLimit = 0
)

// SourceConfig structs contains the configuration for a source stage.
type SourceConfig struct {
	// Limit is the maximum number of fragments emitted by the source.
	// Zero means no limit.
	//
	// Default: 0
	Limit uint64
}

// NewSourceConfig returns the default configuration for a source stage.
func NewSourceConfig() *SourceConfig {
	return &SourceConfig{
		Limit: DefaultSourceConfigLimit,
	}
}

///////////////
//  METRICS  //
///////////////

type sourceMetrics struct {
	emittedFragments atomic.Int64
	generatorErrors  atomic.Int64
}

func (sm *sourceMetrics) init(tel *telemetry.Telemetry) {
	tel.NewCounter("emitted_fragments", func() int64 { return sm.emittedFragments.Load() })
	tel.NewCounter("generator_errors", func() int64 { return sm.generatorErrors.Load() })
}

/////////////
//  STAGE  //
/////////////

var _ ordo.Action[any] = (*Source[any])(nil)

// Source is the action of a source stage.
// It emits one fragment per item of its generator, distributing them
// round-robin across the outputs of the stage.
type Source[P any] struct {
	tel *telemetry.Telemetry
	cfg *SourceConfig

	gen Generator[P]

	metrics *sourceMetrics
}

// NewSource returns a new source action.
// If cfg is nil, the default configuration is used.
func NewSource[P any](gen Generator[P], cfg *SourceConfig) *Source[P] {
	if cfg == nil {
		cfg = NewSourceConfig()
	}

	return &Source[P]{
		tel: telemetry.NewTelemetry("ingress", "source"),
		cfg: cfg,

		gen: gen,

		metrics: &sourceMetrics{},
	}
}

// Init initializes the generator of the source.
// Every limit is valid, so the source configuration has nothing to check.
func (s *Source[P]) Init(ctx context.Context) error {
	s.tel.LogInfo("initializing", "limit", s.cfg.Limit)

	if initializer, ok := s.gen.(ordo.Initializer); ok {
		return initializer.Init(ctx)
	}

	return nil
}

// Run drains the generator.
func (s *Source[P]) Run(ctx context.Context, ports *ordo.Ports[P]) (err error) {
	tel := ports.Telemetry()
	s.metrics.init(tel)

	tel.LogInfo("running")

	if err := s.gen.Open(ctx); err != nil {
		return fmt.Errorf("failed to open generator: %w", err)
	}

	defer func() {
		if closeErr := s.gen.Close(); closeErr != nil {
			tel.LogError("failed to close generator", closeErr)
			err = errors.Join(err, closeErr)
		}
	}()

	rr := ordo.NewRoundRobin(ports)

	for s.cfg.Limit == 0 || rr.Sent() < s.cfg.Limit {
		payload, err := s.gen.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			s.metrics.generatorErrors.Add(1)
			return fmt.Errorf("failed to generate item %d: %w", rr.Sent(), err)
		}

		if err := s.emit(ctx, tel, rr, payload); err != nil {
			return err
		}
	}

	tel.LogInfo("source exhausted", "fragments", rr.Sent())

	return nil
}

func (s *Source[P]) emit(ctx context.Context, tel *telemetry.Telemetry, rr *ordo.RoundRobin[P], payload P) error {
	ctx, span := tel.NewTrace(ctx, "emit fragment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("sequence_number", int64(rr.Sent())),
		attribute.Int64("target", int64(rr.Target(rr.Sent()))),
	)

	if err := rr.Emit(ctx, payload); err != nil {
		return err
	}

	s.metrics.emittedFragments.Add(1)

	return nil
}
