// Package processor contains the worker stages of a graph.
//
// A worker stage receives the fragments of its inputs, transforms their
// payload and forwards them round-robin to its outputs, keeping the
// sequence number assigned by the source.
package processor

import (
	"context"
	"errors"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the processor stage configuration.
const (
	DefaultStageConfigName  = "worker"
	DefaultStageConfigFanIn = ordo.FanInRoundRobin
)

// StageConfig structs contains the configuration for a processor stage.
type StageConfig struct {
	// Name is the name of the handler.
	// It is used to identify the stage in the telemetry.
	//
	// Default: "worker"
	Name string

	// FanIn is the policy used to drain the inputs of the stage.
	//
	// Default: FanInRoundRobin
	FanIn ordo.FanInMode
}

// NewStageConfig returns the default configuration for a processor stage.
func NewStageConfig() *StageConfig {
	return &StageConfig{
		Name:  DefaultStageConfigName,
		FanIn: DefaultStageConfigFanIn,
	}
}

// Validate checks the configuration.
func (c *StageConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Name", &c.Name, DefaultStageConfigName)
	config.CheckOneOf(ac, "FanIn", &c.FanIn, []ordo.FanInMode{ordo.FanInRoundRobin, ordo.FanInArrival}, DefaultStageConfigFanIn)
}

/////////////
//  STAGE  //
/////////////

var _ ordo.Action[any] = (*Stage[any])(nil)

// Stage is the action of a worker stage.
type Stage[P any] struct {
	tel *telemetry.Telemetry
	cfg *StageConfig

	handler Handler[P]
}

// NewStage returns a new processor stage running the handler.
// If cfg is nil, the default configuration is used.
func NewStage[P any](handler Handler[P], cfg *StageConfig) *Stage[P] {
	if cfg == nil {
		cfg = NewStageConfig()
	}

	return &Stage[P]{
		tel: telemetry.NewTelemetry("processor", cfg.Name),
		cfg: cfg,

		handler: handler,
	}
}

// NewTransformStage returns a new processor stage applying fn
// to the payload of every fragment.
func NewTransformStage[P any](name string, fn TransformFunc[P]) *Stage[P] {
	cfg := NewStageConfig()
	cfg.Name = name

	return NewStage(HandlerFunc(fn), cfg)
}

// Init validates the configuration and initializes the handler.
func (s *Stage[P]) Init(ctx context.Context) error {
	s.tel.LogInfo("initializing")

	if err := config.NewValidator(s.tel).Validate(s.cfg); err != nil {
		return err
	}

	s.handler.SetTelemetry(s.tel)

	return s.handler.Init(ctx)
}

// Run processes the fragments until every input is closed and drained.
func (s *Stage[P]) Run(ctx context.Context, ports *ordo.Ports[P]) error {
	tel := ports.Telemetry()
	tel.LogInfo("running", "handler", s.cfg.Name, "fan_in", s.cfg.FanIn)

	defer s.handler.Close()

	w := newWorker(tel, s.cfg.Name, s.handler)

	fanIn := ordo.NewFanIn(ports, s.cfg.FanIn)
	defer fanIn.Stop()

	rr := ordo.NewRoundRobin(ports)

	for {
		frag, err := fanIn.Next(ctx)
		if err != nil {
			if errors.Is(err, ordo.ErrClosed) {
				tel.LogInfo("inputs are closed, stopping", "processed", rr.Sent())
				return nil
			}

			return err
		}

		if err := w.process(ctx, frag); err != nil {
			return err
		}

		if err := rr.Forward(ctx, frag); err != nil {
			return err
		}
	}
}
