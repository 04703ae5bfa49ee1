// Package egress contains the sink stages of a graph.
//
// A sink stage drains all of its inputs, restores the emission order of the
// fragments and writes their payloads, in order, into a [Writer].
package egress

import (
	"context"
	"errors"
	"fmt"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/rob"
	"github.com/FerroO2000/ordo/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the sink stage configuration.
const (
	DefaultSinkConfigName       = "sink"
	DefaultSinkConfigFanIn      = ordo.FanInRoundRobin
	DefaultSinkConfigMaxPending = 0
)

// SinkConfig structs contains the configuration for a sink stage.
type SinkConfig struct {
	// Name is the name of the sink.
	// It is used to identify the stage in the telemetry.
	//
	// Default: "sink"
	Name string

	// FanIn is the policy used to drain the inputs of the stage.
	//
	// Default: FanInRoundRobin
	FanIn ordo.FanInMode

	// MaxPending bounds the memory used by the streaming sink:
	// a fragment whose sequence number is MaxPending or more ahead
	// of the next expected one fails the run.
	// It is ignored by the collecting sink.
	// Zero means no bound.
	//
	// Default: 0
	MaxPending uint64
}

// NewSinkConfig returns the default configuration for a sink stage.
func NewSinkConfig() *SinkConfig {
	return &SinkConfig{
		Name:       DefaultSinkConfigName,
		FanIn:      DefaultSinkConfigFanIn,
		MaxPending: DefaultSinkConfigMaxPending,
	}
}

// Validate checks the configuration.
func (c *SinkConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Name", &c.Name, DefaultSinkConfigName)
	config.CheckOneOf(ac, "FanIn", &c.FanIn, []ordo.FanInMode{ordo.FanInRoundRobin, ordo.FanInArrival}, DefaultSinkConfigFanIn)
}

////////////
//  BASE  //
////////////

type stageBase[P any] struct {
	tel *telemetry.Telemetry
	cfg *SinkConfig

	writer Writer[P]

	metrics *sinkMetrics
}

func newStageBase[P any](writer Writer[P], cfg *SinkConfig) *stageBase[P] {
	if cfg == nil {
		cfg = NewSinkConfig()
	}

	return &stageBase[P]{
		tel: telemetry.NewTelemetry("egress", cfg.Name),
		cfg: cfg,

		writer: writer,

		metrics: &sinkMetrics{},
	}
}

// Init validates the configuration of the sink and of its writer.
func (sb *stageBase[P]) Init(ctx context.Context) error {
	sb.tel.LogInfo("initializing")

	if err := config.NewValidator(sb.tel).Validate(sb.cfg); err != nil {
		return err
	}

	if initializer, ok := sb.writer.(ordo.Initializer); ok {
		return initializer.Init(ctx)
	}

	return nil
}

// run opens the writer, calls drain, and then commits or aborts the output.
func (sb *stageBase[P]) run(
	ctx context.Context, ports *ordo.Ports[P], drain func(context.Context, *ordo.FanIn[P], *deliverer[P]) error,
) error {
	tel := ports.Telemetry()
	sb.metrics.init(tel)

	tel.LogInfo("running", "fan_in", sb.cfg.FanIn)

	if err := sb.writer.Open(ctx); err != nil {
		return fmt.Errorf("failed to open writer: %w", err)
	}

	fanIn := ordo.NewFanIn(ports, sb.cfg.FanIn)
	err := drain(ctx, fanIn, newDeliverer(tel, sb.writer, sb.metrics))
	fanIn.Stop()

	// Inputs closed by a failing run look like a regular end of stream
	if err == nil {
		err = context.Cause(ctx)
	}

	if err != nil {
		if abortErr := sb.writer.Abort(); abortErr != nil {
			tel.LogError("failed to abort writer", abortErr)
		}

		return err
	}

	if err := sb.writer.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit writer: %w", err)
	}

	tel.LogInfo("output committed", "fragments", sb.metrics.writtenFragments.Load())

	return nil
}

// receive returns the next fragment, or nil once every input is drained.
func (sb *stageBase[P]) receive(ctx context.Context, fanIn *ordo.FanIn[P]) (*ordo.Fragment[P], error) {
	frag, err := fanIn.Next(ctx)
	if err != nil {
		if errors.Is(err, ordo.ErrClosed) {
			return nil, nil
		}

		return nil, err
	}

	sb.metrics.receivedFragments.Add(1)

	return frag, nil
}

///////////////
//  COLLECT  //
///////////////

var _ ordo.Action[any] = (*CollectStage[any])(nil)

// CollectStage is a sink stage that collects every fragment,
// sorts them by sequence number once all the inputs are drained,
// and then writes them.
type CollectStage[P any] struct {
	*stageBase[P]
}

// NewCollectStage returns a new collecting sink stage.
// If cfg is nil, the default configuration is used.
func NewCollectStage[P any](writer Writer[P], cfg *SinkConfig) *CollectStage[P] {
	return &CollectStage[P]{
		stageBase: newStageBase(writer, cfg),
	}
}

// Run runs the sink stage.
func (cs *CollectStage[P]) Run(ctx context.Context, ports *ordo.Ports[P]) error {
	return cs.run(ctx, ports, cs.drain)
}

func (cs *CollectStage[P]) drain(ctx context.Context, fanIn *ordo.FanIn[P], d *deliverer[P]) error {
	sorter := rob.NewSorter[*ordo.Fragment[P]](0)

	for {
		frag, err := cs.receive(ctx, fanIn)
		if err != nil {
			return err
		}

		if frag == nil {
			break
		}

		sorter.Add(frag)
		cs.metrics.pendingFragments.Add(1)
	}

	frags, err := sorter.Sorted(0)
	if err != nil {
		return err
	}

	for frag := range frags {
		if err := d.deliver(ctx, frag); err != nil {
			return err
		}

		cs.metrics.pendingFragments.Add(-1)
	}

	return nil
}

//////////////
//  STREAM  //
//////////////

var _ ordo.Action[any] = (*StreamStage[any])(nil)

// StreamStage is a sink stage that writes every fragment
// as soon as all the previous ones have been written.
// Out of order fragments are buffered until the gap is filled.
type StreamStage[P any] struct {
	*stageBase[P]
}

// NewStreamStage returns a new streaming sink stage.
// If cfg is nil, the default configuration is used.
func NewStreamStage[P any](writer Writer[P], cfg *SinkConfig) *StreamStage[P] {
	return &StreamStage[P]{
		stageBase: newStageBase(writer, cfg),
	}
}

// Run runs the sink stage.
func (ss *StreamStage[P]) Run(ctx context.Context, ports *ordo.Ports[P]) error {
	return ss.run(ctx, ports, ss.drain)
}

func (ss *StreamStage[P]) drain(ctx context.Context, fanIn *ordo.FanIn[P], d *deliverer[P]) error {
	robCfg := rob.NewConfig()
	robCfg.Window = ss.cfg.MaxPending

	buf := rob.NewROB(func(frag *ordo.Fragment[P]) error {
		return d.deliver(ctx, frag)
	}, robCfg)

	for {
		frag, err := ss.receive(ctx, fanIn)
		if err != nil {
			return err
		}

		if frag == nil {
			break
		}

		status, err := buf.Enqueue(frag)
		if err != nil {
			return err
		}

		if status == rob.EnqueueStatusBuffered {
			ss.metrics.reorderedFragments.Add(1)
		}
		ss.metrics.pendingFragments.Store(int64(buf.Pending()))
	}

	return buf.Finish()
}
