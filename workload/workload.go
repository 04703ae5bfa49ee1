// Package workload contains the configuration shared by the workloads:
// a source splitting the input, parallel lanes of workers, and an ordered sink.
package workload

import (
	"runtime"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/egress"
	"github.com/FerroO2000/ordo/internal/config"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the run configuration.
const (
	DefaultRunConfigStream          = false
	DefaultRunConfigFanIn           = ordo.FanInRoundRobin
	DefaultRunConfigChannelCapacity = ordo.DefaultGraphConfigChannelCapacity
	DefaultRunConfigMaxPending      = 0
)

// DefaultRunConfigWorkers is the default number of worker lanes.
var DefaultRunConfigWorkers = runtime.NumCPU()

// RunConfig structs contains the configuration of the topology of a workload.
type RunConfig struct {
	// Workers is the number of parallel worker lanes.
	//
	// Default: number of CPUs
	Workers int

	// Stream states whether the sink writes the fragments as soon as
	// they are in order, instead of collecting all of them first.
	//
	// Default: false
	Stream bool

	// FanIn is the policy used by the sink to drain the lanes.
	//
	// Default: FanInRoundRobin
	FanIn ordo.FanInMode

	// ChannelCapacity is the capacity of the channels between the stages.
	//
	// Default: 32
	ChannelCapacity uint64

	// MaxPending bounds the fragments buffered by a streaming sink.
	// Zero means no bound.
	//
	// Default: 0
	MaxPending uint64
}

// NewRunConfig returns the default run configuration.
func NewRunConfig() *RunConfig {
	return &RunConfig{
		Workers:         DefaultRunConfigWorkers,
		Stream:          DefaultRunConfigStream,
		FanIn:           DefaultRunConfigFanIn,
		ChannelCapacity: DefaultRunConfigChannelCapacity,
		MaxPending:      DefaultRunConfigMaxPending,
	}
}

// Validate checks the configuration.
func (c *RunConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckPositive(ac, "Workers", c.Workers)
	config.CheckNotZero(ac, "ChannelCapacity", &c.ChannelCapacity, DefaultRunConfigChannelCapacity)
	config.CheckOneOf(ac, "FanIn", &c.FanIn, []ordo.FanInMode{ordo.FanInRoundRobin, ordo.FanInArrival}, DefaultRunConfigFanIn)
}

// GraphConfig returns the configuration of the graph of the workload.
func (c *RunConfig) GraphConfig(name string) *ordo.GraphConfig {
	return &ordo.GraphConfig{
		Name:            name,
		ChannelCapacity: c.ChannelCapacity,
	}
}

// NewSink returns the sink action selected by the configuration.
func NewSink[P any](c *RunConfig, writer egress.Writer[P]) ordo.Action[P] {
	sinkCfg := egress.NewSinkConfig()
	sinkCfg.FanIn = c.FanIn
	sinkCfg.MaxPending = c.MaxPending

	if c.Stream {
		return egress.NewStreamStage(writer, sinkCfg)
	}

	return egress.NewCollectStage(writer, sinkCfg)
}

// Writer joins the main writer of a workload with the extra ones.
func Writer[P any](main egress.Writer[P], extra ...egress.Writer[P]) egress.Writer[P] {
	if len(extra) == 0 {
		return main
	}

	return egress.MultiWriter(append([]egress.Writer[P]{main}, extra...)...)
}
