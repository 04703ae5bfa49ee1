package ordo

import (
	"errors"
	"fmt"
)

// ErrInvalidFarm is returned when a farm cannot be built.
var ErrInvalidFarm = errors.New("invalid farm")

// LaneStep describes one step of the worker lanes of a [Farm].
type LaneStep[P any] struct {
	// Name is the prefix of the stage names, the lane index is appended.
	Name string
	// New returns the action of the step for the given lane.
	New func(lane int) Action[P]
}

// Farm describes the topology shared by every workload:
// one source distributing to W parallel lanes of chained steps,
// all of them feeding one sink.
//
//	source -> step0-0 -> step1-0 -> ... \
//	source -> step0-1 -> step1-1 -> ...  -> sink
//	source -> ...                       /
type Farm[P any] struct {
	Workers int

	SourceName string
	Source     Action[P]

	Steps []LaneStep[P]

	SinkName string
	Sink     Action[P]
}

// FarmLayout contains the ids of the stages created by [Farm.Build].
type FarmLayout struct {
	Source StageID
	// Lanes contains, for each lane, the ids of its steps in chain order.
	Lanes [][]StageID
	Sink  StageID
}

// Build adds the stages and the edges of the farm to the graph.
// The edges are added in lane order, so lane i is output i of the source
// and input i of the sink.
func (f *Farm[P]) Build(g *Graph[P]) (*FarmLayout, error) {
	if f.Workers <= 0 {
		return nil, fmt.Errorf("%w: workers must be greater than zero, got %d", ErrInvalidFarm, f.Workers)
	}

	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("%w: at least one lane step is required", ErrInvalidFarm)
	}

	if f.Source == nil || f.Sink == nil {
		return nil, fmt.Errorf("%w: source and sink are required", ErrInvalidFarm)
	}

	sourceName := f.SourceName
	if sourceName == "" {
		sourceName = "source"
	}

	sinkName := f.SinkName
	if sinkName == "" {
		sinkName = "sink"
	}

	layout := &FarmLayout{
		Source: g.AddStage(sourceName, f.Source),
		Lanes:  make([][]StageID, 0, f.Workers),
	}

	for lane := range f.Workers {
		ids := make([]StageID, 0, len(f.Steps))
		for _, step := range f.Steps {
			ids = append(ids, g.AddStage(fmt.Sprintf("%s-%d", step.Name, lane), step.New(lane)))
		}
		layout.Lanes = append(layout.Lanes, ids)
	}

	layout.Sink = g.AddStage(sinkName, f.Sink)

	for _, lane := range layout.Lanes {
		if err := g.AddEdge(layout.Source, lane[0]); err != nil {
			return nil, err
		}

		for idx := 1; idx < len(lane); idx++ {
			if err := g.AddEdge(lane[idx-1], lane[idx]); err != nil {
				return nil, err
			}
		}

		if err := g.AddEdge(lane[len(lane)-1], layout.Sink); err != nil {
			return nil, err
		}
	}

	return layout, nil
}
