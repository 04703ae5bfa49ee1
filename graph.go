package ordo

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the graph configuration.
const (
	DefaultGraphConfigName            = "graph"
	DefaultGraphConfigChannelCapacity = 32
)

// GraphConfig is the configuration of a [Graph].
// It is read once, when the graph starts.
type GraphConfig struct {
	// Name identifies the graph in the telemetry and in the report.
	//
	// Default: "graph"
	Name string

	// ChannelCapacity is the capacity of every channel of the graph.
	// It is rounded up to the next power of 2.
	//
	// Default: 32
	ChannelCapacity uint64
}

// NewGraphConfig returns the default configuration of a graph.
func NewGraphConfig() *GraphConfig {
	return &GraphConfig{
		Name:            DefaultGraphConfigName,
		ChannelCapacity: DefaultGraphConfigChannelCapacity,
	}
}

// Validate checks the configuration.
func (c *GraphConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Name", &c.Name, DefaultGraphConfigName)
	config.CheckNotZero(ac, "ChannelCapacity", &c.ChannelCapacity, DefaultGraphConfigChannelCapacity)
}

/////////////
//  GRAPH  //
/////////////

// StageID identifies a stage of a graph.
// It is the index of the stage in the graph, assigned by [Graph.AddStage].
type StageID int

// InvalidStageID is returned when a stage cannot be added.
const InvalidStageID StageID = -1

// Edge connects a source stage to an ordered list of destinations.
type Edge struct {
	From StageID
	To   []StageID
}

type stageNode[P any] struct {
	id     StageID
	name   string
	action Action[P]
}

// Graph is a static directed acyclic graph of stages.
// Stages and edges are added before [Graph.Start] and cannot change after.
type Graph[P any] struct {
	cfg *GraphConfig
	tel *telemetry.Telemetry

	mux       sync.Mutex
	isStarted bool

	nodes   []*stageNode[P]
	edges   []Edge
	edgeIdx map[StageID]int
}

// NewGraph returns a new empty graph.
// If cfg is nil, the default configuration is used.
func NewGraph[P any](cfg *GraphConfig) *Graph[P] {
	if cfg == nil {
		cfg = NewGraphConfig()
	}

	return &Graph[P]{
		cfg: cfg,
		tel: telemetry.NewTelemetry("graph", cfg.Name),

		edgeIdx: make(map[StageID]int),
	}
}

// AddStage adds a stage running the given action and returns its id.
// It returns [InvalidStageID] if the graph has already started.
func (g *Graph[P]) AddStage(name string, action Action[P]) StageID {
	g.mux.Lock()
	defer g.mux.Unlock()

	if g.isStarted {
		g.tel.LogWarn("cannot add a stage to a started graph", "stage", name)
		return InvalidStageID
	}

	id := StageID(len(g.nodes))
	g.nodes = append(g.nodes, &stageNode[P]{
		id:     id,
		name:   name,
		action: action,
	})

	return id
}

func (g *Graph[P]) isValidID(id StageID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// AddEdge connects the source stage to the destinations.
// The order of the destinations is the order of the outputs
// seen by the source stage. Calling it again for the same source
// appends the new destinations.
func (g *Graph[P]) AddEdge(from StageID, to ...StageID) error {
	g.mux.Lock()
	defer g.mux.Unlock()

	if g.isStarted {
		return ErrGraphStarted
	}

	if !g.isValidID(from) {
		return fmt.Errorf("%w: %d", ErrUnknownStage, from)
	}

	var existing []StageID
	if idx, ok := g.edgeIdx[from]; ok {
		existing = g.edges[idx].To
	}

	for pos, dst := range to {
		if !g.isValidID(dst) {
			return fmt.Errorf("%w: %d", ErrUnknownStage, dst)
		}

		if dst == from {
			return fmt.Errorf("%w: stage %d", ErrSelfLoop, from)
		}

		if slices.Contains(existing, dst) || slices.Contains(to[:pos], dst) {
			return fmt.Errorf("%w: %d -> %d", ErrDuplicatedEdge, from, dst)
		}
	}

	if idx, ok := g.edgeIdx[from]; ok {
		g.edges[idx].To = append(g.edges[idx].To, to...)
		return nil
	}

	g.edgeIdx[from] = len(g.edges)
	g.edges = append(g.edges, Edge{From: from, To: slices.Clone(to)})

	return nil
}

// StageCount returns the number of stages.
func (g *Graph[P]) StageCount() int {
	g.mux.Lock()
	defer g.mux.Unlock()

	return len(g.nodes)
}

// StageName returns the name of the stage.
func (g *Graph[P]) StageName(id StageID) string {
	g.mux.Lock()
	defer g.mux.Unlock()

	if !g.isValidID(id) {
		return ""
	}

	return g.nodes[id].name
}

// Edges returns a copy of the edges of the graph.
func (g *Graph[P]) Edges() []Edge {
	g.mux.Lock()
	defer g.mux.Unlock()

	edges := make([]Edge, 0, len(g.edges))
	for _, edge := range g.edges {
		edges = append(edges, Edge{From: edge.From, To: slices.Clone(edge.To)})
	}

	return edges
}

// checkAcyclic runs Kahn's algorithm over the edges.
func (g *Graph[P]) checkAcyclic() error {
	inDegree := make([]int, len(g.nodes))
	for _, edge := range g.edges {
		for _, dst := range edge.To {
			inDegree[dst]++
		}
	}

	queue := make([]StageID, 0, len(g.nodes))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, StageID(id))
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		idx, ok := g.edgeIdx[id]
		if !ok {
			continue
		}

		for _, dst := range g.edges[idx].To {
			inDegree[dst]--
			if inDegree[dst] == 0 {
				queue = append(queue, dst)
			}
		}
	}

	if visited != len(g.nodes) {
		return fmt.Errorf("%w: %d stages are part of a cycle", ErrCycle, len(g.nodes)-visited)
	}

	return nil
}

// Validate checks the configuration and the topology of the graph
// without starting it.
func (g *Graph[P]) Validate() error {
	g.mux.Lock()
	defer g.mux.Unlock()

	return g.validate()
}

func (g *Graph[P]) validate() error {
	if err := config.NewValidator(g.tel).Validate(g.cfg); err != nil {
		return err
	}

	if len(g.nodes) == 0 {
		return ErrEmptyGraph
	}

	return g.checkAcyclic()
}

// Start runs every stage in its own goroutine and blocks until
// all of them have terminated. A graph can be started only once.
//
// If a stage fails, the run is canceled and the error of the first
// failed stage is returned as a [*StageError]. The report is returned
// even when the run fails.
func (g *Graph[P]) Start(ctx context.Context) (*Report, error) {
	g.mux.Lock()

	if g.isStarted {
		g.mux.Unlock()
		return nil, ErrGraphStarted
	}

	if err := g.validate(); err != nil {
		g.mux.Unlock()
		return nil, err
	}

	if err := g.initStages(ctx); err != nil {
		g.mux.Unlock()
		return nil, err
	}

	g.isStarted = true
	r := g.newRunner()

	g.mux.Unlock()

	return r.run(ctx)
}

func (g *Graph[P]) initStages(ctx context.Context) error {
	for _, node := range g.nodes {
		initializer, ok := node.action.(Initializer)
		if !ok {
			continue
		}

		if err := initializer.Init(ctx); err != nil {
			return &StageError{Stage: node.id, Name: node.name, Err: err}
		}
	}

	return nil
}

func (g *Graph[P]) newRunner() *runner[P] {
	stages := make([]*runnerStage[P], 0, len(g.nodes))
	for _, node := range g.nodes {
		tel := telemetry.NewTelemetry("stage", node.name)
		ports := newPorts[P](node.id, node.name, tel)
		ports.metrics.init(tel)

		stages = append(stages, &runnerStage[P]{
			node:  node,
			ports: ports,
		})
	}

	for _, edge := range g.edges {
		for _, dst := range edge.To {
			conn := newFragConn[P](g.cfg.ChannelCapacity)

			stages[edge.From].ports.addOutput(dst, conn)
			stages[dst].ports.addInput(edge.From, conn)
		}
	}

	return newRunner(g.cfg.Name, g.tel, stages)
}
