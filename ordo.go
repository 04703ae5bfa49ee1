// Package ordo provides an ordered parallel pipeline engine.
//
// A [Graph] connects stages with bounded channels. A source stage splits the
// work into fragments numbered by emission order, parallel worker stages
// transform them independently, and a sink stage restores the original order.
package ordo

import (
	"context"
	"errors"
	"fmt"

	"github.com/FerroO2000/ordo/connector"
	"github.com/FerroO2000/ordo/internal/message"
)

// Fragment is the unit of work flowing between stages.
type Fragment[P any] = message.Fragment[P]

// NewFragment returns a new fragment with the given sequence number.
// Source stages should rely on [RoundRobin.Emit] instead.
func NewFragment[P any](sequenceNumber uint64, payload P) *Fragment[P] {
	return message.NewFragment(sequenceNumber, payload)
}

// Connector represents the interface for a generic connector
// to be used for connecting the stages.
type Connector[T any] = connector.Connector[T]

// Action is the computation run by a stage.
// Run is called once, in its own goroutine, when the graph starts.
// The runtime closes the outputs of the stage when Run returns,
// whatever the outcome.
type Action[P any] interface {
	Run(ctx context.Context, ports *Ports[P]) error
}

// Initializer is implemented by the actions that check their configuration
// before the graph starts. Init is called for every stage, in id order,
// before any stage runs; it must not acquire resources.
type Initializer interface {
	Init(ctx context.Context) error
}

// ActionFunc adapts a function to the [Action] interface.
type ActionFunc[P any] func(ctx context.Context, ports *Ports[P]) error

// Run calls the function.
func (f ActionFunc[P]) Run(ctx context.Context, ports *Ports[P]) error {
	return f(ctx, ports)
}

var (
	// ErrClosed is returned by a receive on a closed and drained input.
	// It marks the end of the input, not a failure.
	ErrClosed = connector.ErrClosed
	// ErrBrokenPipe is returned by a send towards a stage that has terminated.
	ErrBrokenPipe = connector.ErrBrokenPipe

	// ErrUnknownStage is returned when a stage id does not belong to the graph.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrSelfLoop is returned when an edge connects a stage to itself.
	ErrSelfLoop = errors.New("self loop")
	// ErrDuplicatedEdge is returned when an edge is added twice.
	ErrDuplicatedEdge = errors.New("duplicated edge")
	// ErrCycle is returned when the graph is not acyclic.
	ErrCycle = errors.New("graph contains a cycle")
	// ErrGraphStarted is returned when the graph is modified or started after start.
	ErrGraphStarted = errors.New("graph already started")
	// ErrEmptyGraph is returned when a graph without stages is started.
	ErrEmptyGraph = errors.New("graph has no stages")
	// ErrUnknownPort is returned when a stage uses a channel it is not bound to.
	ErrUnknownPort = errors.New("stage is not connected")
	// ErrNoOutputs is returned when a stage without outputs tries to emit.
	ErrNoOutputs = errors.New("stage has no outputs")
	// ErrStagePanic is wrapped by the error of a stage that panicked.
	ErrStagePanic = errors.New("stage panicked")
	// ErrUnknownFanInMode is returned when a fan-in mode name is not valid.
	ErrUnknownFanInMode = errors.New("unknown fan-in mode")
)

// StageError is the error of a failed stage.
type StageError struct {
	Stage StageID
	Name  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q (%d): %v", e.Name, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
