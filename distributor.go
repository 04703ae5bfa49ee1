package ordo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/FerroO2000/ordo/internal/message"
	"go.opentelemetry.io/otel/trace"
)

///////////////////
//  DISTRIBUTOR  //
///////////////////

// RoundRobin distributes the fragments of a stage across its outputs:
// the i-th fragment goes to output i mod W.
type RoundRobin[P any] struct {
	ports   *Ports[P]
	targets []StageID

	next uint64
}

// NewRoundRobin returns a distributor over the outputs of the stage,
// in edge order.
func NewRoundRobin[P any](ports *Ports[P]) *RoundRobin[P] {
	return &RoundRobin[P]{
		ports:   ports,
		targets: ports.Outputs(),
	}
}

// Width returns the number of outputs.
func (rr *RoundRobin[P]) Width() int {
	return len(rr.targets)
}

// Target returns the output that receives the i-th fragment.
func (rr *RoundRobin[P]) Target(i uint64) StageID {
	if len(rr.targets) == 0 {
		return InvalidStageID
	}

	return rr.targets[i%uint64(len(rr.targets))]
}

// Emit wraps the payload into a new fragment and sends it.
// The sequence number of the fragment is its emission index,
// so it is meant for source stages.
// The span found in the context, if any, is saved into the fragment.
func (rr *RoundRobin[P]) Emit(ctx context.Context, payload P) error {
	if len(rr.targets) == 0 {
		return ErrNoOutputs
	}

	frag := message.NewFragment(rr.next, payload)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		frag.SaveSpan(span)
	}

	return rr.send(ctx, frag)
}

// Forward sends an already numbered fragment to the next output in turn.
// It is meant for worker stages, which must keep the sequence number.
func (rr *RoundRobin[P]) Forward(ctx context.Context, frag *Fragment[P]) error {
	if len(rr.targets) == 0 {
		return ErrNoOutputs
	}

	return rr.send(ctx, frag)
}

func (rr *RoundRobin[P]) send(ctx context.Context, frag *Fragment[P]) error {
	if err := rr.ports.Send(ctx, rr.Target(rr.next), frag); err != nil {
		return err
	}

	rr.next++

	return nil
}

// Sent returns the number of fragments sent through the distributor.
func (rr *RoundRobin[P]) Sent() uint64 {
	return rr.next
}

//////////////
//  FAN-IN  //
//////////////

// FanInMode is the policy used to drain multiple inputs.
type FanInMode uint8

const (
	// FanInRoundRobin receives from the live producers in turn,
	// blocking on each one. A producer leaves the set only when
	// its channel is closed and drained.
	FanInRoundRobin FanInMode = iota
	// FanInArrival receives from all the producers concurrently
	// and yields the fragments in arrival order.
	FanInArrival
)

func (m FanInMode) String() string {
	switch m {
	case FanInRoundRobin:
		return "round-robin"
	case FanInArrival:
		return "arrival"
	default:
		return "unknown"
	}
}

// ParseFanInMode returns the fan-in mode with the given name.
func ParseFanInMode(name string) (FanInMode, error) {
	for _, mode := range []FanInMode{FanInRoundRobin, FanInArrival} {
		if mode.String() == name {
			return mode, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownFanInMode, name)
}

type fanInItem[P any] struct {
	frag *Fragment[P]
	err  error
}

// FanIn drains all the inputs of a stage.
type FanIn[P any] struct {
	ports *Ports[P]
	mode  FanInMode

	live []StageID
	idx  int

	startOnce *sync.Once
	merged    chan fanInItem[P]
	cancel    context.CancelFunc
	wg        *sync.WaitGroup
}

// NewFanIn returns a fan-in over the inputs of the stage.
func NewFanIn[P any](ports *Ports[P], mode FanInMode) *FanIn[P] {
	return &FanIn[P]{
		ports: ports,
		mode:  mode,

		live: ports.Inputs(),

		startOnce: &sync.Once{},
		cancel:    func() {},
		wg:        &sync.WaitGroup{},
	}
}

// Next returns the next fragment.
// It returns [ErrClosed] once every input is closed and drained.
func (fi *FanIn[P]) Next(ctx context.Context) (*Fragment[P], error) {
	if fi.mode == FanInArrival {
		return fi.nextArrival(ctx)
	}

	return fi.nextRoundRobin(ctx)
}

func (fi *FanIn[P]) nextRoundRobin(ctx context.Context) (*Fragment[P], error) {
	for len(fi.live) > 0 {
		if fi.idx >= len(fi.live) {
			fi.idx = 0
		}

		frag, err := fi.ports.Recv(ctx, fi.live[fi.idx])
		if err == nil {
			fi.idx++
			return frag, nil
		}

		if !errors.Is(err, ErrClosed) {
			return nil, err
		}

		// The producer is done, the next one slides into its place
		fi.live = append(fi.live[:fi.idx], fi.live[fi.idx+1:]...)
	}

	return nil, ErrClosed
}

func (fi *FanIn[P]) start(ctx context.Context) {
	fwdCtx, cancel := context.WithCancel(ctx)
	fi.cancel = cancel

	fi.merged = make(chan fanInItem[P], len(fi.live))

	fi.wg.Add(len(fi.live))
	for _, from := range fi.live {
		go fi.runForwarder(fwdCtx, from)
	}

	go func() {
		fi.wg.Wait()
		close(fi.merged)
	}()
}

func (fi *FanIn[P]) runForwarder(ctx context.Context, from StageID) {
	defer fi.wg.Done()

	for {
		frag, err := fi.ports.Recv(ctx, from)
		if errors.Is(err, ErrClosed) {
			return
		}

		select {
		case fi.merged <- fanInItem[P]{frag: frag, err: err}:
		case <-ctx.Done():
			return
		}

		if err != nil {
			return
		}
	}
}

func (fi *FanIn[P]) nextArrival(ctx context.Context) (*Fragment[P], error) {
	fi.startOnce.Do(func() { fi.start(ctx) })

	select {
	case item, ok := <-fi.merged:
		if !ok {
			return nil, ErrClosed
		}
		return item.frag, item.err

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop releases the goroutines started by the arrival mode.
// It is a no-op for the round-robin mode.
func (fi *FanIn[P]) Stop() {
	fi.cancel()
	fi.wg.Wait()
}
