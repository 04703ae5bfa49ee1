package ordo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/FerroO2000/ordo/internal/telemetry"
)

type fragConn[P any] = Connector[*Fragment[P]]

type inPort[P any] struct {
	from StageID
	conn fragConn[P]
}

type outPort[P any] struct {
	to   StageID
	conn fragConn[P]

	closeOnce sync.Once
}

func (op *outPort[P]) close() {
	op.closeOnce.Do(op.conn.Close)
}

//////////////
//  METRICS  //
//////////////

type portsMetrics struct {
	received atomic.Int64
	sent     atomic.Int64
}

func (pm *portsMetrics) init(tel *telemetry.Telemetry) {
	tel.NewCounter("fragments_received", func() int64 { return pm.received.Load() })
	tel.NewCounter("fragments_sent", func() int64 { return pm.sent.Load() })
}

/////////////
//  PORTS  //
/////////////

// Ports binds a stage to its input and output channels.
// Channels are addressed by the id of the stage at the other end.
// Each stage owns its ports; they must not be shared with other stages.
type Ports[P any] struct {
	id   StageID
	name string

	tel *telemetry.Telemetry

	inputs  []*inPort[P]
	outputs []*outPort[P]

	inputIdx  map[StageID]int
	outputIdx map[StageID]int

	state atomic.Uint32

	metrics *portsMetrics
}

func newPorts[P any](id StageID, name string, tel *telemetry.Telemetry) *Ports[P] {
	return &Ports[P]{
		id:   id,
		name: name,

		tel: tel,

		inputIdx:  make(map[StageID]int),
		outputIdx: make(map[StageID]int),

		metrics: &portsMetrics{},
	}
}

func (p *Ports[P]) addInput(from StageID, conn fragConn[P]) {
	p.inputIdx[from] = len(p.inputs)
	p.inputs = append(p.inputs, &inPort[P]{from: from, conn: conn})
}

func (p *Ports[P]) addOutput(to StageID, conn fragConn[P]) {
	p.outputIdx[to] = len(p.outputs)
	p.outputs = append(p.outputs, &outPort[P]{to: to, conn: conn})
}

// ID returns the id of the stage.
func (p *Ports[P]) ID() StageID {
	return p.id
}

// Name returns the name of the stage.
func (p *Ports[P]) Name() string {
	return p.name
}

// Telemetry returns the telemetry of the stage.
func (p *Ports[P]) Telemetry() *telemetry.Telemetry {
	return p.tel
}

// Inputs returns the ids of the producers of the stage, in edge order.
func (p *Ports[P]) Inputs() []StageID {
	ids := make([]StageID, 0, len(p.inputs))
	for _, in := range p.inputs {
		ids = append(ids, in.from)
	}
	return ids
}

// Outputs returns the ids of the consumers of the stage, in edge order.
func (p *Ports[P]) Outputs() []StageID {
	ids := make([]StageID, 0, len(p.outputs))
	for _, out := range p.outputs {
		ids = append(ids, out.to)
	}
	return ids
}

// State returns the current state of the stage.
func (p *Ports[P]) State() StageState {
	return StageState(p.state.Load())
}

func (p *Ports[P]) setState(state StageState) {
	p.state.Store(uint32(state))
}

// Send sends the fragment to the given consumer.
// It blocks while the channel is full.
//
// It returns:
//   - [ErrUnknownPort] if the stage has no channel towards the consumer
//   - [ErrBrokenPipe] if the consumer has terminated
//   - [ErrClosed] if the channel was already closed by this stage
//   - the context error if the run is canceled
func (p *Ports[P]) Send(ctx context.Context, to StageID, frag *Fragment[P]) error {
	idx, ok := p.outputIdx[to]
	if !ok {
		return fmt.Errorf("%w: no output towards stage %d", ErrUnknownPort, to)
	}

	p.setState(StageStateEmitting)

	if err := p.outputs[idx].conn.Write(ctx, frag); err != nil {
		return err
	}

	p.metrics.sent.Add(1)

	return nil
}

// Recv receives the next fragment from the given producer.
// It blocks while the channel is empty.
//
// It returns:
//   - [ErrUnknownPort] if the stage has no channel from the producer
//   - [ErrClosed] if the producer closed the channel and it is drained
//   - the context error if the run is canceled
func (p *Ports[P]) Recv(ctx context.Context, from StageID) (*Fragment[P], error) {
	idx, ok := p.inputIdx[from]
	if !ok {
		return nil, fmt.Errorf("%w: no input from stage %d", ErrUnknownPort, from)
	}

	p.setState(StageStateWaitingForInput)

	frag, err := p.inputs[idx].conn.Read(ctx)
	if err != nil {
		return nil, err
	}

	p.setState(StageStateProcessing)
	p.metrics.received.Add(1)

	return frag, nil
}

// Close closes the channel towards the given consumer.
// It is idempotent.
func (p *Ports[P]) Close(to StageID) error {
	idx, ok := p.outputIdx[to]
	if !ok {
		return fmt.Errorf("%w: no output towards stage %d", ErrUnknownPort, to)
	}

	p.outputs[idx].close()

	return nil
}

// CloseAll closes every output channel of the stage.
// It is idempotent.
func (p *Ports[P]) CloseAll() {
	p.setState(StageStateClosingOutputs)

	for _, out := range p.outputs {
		out.close()
	}
}

func (p *Ports[P]) abandonInputs() {
	for _, in := range p.inputs {
		in.conn.Abandon()
	}
}

// Received returns the number of fragments received so far.
func (p *Ports[P]) Received() uint64 {
	return uint64(p.metrics.received.Load())
}

// Sent returns the number of fragments sent so far.
func (p *Ports[P]) Sent() uint64 {
	return uint64(p.metrics.sent.Load())
}
