package egress

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/internal/rob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rangeSource(n int) ordo.Action[int] {
	return ordo.ActionFunc[int](func(ctx context.Context, ports *ordo.Ports[int]) error {
		rr := ordo.NewRoundRobin(ports)
		for idx := range n {
			if err := rr.Emit(ctx, idx); err != nil {
				return err
			}
		}
		return nil
	})
}

// seqSource sends fragments with the given sequence numbers to its only output.
func seqSource(seqNums ...uint64) ordo.Action[int] {
	return ordo.ActionFunc[int](func(ctx context.Context, ports *ordo.Ports[int]) error {
		to := ports.Outputs()[0]
		for _, seqNum := range seqNums {
			if err := ports.Send(ctx, to, ordo.NewFragment(seqNum, int(seqNum))); err != nil {
				return err
			}
		}
		return nil
	})
}

// delayedWorker forwards every fragment after a random delay.
func delayedWorker(maxDelay time.Duration) ordo.Action[int] {
	return ordo.ActionFunc[int](func(ctx context.Context, ports *ordo.Ports[int]) error {
		fanIn := ordo.NewFanIn(ports, ordo.FanInRoundRobin)
		rr := ordo.NewRoundRobin(ports)

		for {
			frag, err := fanIn.Next(ctx)
			if errors.Is(err, ordo.ErrClosed) {
				return nil
			}
			if err != nil {
				return err
			}

			time.Sleep(rand.N(maxDelay))

			frag.SetPayload(frag.GetPayload() * 2)
			if err := rr.Forward(ctx, frag); err != nil {
				return err
			}
		}
	})
}

func runFarm(t *testing.T, workers, n int, sink ordo.Action[int]) error {
	t.Helper()

	farm := &ordo.Farm[int]{
		Workers: workers,
		Source:  rangeSource(n),
		Steps: []ordo.LaneStep[int]{
			{Name: "worker", New: func(int) ordo.Action[int] { return delayedWorker(200 * time.Microsecond) }},
		},
		Sink: sink,
	}

	g := ordo.NewGraph[int](nil)
	_, err := farm.Build(g)
	require.NoError(t, err)

	_, err = g.Start(t.Context())
	return err
}

func doubledRange(n int) []int {
	res := make([]int, n)
	for idx := range res {
		res[idx] = idx * 2
	}
	return res
}

func Test_CollectStage(t *testing.T) {
	assert := assert.New(t)

	for _, workers := range []int{1, 3, 8} {
		for _, fanIn := range []ordo.FanInMode{ordo.FanInRoundRobin, ordo.FanInArrival} {
			writer := NewBufferWriter[int]()

			cfg := NewSinkConfig()
			cfg.FanIn = fanIn

			require.NoError(t, runFarm(t, workers, 200, NewCollectStage[int](writer, cfg)))
			assert.Equal(doubledRange(200), writer.Items(), "workers=%d fan_in=%s", workers, fanIn)
		}
	}
}

func Test_StreamStage(t *testing.T) {
	assert := assert.New(t)

	for _, workers := range []int{1, 3, 8} {
		for _, fanIn := range []ordo.FanInMode{ordo.FanInRoundRobin, ordo.FanInArrival} {
			writer := NewBufferWriter[int]()

			cfg := NewSinkConfig()
			cfg.FanIn = fanIn

			require.NoError(t, runFarm(t, workers, 200, NewStreamStage[int](writer, cfg)))
			assert.Equal(doubledRange(200), writer.Items(), "workers=%d fan_in=%s", workers, fanIn)
		}
	}
}

func Test_Sink_empty(t *testing.T) {
	assert := assert.New(t)

	collectWriter := NewBufferWriter[int]()
	require.NoError(t, runFarm(t, 3, 0, NewCollectStage[int](collectWriter, nil)))
	assert.Empty(collectWriter.Items())
	assert.False(collectWriter.IsAborted())

	streamWriter := NewBufferWriter[int]()
	require.NoError(t, runFarm(t, 3, 0, NewStreamStage[int](streamWriter, nil)))
	assert.Empty(streamWriter.Items())
}

func runSeqSource(t *testing.T, sink ordo.Action[int], seqNums ...uint64) error {
	t.Helper()

	g := ordo.NewGraph[int](nil)
	src := g.AddStage("source", seqSource(seqNums...))
	dst := g.AddStage("sink", sink)
	require.NoError(t, g.AddEdge(src, dst))

	_, err := g.Start(t.Context())
	return err
}

func Test_Sink_sequenceErrors(t *testing.T) {
	assert := assert.New(t)

	tests := []struct {
		name    string
		seqNums []uint64
		err     error
	}{
		{name: "out of order", seqNums: []uint64{2, 0, 1}},
		{name: "duplicated", seqNums: []uint64{0, 1, 1}, err: rob.ErrSeqNumDuplicated},
		{name: "missing", seqNums: []uint64{0, 2, 3}, err: rob.ErrSeqNumMissing},
		{name: "not from zero", seqNums: []uint64{1, 2}, err: rob.ErrSeqNumMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collectWriter := NewBufferWriter[int]()
			streamWriter := NewBufferWriter[int]()

			collectErr := runSeqSource(t, NewCollectStage[int](collectWriter, nil), tt.seqNums...)
			streamErr := runSeqSource(t, NewStreamStage[int](streamWriter, nil), tt.seqNums...)

			if tt.err == nil {
				assert.NoError(collectErr)
				assert.NoError(streamErr)
				assert.Equal([]int{0, 1, 2}, collectWriter.Items())
				assert.Equal([]int{0, 1, 2}, streamWriter.Items())
				return
			}

			assert.ErrorIs(collectErr, tt.err)
			assert.ErrorIs(streamErr, tt.err)

			// Nothing is committed on failure
			assert.Empty(collectWriter.Items())
			assert.Empty(streamWriter.Items())
			assert.True(collectWriter.IsAborted())
			assert.True(streamWriter.IsAborted())
		})
	}
}

func Test_StreamStage_maxPending(t *testing.T) {
	assert := assert.New(t)

	cfg := NewSinkConfig()
	cfg.MaxPending = 3

	writer := NewBufferWriter[int]()
	err := runSeqSource(t, NewStreamStage[int](writer, cfg), 1, 2, 5, 0)
	assert.ErrorIs(err, rob.ErrSeqNumOutOfWindow)

	var stageErr *ordo.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal("sink", stageErr.Name)

	// Within the window
	writer = NewBufferWriter[int]()
	assert.NoError(runSeqSource(t, NewStreamStage[int](writer, cfg), 1, 2, 0, 3))
	assert.Equal([]int{0, 1, 2, 3}, writer.Items())
}

type failingWriter struct {
	BufferWriter[int]

	failAt  uint64
	openErr error
}

var errWrite = errors.New("write failed")

func (fw *failingWriter) Open(ctx context.Context) error {
	if fw.openErr != nil {
		return fw.openErr
	}
	return fw.BufferWriter.Open(ctx)
}

func (fw *failingWriter) Write(ctx context.Context, seqNum uint64, payload int) error {
	if seqNum == fw.failAt {
		return errWrite
	}
	return fw.BufferWriter.Write(ctx, seqNum, payload)
}

func Test_Sink_writeError(t *testing.T) {
	assert := assert.New(t)

	writer := &failingWriter{failAt: 7}

	err := runFarm(t, 4, 50, NewStreamStage[int](writer, nil))
	assert.ErrorIs(err, errWrite)
	assert.True(writer.IsAborted())
	assert.Empty(writer.Items())

	writer = &failingWriter{failAt: 100, openErr: errors.New("cannot open")}
	err = runFarm(t, 2, 10, NewCollectStage[int](writer, nil))
	assert.ErrorContains(err, "failed to open writer")
}

func Test_SinkConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := &SinkConfig{FanIn: ordo.FanInMode(7)}
	sink := NewCollectStage[int](NewBufferWriter[int](), cfg)

	assert.NoError(sink.Init(t.Context()))
	assert.Equal(DefaultSinkConfigName, cfg.Name)
	assert.Equal(ordo.FanInRoundRobin, cfg.FanIn)
}
