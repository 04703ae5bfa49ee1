package processor

import (
	"testing"

	"github.com/FerroO2000/ordo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Tee(t *testing.T) {
	assert := assert.New(t)

	outCount := 3
	collectors := make([]*collector, 0, outCount)

	g := ordo.NewGraph[int](nil)
	src := g.AddStage("source", rangeSource(20))
	tee := g.AddStage("tee", NewTee(func(payload int) int { return payload }))
	require.NoError(t, g.AddEdge(src, tee))

	for range outCount {
		c := newCollector()
		collectors = append(collectors, c)
		require.NoError(t, g.AddEdge(tee, g.AddStage("out", c.action())))
	}

	report, err := g.Start(t.Context())
	require.NoError(t, err)

	expected := make([]int, 20)
	for idx := range expected {
		expected[idx] = idx
	}

	// Every branch sees every fragment with its sequence number
	for _, c := range collectors {
		assert.Equal(expected, c.ordered())
	}

	teeReport, ok := report.Stage("tee")
	require.True(t, ok)
	assert.Equal(uint64(20), teeReport.Received)
	assert.Equal(uint64(60), teeReport.Sent)
}

func Test_Tee_noOutputs(t *testing.T) {
	assert := assert.New(t)

	g := ordo.NewGraph[int](nil)
	src := g.AddStage("source", rangeSource(2))
	tee := g.AddStage("tee", NewTee[int](nil))
	require.NoError(t, g.AddEdge(src, tee))

	_, err := g.Start(t.Context())
	assert.ErrorIs(err, ordo.ErrNoOutputs)
}
