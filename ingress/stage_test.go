package ingress

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received[P any] struct {
	mux   sync.Mutex
	seqs  [][]uint64
	items [][]P
}

// runSource runs the source towards the given number of collecting stages.
func runSource[P any](t *testing.T, src ordo.Action[P], outputs int) (*received[P], error) {
	t.Helper()

	g := ordo.NewGraph[P](nil)
	srcID := g.AddStage("source", src)

	res := &received[P]{
		seqs:  make([][]uint64, outputs),
		items: make([][]P, outputs),
	}

	for idx := range outputs {
		id := g.AddStage("collect", ordo.ActionFunc[P](func(ctx context.Context, ports *ordo.Ports[P]) error {
			fanIn := ordo.NewFanIn(ports, ordo.FanInRoundRobin)
			for {
				frag, err := fanIn.Next(ctx)
				if errors.Is(err, ordo.ErrClosed) {
					return nil
				}
				if err != nil {
					return err
				}

				res.mux.Lock()
				res.seqs[idx] = append(res.seqs[idx], frag.GetSequenceNumber())
				res.items[idx] = append(res.items[idx], frag.GetPayload())
				res.mux.Unlock()
			}
		}))
		require.NoError(t, g.AddEdge(srcID, id))
	}

	_, err := g.Start(t.Context())
	return res, err
}

func Test_Source_roundRobin(t *testing.T) {
	assert := assert.New(t)

	res, err := runSource(t, NewSource[uint64](NewRange(10), nil), 3)
	require.NoError(t, err)

	assert.Equal([]uint64{0, 3, 6, 9}, res.seqs[0])
	assert.Equal([]uint64{1, 4, 7}, res.seqs[1])
	assert.Equal([]uint64{2, 5, 8}, res.seqs[2])

	// The range emits its own indexes
	assert.Equal(res.seqs, res.items)
}

func Test_Source_limit(t *testing.T) {
	assert := assert.New(t)

	cfg := NewSourceConfig()
	cfg.Limit = 4

	res, err := runSource(t, NewSource[uint64](NewRange(100), cfg), 1)
	require.NoError(t, err)

	assert.Equal([]uint64{0, 1, 2, 3}, res.seqs[0])
}

func Test_Source_empty(t *testing.T) {
	assert := assert.New(t)

	res, err := runSource(t, NewSource[string](NewSlice[string](nil), nil), 2)
	require.NoError(t, err)

	assert.Empty(res.seqs[0])
	assert.Empty(res.seqs[1])
}

func Test_Source_mapError(t *testing.T) {
	assert := assert.New(t)

	errOdd := errors.New("odd item")

	gen := Map(NewRange(10), func(idx uint64) (string, error) {
		if idx == 3 {
			return "", errOdd
		}
		return "item", nil
	})

	_, err := runSource(t, NewSource(gen, nil), 2)
	assert.ErrorIs(err, errOdd)

	var stageErr *ordo.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal("source", stageErr.Name)
}

func Test_Source_invalidGenerator(t *testing.T) {
	assert := assert.New(t)

	// The generator configuration is checked before the graph starts
	gen := Map(NewBlockReader(NewBlockConfig("")), func(b Block) (Block, error) { return b, nil })

	_, err := runSource(t, NewSource(gen, nil), 1)
	assert.ErrorIs(err, config.ErrInvalid)
}

func Test_Slice(t *testing.T) {
	assert := assert.New(t)

	items := []string{"a", "b", "c"}

	s := NewSlice(items)
	require.NoError(t, s.Open(t.Context()))

	for _, want := range items {
		got, err := s.Next(t.Context())
		assert.NoError(err)
		assert.Equal(want, got)
	}

	_, err := s.Next(t.Context())
	assert.ErrorIs(err, io.EOF)

	// Opening again rewinds the generator
	require.NoError(t, s.Open(t.Context()))
	got, err := s.Next(t.Context())
	assert.NoError(err)
	assert.Equal("a", got)
}

func Test_BlockReader(t *testing.T) {
	assert := assert.New(t)

	data := make([]byte, 2500)
	for idx := range data {
		data[idx] = byte(idx % 251)
	}

	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg := NewBlockConfig(path)
	cfg.BlockSize = 1000

	br := NewBlockReader(cfg)
	require.NoError(t, br.Init(t.Context()))
	require.NoError(t, br.Open(t.Context()))
	defer br.Close()

	sizes := []int{1000, 1000, 500}
	offset := int64(0)
	for _, size := range sizes {
		block, err := br.Next(t.Context())
		require.NoError(t, err)

		assert.Equal(offset, block.Offset)
		assert.Equal(size, block.Size())
		assert.Equal(data[offset:offset+int64(size)], block.Data)

		offset += int64(size)
	}

	_, err := br.Next(t.Context())
	assert.ErrorIs(err, io.EOF)
}

func Test_BlockReader_exactMultiple(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 2000), 0o644))

	cfg := NewBlockConfig(path)
	cfg.BlockSize = 1000

	res, err := runSource(t, NewSource[Block](NewBlockReader(cfg), nil), 2)
	require.NoError(t, err)

	assert.Len(res.items[0], 1)
	assert.Len(res.items[1], 1)
}

func Test_BlockReader_config(t *testing.T) {
	assert := assert.New(t)

	cfg := NewBlockConfig("file")
	cfg.BlockSize = -5

	br := NewBlockReader(cfg)
	assert.NoError(br.Init(t.Context()))
	assert.Equal(DefaultBlockConfigBlockSize, cfg.BlockSize)

	_, err := br.Next(t.Context())
	assert.ErrorIs(err, ErrGeneratorNotOpen)

	assert.ErrorIs(NewBlockReader(NewBlockConfig("")).Init(t.Context()), config.ErrInvalid)
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()

	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
}

func drainLister(t *testing.T, dl *DirLister) []string {
	t.Helper()

	names := []string{}
	for {
		entry, err := dl.Next(t.Context())
		if errors.Is(err, io.EOF) {
			return names
		}
		require.NoError(t, err)

		names = append(names, entry.Name)
	}
}

func Test_DirLister(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	writeFiles(t, dir, "c.png", "a.jpg", "b.PNG", "README", "d.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	cfg := NewDirConfig(dir)
	cfg.Extensions = []string{"png", ".jpg"}

	dl := NewDirLister(cfg)
	require.NoError(t, dl.Init(t.Context()))
	require.NoError(t, dl.Open(t.Context()))
	defer dl.Close()

	// Sorted by name, no directories, no files without extension
	assert.Equal([]string{"a.jpg", "b.PNG", "c.png"}, drainLister(t, dl))
}

func Test_DirLister_allExtensions(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	writeFiles(t, dir, "b.txt", "a.bin", "noext")

	dl := NewDirLister(NewDirConfig(dir))
	require.NoError(t, dl.Init(t.Context()))
	require.NoError(t, dl.Open(t.Context()))
	defer dl.Close()

	assert.Equal([]string{"a.bin", "b.txt"}, drainLister(t, dl))
}

func Test_DirLister_follow(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	writeFiles(t, dir, "a.txt")

	cfg := NewDirConfig(dir)
	cfg.Follow = true
	cfg.IdleTimeout = 500 * time.Millisecond

	dl := NewDirLister(cfg)
	require.NoError(t, dl.Init(t.Context()))
	require.NoError(t, dl.Open(t.Context()))
	defer dl.Close()

	entry, err := dl.Next(t.Context())
	require.NoError(t, err)
	assert.Equal("a.txt", entry.Name)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644)
	}()

	entry, err = dl.Next(t.Context())
	require.NoError(t, err)
	assert.Equal("b.txt", entry.Name)

	// No more files, the idle timeout ends the listing
	_, err = dl.Next(t.Context())
	assert.ErrorIs(err, io.EOF)
}

func Test_DirLister_missingDir(t *testing.T) {
	assert := assert.New(t)

	dl := NewDirLister(NewDirConfig(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, dl.Init(t.Context()))
	assert.Error(dl.Open(t.Context()))
}
