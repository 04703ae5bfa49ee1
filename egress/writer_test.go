package egress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/internal/config"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intEncoder(payload int) ([]byte, error) {
	return []byte(strconv.Itoa(payload) + "\n"), nil
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func Test_FileWriter(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	fw := NewFileWriter(intEncoder, NewFileConfig(path))
	require.NoError(t, fw.Init(t.Context()))
	require.NoError(t, fw.Open(t.Context()))

	for idx := range 3 {
		require.NoError(t, fw.Write(t.Context(), uint64(idx), idx*10))
	}

	// Nothing is visible before the commit
	_, err := os.Stat(path)
	assert.ErrorIs(err, os.ErrNotExist)

	require.NoError(t, fw.Commit(t.Context()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal("0\n10\n20\n", string(data))

	// The temporary file is gone
	assert.Equal([]string{"out.txt"}, listDir(t, dir))
}

func Test_FileWriter_abort(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	fw := NewFileWriter(intEncoder, NewFileConfig(path))
	require.NoError(t, fw.Init(t.Context()))
	require.NoError(t, fw.Open(t.Context()))
	require.NoError(t, fw.Write(t.Context(), 0, 1))

	assert.NoError(fw.Abort())

	// The previous output is untouched
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal("previous", string(data))
	assert.Equal([]string{"out.txt"}, listDir(t, dir))
}

func Test_FileWriter_encodeError(t *testing.T) {
	assert := assert.New(t)

	errEncode := errors.New("cannot encode")

	fw := NewFileWriter(func(int) ([]byte, error) { return nil, errEncode }, NewFileConfig(filepath.Join(t.TempDir(), "out")))
	require.NoError(t, fw.Init(t.Context()))
	require.NoError(t, fw.Open(t.Context()))

	assert.ErrorIs(fw.Write(t.Context(), 0, 1), errEncode)
	assert.NoError(fw.Abort())
}

func Test_FileWriter_config(t *testing.T) {
	assert := assert.New(t)

	assert.ErrorIs(NewFileWriter(intEncoder, NewFileConfig("")).Init(t.Context()), config.ErrInvalid)

	cfg := NewFileConfig("out")
	cfg.BufferSize = 0
	cfg.Perm = 0

	assert.NoError(NewFileWriter(intEncoder, cfg).Init(t.Context()))
	assert.Equal(DefaultFileConfigBufferSize, cfg.BufferSize)
	assert.Equal(os.FileMode(DefaultFileConfigPerm), cfg.Perm)
}

func Test_FileWriter_inGraph(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "out.txt")

	require.NoError(t, runFarm(t, 3, 5, NewStreamStage[int](NewFileWriter(intEncoder, NewFileConfig(path)), nil)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal("0\n2\n4\n6\n8\n", string(data))
}

type textFileEncoder struct{}

func (textFileEncoder) Name(seqNum uint64, _ int) string {
	return fmt.Sprintf("%03d.txt", seqNum)
}

func (textFileEncoder) Encode(w io.Writer, payload int) error {
	_, err := fmt.Fprint(w, payload)
	return err
}

func Test_DirWriter(t *testing.T) {
	assert := assert.New(t)

	root := t.TempDir()
	outDir := filepath.Join(root, "out")

	require.NoError(t, runFarm(t, 2, 3, NewCollectStage[int](NewDirWriter[int](textFileEncoder{}, NewDirConfig(outDir)), nil)))

	assert.Equal([]string{"000.txt", "001.txt", "002.txt"}, listDir(t, outDir))

	data, err := os.ReadFile(filepath.Join(outDir, "002.txt"))
	require.NoError(t, err)
	assert.Equal("4", string(data))

	// No temporary directory is left
	assert.Equal([]string{"out"}, listDir(t, root))
}

func Test_DirWriter_abort(t *testing.T) {
	assert := assert.New(t)

	root := t.TempDir()
	outDir := filepath.Join(root, "out")

	dw := NewDirWriter[int](textFileEncoder{}, NewDirConfig(outDir))
	require.NoError(t, dw.Init(t.Context()))
	require.NoError(t, dw.Open(t.Context()))
	require.NoError(t, dw.Write(t.Context(), 0, 1))
	assert.NoError(dw.Abort())

	assert.Empty(listDir(t, root))
	assert.ErrorIs(NewDirWriter[int](textFileEncoder{}, NewDirConfig("")).Init(t.Context()), config.ErrInvalid)
}

func Test_MultiWriter(t *testing.T) {
	assert := assert.New(t)

	first := NewBufferWriter[int]()
	second := NewBufferWriter[int]()

	require.NoError(t, runFarm(t, 3, 10, NewStreamStage[int](MultiWriter[int](first, second), nil)))

	assert.Equal(doubledRange(10), first.Items())
	assert.Equal(doubledRange(10), second.Items())

	// A failing writer aborts all of them
	failing := &failingWriter{failAt: 4}
	other := NewBufferWriter[int]()

	err := runFarm(t, 3, 10, NewStreamStage[int](MultiWriter[int](other, failing), nil))
	assert.ErrorIs(err, errWrite)
	assert.True(other.IsAborted())
	assert.Empty(other.Items())

	// The configuration of the inner writers is checked
	mw := MultiWriter[int](NewFileWriter(intEncoder, NewFileConfig("")))
	assert.ErrorIs(mw.(ordo.Initializer).Init(t.Context()), config.ErrInvalid)
}

type fakeKafkaWriter struct {
	calls    int
	messages []kafka.Message
	closed   bool
	err      error
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}

	f.calls++
	f.messages = append(f.messages, msgs...)

	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func newTestKafkaWriter(fake *fakeKafkaWriter, batchSize int) *KafkaWriter[int] {
	cfg := NewKafkaConfig("fragments")
	cfg.BatchSize = batchSize

	kw := NewKafkaWriter(intEncoder, cfg)
	kw.newWriter = func(*KafkaConfig) messageWriter { return fake }

	return kw
}

func Test_KafkaWriter(t *testing.T) {
	assert := assert.New(t)

	fake := &fakeKafkaWriter{}
	kw := newTestKafkaWriter(fake, 4)

	require.NoError(t, runFarm(t, 3, 10, NewStreamStage[int](kw, nil)))

	// Two full batches and the last partial one
	assert.Equal(3, fake.calls)
	assert.True(fake.closed)
	require.Len(t, fake.messages, 10)

	for idx, msg := range fake.messages {
		assert.Equal(strconv.Itoa(idx), string(msg.Key))
		assert.Equal(strconv.Itoa(idx*2)+"\n", string(msg.Value))
	}
}

func Test_KafkaWriter_error(t *testing.T) {
	assert := assert.New(t)

	errBroker := errors.New("broker unavailable")

	fake := &fakeKafkaWriter{err: errBroker}
	kw := newTestKafkaWriter(fake, 1)

	err := runFarm(t, 2, 10, NewStreamStage[int](kw, nil))
	assert.ErrorIs(err, errBroker)
	assert.True(fake.closed)

	assert.ErrorIs(NewKafkaWriter(intEncoder, NewKafkaConfig("")).Init(t.Context()), config.ErrInvalid)
}

func Test_RunRecorder_Rows(t *testing.T) {
	assert := assert.New(t)

	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	report := &ordo.Report{
		RunID:     uuid.New(),
		Graph:     "compress",
		StartTime: start,
		Elapsed:   1500 * time.Microsecond,
		Stages: []ordo.StageReport{
			{ID: 0, Name: "source", State: ordo.StageStateTerminated, Sent: 4, Elapsed: time.Millisecond},
			{ID: 1, Name: "sink", State: ordo.StageStateTerminated, Received: 4, Err: errors.New("boom")},
		},
	}

	rr := NewRunRecorder(nil)
	require.NoError(t, rr.Init(t.Context()))

	rows := rr.Rows(report, RunInfo{Workload: "compress", Workers: 2, Fragments: 4})
	require.Len(t, rows, 3)

	run := rows[0]
	assert.Equal(DefaultQuestDBConfigRunTable, run.Table)
	assert.Equal(start, run.Timestamp)
	assert.Equal([]QuestDBSymbol{{Name: "graph", Value: "compress"}, {Name: "workload", Value: "compress"}}, run.Symbols)
	assert.Contains(run.Columns, QuestDBColumn{Name: "run_id", Type: QuestDBColumnTypeString, Value: report.RunID.String()})
	assert.Contains(run.Columns, QuestDBColumn{Name: "elapsed_ms", Type: QuestDBColumnTypeFloat, Value: 1.5})
	assert.Contains(run.Columns, QuestDBColumn{Name: "failed", Type: QuestDBColumnTypeBool, Value: false})

	sink := rows[2]
	assert.Equal(DefaultQuestDBConfigStageTable, sink.Table)
	assert.Contains(sink.Symbols, QuestDBSymbol{Name: "stage", Value: "sink"})
	assert.Contains(sink.Columns, QuestDBColumn{Name: "received", Type: QuestDBColumnTypeInt, Value: int64(4)})
	assert.Contains(sink.Columns, QuestDBColumn{Name: "failed", Type: QuestDBColumnTypeBool, Value: true})
	assert.Contains(sink.Columns, QuestDBColumn{Name: "state", Type: QuestDBColumnTypeString, Value: "terminated"})
}
