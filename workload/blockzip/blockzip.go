// Package blockzip compresses a file in parallel: the file is split into
// fixed-size blocks, each block is compressed independently by one of the
// worker lanes, and the compressed blocks are concatenated in order.
//
// Each block is a complete gzip member (or zstd frame), so the output is
// a valid multi-member stream that standard tools decompress as one file.
package blockzip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/egress"
	"github.com/FerroO2000/ordo/ingress"
	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
	"github.com/FerroO2000/ordo/processor"
	"github.com/FerroO2000/ordo/workload"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrUnknownCodec is returned when the codec is not supported.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec is the compression format of the blocks.
type Codec string

// Supported codecs.
const (
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the block compression configuration.
const (
	DefaultConfigBlockSize = ingress.DefaultBlockConfigBlockSize
	DefaultConfigCodec     = CodecGzip
	DefaultConfigLevel     = 0
)

// Config structs contains the configuration of the block compression workload.
type Config struct {
	Run *workload.RunConfig

	// Input is the path of the file to compress.
	// It is required.
	Input string

	// Output is the path of the compressed file.
	// It is required.
	Output string

	// BlockSize is the size of the uncompressed blocks.
	//
	// Default: 900000
	BlockSize int

	// Codec is the compression format.
	//
	// Default: gzip
	Codec Codec

	// Level is the compression level of the codec.
	// Zero selects the default level of the codec.
	//
	// Default: 0
	Level int
}

// NewConfig returns the default configuration of the workload.
func NewConfig(input, output string) *Config {
	return &Config{
		Run: workload.NewRunConfig(),

		Input:     input,
		Output:    output,
		BlockSize: DefaultConfigBlockSize,
		Codec:     DefaultConfigCodec,
		Level:     DefaultConfigLevel,
	}
}

// Validate checks the configuration.
func (c *Config) Validate(ac *config.AnomalyCollector) {
	c.Run.Validate(ac)

	config.CheckRequired(ac, "Input", c.Input)
	config.CheckRequired(ac, "Output", c.Output)

	config.CheckGreaterThanZero(ac, "BlockSize", &c.BlockSize, DefaultConfigBlockSize)

	config.CheckOneOf(ac, "Codec", &c.Codec, []Codec{CodecGzip, CodecZstd}, DefaultConfigCodec)
}

//////////////////
//  COMPRESSOR  //
//////////////////

type compressor struct {
	processor.HandlerBase

	codec Codec
	level int

	buf      *bytes.Buffer
	gzWriter *gzip.Writer
	zEncoder *zstd.Encoder
}

func newCompressor(codec Codec, level int) *compressor {
	return &compressor{
		codec: codec,
		level: level,

		buf: &bytes.Buffer{},
	}
}

func (c *compressor) Init(_ context.Context) error {
	switch c.codec {
	case CodecGzip:
		level := c.level
		if level == 0 {
			level = gzip.DefaultCompression
		}

		gzWriter, err := gzip.NewWriterLevel(c.buf, level)
		if err != nil {
			return err
		}
		c.gzWriter = gzWriter

	case CodecZstd:
		encLevel := zstd.SpeedDefault
		if c.level != 0 {
			encLevel = zstd.EncoderLevelFromZstd(c.level)
		}

		zEncoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return err
		}
		c.zEncoder = zEncoder

	default:
		return fmt.Errorf("%w: %s", ErrUnknownCodec, c.codec)
	}

	return nil
}

func (c *compressor) Handle(_ context.Context, block ingress.Block) (ingress.Block, error) {
	var data []byte

	switch c.codec {
	case CodecGzip:
		c.buf.Reset()
		c.gzWriter.Reset(c.buf)

		if _, err := c.gzWriter.Write(block.Data); err != nil {
			return block, err
		}

		if err := c.gzWriter.Close(); err != nil {
			return block, err
		}

		data = bytes.Clone(c.buf.Bytes())

	case CodecZstd:
		data = c.zEncoder.EncodeAll(block.Data, make([]byte, 0, len(block.Data)/2))
	}

	c.Telemetry.LogDebug("block compressed", "offset", block.Offset, "in", len(block.Data), "out", len(data))

	block.Data = data

	return block, nil
}

func (c *compressor) Close() {
	if c.zEncoder != nil {
		c.zEncoder.Close()
	}
}

/////////////
//  GRAPH  //
/////////////

func encodeBlock(block ingress.Block) ([]byte, error) {
	return block.Data, nil
}

// Build returns the graph of the workload.
// The compressed blocks are also written to the extra writers, if any.
func Build(cfg *Config, extra ...egress.Writer[ingress.Block]) (*ordo.Graph[ingress.Block], error) {
	tel := telemetry.NewTelemetry("workload", "blockzip")
	if err := config.NewValidator(tel).Validate(cfg); err != nil {
		return nil, err
	}

	blockCfg := ingress.NewBlockConfig(cfg.Input)
	blockCfg.BlockSize = cfg.BlockSize

	writer := workload.Writer(egress.NewFileWriter(encodeBlock, egress.NewFileConfig(cfg.Output)), extra...)

	farm := &ordo.Farm[ingress.Block]{
		Workers: cfg.Run.Workers,

		SourceName: "slicer",
		Source:     ingress.NewSource[ingress.Block](ingress.NewBlockReader(blockCfg), nil),

		Steps: []ordo.LaneStep[ingress.Block]{
			{
				Name: "compress",
				New: func(int) ordo.Action[ingress.Block] {
					stageCfg := processor.NewStageConfig()
					stageCfg.Name = "compress"

					return processor.NewStage[ingress.Block](newCompressor(cfg.Codec, cfg.Level), stageCfg)
				},
			},
		},

		SinkName: "reducer",
		Sink:     workload.NewSink(cfg.Run, writer),
	}

	g := ordo.NewGraph[ingress.Block](cfg.Run.GraphConfig("compress"))
	if _, err := farm.Build(g); err != nil {
		return nil, err
	}

	tel.LogInfo("graph built", "workers", cfg.Run.Workers, "codec", cfg.Codec, "block_size", cfg.BlockSize)

	return g, nil
}

// Run builds and runs the workload.
func Run(ctx context.Context, cfg *Config, extra ...egress.Writer[ingress.Block]) (*ordo.Report, error) {
	g, err := Build(cfg, extra...)
	if err != nil {
		return nil, err
	}

	return g.Start(ctx)
}

// Decompress reads a stream of concatenated blocks compressed with the codec.
func Decompress(codec Codec, r io.Reader) ([]byte, error) {
	switch codec {
	case CodecGzip:
		gzReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gzReader.Close()

		return io.ReadAll(gzReader)

	case CodecZstd:
		zDecoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zDecoder.Close()

		return io.ReadAll(zDecoder)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, codec)
	}
}
