package ingress

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the block reader configuration.
const (
	DefaultBlockConfigBlockSize  = 900_000
	DefaultBlockConfigBufferSize = 64 * 1024
)

// BlockConfig structs contains the configuration for the block reader.
type BlockConfig struct {
	// Path is the path of the file to read.
	// It is required.
	Path string

	// BlockSize is the size of the blocks. The last block may be shorter.
	//
	// Default: 900000
	BlockSize int

	// BufferSize is the size of the read buffer.
	//
	// Default: 65536
	BufferSize int
}

// NewBlockConfig returns the default configuration for the block reader.
func NewBlockConfig(path string) *BlockConfig {
	return &BlockConfig{
		Path:       path,
		BlockSize:  DefaultBlockConfigBlockSize,
		BufferSize: DefaultBlockConfigBufferSize,
	}
}

// Validate checks the configuration.
func (c *BlockConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckRequired(ac, "Path", c.Path)

	config.CheckGreaterThanZero(ac, "BlockSize", &c.BlockSize, DefaultBlockConfigBlockSize)

	config.CheckGreaterThanZero(ac, "BufferSize", &c.BufferSize, DefaultBlockConfigBufferSize)
}

/////////////
//  BLOCK  //
/////////////

// Block is a fixed-size chunk of a file.
type Block struct {
	// Offset is the offset of the block from the beginning of the file.
	Offset int64
	// Data is the content of the block.
	Data []byte
}

// Size returns the length of the block.
func (b Block) Size() int {
	return len(b.Data)
}

//////////////
//  READER  //
//////////////

// BlockReader splits a file into blocks of [BlockConfig.BlockSize] bytes.
type BlockReader struct {
	tel *telemetry.Telemetry
	cfg *BlockConfig

	file   *os.File
	reader *bufio.Reader
	offset int64
}

// NewBlockReader returns a new block reader.
func NewBlockReader(cfg *BlockConfig) *BlockReader {
	return &BlockReader{
		tel: telemetry.NewTelemetry("ingress", "block_reader"),
		cfg: cfg,
	}
}

// Init validates the configuration.
func (br *BlockReader) Init(_ context.Context) error {
	return config.NewValidator(br.tel).Validate(br.cfg)
}

// Open opens the file.
func (br *BlockReader) Open(_ context.Context) error {
	file, err := os.Open(br.cfg.Path)
	if err != nil {
		return err
	}

	br.file = file
	br.reader = bufio.NewReaderSize(file, br.cfg.BufferSize)
	br.offset = 0

	br.tel.LogInfo("reading file", "path", br.cfg.Path, "block_size", br.cfg.BlockSize)

	return nil
}

// Next returns the next block of the file.
func (br *BlockReader) Next(ctx context.Context) (Block, error) {
	if br.reader == nil {
		return Block{}, ErrGeneratorNotOpen
	}

	if err := ctx.Err(); err != nil {
		return Block{}, err
	}

	buf := make([]byte, br.cfg.BlockSize)

	n, err := io.ReadFull(br.reader, buf)
	switch {
	case errors.Is(err, io.EOF):
		return Block{}, io.EOF

	case errors.Is(err, io.ErrUnexpectedEOF):
		// Last block, shorter than the block size

	case err != nil:
		return Block{}, fmt.Errorf("failed to read block at offset %d: %w", br.offset, err)
	}

	block := Block{
		Offset: br.offset,
		Data:   buf[:n],
	}

	br.offset += int64(n)

	return block, nil
}

// Close closes the file.
func (br *BlockReader) Close() error {
	if br.file == nil {
		return nil
	}

	err := br.file.Close()

	br.file = nil
	br.reader = nil

	return err
}
