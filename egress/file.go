package egress

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the file writer configuration.
const (
	DefaultFileConfigBufferSize = 64 * 1024
	DefaultFileConfigPerm       = 0o644
)

// FileConfig structs contains the configuration for the file writer.
type FileConfig struct {
	// Path is the path of the output file.
	// It is required.
	Path string

	// BufferSize is the size of the buffer used to write the payloads to the file.
	//
	// Default: 65536
	BufferSize int

	// Perm is the permission of the output file.
	//
	// Default: 0644
	Perm os.FileMode
}

// NewFileConfig returns the default configuration for the file writer.
func NewFileConfig(path string) *FileConfig {
	return &FileConfig{
		Path:       path,
		BufferSize: DefaultFileConfigBufferSize,
		Perm:       DefaultFileConfigPerm,
	}
}

// Validate checks the configuration.
func (c *FileConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckRequired(ac, "Path", c.Path)

	config.CheckGreaterThanZero(ac, "BufferSize", &c.BufferSize, DefaultFileConfigBufferSize)

	config.CheckNotZero(ac, "Perm", &c.Perm, DefaultFileConfigPerm)
}

//////////////
//  WRITER  //
//////////////

var _ Writer[[]byte] = (*FileWriter[[]byte])(nil)

// FileWriter writes the encoded payloads sequentially into a file.
// The payloads are written into a temporary file in the same directory,
// which is renamed to the configured path on commit.
type FileWriter[P any] struct {
	tel *telemetry.Telemetry
	cfg *FileConfig

	encode Encoder[P]

	file   *os.File
	writer *bufio.Writer

	writtenBytes atomic.Int64
}

// NewFileWriter returns a new file writer.
func NewFileWriter[P any](encode Encoder[P], cfg *FileConfig) *FileWriter[P] {
	return &FileWriter[P]{
		tel: telemetry.NewTelemetry("egress", "file_writer"),
		cfg: cfg,

		encode: encode,
	}
}

// Init validates the configuration.
func (fw *FileWriter[P]) Init(_ context.Context) error {
	if err := config.NewValidator(fw.tel).Validate(fw.cfg); err != nil {
		return err
	}

	fw.tel.NewCounter("written_bytes", func() int64 { return fw.writtenBytes.Load() })

	return nil
}

// Open creates the temporary file.
func (fw *FileWriter[P]) Open(_ context.Context) error {
	dir, base := filepath.Split(fw.cfg.Path)
	if dir == "" {
		dir = "."
	}

	file, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}

	fw.file = file
	fw.writer = bufio.NewWriterSize(file, fw.cfg.BufferSize)
	fw.writtenBytes.Store(0)

	return nil
}

// Write appends the encoded payload to the file.
func (fw *FileWriter[P]) Write(_ context.Context, _ uint64, payload P) error {
	data, err := fw.encode(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	n, err := fw.writer.Write(data)
	fw.writtenBytes.Add(int64(n))

	return err
}

// Commit flushes and syncs the temporary file and renames it to the output path.
func (fw *FileWriter[P]) Commit(_ context.Context) error {
	if fw.file == nil {
		return nil
	}

	tmpPath := fw.file.Name()

	err := errors.Join(fw.writer.Flush(), fw.file.Sync())
	if err == nil {
		err = os.Chmod(tmpPath, fw.cfg.Perm)
	}

	if closeErr := fw.file.Close(); err == nil {
		err = closeErr
	}
	fw.file = nil

	if err == nil {
		err = os.Rename(tmpPath, fw.cfg.Path)
	}

	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	fw.tel.LogInfo("file written", "path", fw.cfg.Path, "bytes", fw.writtenBytes.Load())

	return nil
}

// Abort removes the temporary file.
func (fw *FileWriter[P]) Abort() error {
	if fw.file == nil {
		return nil
	}

	tmpPath := fw.file.Name()

	closeErr := fw.file.Close()
	fw.file = nil

	fw.tel.LogWarn("output discarded", "path", fw.cfg.Path)

	return errors.Join(closeErr, os.Remove(tmpPath))
}
