package egress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// DirConfig structs contains the configuration for the directory writer.
type DirConfig struct {
	// Dir is the output directory. It is created on commit if missing.
	// It is required.
	Dir string
}

// NewDirConfig returns the default configuration for the directory writer.
func NewDirConfig(dir string) *DirConfig {
	return &DirConfig{
		Dir: dir,
	}
}

// Validate checks the configuration.
func (c *DirConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckRequired(ac, "Dir", c.Dir)
}

//////////////
//  WRITER  //
//////////////

// FileEncoder writes a payload as a single file.
// It returns the base name of the file and writes its content into w.
type FileEncoder[P any] interface {
	Name(seqNum uint64, payload P) string
	Encode(w io.Writer, payload P) error
}

// DirWriter writes every payload as a file of the output directory.
// The files are written into a temporary directory next to the output one
// and moved into it on commit.
type DirWriter[P any] struct {
	tel *telemetry.Telemetry
	cfg *DirConfig

	encoder FileEncoder[P]

	tmpDir string
	names  []string
}

// NewDirWriter returns a new directory writer.
func NewDirWriter[P any](encoder FileEncoder[P], cfg *DirConfig) *DirWriter[P] {
	return &DirWriter[P]{
		tel: telemetry.NewTelemetry("egress", "dir_writer"),
		cfg: cfg,

		encoder: encoder,
	}
}

// Init validates the configuration.
func (dw *DirWriter[P]) Init(_ context.Context) error {
	return config.NewValidator(dw.tel).Validate(dw.cfg)
}

// Open creates the temporary directory.
func (dw *DirWriter[P]) Open(_ context.Context) error {
	parent := filepath.Dir(filepath.Clean(dw.cfg.Dir))

	tmpDir, err := os.MkdirTemp(parent, "."+filepath.Base(dw.cfg.Dir)+".tmp-*")
	if err != nil {
		return err
	}

	dw.tmpDir = tmpDir
	dw.names = nil

	return nil
}

// Write encodes the payload into a new file.
func (dw *DirWriter[P]) Write(_ context.Context, seqNum uint64, payload P) (err error) {
	name := filepath.Base(dw.encoder.Name(seqNum, payload))

	file, err := os.OpenFile(filepath.Join(dw.tmpDir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, file.Close())
	}()

	if err := dw.encoder.Encode(file, payload); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	dw.names = append(dw.names, name)

	return nil
}

// Commit moves the files into the output directory.
func (dw *DirWriter[P]) Commit(_ context.Context) error {
	if dw.tmpDir == "" {
		return nil
	}

	if err := os.MkdirAll(dw.cfg.Dir, 0o755); err != nil {
		return errors.Join(err, dw.Abort())
	}

	for _, name := range dw.names {
		if err := os.Rename(filepath.Join(dw.tmpDir, name), filepath.Join(dw.cfg.Dir, name)); err != nil {
			return errors.Join(err, dw.Abort())
		}
	}

	err := os.RemoveAll(dw.tmpDir)
	dw.tmpDir = ""

	dw.tel.LogInfo("directory written", "dir", dw.cfg.Dir, "files", len(dw.names))

	return err
}

// Abort removes the temporary directory.
func (dw *DirWriter[P]) Abort() error {
	if dw.tmpDir == "" {
		return nil
	}

	err := os.RemoveAll(dw.tmpDir)
	dw.tmpDir = ""

	return err
}
