package ingress

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
	"github.com/fsnotify/fsnotify"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the directory lister configuration.
const (
	DefaultDirConfigFollow      = false
	DefaultDirConfigIdleTimeout = 2 * time.Second
)

// DirConfig structs contains the configuration for the directory lister.
type DirConfig struct {
	// Dir is the directory to list.
	// It is required.
	Dir string

	// Extensions restricts the listing to the files with one of the
	// given extensions (e.g. ".png"), compared case-insensitively.
	// Files without an extension are always skipped.
	// If empty, every file with an extension is listed.
	Extensions []string

	// Follow states whether to keep watching the directory after
	// the initial listing, emitting the files created later on.
	//
	// Default: false
	Follow bool

	// IdleTimeout is how long the lister waits for a new file
	// in follow mode before ending the listing.
	//
	// Default: 2s
	IdleTimeout time.Duration
}

// NewDirConfig returns the default configuration for the directory lister.
func NewDirConfig(dir string) *DirConfig {
	return &DirConfig{
		Dir:         dir,
		Follow:      DefaultDirConfigFollow,
		IdleTimeout: DefaultDirConfigIdleTimeout,
	}
}

// Validate checks the configuration.
func (c *DirConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckRequired(ac, "Dir", c.Dir)

	config.CheckGreaterThanZero(ac, "IdleTimeout", &c.IdleTimeout, DefaultDirConfigIdleTimeout)

	for idx, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			c.Extensions[idx] = "." + ext
		}
	}
}

/////////////
//  ENTRY  //
/////////////

// FileEntry is a file found in the listed directory.
type FileEntry struct {
	// Name is the base name of the file.
	Name string
	// Path is the path of the file, joined with the listed directory.
	Path string
	// Size is the size of the file when it was listed.
	Size int64
}

//////////////
//  LISTER  //
//////////////

// DirLister emits one entry per regular file of a directory,
// sorted by name. In follow mode, the files created after the
// initial listing are emitted in creation order.
type DirLister struct {
	tel *telemetry.Telemetry
	cfg *DirConfig

	pending []FileEntry
	seen    map[string]struct{}

	watcher *fsnotify.Watcher
}

// NewDirLister returns a new directory lister.
func NewDirLister(cfg *DirConfig) *DirLister {
	return &DirLister{
		tel: telemetry.NewTelemetry("ingress", "dir_lister"),
		cfg: cfg,
	}
}

// Init validates the configuration.
func (dl *DirLister) Init(_ context.Context) error {
	return config.NewValidator(dl.tel).Validate(dl.cfg)
}

func (dl *DirLister) accept(name string) bool {
	ext := filepath.Ext(name)
	if ext == "" {
		return false
	}

	if len(dl.cfg.Extensions) == 0 {
		return true
	}

	return slices.ContainsFunc(dl.cfg.Extensions, func(allowed string) bool {
		return strings.EqualFold(allowed, ext)
	})
}

// add appends the file to the pending entries if it is new and accepted.
func (dl *DirLister) add(path string) {
	name := filepath.Base(path)
	if !dl.accept(name) {
		return
	}

	if _, ok := dl.seen[name]; ok {
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	dl.seen[name] = struct{}{}
	dl.pending = append(dl.pending, FileEntry{
		Name: name,
		Path: path,
		Size: info.Size(),
	})
}

// Open lists the directory and, in follow mode, starts the watcher.
func (dl *DirLister) Open(_ context.Context) error {
	dl.pending = nil
	dl.seen = make(map[string]struct{})

	// The watcher is started first, so no file created during
	// the listing is lost. Duplicates are filtered by name.
	if dl.cfg.Follow {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}

		if err := watcher.Add(dl.cfg.Dir); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dl.cfg.Dir, err)
		}

		dl.watcher = watcher
	}

	entries, err := os.ReadDir(dl.cfg.Dir)
	if err != nil {
		return err
	}

	// os.ReadDir returns the entries sorted by name
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		dl.add(filepath.Join(dl.cfg.Dir, entry.Name()))
	}

	dl.tel.LogInfo("directory listed", "dir", dl.cfg.Dir, "files", len(dl.pending), "follow", dl.cfg.Follow)

	return nil
}

// Next returns the next file.
func (dl *DirLister) Next(ctx context.Context) (FileEntry, error) {
	if dl.seen == nil {
		return FileEntry{}, ErrGeneratorNotOpen
	}

	for len(dl.pending) == 0 {
		if dl.watcher == nil {
			return FileEntry{}, io.EOF
		}

		if err := dl.wait(ctx); err != nil {
			return FileEntry{}, err
		}
	}

	entry := dl.pending[0]
	dl.pending = dl.pending[1:]

	return entry, nil
}

// wait blocks until a new file is created, or returns io.EOF
// if the idle timeout expires.
func (dl *DirLister) wait(ctx context.Context) error {
	idleTimer := time.NewTimer(dl.cfg.IdleTimeout)
	defer idleTimer.Stop()

	for len(dl.pending) == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-idleTimer.C:
			dl.tel.LogInfo("no new files, stop following", "dir", dl.cfg.Dir)
			return io.EOF

		case event, ok := <-dl.watcher.Events:
			if !ok {
				return io.EOF
			}

			dl.handleEvent(event)

		case err, ok := <-dl.watcher.Errors:
			if !ok {
				return io.EOF
			}

			dl.tel.LogError("watcher error", err)
		}
	}

	return nil
}

func (dl *DirLister) handleEvent(event fsnotify.Event) {
	// A file moved into the directory is reported as a create
	if event.Op&fsnotify.Create == fsnotify.Create ||
		event.Op&fsnotify.Write == fsnotify.Write {

		dl.add(event.Name)
	}
}

// Close stops the watcher.
func (dl *DirLister) Close() error {
	if dl.watcher == nil {
		return nil
	}

	err := dl.watcher.Close()
	dl.watcher = nil

	return err
}
