package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/praxis-labs/mentat/internal/container"
)

// Event types produced by the file activity source.
const (
	EventFileCreated  = "file.created"
	EventFileModified = "file.modified"
	EventFileRemoved  = "file.removed"
	EventFileRenamed  = "file.renamed"
)

// AttrPath is the attribute carrying the path relative to the watched
// directory.
const AttrPath = "path"

// FileActivityConfig configures a FileActivitySource.
type FileActivityConfig struct {
	// Dir is the directory to watch.
	Dir string

	// Recursive also watches existing subdirectories and picks up
	// directories created while watching.
	Recursive bool

	Logger *zap.Logger
}

// FileActivitySource observes filesystem activity under a directory
// and turns it into interaction events. Chmod-only changes are
// ignored.
type FileActivitySource struct {
	dir       string
	recursive bool
	logger    *zap.Logger
}

// NewFileActivitySource creates a source for the configured directory.
// The watch itself starts on Observe.
func NewFileActivitySource(cfg FileActivityConfig) (*FileActivitySource, error) {
	if cfg.Dir == "" {
		return nil, errors.New("source: watch directory is required")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source: %s is not a directory", cfg.Dir)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &FileActivitySource{
		dir:       cfg.Dir,
		recursive: cfg.Recursive,
		logger:    cfg.Logger,
	}, nil
}

// Observe starts a watcher on the directory. Each observation owns a
// fresh watcher, so cancelled observations can be replaced.
func (s *FileActivitySource) Observe(ctx context.Context, onEvent func(container.InteractionEvent)) (container.ObservationHandle, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}
	if s.recursive {
		if err := addSubdirectories(watcher, s.dir); err != nil {
			_ = watcher.Close()
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	go s.run(runCtx, watcher, onEvent, h)
	return h, nil
}

func (s *FileActivitySource) run(ctx context.Context, watcher *fsnotify.Watcher, onEvent func(container.InteractionEvent), h *handle) {
	defer func() { _ = watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			h.finish(ctx.Err())
			return

		case event, ok := <-watcher.Events:
			if !ok {
				h.finish(errors.New("source: watcher events channel closed"))
				return
			}
			if typ := mapEventType(event); typ != "" {
				onEvent(container.InteractionEvent{
					Type:       typ,
					Attributes: map[string]string{AttrPath: s.relPath(event.Name)},
					Timestamp:  time.Now().UnixMilli(),
				})
			}
			if s.recursive && event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						s.logger.Warn("failed to watch new directory",
							zap.String("dir", event.Name), zap.Error(err))
					}
				}
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				h.finish(errors.New("source: watcher errors channel closed"))
				return
			}
			s.logger.Warn("watcher error", zap.Error(watchErr))
		}
	}
}

func (s *FileActivitySource) relPath(name string) string {
	rel, err := filepath.Rel(s.dir, name)
	if err != nil {
		return name
	}
	return rel
}

func mapEventType(event fsnotify.Event) string {
	switch {
	case event.Has(fsnotify.Create):
		return EventFileCreated
	case event.Has(fsnotify.Write):
		return EventFileModified
	case event.Has(fsnotify.Remove):
		return EventFileRemoved
	case event.Has(fsnotify.Rename):
		return EventFileRenamed
	default:
		return ""
	}
}

func addSubdirectories(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
