package filestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rpggio/tasktrellis/internal/domain/task"
)

// Reloader is notified when a task file was changed by another writer.
type Reloader interface {
	Reload(ctx context.Context, projectID string) error
}

// Watcher reloads projects whose task files are edited outside this process.
type Watcher struct {
	store  *Store
	target Reloader
	logger *slog.Logger

	fw   *fsnotify.Watcher
	once sync.Once
	done chan struct{}
}

// NewWatcher watches the data directory and every existing project directory.
func NewWatcher(store *Store, target Reloader, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(store.Dir()); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", store.Dir(), err)
	}

	w := &Watcher{
		store:  store,
		target: target,
		logger: logger,
		fw:     fw,
		done:   make(chan struct{}),
	}

	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("reading data dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && task.ValidateProjectID(e.Name()) == nil {
			w.watchProject(filepath.Join(store.Dir(), e.Name()))
		}
	}
	return w, nil
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}

func (w *Watcher) watchProject(dir string) {
	if err := w.fw.Add(dir); err != nil {
		w.logger.Warn("failed to watch project dir", "path", dir, "error", err)
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	dir, base := filepath.Split(event.Name)
	dir = filepath.Clean(dir)

	if dir == filepath.Clean(w.store.Dir()) {
		if event.Has(fsnotify.Create) && task.ValidateProjectID(base) == nil {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.watchProject(event.Name)
			}
		}
		return
	}

	if base != w.store.Format().FileName() || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	projectID := filepath.Base(dir)
	changed, err := w.store.Changed(projectID)
	if err != nil {
		w.logger.Warn("failed to inspect task file", "project_id", projectID, "error", err)
		return
	}
	if !changed {
		return
	}

	w.logger.Info("task file changed externally", "project_id", projectID)
	if err := w.target.Reload(ctx, projectID); err != nil {
		w.logger.Error("failed to reload project", "project_id", projectID, "error", err)
	}
}
