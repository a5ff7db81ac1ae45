// Package filestore persists each project's tasks as a single structured file
// under a data directory owned by one process.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/rpggio/tasktrellis/internal/repository"
)

const lockFileName = ".lock"

// Store implements task.Repository on top of <dir>/<projectId>/tasks.<ext>.
type Store struct {
	dir    string
	format Format
	logger *slog.Logger
	lock   *flock.Flock
	now    func() time.Time

	mu     sync.Mutex
	hashes map[string]string // last content this process read or wrote
}

// Open creates dir if needed and takes the exclusive data directory lock.
// It returns repository.ErrLocked when another process holds it.
func Open(dir string, format Format, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking data dir %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", repository.ErrLocked, dir)
	}

	return &Store{
		dir:    dir,
		format: format,
		logger: logger,
		lock:   lock,
		now:    time.Now,
		hashes: make(map[string]string),
	}, nil
}

// Close releases the data directory lock.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Format returns the task file encoding.
func (s *Store) Format() Format {
	return s.format
}

func (s *Store) path(projectID string) string {
	return filepath.Join(s.dir, projectID, s.format.FileName())
}

// Load reads a project's tasks. A missing file is created empty; a file that
// cannot be decoded is moved aside and replaced by an empty one.
func (s *Store) Load(_ context.Context, projectID string) ([]task.Task, error) {
	if err := task.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(s.dir, projectID), 0o755); err != nil {
		return nil, fmt.Errorf("creating project dir: %w", err)
	}

	p := s.path(projectID)
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		if err := s.write(projectID, []task.Task{}); err != nil {
			return nil, err
		}
		return []task.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}

	tasks, err := s.format.decode(data)
	if err != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%d", p, s.now().Unix())
		s.logger.Warn("task file is corrupt, starting empty",
			"project_id", projectID, "path", p, "moved_to", quarantine, "error", err)
		if err := os.Rename(p, quarantine); err != nil {
			return nil, fmt.Errorf("%w: moving aside %s: %w", repository.ErrCorrupt, p, err)
		}
		if err := s.write(projectID, []task.Task{}); err != nil {
			return nil, err
		}
		return []task.Task{}, nil
	}

	s.remember(projectID, data)
	return tasks, nil
}

// Save replaces a project's task file atomically.
func (s *Store) Save(_ context.Context, projectID string, tasks []task.Task) error {
	if err := task.ValidateProjectID(projectID); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.dir, projectID), 0o755); err != nil {
		return fmt.Errorf("creating project dir: %w", err)
	}
	return s.write(projectID, tasks)
}

// ListProjects returns the sorted ids of project directories holding a task
// file.
func (s *Store) ListProjects(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading data dir: %w", err)
	}
	ids := []string{}
	for _, e := range entries {
		if !e.IsDir() || task.ValidateProjectID(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(s.path(e.Name())); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Changed reports whether the task file differs from what this process last
// read or wrote.
func (s *Store) Changed(projectID string) (bool, error) {
	data, err := os.ReadFile(s.path(projectID))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashes[projectID] != digest(data), nil
}

func (s *Store) write(projectID string, tasks []task.Task) error {
	data, err := s.format.encode(tasks)
	if err != nil {
		return fmt.Errorf("encoding tasks: %w", err)
	}

	p := s.path(projectID)
	tmp, err := os.CreateTemp(filepath.Dir(p), s.format.FileName()+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	// Remember before the rename so the watcher never sees our own write as foreign.
	prev := s.remember(projectID, data)
	if err := os.Rename(tmp.Name(), p); err != nil {
		s.restore(projectID, prev)
		return fmt.Errorf("replacing %s: %w", p, err)
	}
	return nil
}

func (s *Store) remember(projectID string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.hashes[projectID]
	s.hashes[projectID] = digest(data)
	return prev
}

func (s *Store) restore(projectID, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[projectID] = hash
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
