// Package app wires configuration, persistence and services together for
// the server and the command line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/tasktrellis/internal/config"
	"github.com/rpggio/tasktrellis/internal/domain/activity"
	"github.com/rpggio/tasktrellis/internal/domain/project"
	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/rpggio/tasktrellis/internal/filestore"
	"github.com/rpggio/tasktrellis/internal/maintenance"
	"github.com/rpggio/tasktrellis/internal/mcp"
	"github.com/rpggio/tasktrellis/internal/similarity"
	"github.com/rpggio/tasktrellis/internal/sqlite"
)

// App holds every long-lived component of a running process.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Files       *filestore.Store
	Tasks       *task.Service
	Projects    *project.Service
	Maintenance *maintenance.Engine
	// Activity is nil when the activity log is disabled.
	Activity *activity.Service

	db      *sqlite.DB
	watcher *filestore.Watcher
	cancel  context.CancelFunc
}

// Options adjusts how New builds the application.
type Options struct {
	// DisableWatch skips the file watcher even when configuration enables it.
	DisableWatch bool
}

// New opens the data directory and builds the services described by cfg.
// The returned App owns the data directory lock until Close.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	format, err := filestore.ParseFormat(cfg.Data.Format)
	if err != nil {
		return nil, err
	}
	a.Files, err = filestore.Open(cfg.Data.Dir, format, logger)
	if err != nil {
		return nil, err
	}

	storeOpts := cfg.StoreOptions()
	engineOpts := []maintenance.Option{}
	if cfg.Activity.Enabled {
		if err := ensureDir(cfg.Activity.DBPath); err != nil {
			return nil, fmt.Errorf("preparing activity db path: %w", err)
		}
		a.db, err = sqlite.New(cfg.Activity.DBPath)
		if err != nil {
			return nil, err
		}
		if err := a.db.RunMigrations(); err != nil {
			return nil, err
		}
		a.Activity = activity.NewService(sqlite.NewActivityRepository(a.db), logger)
		storeOpts = append(storeOpts, task.WithActivity(a.Activity))
		engineOpts = append(engineOpts, maintenance.WithActivity(a.Activity))
	}

	a.Tasks = task.NewService(a.Files, logger, storeOpts...)
	a.Projects = project.NewService(a.Tasks, logger)

	scorer, err := similarity.New(cfg.ScorerConfig(), logger)
	if err != nil {
		return nil, err
	}
	settings, err := cfg.Maintenance.Settings()
	if err != nil {
		return nil, err
	}
	a.Maintenance = maintenance.NewEngine(a.Tasks, scorer, settings, logger, engineOpts...)
	a.Maintenance.RegisterHooks()

	if cfg.Watch.Enabled && !opts.DisableWatch {
		a.watcher, err = filestore.NewWatcher(a.Files, a.Tasks, logger)
		if err != nil {
			return nil, err
		}
		var watchCtx context.Context
		watchCtx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
		go a.watcher.Run(watchCtx)
	}

	logger.Info("application ready",
		"data_dir", cfg.Data.Dir,
		"format", format,
		"activity", cfg.Activity.Enabled,
		"similarity", cfg.Similarity.Provider,
		"watch", a.watcher != nil,
	)
	return a, nil
}

// MCPServer builds the MCP tool surface over the application's services.
func (a *App) MCPServer(version string) *sdkmcp.Server {
	services := mcp.Services{
		Tasks:       a.Tasks,
		Projects:    a.Projects,
		Maintenance: a.Maintenance,
	}
	if a.Activity != nil {
		services.Activity = a.Activity
	}
	return mcp.NewServer(mcp.Config{
		Services: services,
		Version:  version,
		Logger:   a.Logger,
	})
}

// Health reports whether the data directory and activity log are usable.
func (a *App) Health(ctx context.Context) error {
	if _, err := os.Stat(a.Files.Dir()); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("activity db: %w", err)
		}
	}
	return nil
}

// Close flushes pending writes and releases every resource. It is safe to
// call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	if a.Tasks != nil {
		errs = append(errs, a.Tasks.Close(ctx))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.Files != nil {
		errs = append(errs, a.Files.Close())
	}
	return errors.Join(errs...)
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
