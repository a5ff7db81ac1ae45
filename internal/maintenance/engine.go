// Package maintenance repairs a project's tasks after significant events.
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/tasktrellis/internal/domain/activity"
	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/rpggio/tasktrellis/internal/similarity"
)

// Store is the part of the task store the engine depends on.
type Store interface {
	Subscribe(o task.Observer)
	Batch(ctx context.Context, projectID string, fn func(b *task.Batch) error) error
}

// ActivityLogger records actions and run summaries.
type ActivityLogger interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
}

// Engine runs the ordered repair pipeline.
type Engine struct {
	store      Store
	scorer     similarity.Scorer
	settings   Settings
	activities ActivityLogger
	logger     *slog.Logger
	now        func() time.Time
	newRunID   func() string

	mu         sync.Mutex
	registered bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithActivity writes actions and run summaries to l.
func WithActivity(l ActivityLogger) Option {
	return func(e *Engine) { e.activities = l }
}

// WithClock overrides the time used for metadata backfills.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(fn func() string) Option {
	return func(e *Engine) { e.newRunID = fn }
}

// NewEngine creates an engine. A nil scorer uses lexical similarity.
func NewEngine(store Store, scorer similarity.Scorer, settings Settings, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if scorer == nil {
		scorer = similarity.Lexical{}
	}
	e := &Engine{
		store:    store,
		scorer:   scorer,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterHooks subscribes the engine to store events. Calling it again is a
// no-op.
func (e *Engine) RegisterHooks() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.registered {
		return
	}
	e.store.Subscribe(e)
	e.registered = true
}

// HandleTaskEvent runs a pass when maintenance is enabled for the project
// and the task reached the completion threshold.
func (e *Engine) HandleTaskEvent(ctx context.Context, ev task.Event) {
	cfg := e.settings.For(ev.ProjectID)
	if !cfg.Enabled || ev.Task.Progress < cfg.CompletionThreshold {
		return
	}
	actions, err := e.PerformCleanup(ctx, ev.ProjectID)
	if err != nil {
		e.logger.Error("maintenance pass failed", "project_id", ev.ProjectID, "event", ev.Type, "error", err)
		return
	}
	e.logger.Info("maintenance pass finished", "project_id", ev.ProjectID, "event", ev.Type, "actions", len(actions))
}

// PerformCleanup runs every enabled stage over the project and returns the
// actions taken, in order. Failures on individual tasks are logged and
// skipped.
func (e *Engine) PerformCleanup(ctx context.Context, projectID string) ([]Action, error) {
	if err := task.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	cfg := e.settings.For(projectID)
	r := &run{
		engine: e,
		cfg:    cfg,
		id:     e.newRunID(),
	}
	r.logger = e.logger.With("project_id", projectID, "run_id", r.id)

	err := e.store.Batch(ctx, projectID, func(b *task.Batch) error {
		r.actions = r.actions[:0]
		r.findings = r.findings[:0]
		r.merged = false
		r.execute(ctx, b)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("maintenance of %s: %w", projectID, err)
	}

	e.record(ctx, projectID, r)
	if r.actions == nil {
		r.actions = []Action{}
	}
	return r.actions, nil
}

func (e *Engine) record(ctx context.Context, projectID string, r *run) {
	if e.activities == nil {
		return
	}
	runID := r.id
	log := func(entry *activity.ActivityEntry) {
		entry.ProjectID = projectID
		entry.RunID = &runID
		entry.CreatedAt = e.now()
		if err := e.activities.Log(ctx, entry); err != nil {
			r.logger.Warn("failed to log maintenance activity", "error", err)
		}
	}

	for _, a := range r.actions {
		entry := &activity.ActivityEntry{
			ActivityType: activity.TypeMaintenanceFix,
			Summary:      a.Description,
			Details:      details(map[string]any{"action": a.Type}),
		}
		if a.TaskID > 0 {
			id := a.TaskID
			entry.TaskID = &id
		}
		log(entry)
	}
	for _, f := range r.findings {
		id := f.TaskID
		log(&activity.ActivityEntry{
			TaskID:       &id,
			ActivityType: activity.TypeQualityFlagged,
			Summary:      fmt.Sprintf("task %d below quality bar", f.TaskID),
			Details:      details(map[string]any{"issues": f.Issues}),
		})
	}
	log(&activity.ActivityEntry{
		ActivityType: activity.TypeMaintenanceRun,
		Summary:      fmt.Sprintf("maintenance pass: %d actions, %d findings", len(r.actions), len(r.findings)),
	})
}

func details(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
