package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rpggio/tasktrellis/internal/cache"
	"github.com/rpggio/tasktrellis/internal/coalesce"
	"github.com/rpggio/tasktrellis/internal/domain/activity"
)

const (
	DefaultCacheTTL        = 10 * time.Minute
	DefaultCacheMaxEntries = 64
	DefaultWriteDelay      = 250 * time.Millisecond
)

// Service is the task store. It owns the in-memory task lists of every
// project, serializes mutations per project and persists through a
// write-behind queue.
type Service struct {
	repo       Repository
	activities ActivityRepository
	logger     *slog.Logger
	now        func() time.Time

	cacheTTL   time.Duration
	cacheMax   int
	writeDelay time.Duration

	states *cache.Cache[string, *projectState]
	writes *coalesce.Queue

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	obsMu     sync.RWMutex
	observers []Observer
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithActivity logs every mutation to repo.
func WithActivity(repo ActivityRepository) Option {
	return func(s *Service) { s.activities = repo }
}

// WithCacheLimits bounds the project state cache.
func WithCacheLimits(ttl time.Duration, maxEntries int) Option {
	return func(s *Service) {
		s.cacheTTL = ttl
		s.cacheMax = maxEntries
	}
}

// WithWriteDelay sets how long writes are deferred before flushing.
func WithWriteDelay(d time.Duration) Option {
	return func(s *Service) { s.writeDelay = d }
}

// NewService creates a new task store.
func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		repo:       repo,
		logger:     logger,
		now:        time.Now,
		cacheTTL:   DefaultCacheTTL,
		cacheMax:   DefaultCacheMaxEntries,
		writeDelay: DefaultWriteDelay,
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.states = cache.New[string, *projectState](s.cacheTTL, s.cacheMax,
		cache.WithClock(s.now),
		cache.WithEvictHook(func(key any) {
			logger.Debug("project state evicted", "project_id", key)
		}),
	)
	s.writes = coalesce.New(s.writeDelay, logger)
	return s
}

// Subscribe registers an observer for completion events.
func (s *Service) Subscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Init loads a project into memory, creating its task file when missing.
func (s *Service) Init(ctx context.Context, projectID string) error {
	return s.read(ctx, projectID, func(*projectState) error { return nil })
}

// CreateTask adds a task with the next id. When req.ParentID is set the new
// task is listed in the parent's subtasks.
func (s *Service) CreateTask(ctx context.Context, projectID string, req CreateRequest) (*Task, error) {
	if err := ValidateCreateInput(req); err != nil {
		return nil, err
	}

	var created Task
	err := s.write(ctx, projectID, func(tasks []Task, now time.Time) ([]Task, error) {
		id := len(tasks) + 1
		if indexOf(tasks, id) >= 0 {
			s.logger.Warn("task id collision", "project_id", projectID, "task_id", id)
			return nil, fmt.Errorf("%w: id %d already exists in project %s", ErrIDCollision, id, projectID)
		}
		deps := cloneIDs(req.Dependencies)
		if err := checkReferences(tasks, id, "dependencies", deps); err != nil {
			return nil, err
		}

		parentPos := -1
		if req.ParentID != nil {
			parentPos = indexOf(tasks, *req.ParentID)
			if parentPos < 0 {
				return nil, notFound(projectID, *req.ParentID)
			}
			if tasks[parentPos].IsSubtask {
				return nil, validationError("parentId", "task %d is a subtask and cannot own subtasks", *req.ParentID)
			}
		}

		created = Task{
			ID:           id,
			Title:        req.Title,
			Description:  req.Description,
			Status:       StatusPending,
			Priority:     req.Priority,
			Progress:     0,
			Dependencies: deps,
			Subtasks:     []int{},
			IsSubtask:    parentPos >= 0,
			AssignedTo:   req.AssignedTo,
			ProjectID:    projectID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if req.AssignedTo != "" {
			ts := now
			created.AssignedAt = &ts
		}
		if parentPos >= 0 {
			tasks[parentPos].Subtasks = append(tasks[parentPos].Subtasks, id)
			tasks[parentPos].UpdatedAt = now
		}
		return append(tasks, created), nil
	})
	if err != nil {
		return nil, err
	}

	s.logActivity(ctx, projectID, &created.ID, activity.TypeTaskCreated, fmt.Sprintf("created task %d %q", created.ID, created.Title))
	return created.Clone().ptr(), nil
}

// AddSubtask creates a task owned by parentID.
func (s *Service) AddSubtask(ctx context.Context, projectID string, parentID int, req CreateRequest) (*Task, error) {
	if err := ValidateTaskID(parentID); err != nil {
		return nil, err
	}
	req.ParentID = &parentID
	return s.CreateTask(ctx, projectID, req)
}

// GetTask returns a single task.
func (s *Service) GetTask(ctx context.Context, projectID string, id int) (*Task, error) {
	if err := ValidateTaskID(id); err != nil {
		return nil, err
	}
	var out Task
	err := s.read(ctx, projectID, func(st *projectState) error {
		t, ok := st.get(id)
		if !ok {
			return notFound(projectID, id)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks returns the project's tasks in file order, optionally filtered.
func (s *Service) ListTasks(ctx context.Context, projectID string, opts ListOptions) ([]Task, error) {
	if opts.Status != nil {
		if err := ValidateStatus(*opts.Status); err != nil {
			return nil, err
		}
	}
	var out []Task
	err := s.read(ctx, projectID, func(st *projectState) error {
		out = st.filter(opts)
		return nil
	})
	return out, err
}

// GetTasksByStatus returns the project's tasks with the given status.
func (s *Service) GetTasksByStatus(ctx context.Context, projectID string, status Status) ([]Task, error) {
	return s.ListTasks(ctx, projectID, ListOptions{Status: &status})
}

// AllTasks returns every task of projectID, or of every known project when
// projectID is empty.
func (s *Service) AllTasks(ctx context.Context, projectID string) ([]Task, error) {
	if projectID != "" {
		return s.ListTasks(ctx, projectID, ListOptions{})
	}
	projects, err := s.GetProjects(ctx)
	if err != nil {
		return nil, err
	}
	out := []Task{}
	for _, p := range projects {
		tasks, err := s.ListTasks(ctx, p, ListOptions{})
		if err != nil {
			return nil, err
		}
		out = append(out, tasks...)
	}
	return out, nil
}

// GetSubtasks returns the tasks listed in the parent's subtasks, in order.
func (s *Service) GetSubtasks(ctx context.Context, projectID string, parentID int) ([]Task, error) {
	if err := ValidateTaskID(parentID); err != nil {
		return nil, err
	}
	var out []Task
	err := s.read(ctx, projectID, func(st *projectState) error {
		parent, ok := st.get(parentID)
		if !ok {
			return notFound(projectID, parentID)
		}
		out = make([]Task, 0, len(parent.Subtasks))
		for _, id := range parent.Subtasks {
			if t, ok := st.get(id); ok {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

// ParentOf returns the id of the task listing id as a subtask.
func (s *Service) ParentOf(ctx context.Context, projectID string, id int) (int, bool, error) {
	if err := ValidateTaskID(id); err != nil {
		return 0, false, err
	}
	var (
		parent int
		found  bool
	)
	err := s.read(ctx, projectID, func(st *projectState) error {
		if _, ok := st.idx.byID[id]; !ok {
			return notFound(projectID, id)
		}
		parent, found = st.idx.parentOf[id]
		return nil
	})
	return parent, found, err
}

// UpdateTask applies a patch. When the patch sets progress and every subtask
// is completed, progress is forced to 100.
func (s *Service) UpdateTask(ctx context.Context, projectID string, id int, req UpdateRequest) (*Task, error) {
	if err := ValidateTaskID(id); err != nil {
		return nil, err
	}
	if err := ValidateUpdateInput(req); err != nil {
		return nil, err
	}

	var updated Task
	err := s.write(ctx, projectID, func(tasks []Task, now time.Time) ([]Task, error) {
		pos := indexOf(tasks, id)
		if pos < 0 {
			return nil, notFound(projectID, id)
		}
		if err := applyUpdate(tasks, pos, req, now); err != nil {
			return nil, err
		}
		updated = tasks[pos]
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	s.logActivity(ctx, projectID, &id, activity.TypeTaskUpdated, fmt.Sprintf("updated task %d", id))
	return updated.Clone().ptr(), nil
}

// CompleteTask marks a task completed with full progress.
func (s *Service) CompleteTask(ctx context.Context, projectID string, id int) (*Task, error) {
	if err := ValidateTaskID(id); err != nil {
		return nil, err
	}
	t, changed, err := s.complete(ctx, projectID, id, nil)
	if err != nil {
		return nil, err
	}
	if changed {
		s.emit(ctx, Event{Type: EventTaskCompleted, ProjectID: projectID, Task: t.Clone()})
	}
	return t.ptr(), nil
}

// UpdateProgress sets the progress of an assigned task. Reaching 100
// completes the task. A pending task with progress moves to in-progress.
func (s *Service) UpdateProgress(ctx context.Context, projectID string, id, progress int) (*Task, error) {
	if err := ValidateTaskID(id); err != nil {
		return nil, err
	}
	if err := ValidateProgress(progress); err != nil {
		return nil, err
	}

	assigned := func(tasks []Task, pos int) error {
		if tasks[pos].AssignedTo == "" {
			return fmt.Errorf("%w: task %d has no assignee", ErrState, id)
		}
		return nil
	}

	if progress < 100 {
		var (
			updated  Task
			complete bool
		)
		err := s.write(ctx, projectID, func(tasks []Task, now time.Time) ([]Task, error) {
			pos := indexOf(tasks, id)
			if pos < 0 {
				return nil, notFound(projectID, id)
			}
			if err := assigned(tasks, pos); err != nil {
				return nil, err
			}
			if subtasksCompleted(tasks, tasks[pos]) {
				complete = true
				return nil, errSkip
			}
			req := UpdateRequest{Progress: &progress}
			if progress > 0 && tasks[pos].Status == StatusPending {
				req.Status = Ptr(StatusInProgress)
			}
			if err := applyUpdate(tasks, pos, req, now); err != nil {
				return nil, err
			}
			updated = tasks[pos]
			return tasks, nil
		})
		if err != nil && !errors.Is(err, errSkip) {
			return nil, err
		}
		if !complete {
			s.logActivity(ctx, projectID, &id, activity.TypeTaskUpdated, fmt.Sprintf("progress of task %d set to %d%%", id, progress))
			return updated.Clone().ptr(), nil
		}
	}

	t, changed, err := s.complete(ctx, projectID, id, assigned)
	if err != nil {
		return nil, err
	}
	if changed {
		s.emit(ctx, Event{Type: EventProgressReached100, ProjectID: projectID, Task: t.Clone()})
	}
	return t.ptr(), nil
}

// AssignTask sets or clears the assignee.
func (s *Service) AssignTask(ctx context.Context, projectID string, id int, assignee string) (*Task, error) {
	if err := ValidateTaskID(id); err != nil {
		return nil, err
	}
	var updated Task
	err := s.write(ctx, projectID, func(tasks []Task, now time.Time) ([]Task, error) {
		pos := indexOf(tasks, id)
		if pos < 0 {
			return nil, notFound(projectID, id)
		}
		if err := applyUpdate(tasks, pos, UpdateRequest{AssignedTo: &assignee}, now); err != nil {
			return nil, err
		}
		updated = tasks[pos]
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("assigned task %d to %s", id, assignee)
	if assignee == "" {
		summary = fmt.Sprintf("unassigned task %d", id)
	}
	s.logActivity(ctx, projectID, &id, activity.TypeTaskUpdated, summary)
	return updated.Clone().ptr(), nil
}

// DeleteTask removes a task and, recursively, its subtasks. When reorganize
// is set the remaining tasks are renumbered. It returns the removed ids.
func (s *Service) DeleteTask(ctx context.Context, projectID string, id int, reorganize bool) ([]int, error) {
	if err := ValidateTaskID(id); err != nil {
		return nil, err
	}
	var removed []int
	err := s.write(ctx, projectID, func(tasks []Task, _ time.Time) ([]Task, error) {
		if indexOf(tasks, id) < 0 {
			return nil, notFound(projectID, id)
		}
		tasks, removed = deleteCascade(tasks, id)
		if reorganize {
			tasks, _ = ReorganizeTaskIDs(tasks)
		}
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	s.logActivity(ctx, projectID, &id, activity.TypeTaskDeleted, fmt.Sprintf("deleted tasks %v", removed))
	return removed, nil
}

// DeleteTasks removes every task matching c, then renumbers once if anything
// was removed.
func (s *Service) DeleteTasks(ctx context.Context, projectID string, c DeleteCriteria) ([]int, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	removed := []int{}
	err := s.write(ctx, projectID, func(tasks []Task, _ time.Time) ([]Task, error) {
		targets, err := deletionTargets(tasks, projectID, c)
		if err != nil {
			return nil, err
		}
		for _, id := range targets {
			var gone []int
			tasks, gone = deleteCascade(tasks, id)
			removed = append(removed, gone...)
		}
		if len(removed) == 0 {
			return nil, errSkip
		}
		tasks, _ = ReorganizeTaskIDs(tasks)
		return tasks, nil
	})
	if err != nil && !errors.Is(err, errSkip) {
		return nil, err
	}

	if len(removed) > 0 {
		s.logActivity(ctx, projectID, nil, activity.TypeTaskDeleted, fmt.Sprintf("deleted %d tasks (%s)", len(removed), c.Mode))
	}
	return removed, nil
}

// Reorganize renumbers the project's tasks to 1..N and returns the old to
// new id mapping.
func (s *Service) Reorganize(ctx context.Context, projectID string) (map[int]int, error) {
	var mapping map[int]int
	err := s.write(ctx, projectID, func(tasks []Task, _ time.Time) ([]Task, error) {
		var out []Task
		out, mapping = ReorganizeTaskIDs(tasks)
		if !renumbered(mapping) {
			return nil, errSkip
		}
		return out, nil
	})
	if err != nil && !errors.Is(err, errSkip) {
		return nil, err
	}
	if renumbered(mapping) {
		s.logActivity(ctx, projectID, nil, activity.TypeTasksRenumbered, fmt.Sprintf("renumbered %d tasks", len(mapping)))
	}
	return mapping, nil
}

// GetProjects lists the projects that have a persisted task file.
func (s *Service) GetProjects(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, FileSystemError("listing projects", err)
	}
	return ids, nil
}

// Reload drops the in-memory state of a project and reads it from disk.
// Writes that have not started yet are discarded.
func (s *Service) Reload(ctx context.Context, projectID string) error {
	if err := ValidateProjectID(projectID); err != nil {
		return err
	}
	lock := s.projectLock(projectID)
	lock.Lock()
	s.writes.Discard(projectID)
	if err := s.writes.Flush(ctx, projectID); err != nil {
		s.logger.Warn("in-flight write failed during reload", "project_id", projectID, "error", err)
	}
	s.states.Delete(projectID)
	_, err := s.stateLocked(ctx, projectID)
	lock.Unlock()
	if err != nil {
		return err
	}

	s.logger.Info("project reloaded from disk", "project_id", projectID)
	s.logActivity(ctx, projectID, nil, activity.TypeProjectReloaded, "reloaded from disk")
	return nil
}

// Flush writes pending changes of projectID, or of every project when
// projectID is empty, and waits for them to land.
func (s *Service) Flush(ctx context.Context, projectID string) error {
	var err error
	if projectID == "" {
		err = s.writes.FlushAll(ctx)
	} else {
		err = s.writes.Flush(ctx, projectID)
	}
	return FileSystemError("flushing writes", err)
}

// Close flushes every pending write and rejects further mutations.
func (s *Service) Close(ctx context.Context) error {
	return FileSystemError("closing store", s.writes.Close(ctx))
}

// errSkip aborts a write without error when nothing changed.
var errSkip = errors.New("no change")

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[projectID] = l
	}
	return l
}

// stateLocked returns the cached state or loads it from disk. Caller holds
// the project lock.
func (s *Service) stateLocked(ctx context.Context, projectID string) (*projectState, error) {
	if st, ok := s.states.Get(projectID); ok {
		return st, nil
	}
	// An evicted project may still have a write queued; land it before reading.
	if s.writes.HasPending(projectID) {
		if err := s.writes.Flush(ctx, projectID); err != nil {
			return nil, FileSystemError("flushing before load", err)
		}
	}
	tasks, err := s.repo.Load(ctx, projectID)
	if err != nil {
		return nil, FileSystemError("loading tasks", err)
	}
	st := newProjectState(tasks)
	s.states.Set(projectID, st)
	s.logger.Debug("project loaded", "project_id", projectID, "tasks", len(tasks))
	return st, nil
}

func (s *Service) read(ctx context.Context, projectID string, fn func(*projectState) error) error {
	if err := ValidateProjectID(projectID); err != nil {
		return err
	}
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.stateLocked(ctx, projectID)
	if err != nil {
		return err
	}
	return fn(st)
}

// write runs fn on a private copy of the project's tasks and commits the
// result. Returning an error, including errSkip, leaves the state untouched.
func (s *Service) write(ctx context.Context, projectID string, fn func(tasks []Task, now time.Time) ([]Task, error)) error {
	if err := ValidateProjectID(projectID); err != nil {
		return err
	}
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.stateLocked(ctx, projectID)
	if err != nil {
		return err
	}
	tasks, err := fn(cloneTasks(st.tasks), s.now())
	if err != nil {
		return err
	}
	return s.commitLocked(projectID, tasks)
}

// commitLocked replaces the cached state and schedules the disk write. The
// committed slice is never mutated afterwards, so the write can share it.
func (s *Service) commitLocked(projectID string, tasks []Task) error {
	st := newProjectState(tasks)
	s.states.Set(projectID, st)
	if _, err := s.writes.Schedule(projectID, func(ctx context.Context) error {
		return s.repo.Save(ctx, projectID, st.tasks)
	}); err != nil {
		return FileSystemError("scheduling write", err)
	}
	return nil
}

// complete marks id completed. changed is false when the task already was.
func (s *Service) complete(ctx context.Context, projectID string, id int, check func([]Task, int) error) (Task, bool, error) {
	var (
		out     Task
		changed bool
	)
	err := s.write(ctx, projectID, func(tasks []Task, now time.Time) ([]Task, error) {
		pos := indexOf(tasks, id)
		if pos < 0 {
			return nil, notFound(projectID, id)
		}
		if check != nil {
			if err := check(tasks, pos); err != nil {
				return nil, err
			}
		}
		t := tasks[pos]
		if t.Status == StatusCompleted && t.Progress == 100 && t.CompletedAt != nil {
			out = t
			return nil, errSkip
		}
		if err := applyUpdate(tasks, pos, UpdateRequest{
			Status:      Ptr(StatusCompleted),
			Progress:    Ptr(100),
			CompletedAt: &now,
		}, now); err != nil {
			return nil, err
		}
		out = tasks[pos]
		changed = true
		return tasks, nil
	})
	if err != nil && !errors.Is(err, errSkip) {
		return Task{}, false, err
	}
	if changed {
		s.logActivity(ctx, projectID, &id, activity.TypeTaskCompleted, fmt.Sprintf("completed task %d", id))
	}
	return out.Clone(), changed, nil
}

func (s *Service) emit(ctx context.Context, ev Event) {
	s.obsMu.RLock()
	observers := slices.Clone(s.observers)
	s.obsMu.RUnlock()

	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("task observer panicked", "event", ev.Type, "project_id", ev.ProjectID, "panic", r)
				}
			}()
			o.HandleTaskEvent(ctx, ev)
		}()
	}
}

func (s *Service) logActivity(ctx context.Context, projectID string, taskID *int, kind activity.ActivityType, summary string) {
	if s.activities == nil {
		return
	}
	var id *int
	if taskID != nil {
		v := *taskID
		id = &v
	}
	entry := &activity.ActivityEntry{
		ProjectID:    projectID,
		TaskID:       id,
		ActivityType: kind,
		Summary:      summary,
		CreatedAt:    s.now(),
	}
	if err := s.activities.Log(ctx, entry); err != nil {
		s.logger.Warn("failed to log activity", "project_id", projectID, "type", kind, "error", err)
	}
}

func (t Task) ptr() *Task {
	return &t
}
