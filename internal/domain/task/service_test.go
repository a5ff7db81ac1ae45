package task_test

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/tasktrellis/internal/domain/activity"
	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/rpggio/tasktrellis/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu    sync.Mutex
	data  map[string][]task.Task
	saves int
}

func newMemRepo() *memRepo {
	return &memRepo{data: make(map[string][]task.Task)}
}

func (r *memRepo) Load(_ context.Context, projectID string) ([]task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tasks, ok := r.data[projectID]
	if !ok {
		r.data[projectID] = []task.Task{}
		return []task.Task{}, nil
	}
	out := make([]task.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out, nil
}

func (r *memRepo) Save(_ context.Context, projectID string, tasks []task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]task.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	r.data[projectID] = out
	r.saves++
	return nil
}

func (r *memRepo) ListProjects(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.data))
	for id := range r.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memRepo) stored(projectID string) []task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[projectID]
}

func (r *memRepo) put(projectID string, tasks []task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[projectID] = tasks
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newStore(t *testing.T, repo task.Repository, opts ...task.Option) *task.Service {
	t.Helper()
	opts = append([]task.Option{task.WithClock(steppingClock()), task.WithWriteDelay(time.Hour)}, opts...)
	svc := task.NewService(repo, nil, opts...)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func create(t *testing.T, svc *task.Service, projectID, title string) *task.Task {
	t.Helper()
	created, err := svc.CreateTask(context.Background(), projectID, task.CreateRequest{
		Title:       title,
		Description: title + " description",
	})
	require.NoError(t, err)
	return created
}

func TestCreateTask_Defaults(t *testing.T) {
	svc := newStore(t, newMemRepo())

	created, err := svc.CreateTask(context.Background(), "p1", task.CreateRequest{
		Title:       "Implement login",
		Description: "Add the login form",
	})
	require.NoError(t, err)
	require.Equal(t, 1, created.ID)
	require.Equal(t, task.StatusPending, created.Status)
	require.Equal(t, 0, created.Progress)
	require.Equal(t, []int{}, created.Subtasks)
	require.Equal(t, "p1", created.ProjectID)
	require.False(t, created.CreatedAt.IsZero())

	second := create(t, svc, "p1", "Second")
	require.Equal(t, 2, second.ID)
}

func TestCreateTask_ValidationBeforeIO(t *testing.T) {
	repo := &mocks.TaskRepository{}
	svc := newStore(t, repo)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, "bad id!", task.CreateRequest{Title: "ok"})
	require.ErrorIs(t, err, task.ErrValidation)

	_, err = svc.CreateTask(ctx, "p1", task.CreateRequest{Title: "  "})
	require.ErrorIs(t, err, task.ErrValidation)

	_, err = svc.GetTask(ctx, "p1", 0)
	require.ErrorIs(t, err, task.ErrValidation)

	repo.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestCreateTask_LoadFailureIsFileSystemError(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("permission denied")
	repo := &mocks.TaskRepository{}
	repo.On("Load", ctx, "p1").Return(nil, cause)

	svc := newStore(t, repo)
	_, err := svc.CreateTask(ctx, "p1", task.CreateRequest{Title: "x"})
	require.ErrorIs(t, err, task.ErrFileSystem)
	require.ErrorIs(t, err, cause)
}

func TestCreateTask_IDCollision(t *testing.T) {
	repo := newMemRepo()
	repo.put("p1", []task.Task{
		{ID: 1, Title: "one", Status: task.StatusPending, Dependencies: []int{}, Subtasks: []int{}},
		{ID: 3, Title: "three", Status: task.StatusPending, Dependencies: []int{}, Subtasks: []int{}},
	})
	svc := newStore(t, repo)

	_, err := svc.CreateTask(context.Background(), "p1", task.CreateRequest{Title: "new"})
	require.ErrorIs(t, err, task.ErrIDCollision)
	require.ErrorIs(t, err, task.ErrState)

	tasks, err := svc.ListTasks(context.Background(), "p1", task.ListOptions{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestCreateTask_UnknownDependency(t *testing.T) {
	svc := newStore(t, newMemRepo())
	_, err := svc.CreateTask(context.Background(), "p1", task.CreateRequest{Title: "x", Dependencies: []int{9}})
	require.ErrorIs(t, err, task.ErrValidation)
}

func TestAddSubtask(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()
	parent := create(t, svc, "p1", "Parent")

	sub, err := svc.AddSubtask(ctx, "p1", parent.ID, task.CreateRequest{Title: "Child"})
	require.NoError(t, err)
	require.True(t, sub.IsSubtask)

	got, err := svc.GetTask(ctx, "p1", parent.ID)
	require.NoError(t, err)
	require.Equal(t, []int{sub.ID}, got.Subtasks)

	subs, err := svc.GetSubtasks(ctx, "p1", parent.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "Child", subs[0].Title)

	owner, ok, err := svc.ParentOf(ctx, "p1", sub.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, parent.ID, owner)

	_, err = svc.AddSubtask(ctx, "p1", sub.ID, task.CreateRequest{Title: "Grandchild"})
	require.ErrorIs(t, err, task.ErrValidation)

	_, err = svc.AddSubtask(ctx, "p1", 42, task.CreateRequest{Title: "Lost"})
	require.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestListTasks_Filters(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()
	create(t, svc, "p1", "A")
	b := create(t, svc, "p1", "B")
	c := create(t, svc, "p1", "C")

	_, err := svc.AssignTask(ctx, "p1", b.ID, "agent")
	require.NoError(t, err)
	_, err = svc.AssignTask(ctx, "p1", c.ID, "agent")
	require.NoError(t, err)
	_, err = svc.CompleteTask(ctx, "p1", c.ID)
	require.NoError(t, err)

	pending, err := svc.GetTasksByStatus(ctx, "p1", task.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	done := task.StatusCompleted
	agent := "agent"
	both, err := svc.ListTasks(ctx, "p1", task.ListOptions{Status: &done, AssignedTo: &agent})
	require.NoError(t, err)
	require.Len(t, both, 1)
	require.Equal(t, c.ID, both[0].ID)

	mine, err := svc.ListTasks(ctx, "p1", task.ListOptions{AssignedTo: &agent})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	_, err = svc.GetTasksByStatus(ctx, "p1", task.Status("later"))
	require.ErrorIs(t, err, task.ErrValidation)
}

func TestAllTasks_AcrossProjects(t *testing.T) {
	svc := newStore(t, newMemRepo())
	create(t, svc, "p1", "A")
	create(t, svc, "p2", "B")

	all, err := svc.AllTasks(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	one, err := svc.AllTasks(context.Background(), "p2")
	require.NoError(t, err)
	require.Len(t, one, 1)
}

func TestUpdateTask_SubtaskProgressFloor(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()
	parent := create(t, svc, "p1", "Parent")
	sub, err := svc.AddSubtask(ctx, "p1", parent.ID, task.CreateRequest{Title: "Child"})
	require.NoError(t, err)

	updated, err := svc.UpdateTask(ctx, "p1", parent.ID, task.UpdateRequest{Progress: task.Ptr(30)})
	require.NoError(t, err)
	require.Equal(t, 30, updated.Progress)

	_, err = svc.CompleteTask(ctx, "p1", sub.ID)
	require.NoError(t, err)

	updated, err = svc.UpdateTask(ctx, "p1", parent.ID, task.UpdateRequest{Progress: task.Ptr(40)})
	require.NoError(t, err)
	require.Equal(t, 100, updated.Progress)
}

func TestUpdateTask_Validation(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()
	a := create(t, svc, "p1", "A")

	_, err := svc.UpdateTask(ctx, "p1", a.ID, task.UpdateRequest{Progress: task.Ptr(101)})
	require.ErrorIs(t, err, task.ErrValidation)

	_, err = svc.UpdateTask(ctx, "p1", a.ID, task.UpdateRequest{Dependencies: &[]int{a.ID}})
	require.ErrorIs(t, err, task.ErrValidation)

	_, err = svc.UpdateTask(ctx, "p1", 7, task.UpdateRequest{Title: task.Ptr("x")})
	require.ErrorIs(t, err, task.ErrTaskNotFound)

	before := a.UpdatedAt
	updated, err := svc.UpdateTask(ctx, "p1", a.ID, task.UpdateRequest{Title: task.Ptr("Renamed")})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
	require.True(t, updated.UpdatedAt.After(before))
}

func TestUpdateProgress_RequiresAssignee(t *testing.T) {
	svc := newStore(t, newMemRepo())
	a := create(t, svc, "p1", "A")

	_, err := svc.UpdateProgress(context.Background(), "p1", a.ID, 50)
	require.ErrorIs(t, err, task.ErrState)
}

func TestUpdateProgress_MovesPendingToInProgress(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()
	a := create(t, svc, "p1", "A")
	_, err := svc.AssignTask(ctx, "p1", a.ID, "agent")
	require.NoError(t, err)

	updated, err := svc.UpdateProgress(ctx, "p1", a.ID, 40)
	require.NoError(t, err)
	require.Equal(t, 40, updated.Progress)
	require.Equal(t, task.StatusInProgress, updated.Status)
}

func TestUpdateProgress_100CompletesAndEmitsOnce(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()
	a := create(t, svc, "p1", "A")
	_, err := svc.AssignTask(ctx, "p1", a.ID, "agent")
	require.NoError(t, err)
	_, err = svc.UpdateTask(ctx, "p1", a.ID, task.UpdateRequest{Status: task.Ptr(task.StatusInProgress)})
	require.NoError(t, err)

	var events []task.Event
	svc.Subscribe(task.ObserverFunc(func(_ context.Context, ev task.Event) {
		events = append(events, ev)
	}))

	done, err := svc.UpdateProgress(ctx, "p1", a.ID, 100)
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, done.Status)
	require.Equal(t, 100, done.Progress)
	require.NotNil(t, done.CompletedAt)

	require.Len(t, events, 1)
	require.Equal(t, task.EventProgressReached100, events[0].Type)
	require.Equal(t, "p1", events[0].ProjectID)
	require.Equal(t, a.ID, events[0].Task.ID)

	// Completing again is a no-op and emits nothing.
	_, err = svc.CompleteTask(ctx, "p1", a.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestCompleteTask_EmitsTaskCompleted(t *testing.T) {
	svc := newStore(t, newMemRepo())
	a := create(t, svc, "p1", "A")

	var got []task.EventType
	svc.Subscribe(task.ObserverFunc(func(_ context.Context, ev task.Event) {
		got = append(got, ev.Type)
	}))

	_, err := svc.CompleteTask(context.Background(), "p1", a.ID)
	require.NoError(t, err)
	require.Equal(t, []task.EventType{task.EventTaskCompleted}, got)
}

func TestObserverPanicIsRecovered(t *testing.T) {
	svc := newStore(t, newMemRepo())
	a := create(t, svc, "p1", "A")

	called := false
	svc.Subscribe(task.ObserverFunc(func(context.Context, task.Event) { panic("observer bug") }))
	svc.Subscribe(task.ObserverFunc(func(context.Context, task.Event) { called = true }))

	_, err := svc.CompleteTask(context.Background(), "p1", a.ID)
	require.NoError(t, err)
	require.True(t, called)
}

func TestObserverMayCallStore(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()
	a := create(t, svc, "p1", "A")

	var seen int
	svc.Subscribe(task.ObserverFunc(func(ctx context.Context, ev task.Event) {
		tasks, err := svc.ListTasks(ctx, ev.ProjectID, task.ListOptions{})
		require.NoError(t, err)
		seen = len(tasks)
	}))

	_, err := svc.CompleteTask(ctx, "p1", a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, seen)
}

func TestDeleteTask_CascadeAndReorganize(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()

	parent := create(t, svc, "p1", "Parent")
	_, err := svc.AddSubtask(ctx, "p1", parent.ID, task.CreateRequest{Title: "Sub 2"})
	require.NoError(t, err)
	_, err = svc.AddSubtask(ctx, "p1", parent.ID, task.CreateRequest{Title: "Sub 3"})
	require.NoError(t, err)
	four := create(t, svc, "p1", "Four")
	five, err := svc.CreateTask(ctx, "p1", task.CreateRequest{Title: "Five", Dependencies: []int{four.ID, 2}})
	require.NoError(t, err)
	require.Equal(t, 5, five.ID)

	removed, err := svc.DeleteTask(ctx, "p1", parent.ID, true)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{1, 2, 3}, removed)

	tasks, err := svc.ListTasks(ctx, "p1", task.ListOptions{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, 1, tasks[0].ID)
	require.Equal(t, "Four", tasks[0].Title)
	require.Equal(t, 2, tasks[1].ID)
	require.Equal(t, []int{1}, tasks[1].Dependencies)
}

func TestDeleteTask_WithoutReorganizeClearsParentLink(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()

	parent := create(t, svc, "p1", "Parent")
	sub, err := svc.AddSubtask(ctx, "p1", parent.ID, task.CreateRequest{Title: "Sub"})
	require.NoError(t, err)

	removed, err := svc.DeleteTask(ctx, "p1", sub.ID, false)
	require.NoError(t, err)
	require.Equal(t, []int{sub.ID}, removed)

	got, err := svc.GetTask(ctx, "p1", parent.ID)
	require.NoError(t, err)
	require.Empty(t, got.Subtasks)

	_, err = svc.DeleteTask(ctx, "p1", sub.ID, false)
	require.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestDeleteTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicates", func(t *testing.T) {
		svc := newStore(t, newMemRepo())
		for _, title := range []string{"Same", "Other", "Same"} {
			_, err := svc.CreateTask(ctx, "p1", task.CreateRequest{Title: title, Description: "d"})
			require.NoError(t, err)
		}
		removed, err := svc.DeleteTasks(ctx, "p1", task.DeleteCriteria{Mode: task.DeleteDuplicates})
		require.NoError(t, err)
		require.Equal(t, []int{3}, removed)
	})

	t.Run("status", func(t *testing.T) {
		svc := newStore(t, newMemRepo())
		create(t, svc, "p1", "A")
		b := create(t, svc, "p1", "B")
		create(t, svc, "p1", "C")
		_, err := svc.CompleteTask(ctx, "p1", b.ID)
		require.NoError(t, err)

		removed, err := svc.DeleteTasks(ctx, "p1", task.DeleteCriteria{Mode: task.DeleteByStatus, Status: task.StatusCompleted})
		require.NoError(t, err)
		require.Equal(t, []int{b.ID}, removed)

		tasks, err := svc.ListTasks(ctx, "p1", task.ListOptions{})
		require.NoError(t, err)
		require.Equal(t, 1, tasks[0].ID)
		require.Equal(t, 2, tasks[1].ID)
		require.Equal(t, "C", tasks[1].Title)
	})

	t.Run("unqualified", func(t *testing.T) {
		svc := newStore(t, newMemRepo())
		_, err := svc.CreateTask(ctx, "p1", task.CreateRequest{Title: "No description"})
		require.NoError(t, err)
		create(t, svc, "p1", "Complete")

		removed, err := svc.DeleteTasks(ctx, "p1", task.DeleteCriteria{Mode: task.DeleteUnqualified})
		require.NoError(t, err)
		require.Equal(t, []int{1}, removed)
	})

	t.Run("ids", func(t *testing.T) {
		svc := newStore(t, newMemRepo())
		create(t, svc, "p1", "A")

		_, err := svc.DeleteTasks(ctx, "p1", task.DeleteCriteria{Mode: task.DeleteByIDs, IDs: []int{1, 9}})
		require.ErrorIs(t, err, task.ErrTaskNotFound)

		removed, err := svc.DeleteTasks(ctx, "p1", task.DeleteCriteria{Mode: task.DeleteByIDs, IDs: []int{1}})
		require.NoError(t, err)
		require.Equal(t, []int{1}, removed)
	})

	t.Run("nothing matched", func(t *testing.T) {
		svc := newStore(t, newMemRepo())
		create(t, svc, "p1", "A")
		removed, err := svc.DeleteTasks(ctx, "p1", task.DeleteCriteria{Mode: task.DeleteDuplicates})
		require.NoError(t, err)
		require.Empty(t, removed)
	})
}

func TestReorganizeTaskIDs_SequentialAndResolvable(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(12)
		ids := rng.Perm(40)[:n]
		tasks := make([]task.Task, n)
		for i, id := range ids {
			tasks[i] = task.Task{ID: id + 1, Dependencies: []int{}, Subtasks: []int{}}
		}
		for i := range tasks {
			for j := 0; j < 3; j++ {
				ref := tasks[rng.Intn(n)].ID
				if ref != tasks[i].ID {
					tasks[i].Dependencies = append(tasks[i].Dependencies, ref)
				}
			}
		}

		out, mapping := task.ReorganizeTaskIDs(tasks)
		require.Len(t, out, n)
		valid := make(map[int]bool)
		for i, tk := range out {
			require.Equal(t, i+1, tk.ID)
			valid[tk.ID] = true
		}
		for _, tk := range out {
			for _, dep := range tk.Dependencies {
				require.True(t, valid[dep], "dangling dependency %d", dep)
			}
		}
		for _, orig := range tasks {
			require.Contains(t, mapping, orig.ID)
		}
	}
}

func TestReorganizeTaskIDs_DoesNotModifyInput(t *testing.T) {
	in := []task.Task{
		{ID: 5, Dependencies: []int{9}, Subtasks: []int{}},
		{ID: 9, Dependencies: []int{}, Subtasks: []int{5, 77}},
	}
	out, mapping := task.ReorganizeTaskIDs(in)

	require.Equal(t, 5, in[0].ID)
	require.Equal(t, map[int]int{5: 1, 9: 2}, mapping)
	require.Equal(t, []int{2}, out[0].Dependencies)
	require.Equal(t, []int{1, 77}, out[1].Subtasks)
}

func TestReorganize_ReportsMapping(t *testing.T) {
	repo := newMemRepo()
	repo.put("p1", []task.Task{
		{ID: 2, Title: "b", Dependencies: []int{}, Subtasks: []int{}},
		{ID: 7, Title: "g", Dependencies: []int{2}, Subtasks: []int{}},
	})
	svc := newStore(t, repo)
	ctx := context.Background()

	mapping, err := svc.Reorganize(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, map[int]int{2: 1, 7: 2}, mapping)

	got, err := svc.GetTask(ctx, "p1", 2)
	require.NoError(t, err)
	require.Equal(t, []int{1}, got.Dependencies)
}

func TestPersistenceRoundTrip(t *testing.T) {
	repo := newMemRepo()
	svc := newStore(t, repo)
	ctx := context.Background()

	parent := create(t, svc, "p1", "Parent")
	_, err := svc.AddSubtask(ctx, "p1", parent.ID, task.CreateRequest{Title: "Child", Priority: task.PriorityHigh})
	require.NoError(t, err)
	_, err = svc.AssignTask(ctx, "p1", parent.ID, "agent")
	require.NoError(t, err)

	require.Equal(t, 0, repo.saves)
	require.NoError(t, svc.Flush(ctx, "p1"))
	require.Equal(t, 1, repo.saves)

	inMemory, err := svc.ListTasks(ctx, "p1", task.ListOptions{})
	require.NoError(t, err)

	reloaded := newStore(t, repo)
	fromDisk, err := reloaded.ListTasks(ctx, "p1", task.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, inMemory, fromDisk)
}

func TestCacheMissFlushesPendingWrite(t *testing.T) {
	repo := newMemRepo()
	svc := newStore(t, repo, task.WithCacheLimits(0, 1))
	ctx := context.Background()

	create(t, svc, "p1", "A")
	require.Empty(t, repo.stored("p1"))

	// Loading a second project evicts p1 while its write is still queued.
	require.NoError(t, svc.Init(ctx, "p2"))

	got, err := svc.GetTask(ctx, "p1", 1)
	require.NoError(t, err)
	require.Equal(t, "A", got.Title)
	require.Len(t, repo.stored("p1"), 1)
}

func TestReload_ExternalEditWins(t *testing.T) {
	repo := newMemRepo()
	svc := newStore(t, repo)
	ctx := context.Background()

	create(t, svc, "p1", "Local")
	repo.put("p1", []task.Task{{ID: 1, Title: "External", Dependencies: []int{}, Subtasks: []int{}}})

	require.NoError(t, svc.Reload(ctx, "p1"))
	got, err := svc.GetTask(ctx, "p1", 1)
	require.NoError(t, err)
	require.Equal(t, "External", got.Title)

	require.NoError(t, svc.Flush(ctx, "p1"))
	require.Equal(t, "External", repo.stored("p1")[0].Title)
}

func TestBatch(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()
	create(t, svc, "p1", "A")
	create(t, svc, "p1", "B")

	boom := errors.New("boom")
	err := svc.Batch(ctx, "p1", func(b *task.Batch) error {
		_, err := b.Delete(1)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	tasks, err := svc.ListTasks(ctx, "p1", task.ListOptions{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	err = svc.Batch(ctx, "p1", func(b *task.Batch) error {
		if _, err := b.Update(2, task.UpdateRequest{Priority: task.Ptr(task.PriorityLow)}); err != nil {
			return err
		}
		if _, err := b.Delete(1); err != nil {
			return err
		}
		require.Equal(t, map[int]int{2: 1}, b.Reorganize())
		require.True(t, b.Changed())
		return nil
	})
	require.NoError(t, err)

	tasks, err = svc.ListTasks(ctx, "p1", task.ListOptions{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, 1, tasks[0].ID)
	require.Equal(t, task.PriorityLow, tasks[0].Priority)
}

func TestBatch_AtomicRollsBack(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()
	create(t, svc, "p1", "A")
	create(t, svc, "p1", "B")

	boom := errors.New("boom")
	err := svc.Batch(ctx, "p1", func(b *task.Batch) error {
		err := b.Atomic(func() error {
			if _, err := b.Update(1, task.UpdateRequest{Title: task.Ptr("Changed")}); err != nil {
				return err
			}
			if _, err := b.Delete(2); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.False(t, b.Changed())
		require.Len(t, b.Tasks(), 2)

		require.Panics(t, func() {
			_ = b.Atomic(func() error {
				_, _ = b.Delete(1)
				panic("stage bug")
			})
		})
		require.Len(t, b.Tasks(), 2)
		return nil
	})
	require.NoError(t, err)

	got, err := svc.GetTask(ctx, "p1", 1)
	require.NoError(t, err)
	require.Equal(t, "A", got.Title)
}

func TestBatch_RedirectDependencies(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()
	create(t, svc, "p1", "A")
	create(t, svc, "p1", "B")
	_, err := svc.CreateTask(ctx, "p1", task.CreateRequest{Title: "C", Dependencies: []int{1, 2}})
	require.NoError(t, err)

	err = svc.Batch(ctx, "p1", func(b *task.Batch) error {
		changed, err := b.RedirectDependencies(2, 1)
		require.NoError(t, err)
		require.Equal(t, []int{3}, changed)

		_, err = b.RedirectDependencies(1, 42)
		require.ErrorIs(t, err, task.ErrTaskNotFound)
		return nil
	})
	require.NoError(t, err)

	got, err := svc.GetTask(ctx, "p1", 3)
	require.NoError(t, err)
	require.Equal(t, []int{1}, got.Dependencies)
}

func TestMutationsAreLoggedAsActivity(t *testing.T) {
	ctx := context.Background()
	activities := &mocks.ActivityRepository{}
	activities.On("Log", ctx, mock.MatchedBy(func(e *activity.ActivityEntry) bool {
		return e.ProjectID == "p1" && e.ActivityType == activity.TypeTaskCreated && e.TaskID != nil && *e.TaskID == 1
	})).Return(nil).Once()

	svc := newStore(t, newMemRepo(), task.WithActivity(activities))
	create(t, svc, "p1", "A")
	activities.AssertExpectations(t)
}

func TestConcurrentCreatesStayUnique(t *testing.T) {
	svc := newStore(t, newMemRepo())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.CreateTask(ctx, "p1", task.CreateRequest{Title: "t"})
		}()
	}
	wg.Wait()

	tasks, err := svc.ListTasks(ctx, "p1", task.ListOptions{})
	require.NoError(t, err)
	require.Len(t, tasks, 20)
	seen := make(map[int]bool)
	for _, tk := range tasks {
		require.False(t, seen[tk.ID])
		seen[tk.ID] = true
	}
}
