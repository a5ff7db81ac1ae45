package task

import (
	"context"
	"errors"
	"slices"
	"time"
)

// Batch gives exclusive, event-free access to one project's tasks. Changes
// are committed together when the batch function returns nil and discarded
// otherwise.
type Batch struct {
	projectID string
	tasks     []Task
	now       func() time.Time
	changed   bool
}

// Batch runs fn while holding the project's lock. Store methods must not be
// called from fn for the same project.
func (s *Service) Batch(ctx context.Context, projectID string, fn func(b *Batch) error) error {
	err := s.write(ctx, projectID, func(tasks []Task, _ time.Time) ([]Task, error) {
		b := &Batch{projectID: projectID, tasks: tasks, now: s.now}
		if err := fn(b); err != nil {
			return nil, err
		}
		if !b.changed {
			return nil, errSkip
		}
		return b.tasks, nil
	})
	if errors.Is(err, errSkip) {
		return nil
	}
	return err
}

// ProjectID returns the project the batch operates on.
func (b *Batch) ProjectID() string {
	return b.projectID
}

// Tasks returns a copy of the current task list.
func (b *Batch) Tasks() []Task {
	return cloneTasks(b.tasks)
}

// Changed reports whether the batch has mutated anything.
func (b *Batch) Changed() bool {
	return b.changed
}

// Get returns a copy of task id.
func (b *Batch) Get(id int) (Task, error) {
	pos := indexOf(b.tasks, id)
	if pos < 0 {
		return Task{}, notFound(b.projectID, id)
	}
	return b.tasks[pos].Clone(), nil
}

// Update applies a patch with the same rules as Service.UpdateTask.
func (b *Batch) Update(id int, req UpdateRequest) (Task, error) {
	if err := ValidateUpdateInput(req); err != nil {
		return Task{}, err
	}
	pos := indexOf(b.tasks, id)
	if pos < 0 {
		return Task{}, notFound(b.projectID, id)
	}
	if err := applyUpdate(b.tasks, pos, req, b.now()); err != nil {
		return Task{}, err
	}
	b.changed = true
	return b.tasks[pos].Clone(), nil
}

// Delete removes id and its subtasks without renumbering.
func (b *Batch) Delete(id int) ([]int, error) {
	if indexOf(b.tasks, id) < 0 {
		return nil, notFound(b.projectID, id)
	}
	var removed []int
	b.tasks, removed = deleteCascade(b.tasks, id)
	b.changed = true
	return removed, nil
}

// RedirectDependencies replaces from with to in every other task's
// dependencies and returns the ids of the tasks it changed. The remaining
// entries are kept as they are, even if they no longer resolve.
func (b *Batch) RedirectDependencies(from, to int) ([]int, error) {
	if indexOf(b.tasks, to) < 0 {
		return nil, notFound(b.projectID, to)
	}
	now := b.now()
	var changed []int
	for i := range b.tasks {
		t := &b.tasks[i]
		if t.ID == from || !slices.Contains(t.Dependencies, from) {
			continue
		}
		deps := make([]int, 0, len(t.Dependencies))
		for _, d := range t.Dependencies {
			if d == from {
				d = to
			}
			if d != t.ID && !slices.Contains(deps, d) {
				deps = append(deps, d)
			}
		}
		t.Dependencies = deps
		t.UpdatedAt = now
		changed = append(changed, t.ID)
	}
	if len(changed) > 0 {
		b.changed = true
	}
	return changed, nil
}

// Atomic runs fn and undoes every change it made to the batch when it
// returns an error or panics.
func (b *Batch) Atomic(fn func() error) (err error) {
	saved, changed := cloneTasks(b.tasks), b.changed
	defer func() {
		if p := recover(); p != nil {
			b.tasks, b.changed = saved, changed
			panic(p)
		}
		if err != nil {
			b.tasks, b.changed = saved, changed
		}
	}()
	return fn()
}

// Reorganize renumbers the tasks to 1..N and returns the mapping.
func (b *Batch) Reorganize() map[int]int {
	tasks, mapping := ReorganizeTaskIDs(b.tasks)
	if renumbered(mapping) {
		b.tasks = tasks
		b.changed = true
	}
	return mapping
}
