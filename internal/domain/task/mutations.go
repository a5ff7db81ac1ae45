package task

import (
	"slices"
	"sort"
	"strings"
	"time"
)

func indexOf(tasks []Task, id int) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func checkReferences(tasks []Task, self int, field string, ids []int) error {
	for _, id := range ids {
		if id == self {
			return validationError(field, "task %d cannot reference itself", id)
		}
		if indexOf(tasks, id) < 0 {
			return validationError(field, "task %d does not exist", id)
		}
	}
	return nil
}

// subtasksCompleted reports whether t has subtasks and every one of them is
// completed.
func subtasksCompleted(tasks []Task, t Task) bool {
	if len(t.Subtasks) == 0 {
		return false
	}
	for _, id := range t.Subtasks {
		pos := indexOf(tasks, id)
		if pos < 0 || tasks[pos].Status != StatusCompleted {
			return false
		}
	}
	return true
}

// applyUpdate merges req into tasks[pos] and stamps UpdatedAt. tasks must be
// a private copy.
func applyUpdate(tasks []Task, pos int, req UpdateRequest, now time.Time) error {
	t := tasks[pos]
	if req.Dependencies != nil {
		if err := checkReferences(tasks, t.ID, "dependencies", *req.Dependencies); err != nil {
			return err
		}
	}
	if req.Subtasks != nil {
		if err := checkReferences(tasks, t.ID, "subtasks", *req.Subtasks); err != nil {
			return err
		}
	}

	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.Progress != nil {
		t.Progress = *req.Progress
		if subtasksCompleted(tasks, t) {
			t.Progress = 100
		}
	}
	if req.Dependencies != nil {
		t.Dependencies = cloneIDs(*req.Dependencies)
	}
	if req.Subtasks != nil {
		t.Subtasks = cloneIDs(*req.Subtasks)
	}
	if req.IsSubtask != nil {
		t.IsSubtask = *req.IsSubtask
	}
	if req.AssignedTo != nil && *req.AssignedTo != t.AssignedTo {
		t.AssignedTo = *req.AssignedTo
		if t.AssignedTo == "" {
			t.AssignedAt = nil
		} else {
			ts := now
			t.AssignedAt = &ts
		}
	}
	if req.CompletedAt != nil {
		ts := *req.CompletedAt
		t.CompletedAt = &ts
	}
	if req.AssignedAt != nil {
		ts := *req.AssignedAt
		t.AssignedAt = &ts
	}
	t.UpdatedAt = now
	tasks[pos] = t
	return nil
}

// deleteCascade removes id and, recursively, its subtasks. Every remaining
// reference to a removed id is stripped. Removed ids are returned in
// discovery order.
func deleteCascade(tasks []Task, id int) ([]Task, []int) {
	if indexOf(tasks, id) < 0 {
		return tasks, nil
	}

	var removed []int
	seen := make(map[int]bool)
	var walk func(int)
	walk = func(id int) {
		if seen[id] {
			return
		}
		seen[id] = true
		if pos := indexOf(tasks, id); pos >= 0 {
			for _, sub := range tasks[pos].Subtasks {
				walk(sub)
			}
		}
		removed = append(removed, id)
	}
	walk(id)

	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if seen[t.ID] {
			continue
		}
		t.Dependencies = stripIDs(t.Dependencies, seen)
		t.Subtasks = stripIDs(t.Subtasks, seen)
		out = append(out, t)
	}
	return out, removed
}

func stripIDs(ids []int, drop map[int]bool) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}

// ReorganizeTaskIDs renumbers tasks to 1..N in ascending order of their
// current ids and rewrites dependencies and subtasks through the resulting
// mapping. References without a mapping pass through unchanged. The input is
// not modified.
func ReorganizeTaskIDs(tasks []Task) ([]Task, map[int]int) {
	out := cloneTasks(tasks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	mapping := make(map[int]int, len(out))
	for i := range out {
		if _, ok := mapping[out[i].ID]; !ok {
			mapping[out[i].ID] = i + 1
		}
		out[i].ID = i + 1
	}
	remap := func(ids []int) []int {
		res := make([]int, len(ids))
		for i, id := range ids {
			if n, ok := mapping[id]; ok {
				res[i] = n
			} else {
				res[i] = id
			}
		}
		return res
	}
	for i := range out {
		out[i].Dependencies = remap(out[i].Dependencies)
		out[i].Subtasks = remap(out[i].Subtasks)
	}
	return out, mapping
}

// renumbered reports whether a mapping from ReorganizeTaskIDs changed any id.
func renumbered(mapping map[int]int) bool {
	for old, n := range mapping {
		if old != n {
			return true
		}
	}
	return false
}

func duplicateKey(t Task) string {
	return strings.TrimSpace(t.Title) + "\x00" + strings.TrimSpace(t.Description)
}

// deletionTargets selects the ids DeleteTasks removes, in file order.
func deletionTargets(tasks []Task, projectID string, c DeleteCriteria) ([]int, error) {
	var ids []int
	switch c.Mode {
	case DeleteByIDs:
		for _, id := range c.IDs {
			if indexOf(tasks, id) < 0 {
				return nil, notFound(projectID, id)
			}
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	case DeleteByStatus:
		for _, t := range tasks {
			if t.Status == c.Status {
				ids = append(ids, t.ID)
			}
		}
	case DeleteDuplicates:
		seen := make(map[string]bool)
		for _, t := range tasks {
			key := duplicateKey(t)
			if seen[key] {
				ids = append(ids, t.ID)
				continue
			}
			seen[key] = true
		}
	case DeleteUnqualified:
		for _, t := range tasks {
			if strings.TrimSpace(t.Title) == "" || strings.TrimSpace(t.Description) == "" {
				ids = append(ids, t.ID)
			}
		}
	}
	return ids, nil
}
