package task

import (
	"slices"
	"time"
)

// Status represents the workflow state of a task
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Priority represents task urgency. The zero value means unset.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Task is a unit of work owned by exactly one project.
type Task struct {
	ID           int        `json:"id" yaml:"id"`
	Title        string     `json:"title" yaml:"title"`
	Description  string     `json:"description" yaml:"description"`
	Status       Status     `json:"status" yaml:"status"`
	Priority     Priority   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Progress     int        `json:"progress" yaml:"progress"`
	Dependencies []int      `json:"dependencies" yaml:"dependencies"`
	Subtasks     []int      `json:"subtasks" yaml:"subtasks"`
	IsSubtask    bool       `json:"isSubtask" yaml:"isSubtask"`
	AssignedTo   string     `json:"assignedTo,omitempty" yaml:"assignedTo,omitempty"`
	ProjectID    string     `json:"projectId" yaml:"projectId"`
	CreatedAt    time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" yaml:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	AssignedAt   *time.Time `json:"assignedAt,omitempty" yaml:"assignedAt,omitempty"`
}

// Clone returns a deep copy so callers never alias store state.
func (t Task) Clone() Task {
	out := t
	out.Dependencies = cloneIDs(t.Dependencies)
	out.Subtasks = cloneIDs(t.Subtasks)
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	if t.AssignedAt != nil {
		ts := *t.AssignedAt
		out.AssignedAt = &ts
	}
	return out
}

// HasSubtask reports whether id is listed in the task's subtasks.
func (t Task) HasSubtask(id int) bool {
	return slices.Contains(t.Subtasks, id)
}

// cloneIDs always returns a non-nil slice so persisted files carry [] rather than null.
func cloneIDs(ids []int) []int {
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

func cloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
