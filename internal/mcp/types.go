package mcp

import (
	"time"

	"github.com/rpggio/tasktrellis/internal/domain/activity"
	"github.com/rpggio/tasktrellis/internal/domain/project"
	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/rpggio/tasktrellis/internal/maintenance"
)

type PingParams struct{}

type PingResult struct {
	Message string `json:"message"`
}

type ListProjectsParams struct{}

type CreateTaskParams struct {
	ProjectID    string `json:"projectId" jsonschema:"project identifier (letters, digits, - and _)"`
	Title        string `json:"title" jsonschema:"task title, at most 100 characters"`
	Description  string `json:"description,omitempty" jsonschema:"task description, at most 1000 characters"`
	Priority     string `json:"priority,omitempty" jsonschema:"low, medium or high"`
	Dependencies []int  `json:"dependencies,omitempty" jsonschema:"ids of tasks this task depends on"`
	AssignedTo   string `json:"assignedTo,omitempty" jsonschema:"agent the task is assigned to"`
}

type AddSubtaskParams struct {
	ProjectID   string `json:"projectId"`
	ParentID    int    `json:"parentId" jsonschema:"id of the top-level parent task"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

type ListTasksParams struct {
	ProjectID  string `json:"projectId,omitempty" jsonschema:"project to list; omit to list every project"`
	Status     string `json:"status,omitempty" jsonschema:"pending, in-progress or completed"`
	AssignedTo string `json:"assignedTo,omitempty"`
}

type TaskRefParams struct {
	ProjectID string `json:"projectId"`
	TaskID    int    `json:"taskId"`
}

type UpdateTaskParams struct {
	ProjectID    string  `json:"projectId"`
	TaskID       int     `json:"taskId"`
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	Status       *string `json:"status,omitempty"`
	Priority     *string `json:"priority,omitempty"`
	Progress     *int    `json:"progress,omitempty"`
	Dependencies *[]int  `json:"dependencies,omitempty"`
}

type UpdateProgressParams struct {
	ProjectID string `json:"projectId"`
	TaskID    int    `json:"taskId"`
	Progress  int    `json:"progress" jsonschema:"0 to 100; 100 completes the task"`
}

type AssignTaskParams struct {
	ProjectID  string `json:"projectId"`
	TaskID     int    `json:"taskId"`
	AssignedTo string `json:"assignedTo" jsonschema:"assignee; empty clears the assignment"`
}

type DeleteTaskParams struct {
	ProjectID  string `json:"projectId"`
	TaskID     int    `json:"taskId"`
	Reorganize bool   `json:"reorganize,omitempty" jsonschema:"renumber remaining tasks to 1..N afterwards"`
}

type DeleteTasksParams struct {
	ProjectID string `json:"projectId"`
	Mode      string `json:"mode" jsonschema:"ids, status, duplicates or unqualified"`
	IDs       []int  `json:"ids,omitempty"`
	Status    string `json:"status,omitempty"`
}

type ProjectParams struct {
	ProjectID string `json:"projectId"`
}

type GetRecentActivityParams struct {
	ProjectID string `json:"projectId,omitempty"`
	TaskID    *int   `json:"taskId,omitempty"`
	RunID     string `json:"runId,omitempty"`
	Type      string `json:"type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// TaskDTO is the wire form of a task.
type TaskDTO struct {
	ID           int    `json:"id"`
	ProjectID    string `json:"projectId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	Priority     string `json:"priority,omitempty"`
	Progress     int    `json:"progress"`
	Dependencies []int  `json:"dependencies"`
	Subtasks     []int  `json:"subtasks"`
	IsSubtask    bool   `json:"isSubtask"`
	AssignedTo   string `json:"assignedTo,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
	CompletedAt  string `json:"completedAt,omitempty"`
	AssignedAt   string `json:"assignedAt,omitempty"`
}

type TaskResult struct {
	Task TaskDTO `json:"task"`
}

type TaskListResult struct {
	Tasks []TaskDTO `json:"tasks"`
	Count int       `json:"count"`
}

type ProjectDTO struct {
	ID          string `json:"id"`
	TaskCount   int    `json:"taskCount"`
	Pending     int    `json:"pending"`
	InProgress  int    `json:"inProgress"`
	Completed   int    `json:"completed"`
	Subtasks    int    `json:"subtasks"`
	Progress    int    `json:"progress"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

type ProjectListResult struct {
	Projects []ProjectDTO `json:"projects"`
}

type DeleteResult struct {
	Removed []int `json:"removed"`
}

type IDMappingDTO struct {
	OldID int `json:"oldId"`
	NewID int `json:"newId"`
}

type ReorganizeResult struct {
	Mapping []IDMappingDTO `json:"mapping"`
	Changed int            `json:"changed"`
}

type ActionDTO struct {
	Type        string `json:"type"`
	TaskID      int    `json:"taskId,omitempty"`
	Description string `json:"description"`
}

type MaintenanceResult struct {
	Actions []ActionDTO `json:"actions"`
}

type ActivityDTO struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"projectId"`
	TaskID    int    `json:"taskId,omitempty"`
	RunID     string `json:"runId,omitempty"`
	Type      string `json:"type"`
	Summary   string `json:"summary"`
	Details   string `json:"details,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type ActivityResult struct {
	Entries []ActivityDTO `json:"entries"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func ids(in []int) []int {
	if in == nil {
		return []int{}
	}
	return in
}

func toTaskDTO(t task.Task) TaskDTO {
	return TaskDTO{
		ID:           t.ID,
		ProjectID:    t.ProjectID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
		Progress:     t.Progress,
		Dependencies: ids(t.Dependencies),
		Subtasks:     ids(t.Subtasks),
		IsSubtask:    t.IsSubtask,
		AssignedTo:   t.AssignedTo,
		CreatedAt:    formatTime(t.CreatedAt),
		UpdatedAt:    formatTime(t.UpdatedAt),
		CompletedAt:  formatTimePtr(t.CompletedAt),
		AssignedAt:   formatTimePtr(t.AssignedAt),
	}
}

func toTaskList(tasks []task.Task) TaskListResult {
	out := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskDTO(t))
	}
	return TaskListResult{Tasks: out, Count: len(out)}
}

func toProjectDTO(p project.ProjectSummary) ProjectDTO {
	return ProjectDTO{
		ID:          p.ID,
		TaskCount:   p.TaskCount,
		Pending:     p.Pending,
		InProgress:  p.InProgress,
		Completed:   p.Completed,
		Subtasks:    p.Subtasks,
		Progress:    p.Progress,
		LastUpdated: formatTime(p.LastUpdated),
	}
}

func toActionDTOs(actions []maintenance.Action) []ActionDTO {
	out := make([]ActionDTO, 0, len(actions))
	for _, a := range actions {
		out = append(out, ActionDTO{Type: string(a.Type), TaskID: a.TaskID, Description: a.Description})
	}
	return out
}

func toActivityDTO(e activity.ActivityEntry) ActivityDTO {
	dto := ActivityDTO{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		Type:      string(e.ActivityType),
		Summary:   e.Summary,
		Details:   e.Details,
		CreatedAt: formatTime(e.CreatedAt),
	}
	if e.TaskID != nil {
		dto.TaskID = *e.TaskID
	}
	if e.RunID != nil {
		dto.RunID = *e.RunID
	}
	return dto
}
