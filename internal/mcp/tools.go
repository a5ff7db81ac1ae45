package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/tasktrellis/internal/domain/activity"
	"github.com/rpggio/tasktrellis/internal/domain/task"
)

var errActivityDisabled = errors.New("activity log is disabled")

type tools struct {
	svc    Services
	logger *slog.Logger
}

func registerTools(server *sdkmcp.Server, svc Services, logger *slog.Logger) {
	t := &tools{svc: svc, logger: logger}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "ping",
		Description: "Check that the server is alive",
	}, t.ping)

	// Projects
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_projects",
		Description: "List projects with task counts by status",
	}, t.listProjects)

	// Tasks
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_task",
		Description: "Create a task in a project; the project is created on first use",
	}, t.createTask)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "add_subtask",
		Description: "Create a subtask under a top-level task",
	}, t.addSubtask)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks of a project, or of every project when projectId is omitted, optionally filtered by status and assignee",
	}, t.listTasks)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_task",
		Description: "Get one task by id",
	}, t.getTask)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_subtasks",
		Description: "List the subtasks of a task",
	}, t.getSubtasks)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_task",
		Description: "Update fields of a task; omitted fields are left unchanged",
	}, t.updateTask)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "complete_task",
		Description: "Mark a task completed; triggers a maintenance pass",
	}, t.completeTask)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_progress",
		Description: "Set the progress of an assigned task; 100 completes it and triggers a maintenance pass",
	}, t.updateProgress)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "assign_task",
		Description: "Assign a task to an agent, or clear the assignment with an empty name",
	}, t.assignTask)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_task",
		Description: "Delete a task and, recursively, its subtasks",
	}, t.deleteTask)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_tasks",
		Description: "Delete tasks by ids, by status, exact duplicates, or tasks missing a title or description; renumbers afterwards",
	}, t.deleteTasks)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "reorganize_task_ids",
		Description: "Renumber a project's tasks to 1..N, rewriting dependencies and subtasks",
	}, t.reorganize)

	// Maintenance
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "run_maintenance",
		Description: "Run a maintenance pass now and return the actions taken",
	}, t.runMaintenance)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_recent_activity",
		Description: "Get recent task changes and maintenance actions, newest first",
	}, t.recentActivity)
}

func (t *tools) ping(_ context.Context, _ *sdkmcp.CallToolRequest, _ PingParams) (*sdkmcp.CallToolResult, PingResult, error) {
	return nil, PingResult{Message: "pong"}, nil
}

func (t *tools) listProjects(ctx context.Context, _ *sdkmcp.CallToolRequest, _ ListProjectsParams) (*sdkmcp.CallToolResult, ProjectListResult, error) {
	list, err := t.svc.Projects.List(ctx)
	if err != nil {
		return nil, ProjectListResult{}, MapError(err)
	}
	out := ProjectListResult{Projects: make([]ProjectDTO, 0, len(list))}
	for _, p := range list {
		out.Projects = append(out.Projects, toProjectDTO(p))
	}
	return nil, out, nil
}

func (t *tools) createTask(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateTaskParams) (*sdkmcp.CallToolResult, TaskResult, error) {
	created, err := t.svc.Tasks.CreateTask(ctx, in.ProjectID, task.CreateRequest{
		Title:        in.Title,
		Description:  in.Description,
		Priority:     task.Priority(in.Priority),
		Dependencies: in.Dependencies,
		AssignedTo:   in.AssignedTo,
	})
	return taskResult(created, err)
}

func (t *tools) addSubtask(ctx context.Context, _ *sdkmcp.CallToolRequest, in AddSubtaskParams) (*sdkmcp.CallToolResult, TaskResult, error) {
	created, err := t.svc.Tasks.AddSubtask(ctx, in.ProjectID, in.ParentID, task.CreateRequest{
		Title:       in.Title,
		Description: in.Description,
		Priority:    task.Priority(in.Priority),
	})
	return taskResult(created, err)
}

func (t *tools) listTasks(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListTasksParams) (*sdkmcp.CallToolResult, TaskListResult, error) {
	var opts task.ListOptions
	if in.Status != "" {
		status := task.Status(in.Status)
		if err := task.ValidateStatus(status); err != nil {
			return nil, TaskListResult{}, MapError(err)
		}
		opts.Status = &status
	}
	if in.AssignedTo != "" {
		opts.AssignedTo = &in.AssignedTo
	}

	if in.ProjectID != "" {
		tasks, err := t.svc.Tasks.ListTasks(ctx, in.ProjectID, opts)
		if err != nil {
			return nil, TaskListResult{}, MapError(err)
		}
		return nil, toTaskList(tasks), nil
	}

	all, err := t.svc.Tasks.AllTasks(ctx, "")
	if err != nil {
		return nil, TaskListResult{}, MapError(err)
	}
	filtered := all[:0]
	for _, tk := range all {
		if opts.Status != nil && tk.Status != *opts.Status {
			continue
		}
		if opts.AssignedTo != nil && tk.AssignedTo != *opts.AssignedTo {
			continue
		}
		filtered = append(filtered, tk)
	}
	return nil, toTaskList(filtered), nil
}

func (t *tools) getTask(ctx context.Context, _ *sdkmcp.CallToolRequest, in TaskRefParams) (*sdkmcp.CallToolResult, TaskResult, error) {
	return taskResult(t.svc.Tasks.GetTask(ctx, in.ProjectID, in.TaskID))
}

func (t *tools) getSubtasks(ctx context.Context, _ *sdkmcp.CallToolRequest, in TaskRefParams) (*sdkmcp.CallToolResult, TaskListResult, error) {
	tasks, err := t.svc.Tasks.GetSubtasks(ctx, in.ProjectID, in.TaskID)
	if err != nil {
		return nil, TaskListResult{}, MapError(err)
	}
	return nil, toTaskList(tasks), nil
}

func (t *tools) updateTask(ctx context.Context, _ *sdkmcp.CallToolRequest, in UpdateTaskParams) (*sdkmcp.CallToolResult, TaskResult, error) {
	req := task.UpdateRequest{
		Title:        in.Title,
		Description:  in.Description,
		Progress:     in.Progress,
		Dependencies: in.Dependencies,
	}
	if in.Status != nil {
		req.Status = task.Ptr(task.Status(*in.Status))
	}
	if in.Priority != nil {
		req.Priority = task.Ptr(task.Priority(*in.Priority))
	}
	return taskResult(t.svc.Tasks.UpdateTask(ctx, in.ProjectID, in.TaskID, req))
}

func (t *tools) completeTask(ctx context.Context, _ *sdkmcp.CallToolRequest, in TaskRefParams) (*sdkmcp.CallToolResult, TaskResult, error) {
	return taskResult(t.svc.Tasks.CompleteTask(ctx, in.ProjectID, in.TaskID))
}

func (t *tools) updateProgress(ctx context.Context, _ *sdkmcp.CallToolRequest, in UpdateProgressParams) (*sdkmcp.CallToolResult, TaskResult, error) {
	return taskResult(t.svc.Tasks.UpdateProgress(ctx, in.ProjectID, in.TaskID, in.Progress))
}

func (t *tools) assignTask(ctx context.Context, _ *sdkmcp.CallToolRequest, in AssignTaskParams) (*sdkmcp.CallToolResult, TaskResult, error) {
	return taskResult(t.svc.Tasks.AssignTask(ctx, in.ProjectID, in.TaskID, in.AssignedTo))
}

func (t *tools) deleteTask(ctx context.Context, _ *sdkmcp.CallToolRequest, in DeleteTaskParams) (*sdkmcp.CallToolResult, DeleteResult, error) {
	removed, err := t.svc.Tasks.DeleteTask(ctx, in.ProjectID, in.TaskID, in.Reorganize)
	if err != nil {
		return nil, DeleteResult{}, MapError(err)
	}
	return nil, DeleteResult{Removed: ids(removed)}, nil
}

func (t *tools) deleteTasks(ctx context.Context, _ *sdkmcp.CallToolRequest, in DeleteTasksParams) (*sdkmcp.CallToolResult, DeleteResult, error) {
	removed, err := t.svc.Tasks.DeleteTasks(ctx, in.ProjectID, task.DeleteCriteria{
		Mode:   task.DeleteMode(in.Mode),
		IDs:    in.IDs,
		Status: task.Status(in.Status),
	})
	if err != nil {
		return nil, DeleteResult{}, MapError(err)
	}
	return nil, DeleteResult{Removed: ids(removed)}, nil
}

func (t *tools) reorganize(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, ReorganizeResult, error) {
	mapping, err := t.svc.Tasks.Reorganize(ctx, in.ProjectID)
	if err != nil {
		return nil, ReorganizeResult{}, MapError(err)
	}
	out := ReorganizeResult{Mapping: make([]IDMappingDTO, 0, len(mapping))}
	for old, n := range mapping {
		out.Mapping = append(out.Mapping, IDMappingDTO{OldID: old, NewID: n})
		if old != n {
			out.Changed++
		}
	}
	sort.Slice(out.Mapping, func(i, j int) bool { return out.Mapping[i].OldID < out.Mapping[j].OldID })
	return nil, out, nil
}

func (t *tools) runMaintenance(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, MaintenanceResult, error) {
	actions, err := t.svc.Maintenance.PerformCleanup(ctx, in.ProjectID)
	if err != nil {
		return nil, MaintenanceResult{}, MapError(err)
	}
	t.logger.Info("maintenance pass requested", "project_id", in.ProjectID, "actions", len(actions))
	return nil, MaintenanceResult{Actions: toActionDTOs(actions)}, nil
}

func (t *tools) recentActivity(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetRecentActivityParams) (*sdkmcp.CallToolResult, ActivityResult, error) {
	if t.svc.Activity == nil {
		return nil, ActivityResult{}, errActivityDisabled
	}
	if in.ProjectID != "" {
		if err := task.ValidateProjectID(in.ProjectID); err != nil {
			return nil, ActivityResult{}, MapError(err)
		}
	}
	opts := activity.ListActivityOptions{
		ProjectID: in.ProjectID,
		TaskID:    in.TaskID,
		Limit:     in.Limit,
		Offset:    in.Offset,
	}
	if in.RunID != "" {
		opts.RunID = &in.RunID
	}
	if in.Type != "" {
		kind := activity.ActivityType(in.Type)
		opts.ActivityType = &kind
	}

	entries, err := t.svc.Activity.GetRecentActivity(ctx, opts)
	if err != nil {
		return nil, ActivityResult{}, MapError(err)
	}
	out := ActivityResult{Entries: make([]ActivityDTO, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, toActivityDTO(e))
	}
	return nil, out, nil
}

func taskResult(t *task.Task, err error) (*sdkmcp.CallToolResult, TaskResult, error) {
	if err != nil {
		return nil, TaskResult{}, MapError(err)
	}
	return nil, TaskResult{Task: toTaskDTO(*t)}, nil
}
