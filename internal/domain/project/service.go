package project

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/rpggio/tasktrellis/internal/domain/task"
)

// Service handles project operations. Projects have no state of their own;
// a project exists once its task file does.
type Service struct {
	tasks  TaskSource
	logger *slog.Logger
}

// NewService creates a new project service.
func NewService(tasks TaskSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{tasks: tasks, logger: logger}
}

// List returns a summary for every project, ordered by id.
func (s *Service) List(ctx context.Context) ([]ProjectSummary, error) {
	ids, err := s.tasks.GetProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	slices.Sort(ids)

	out := make([]ProjectSummary, 0, len(ids))
	for _, id := range ids {
		summary, err := s.summarize(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// Get returns the summary of one project.
func (s *Service) Get(ctx context.Context, projectID string) (*ProjectSummary, error) {
	if err := task.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	ids, err := s.tasks.GetProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	if !slices.Contains(ids, projectID) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	summary, err := s.summarize(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Service) summarize(ctx context.Context, projectID string) (ProjectSummary, error) {
	tasks, err := s.tasks.AllTasks(ctx, projectID)
	if err != nil {
		return ProjectSummary{}, fmt.Errorf("summarizing project %s: %w", projectID, err)
	}

	summary := ProjectSummary{ID: projectID, TaskCount: len(tasks)}
	total := 0
	for _, t := range tasks {
		switch t.Status {
		case task.StatusPending:
			summary.Pending++
		case task.StatusInProgress:
			summary.InProgress++
		case task.StatusCompleted:
			summary.Completed++
		}
		if t.IsSubtask {
			summary.Subtasks++
		}
		total += t.Progress
		if t.UpdatedAt.After(summary.LastUpdated) {
			summary.LastUpdated = t.UpdatedAt
		}
	}
	if len(tasks) > 0 {
		summary.Progress = total / len(tasks)
	}
	return summary, nil
}
