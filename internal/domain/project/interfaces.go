package project

import (
	"context"

	"github.com/rpggio/tasktrellis/internal/domain/task"
)

// TaskSource is the part of the task store projects are derived from.
type TaskSource interface {
	GetProjects(ctx context.Context) ([]string, error)
	AllTasks(ctx context.Context, projectID string) ([]task.Task, error)
}
