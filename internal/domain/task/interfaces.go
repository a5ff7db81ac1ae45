package task

import (
	"context"

	"github.com/rpggio/tasktrellis/internal/domain/activity"
)

// Repository persists a project's full task list.
type Repository interface {
	// Load returns the persisted tasks, creating an empty collection when the
	// project has none yet.
	Load(ctx context.Context, projectID string) ([]Task, error)
	Save(ctx context.Context, projectID string, tasks []Task) error
	ListProjects(ctx context.Context) ([]string, error)
}

// ActivityRepository logs task activities.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
}
