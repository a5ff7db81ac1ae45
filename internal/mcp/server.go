package mcp

import (
	"context"
	"io"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/tasktrellis/internal/domain/activity"
	"github.com/rpggio/tasktrellis/internal/domain/project"
	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/rpggio/tasktrellis/internal/maintenance"
)

// TaskService defines task store operations needed by MCP.
type TaskService interface {
	CreateTask(ctx context.Context, projectID string, req task.CreateRequest) (*task.Task, error)
	AddSubtask(ctx context.Context, projectID string, parentID int, req task.CreateRequest) (*task.Task, error)
	GetTask(ctx context.Context, projectID string, id int) (*task.Task, error)
	ListTasks(ctx context.Context, projectID string, opts task.ListOptions) ([]task.Task, error)
	AllTasks(ctx context.Context, projectID string) ([]task.Task, error)
	GetSubtasks(ctx context.Context, projectID string, parentID int) ([]task.Task, error)
	UpdateTask(ctx context.Context, projectID string, id int, req task.UpdateRequest) (*task.Task, error)
	CompleteTask(ctx context.Context, projectID string, id int) (*task.Task, error)
	UpdateProgress(ctx context.Context, projectID string, id, progress int) (*task.Task, error)
	AssignTask(ctx context.Context, projectID string, id int, assignee string) (*task.Task, error)
	DeleteTask(ctx context.Context, projectID string, id int, reorganize bool) ([]int, error)
	DeleteTasks(ctx context.Context, projectID string, c task.DeleteCriteria) ([]int, error)
	Reorganize(ctx context.Context, projectID string) (map[int]int, error)
}

// ProjectService defines project operations needed by MCP.
type ProjectService interface {
	List(ctx context.Context) ([]project.ProjectSummary, error)
}

// MaintenanceService runs maintenance passes on demand.
type MaintenanceService interface {
	PerformCleanup(ctx context.Context, projectID string) ([]maintenance.Action, error)
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services contains all domain services needed by MCP. Activity may be nil
// when the activity log is disabled.
type Services struct {
	Tasks       TaskService
	Projects    ProjectService
	Maintenance MaintenanceService
	Activity    ActivityService
}

// Config contains server configuration.
type Config struct {
	Services Services
	Version  string
	Logger   *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "tasktrellis",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(recoverMiddleware(logger))
	server.AddReceivingMiddleware(trafficLoggingMiddleware(logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(logger, "outbound"))

	registerTools(server, cfg.Services, logger)

	return server
}
