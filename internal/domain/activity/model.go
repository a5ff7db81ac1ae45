package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeTaskCreated     ActivityType = "task_created"
	TypeTaskUpdated     ActivityType = "task_updated"
	TypeTaskCompleted   ActivityType = "task_completed"
	TypeTaskDeleted     ActivityType = "task_deleted"
	TypeTasksRenumbered ActivityType = "tasks_renumbered"
	TypeProjectReloaded ActivityType = "project_reloaded"
	TypeMaintenanceRun  ActivityType = "maintenance_run"
	TypeMaintenanceFix  ActivityType = "maintenance_action"
	TypeQualityFlagged  ActivityType = "quality_flagged"
)

// ActivityEntry represents an event in the activity log
type ActivityEntry struct {
	ID           int64        `json:"id"`
	ProjectID    string       `json:"project_id"`
	TaskID       *int         `json:"task_id,omitempty"`
	RunID        *string      `json:"run_id,omitempty"`
	ActivityType ActivityType `json:"type"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time    `json:"created_at"`
}
