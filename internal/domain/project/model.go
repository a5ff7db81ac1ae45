package project

import "time"

// ProjectSummary is a lightweight representation for listing
type ProjectSummary struct {
	ID          string    `json:"id"`
	TaskCount   int       `json:"task_count"`
	Pending     int       `json:"pending"`
	InProgress  int       `json:"in_progress"`
	Completed   int       `json:"completed"`
	Subtasks    int       `json:"subtasks"`
	Progress    int       `json:"progress"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}
