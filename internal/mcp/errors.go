package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/tasktrellis/internal/domain/task"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
}

// MapError maps domain errors to MCP error codes. Errors it does not
// recognize are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, task.ErrValidation):
		return &APIError{Code: "VALIDATION_ERROR", Message: err.Error(), RecoveryHint: "Fix the named field and retry"}
	case errors.Is(err, task.ErrTaskNotFound):
		return &APIError{Code: "TASK_NOT_FOUND", Message: err.Error(), RecoveryHint: "Call list_tasks to see current ids; ids change after reorganization"}
	case errors.Is(err, task.ErrProjectNotFound):
		return &APIError{Code: "PROJECT_NOT_FOUND", Message: err.Error(), RecoveryHint: "Call list_projects or create a task to start the project"}
	case errors.Is(err, task.ErrIDCollision):
		return &APIError{Code: "ID_COLLISION", Message: err.Error(), RecoveryHint: "Call reorganize_task_ids, then retry"}
	case errors.Is(err, task.ErrState):
		return &APIError{Code: "STATE_ERROR", Message: err.Error(), RecoveryHint: "Check the task's status and assignee"}
	case errors.Is(err, task.ErrFileSystem):
		return &APIError{Code: "FILESYSTEM_ERROR", Message: err.Error(), RecoveryHint: "Check the data directory permissions and disk space"}
	default:
		return err
	}
}
