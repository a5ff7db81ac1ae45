package task

import "time"

// CreateRequest describes a task creation request.
type CreateRequest struct {
	Title        string
	Description  string
	Priority     Priority
	Dependencies []int
	AssignedTo   string
	ParentID     *int
}

// UpdateRequest is a patch; nil fields are left unchanged. The timestamp and
// hierarchy fields exist for maintenance repairs and are not exposed to tools.
type UpdateRequest struct {
	Title        *string
	Description  *string
	Status       *Status
	Priority     *Priority
	Progress     *int
	Dependencies *[]int
	AssignedTo   *string
	Subtasks     *[]int
	IsSubtask    *bool
	CompletedAt  *time.Time
	AssignedAt   *time.Time
}

// ListOptions filters task listings.
type ListOptions struct {
	Status     *Status
	AssignedTo *string
}

// DeleteMode selects how DeleteTasks picks its targets.
type DeleteMode string

const (
	DeleteByIDs       DeleteMode = "ids"
	DeleteByStatus    DeleteMode = "status"
	DeleteDuplicates  DeleteMode = "duplicates"
	DeleteUnqualified DeleteMode = "unqualified"
)

// DeleteCriteria describes a bulk deletion. Exactly one mode applies.
type DeleteCriteria struct {
	Mode   DeleteMode
	IDs    []int
	Status Status
}

// Validate checks that the criteria are usable.
func (c DeleteCriteria) Validate() error {
	switch c.Mode {
	case DeleteByIDs:
		if len(c.IDs) == 0 {
			return validationError("ids", "at least one id required")
		}
		return validateIDs("ids", c.IDs)
	case DeleteByStatus:
		return ValidateStatus(c.Status)
	case DeleteDuplicates, DeleteUnqualified:
		return nil
	}
	return validationError("mode", "unknown delete mode %q", c.Mode)
}

// Ptr returns a pointer to v; handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
