package task

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxProjectIDLength   = 50
	MaxTitleLength       = 100
	MaxDescriptionLength = 1000
)

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateProjectID checks the project identifier format.
func ValidateProjectID(projectID string) error {
	if projectID == "" {
		return validationError("projectId", "required")
	}
	if len(projectID) > MaxProjectIDLength {
		return validationError("projectId", "must be at most %d characters", MaxProjectIDLength)
	}
	if !projectIDPattern.MatchString(projectID) {
		return validationError("projectId", "must match %s", projectIDPattern.String())
	}
	return nil
}

// ValidateTaskID checks that a task id is a positive integer.
func ValidateTaskID(id int) error {
	if id <= 0 {
		return validationError("id", "must be a positive integer, got %d", id)
	}
	return nil
}

func ValidateTitle(title string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n == 0 {
		return validationError("title", "required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return validationError("title", "must be at most %d characters", MaxTitleLength)
	}
	return nil
}

func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return validationError("description", "must be at most %d characters", MaxDescriptionLength)
	}
	return nil
}

func ValidateStatus(status Status) error {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted:
		return nil
	}
	return validationError("status", "unknown status %q", status)
}

// ValidatePriority accepts the empty priority, which means unset.
func ValidatePriority(priority Priority) error {
	switch priority {
	case "", PriorityLow, PriorityMedium, PriorityHigh:
		return nil
	}
	return validationError("priority", "unknown priority %q", priority)
}

func ValidateProgress(progress int) error {
	if progress < 0 || progress > 100 {
		return validationError("progress", "must be between 0 and 100, got %d", progress)
	}
	return nil
}

func validateIDs(field string, ids []int) error {
	for _, id := range ids {
		if id <= 0 {
			return validationError(field, "must contain positive ids, got %d", id)
		}
	}
	return nil
}

// ValidateCreateInput validates fields required to create a task.
func ValidateCreateInput(req CreateRequest) error {
	if err := ValidateTitle(req.Title); err != nil {
		return err
	}
	if err := ValidateDescription(req.Description); err != nil {
		return err
	}
	if err := ValidatePriority(req.Priority); err != nil {
		return err
	}
	if req.ParentID != nil {
		if err := ValidateTaskID(*req.ParentID); err != nil {
			return err
		}
	}
	return validateIDs("dependencies", req.Dependencies)
}

// ValidateUpdateInput validates the fields present in a patch.
func ValidateUpdateInput(req UpdateRequest) error {
	if req.Title != nil {
		if err := ValidateTitle(*req.Title); err != nil {
			return err
		}
	}
	if req.Description != nil {
		if err := ValidateDescription(*req.Description); err != nil {
			return err
		}
	}
	if req.Status != nil {
		if err := ValidateStatus(*req.Status); err != nil {
			return err
		}
	}
	if req.Priority != nil {
		if err := ValidatePriority(*req.Priority); err != nil {
			return err
		}
	}
	if req.Progress != nil {
		if err := ValidateProgress(*req.Progress); err != nil {
			return err
		}
	}
	if req.Dependencies != nil {
		if err := validateIDs("dependencies", *req.Dependencies); err != nil {
			return err
		}
	}
	if req.Subtasks != nil {
		if err := validateIDs("subtasks", *req.Subtasks); err != nil {
			return err
		}
	}
	return nil
}
