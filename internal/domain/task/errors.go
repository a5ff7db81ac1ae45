package task

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates a malformed project id, task id or field. It is
	// always returned before any I/O happens.
	ErrValidation = errors.New("validation failed")
	// ErrTaskNotFound indicates the referenced task doesn't exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrProjectNotFound indicates the referenced project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrState indicates an illegal transition for the task's current state.
	ErrState = errors.New("invalid task state")
	// ErrIDCollision indicates the next sequential id is already taken, which
	// happens after deletions that skipped renumbering.
	ErrIDCollision = fmt.Errorf("%w: task id collision", ErrState)
	// ErrFileSystem wraps persistence failures.
	ErrFileSystem = errors.New("file system error")
)

func validationError(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrValidation, field, fmt.Sprintf(format, args...))
}

func notFound(projectID string, id int) error {
	return fmt.Errorf("%w: task %d in project %s", ErrTaskNotFound, id, projectID)
}

// FileSystemError wraps an I/O failure so it matches both ErrFileSystem and
// the underlying cause.
func FileSystemError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFileSystem) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrFileSystem, op, err)
}
