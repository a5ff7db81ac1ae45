package project

import "github.com/rpggio/tasktrellis/internal/domain/task"

var (
	// ErrProjectNotFound indicates the project doesn't exist.
	ErrProjectNotFound = task.ErrProjectNotFound
)
