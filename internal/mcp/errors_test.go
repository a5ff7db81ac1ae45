package mcp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: title: required", task.ErrValidation), "VALIDATION_ERROR"},
		{fmt.Errorf("%w: task 9", task.ErrTaskNotFound), "TASK_NOT_FOUND"},
		{task.ErrProjectNotFound, "PROJECT_NOT_FOUND"},
		{task.ErrIDCollision, "ID_COLLISION"},
		{fmt.Errorf("%w: no assignee", task.ErrState), "STATE_ERROR"},
		{task.FileSystemError("save", errors.New("read-only")), "FILESYSTEM_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			var apiErr *APIError
			require.ErrorAs(t, MapError(tc.err), &apiErr)
			require.Equal(t, tc.code, apiErr.Code)
			require.NotEmpty(t, apiErr.RecoveryHint)
			require.Contains(t, apiErr.Error(), tc.code)
		})
	}

	other := errors.New("boom")
	require.Equal(t, other, MapError(other))
	require.NoError(t, MapError(nil))
}
