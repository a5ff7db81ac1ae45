package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/tasktrellis/internal/domain/activity"
	"github.com/stretchr/testify/require"
)

func TestActivityRepository_LogList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewActivityRepository(db)

	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	taskID := 3
	entry1 := &activity.ActivityEntry{
		ProjectID:    "p1",
		TaskID:       &taskID,
		ActivityType: activity.TypeTaskCreated,
		Summary:      "created task 3",
		Details:      `{"title":"x"}`,
		CreatedAt:    base,
	}
	entry2 := &activity.ActivityEntry{
		ProjectID:    "p1",
		ActivityType: activity.TypeTasksRenumbered,
		Summary:      "renumbered",
		CreatedAt:    base.Add(time.Minute),
	}

	require.NoError(t, repo.Log(ctx, entry1))
	require.NoError(t, repo.Log(ctx, entry2))
	require.NotZero(t, entry1.ID)

	entries, err := repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, entry2.ActivityType, entries[0].ActivityType)
	require.Equal(t, entry1.ActivityType, entries[1].ActivityType)
	require.NotNil(t, entries[1].TaskID)
	require.Equal(t, 3, *entries[1].TaskID)
	require.Nil(t, entries[0].TaskID)
	require.Equal(t, `{"title":"x"}`, entries[1].Details)
	require.True(t, base.Equal(entries[1].CreatedAt))
}

func TestActivityRepository_Filters(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewActivityRepository(db)

	runID := "run-1"
	taskID := 2
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID:    "p1",
		TaskID:       &taskID,
		RunID:        &runID,
		ActivityType: activity.TypeMaintenanceFix,
		Summary:      "fixed metadata",
	}))
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID:    "p1",
		ActivityType: activity.TypeTaskDeleted,
		Summary:      "deleted",
	}))
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID:    "p2",
		ActivityType: activity.TypeTaskCreated,
		Summary:      "created",
	}))

	fix := activity.TypeMaintenanceFix
	entries, err := repo.List(ctx, activity.ListActivityOptions{
		ProjectID:    "p1",
		RunID:        &runID,
		TaskID:       &taskID,
		ActivityType: &fix,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "run-1", *entries[0].RunID)

	entries, err = repo.List(ctx, activity.ListActivityOptions{ProjectID: "p2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = repo.List(ctx, activity.ListActivityOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	entries, err = repo.List(ctx, activity.ListActivityOptions{ProjectID: "nobody"})
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

func TestActivityRepository_LimitOffset(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewActivityRepository(db)

	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
			ProjectID:    "p1",
			ActivityType: activity.TypeTaskUpdated,
			Summary:      string(rune('a' + i)),
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "d", entries[0].Summary)
	require.Equal(t, "c", entries[1].Summary)

	entries, err = repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1", Offset: 3})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
