package app

import (
	"context"
	"path/filepath"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/tasktrellis/internal/config"
	"github.com/rpggio/tasktrellis/internal/domain/activity"
	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/rpggio/tasktrellis/internal/repository"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data.Dir = filepath.Join(dir, "data")
	cfg.Activity.DBPath = filepath.Join(dir, "db", "activity.db")
	cfg.Watch.Enabled = false
	return cfg
}

func TestNew_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	created, err := a.Tasks.CreateTask(ctx, "demo", task.CreateRequest{Title: "Write docs", Description: "User guide"})
	require.NoError(t, err)
	require.Equal(t, 1, created.ID)
	require.NoError(t, a.Close(ctx))

	a, err = New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	got, err := a.Tasks.GetTask(ctx, "demo", 1)
	require.NoError(t, err)
	require.Equal(t, "Write docs", got.Title)

	projects, err := a.Projects.List(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, "demo", projects[0].ID)

	kind := activity.TypeTaskCreated
	entries, err := a.Activity.GetRecentActivity(ctx, activity.ListActivityOptions{ProjectID: "demo", ActivityType: &kind})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestNew_SecondOwnerIsRejected(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	_, err = New(ctx, cfg, nil, Options{})
	require.ErrorIs(t, err, repository.ErrLocked)
}

func TestNew_ActivityDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Activity.Enabled = false

	a, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.Nil(t, a.Activity)
	require.NoError(t, a.Health(ctx))

	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := a.MCPServer("test").Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "get_recent_activity", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestNew_InvalidFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Format = "xml"

	_, err := New(context.Background(), cfg, nil, Options{})
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", ParseLevel("debug").String())
	require.Equal(t, "WARN", ParseLevel("WARN").String())
	require.Equal(t, "INFO", ParseLevel("").String())
}
