package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/rpggio/tasktrellis/internal/app"
	"github.com/rpggio/tasktrellis/internal/config"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	dataDir    string
	activityDB string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "taskctl",
		Short:         "Inspect and maintain task projects offline",
		Long:          "taskctl works on the same data directory as the MCP server. The server must not be running, since only one process may own the directory.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (overrides configuration)")
	rootCmd.PersistentFlags().StringVar(&flags.activityDB, "activity-db", "", "activity database path (overrides configuration)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log at the configured level instead of warn")

	rootCmd.AddCommand(projectsCmd(flags))
	rootCmd.AddCommand(tasksCmd(flags))
	rootCmd.AddCommand(addCmd(flags))
	rootCmd.AddCommand(cleanupCmd(flags))
	rootCmd.AddCommand(reorganizeCmd(flags))
	rootCmd.AddCommand(activityCmd(flags))
	return rootCmd
}

// withApp opens the data directory for the duration of fn and flushes every
// pending write afterwards.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flags.dataDir != "" {
		cfg.Data.Dir = flags.dataDir
	}
	if flags.activityDB != "" {
		cfg.Activity.DBPath = flags.activityDB
	}

	level := slog.LevelWarn
	if flags.verbose {
		level = app.ParseLevel(cfg.Log.Level)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logger, app.Options{DisableWatch: true})
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close(context.WithoutCancel(ctx)))
	}()
	return fn(ctx, a)
}
