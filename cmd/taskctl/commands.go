package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/rpggio/tasktrellis/internal/app"
	"github.com/rpggio/tasktrellis/internal/domain/activity"
	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/rpggio/tasktrellis/internal/maintenance"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	faint  = color.New(color.Faint)
)

func projectsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects with task counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				projects, err := a.Projects.List(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(projects) == 0 {
					fmt.Fprintln(out, "no projects")
					return nil
				}
				for _, p := range projects {
					fmt.Fprintf(out, "%-20s %3d tasks  %s pending  %s in progress  %s completed  %3d%%\n",
						p.ID, p.TaskCount,
						yellow.Sprint(p.Pending), yellow.Sprint(p.InProgress), green.Sprint(p.Completed),
						p.Progress)
				}
				return nil
			})
		},
	}
}

func tasksCmd(flags *globalFlags) *cobra.Command {
	var status, assignee string
	cmd := &cobra.Command{
		Use:   "tasks <project>",
		Short: "List the tasks of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := task.ListOptions{}
			if status != "" {
				if err := task.ValidateStatus(task.Status(status)); err != nil {
					return err
				}
				opts.Status = task.Ptr(task.Status(status))
			}
			if assignee != "" {
				opts.AssignedTo = &assignee
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				tasks, err := a.Tasks.ListTasks(ctx, args[0], opts)
				if err != nil {
					return err
				}
				printTasks(cmd.OutOrStdout(), tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (pending, in-progress, completed)")
	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "filter by assignee")
	return cmd
}

func addCmd(flags *globalFlags) *cobra.Command {
	var description, priority string
	var parent int
	cmd := &cobra.Command{
		Use:   "add <project> <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := task.CreateRequest{Title: args[1], Description: description, Priority: task.Priority(priority)}
			if parent > 0 {
				req.ParentID = &parent
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				created, err := a.Tasks.CreateTask(ctx, args[0], req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s task %d: %s\n", green.Sprint("created"), created.ID, created.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "low, medium or high")
	cmd.Flags().IntVar(&parent, "parent", 0, "create as a subtask of this task")
	return cmd
}

func cleanupCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "cleanup <project>",
		Short: "Run a maintenance pass over a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				actions, err := a.Maintenance.PerformCleanup(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if actions == nil {
						actions = []maintenance.Action{}
					}
					return enc.Encode(actions)
				}
				if len(actions) == 0 {
					fmt.Fprintln(out, green.Sprint("✓"), "nothing to repair")
					return nil
				}
				for _, action := range actions {
					fmt.Fprintf(out, "%s %-18s %s\n", actionColor(action.Type).Sprint("•"), action.Type, action.Description)
				}
				fmt.Fprintf(out, "%d actions\n", len(actions))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output actions as JSON")
	return cmd
}

func reorganizeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reorganize <project>",
		Short: "Renumber task ids to 1..N",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				mapping, err := a.Tasks.Reorganize(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				oldIDs := make([]int, 0, len(mapping))
				for oldID, newID := range mapping {
					if oldID != newID {
						oldIDs = append(oldIDs, oldID)
					}
				}
				if len(oldIDs) == 0 {
					fmt.Fprintln(out, green.Sprint("✓"), "ids already sequential")
					return nil
				}
				sort.Ints(oldIDs)
				for _, oldID := range oldIDs {
					fmt.Fprintf(out, "%d -> %d\n", oldID, mapping[oldID])
				}
				return nil
			})
		},
	}
}

func activityCmd(flags *globalFlags) *cobra.Command {
	var limit int
	var runID string
	cmd := &cobra.Command{
		Use:   "activity [project]",
		Short: "Show recent activity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := activity.ListActivityOptions{Limit: limit}
			if len(args) == 1 {
				opts.ProjectID = args[0]
			}
			if runID != "" {
				opts.RunID = &runID
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				if a.Activity == nil {
					return errors.New("activity log is disabled")
				}
				entries, err := a.Activity.GetRecentActivity(ctx, opts)
				if err != nil {
					return err
				}
				printActivity(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries")
	cmd.Flags().StringVar(&runID, "run", "", "only entries of this maintenance run")
	return cmd
}

func printTasks(out io.Writer, tasks []task.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "no tasks")
		return
	}
	for _, t := range tasks {
		indent := ""
		if t.IsSubtask {
			indent = "  "
		}
		line := fmt.Sprintf("%s%3d %s %s", indent, t.ID, statusColor(t.Status).Sprintf("%-11s", t.Status), t.Title)
		if t.Priority != "" {
			line += faint.Sprintf(" [%s]", t.Priority)
		}
		if t.AssignedTo != "" {
			line += faint.Sprintf(" @%s", t.AssignedTo)
		}
		if t.Status == task.StatusInProgress {
			line += fmt.Sprintf(" %d%%", t.Progress)
		}
		fmt.Fprintln(out, line)
	}
}

func printActivity(out io.Writer, entries []activity.ActivityEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "no activity")
		return
	}
	for _, e := range entries {
		subject := e.ProjectID
		if e.TaskID != nil {
			subject = fmt.Sprintf("%s#%d", e.ProjectID, *e.TaskID)
		}
		fmt.Fprintf(out, "%s %-18s %-14s %s\n",
			faint.Sprint(e.CreatedAt.Local().Format(time.DateTime)), e.ActivityType, subject, e.Summary)
	}
}

func statusColor(s task.Status) *color.Color {
	switch s {
	case task.StatusCompleted:
		return green
	case task.StatusInProgress:
		return yellow
	default:
		return faint
	}
}

func actionColor(t maintenance.ActionType) *color.Color {
	switch t {
	case maintenance.ActionOrphanDeleted, maintenance.ActionQualityDeleted, maintenance.ActionDuplicatesMerged:
		return red
	case maintenance.ActionIDsReorganized:
		return faint
	default:
		return yellow
	}
}
