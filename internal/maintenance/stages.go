package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/rpggio/tasktrellis/internal/similarity"
)

const (
	titleFiller       = "(needs title)"
	descriptionFiller = "Needs a more detailed description."
)

// run is the state of one maintenance pass.
type run struct {
	engine   *Engine
	cfg      Config
	id       string
	logger   *slog.Logger
	actions  []Action
	findings []Finding
	// merged is set when the duplicates stage removed a task.
	merged bool
}

func (r *run) execute(ctx context.Context, b *task.Batch) {
	stages := []struct {
		name    string
		enabled bool
		fn      func(context.Context, *task.Batch)
	}{
		{"metadata", r.cfg.Metadata.Enabled, r.metadata},
		{"orphans", r.cfg.Orphans.Enabled, r.orphans},
		{"quality", r.cfg.Quality.Enabled, r.quality},
		{"duplicates", r.cfg.Duplicates.Enabled, r.duplicates},
	}
	for _, s := range stages {
		if !s.enabled {
			continue
		}
		r.guard(s.name, 0, func() error {
			s.fn(ctx, b)
			return nil
		})
	}

	// A merge can leave the subtasks of a removed duplicate without a
	// top-level parent.
	if r.cfg.Orphans.Enabled && r.merged {
		r.guard("orphans", 0, func() error {
			r.orphans(ctx, b)
			return nil
		})
	}

	// Renumbering only follows a pass that changed something.
	if r.cfg.Renumber.Enabled && len(r.actions) > 0 {
		r.guard("renumber", 0, func() error {
			mapping := b.Reorganize()
			changed := 0
			for old, n := range mapping {
				if old != n {
					changed++
				}
			}
			if changed > 0 {
				r.act(ActionIDsReorganized, 0, fmt.Sprintf("renumbered %d tasks to 1..%d", changed, len(mapping)))
			}
			return nil
		})
	}
}

// guard runs fn, logging its error or panic without stopping the pass.
func (r *run) guard(stage string, taskID int, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("maintenance step panicked", "stage", stage, "task_id", taskID, "panic", p)
		}
	}()
	if err := fn(); err != nil {
		r.logger.Warn("maintenance step failed", "stage", stage, "task_id", taskID, "error", err)
	}
}

func (r *run) act(kind ActionType, taskID int, description string) {
	r.actions = append(r.actions, Action{Type: kind, TaskID: taskID, Description: description})
	r.logger.Info("maintenance action", "type", kind, "task_id", taskID, "description", description)
}

func (r *run) metadata(_ context.Context, b *task.Batch) {
	tasks := b.Tasks()
	for _, t := range tasks {
		r.guard("metadata", t.ID, func() error {
			var (
				req   task.UpdateRequest
				fixes []string
			)
			stamp := t.UpdatedAt
			if stamp.IsZero() {
				stamp = r.engine.now()
			}

			if t.Status == task.StatusCompleted {
				if t.CompletedAt == nil {
					req.CompletedAt = &stamp
					fixes = append(fixes, "backfilled completedAt")
				}
				if t.Progress != 100 {
					req.Progress = task.Ptr(100)
					fixes = append(fixes, fmt.Sprintf("progress %d -> 100", t.Progress))
				}
			}
			// A pending parent whose subtasks are all done keeps its progress floor.
			if t.Status == task.StatusPending && t.Progress != 0 && !subtasksDone(tasks, t) {
				req.Progress = task.Ptr(0)
				fixes = append(fixes, fmt.Sprintf("progress %d -> 0", t.Progress))
			}
			if t.AssignedTo != "" && t.AssignedAt == nil {
				req.AssignedAt = &stamp
				fixes = append(fixes, "backfilled assignedAt")
			}
			if len(fixes) == 0 {
				return nil
			}

			if _, err := b.Update(t.ID, req); err != nil {
				return err
			}
			r.act(ActionMetadataFixed, t.ID, fmt.Sprintf("task %d: %s", t.ID, strings.Join(fixes, ", ")))
			return nil
		})
	}
}

func subtasksDone(tasks []task.Task, t task.Task) bool {
	if len(t.Subtasks) == 0 {
		return false
	}
	for _, id := range t.Subtasks {
		i := slices.IndexFunc(tasks, func(o task.Task) bool { return o.ID == id })
		if i < 0 || tasks[i].Status != task.StatusCompleted {
			return false
		}
	}
	return true
}

// orphanIDs returns subtask-flagged tasks that no top-level task lists.
func orphanIDs(tasks []task.Task) []int {
	owned := make(map[int]bool)
	for _, t := range tasks {
		if t.IsSubtask {
			continue
		}
		for _, id := range t.Subtasks {
			owned[id] = true
		}
	}
	var ids []int
	for _, t := range tasks {
		if t.IsSubtask && !owned[t.ID] {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (r *run) orphans(_ context.Context, b *task.Batch) {
	for _, id := range orphanIDs(b.Tasks()) {
		r.guard("orphans", id, func() error {
			switch r.cfg.Orphans.Policy {
			case OrphanDelete:
				removed, err := b.Delete(id)
				if err != nil {
					return err
				}
				r.act(ActionOrphanDeleted, id, fmt.Sprintf("deleted orphaned subtask %d (removed %v)", id, removed))
				return nil
			case OrphanReassign:
				if parent, ok := pickParent(b.Tasks(), id, r.cfg.Orphans.TargetParent); ok {
					subs := append(slices.Clone(parent.Subtasks), id)
					if _, err := b.Update(parent.ID, task.UpdateRequest{Subtasks: &subs}); err != nil {
						return err
					}
					r.act(ActionOrphanReassigned, id, fmt.Sprintf("reassigned orphaned subtask %d to task %d", id, parent.ID))
					return nil
				}
			}
			if _, err := b.Update(id, task.UpdateRequest{IsSubtask: task.Ptr(false)}); err != nil {
				return err
			}
			r.act(ActionOrphanConverted, id, fmt.Sprintf("converted orphaned subtask %d to a top-level task", id))
			return nil
		})
	}
}

// pickParent prefers the configured target, then the first unfinished
// top-level task, then any top-level task.
func pickParent(tasks []task.Task, orphan, target int) (task.Task, bool) {
	topLevel := func(t task.Task) bool { return !t.IsSubtask && t.ID != orphan }

	if target > 0 {
		for _, t := range tasks {
			if t.ID == target && topLevel(t) {
				return t, true
			}
		}
	}
	for _, t := range tasks {
		if topLevel(t) && t.Status != task.StatusCompleted {
			return t, true
		}
	}
	for _, t := range tasks {
		if topLevel(t) {
			return t, true
		}
	}
	return task.Task{}, false
}

func qualityIssues(t task.Task, cfg QualityConfig) []string {
	var issues []string
	if utf8.RuneCountInString(strings.TrimSpace(t.Title)) < cfg.MinTitleLength {
		issues = append(issues, "title too short")
	}
	if utf8.RuneCountInString(strings.TrimSpace(t.Description)) < cfg.MinDescriptionLength {
		issues = append(issues, "description too short")
	}
	if t.Priority == "" {
		issues = append(issues, "priority unset")
	}
	return issues
}

func (r *run) quality(_ context.Context, b *task.Batch) {
	cfg := r.cfg.Quality
	for _, t := range b.Tasks() {
		issues := qualityIssues(t, cfg)
		if len(issues) == 0 {
			continue
		}
		r.guard("quality", t.ID, func() error {
			switch cfg.Action {
			case QualityFix:
				req := task.UpdateRequest{
					Title:       task.Ptr(pad(t.Title, max(cfg.MinTitleLength, 1), titleFiller, task.MaxTitleLength)),
					Description: task.Ptr(pad(t.Description, cfg.MinDescriptionLength, descriptionFiller, task.MaxDescriptionLength)),
				}
				if t.Priority == "" {
					req.Priority = task.Ptr(task.PriorityMedium)
				}
				if _, err := b.Update(t.ID, req); err != nil {
					return err
				}
				r.act(ActionQualityFixed, t.ID, fmt.Sprintf("task %d: fixed %s", t.ID, strings.Join(issues, ", ")))
			case QualityDelete:
				// A cascade from an earlier deletion may already have removed it.
				if _, err := b.Get(t.ID); err != nil {
					return nil
				}
				if _, err := b.Delete(t.ID); err != nil {
					return err
				}
				r.act(ActionQualityDeleted, t.ID, fmt.Sprintf("deleted task %d: %s", t.ID, strings.Join(issues, ", ")))
			default:
				r.findings = append(r.findings, Finding{TaskID: t.ID, Issues: issues})
				r.logger.Info("task below quality bar", "task_id", t.ID, "issues", issues)
			}
			return nil
		})
	}
}

// pad appends filler until text reaches min runes, then caps it at max.
func pad(text string, minLen int, filler string, maxLen int) string {
	out := strings.TrimSpace(text)
	for utf8.RuneCountInString(out) < minLen {
		if out == "" {
			out = filler
		} else {
			out += " " + filler
		}
	}
	if utf8.RuneCountInString(out) > maxLen {
		out = string([]rune(out)[:maxLen])
	}
	return out
}

func (r *run) duplicates(ctx context.Context, b *task.Batch) {
	// Each round is one greedy clustering pass; repeat until nothing merges
	// so an immediate second run finds no work.
	for {
		clusters := r.cluster(ctx, b.Tasks())
		if len(clusters) == 0 {
			return
		}
		merged := false
		for _, c := range clusters {
			r.guard("duplicates", c[0].ID, func() error {
				// A failing cluster leaves no partial merge behind.
				if err := b.Atomic(func() error { return r.merge(b, c) }); err != nil {
					return err
				}
				merged = true
				return nil
			})
		}
		if !merged {
			return
		}
		r.merged = true
	}
}

// cluster groups the first MaxTasks tasks by greedy agglomeration around
// each unclustered seed. Only clusters with more than one member are
// returned.
func (r *run) cluster(ctx context.Context, tasks []task.Task) [][]task.Task {
	cfg := r.cfg.Duplicates
	if cfg.MaxTasks > 0 && len(tasks) > cfg.MaxTasks {
		tasks = tasks[:cfg.MaxTasks]
	}
	n := len(tasks)
	if n < 2 {
		return nil
	}

	texts := make([]string, n)
	for i, t := range tasks {
		texts[i] = similarity.Normalize(t.Title + " " + t.Description)
	}
	pairs := make([]similarity.Pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, similarity.Pair{A: texts[i], B: texts[j]})
		}
	}
	scores := r.engine.scorer.ScoreBatch(ctx, pairs)
	score := func(i, j int) float64 {
		// Row-major index into the upper triangle.
		return scores[i*(2*n-i-1)/2+(j-i-1)]
	}

	clustered := make([]bool, n)
	var clusters [][]task.Task
	for i := 0; i < n; i++ {
		if clustered[i] {
			continue
		}
		clustered[i] = true
		group := []task.Task{tasks[i]}
		for j := i + 1; j < n; j++ {
			if !clustered[j] && score(i, j) >= cfg.Threshold {
				clustered[j] = true
				group = append(group, tasks[j])
			}
		}
		if len(group) > 1 {
			clusters = append(clusters, group)
		}
	}
	return clusters
}

// merge keeps the earliest created task of the cluster. Subtasks of the
// others move to the survivor, or to its parent when the survivor is itself
// a subtask, and dependencies on them are redirected to the survivor.
func (r *run) merge(b *task.Batch, cluster []task.Task) error {
	sort.SliceStable(cluster, func(i, j int) bool {
		if cluster[i].CreatedAt.Equal(cluster[j].CreatedAt) {
			return cluster[i].ID < cluster[j].ID
		}
		return cluster[i].CreatedAt.Before(cluster[j].CreatedAt)
	})
	survivor, err := b.Get(cluster[0].ID)
	if err != nil {
		return err
	}
	members := make(map[int]bool, len(cluster))
	for _, t := range cluster {
		members[t.ID] = true
	}
	owner, err := subtaskOwner(b, survivor, members)
	if err != nil {
		return err
	}

	var removed []int
	for _, dup := range cluster[1:] {
		current, err := b.Get(dup.ID)
		if err != nil {
			continue
		}

		if len(current.Subtasks) > 0 {
			parent, err := b.Get(owner)
			if err != nil {
				return err
			}
			subs := slices.Clone(parent.Subtasks)
			for _, id := range current.Subtasks {
				if id != owner && id != survivor.ID && !slices.Contains(subs, id) {
					subs = append(subs, id)
				}
			}
			if _, err := b.Update(owner, task.UpdateRequest{Subtasks: &subs}); err != nil {
				return err
			}
			if _, err := b.Update(dup.ID, task.UpdateRequest{Subtasks: &[]int{}}); err != nil {
				return err
			}
		}
		if _, err := b.RedirectDependencies(dup.ID, survivor.ID); err != nil {
			return err
		}
		if _, err := b.Delete(dup.ID); err != nil {
			return err
		}
		removed = append(removed, dup.ID)
	}

	if len(removed) == 0 {
		return nil
	}
	r.act(ActionDuplicatesMerged, survivor.ID, fmt.Sprintf("merged duplicate tasks %v into task %d", removed, survivor.ID))
	return nil
}

// subtaskOwner returns the top-level task that adopts the subtasks of the
// removed duplicates. A subtask survivor whose parent is being merged away
// is converted to a top-level task and adopts them itself.
func subtaskOwner(b *task.Batch, survivor task.Task, members map[int]bool) (int, error) {
	if !survivor.IsSubtask {
		return survivor.ID, nil
	}
	for _, t := range b.Tasks() {
		if !t.IsSubtask && !members[t.ID] && slices.Contains(t.Subtasks, survivor.ID) {
			return t.ID, nil
		}
	}
	if _, err := b.Update(survivor.ID, task.UpdateRequest{IsSubtask: task.Ptr(false)}); err != nil {
		return 0, err
	}
	return survivor.ID, nil
}
