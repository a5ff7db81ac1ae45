package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `tasktrellis keeps a per-project task list for agents and repairs it automatically.

Core concepts:
- Project: a namespace (letters, digits, - and _) owning one task file.
- Task: id, title, description, status (pending, in-progress, completed), priority, progress 0-100,
  dependencies, subtasks. A subtask is listed in exactly one top-level task's subtasks.
- Maintenance pass: runs after a task is completed or reaches 100% progress. It fixes metadata,
  resolves orphaned subtasks, merges duplicates and renumbers ids to 1..N.

Rules of engagement:
1) Orient: list_projects, then list_tasks for your project.
2) Claim work: assign_task before update_progress; progress updates need an assignee.
3) Finish: update_progress with 100 or complete_task. Ids may change afterwards; re-read with list_tasks.
4) Inspect: get_recent_activity shows what maintenance changed and why.

Docs:
- tasktrellis://docs/workflow
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "tasktrellis://docs/workflow",
		Name:        "docs_workflow",
		Title:       "tasktrellis workflow",
		Description: "How to create, claim, progress and finish tasks, and what maintenance does afterwards.",
		Content: `# tasktrellis workflow

## Creating work

- ` + "`create_task`" + ` appends a task with the next id (current count + 1), status pending and progress 0.
- ` + "`add_subtask`" + ` creates a task under a top-level parent. Subtasks cannot have subtasks.
- Dependencies must name existing tasks in the same project.

## Doing work

1. ` + "`assign_task`" + ` with your agent name.
2. ` + "`update_progress`" + ` as you go. A pending task moves to in-progress.
3. ` + "`update_progress`" + ` with 100, or ` + "`complete_task`" + `, finishes it.

When every subtask of a task is completed, progress updates on that task are raised to 100.

## After completion

Finishing a task triggers a maintenance pass for the project:

| Stage | What it does |
|---|---|
| metadata | completed tasks get progress 100 and a completion time; pending tasks get progress 0; assigned tasks get an assignment time |
| orphans | subtasks no parent lists are reassigned, converted to top-level tasks, or deleted |
| quality | short titles or descriptions and unset priorities are flagged, fixed or deleted |
| duplicates | near-identical tasks are merged into the earliest one; its subtasks and dependents move over |
| renumber | ids are compacted to 1..N when anything changed |

Ids can change after a pass. Always re-read tasks before referring to them by id.
` + "`run_maintenance`" + ` runs a pass on demand and returns the actions taken.

## Errors

| Code | Meaning |
|---|---|
| VALIDATION_ERROR | a project id, task id or field is malformed |
| TASK_NOT_FOUND | the id does not exist in the project |
| PROJECT_NOT_FOUND | the project has no task file |
| STATE_ERROR | the transition is not allowed, e.g. progress without an assignee |
| ID_COLLISION | the next id is taken after a delete without renumbering; call reorganize_task_ids |
| FILESYSTEM_ERROR | the task file could not be read or written |
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
