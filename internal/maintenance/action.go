package maintenance

// ActionType names a repair the engine performed.
type ActionType string

const (
	ActionMetadataFixed    ActionType = "metadata_fixed"
	ActionOrphanDeleted    ActionType = "orphan_deleted"
	ActionOrphanConverted  ActionType = "orphan_converted"
	ActionOrphanReassigned ActionType = "orphan_reassigned"
	ActionQualityFixed     ActionType = "quality_fixed"
	ActionQualityDeleted   ActionType = "quality_deleted"
	ActionDuplicatesMerged ActionType = "duplicates_merged"
	ActionIDsReorganized   ActionType = "ids_reorganized"
)

// Action is one repair. TaskID is zero for project-wide actions.
type Action struct {
	Type        ActionType `json:"type"`
	TaskID      int        `json:"taskId,omitempty"`
	Description string     `json:"description"`
}

// Finding is a quality problem recorded without changing the task.
type Finding struct {
	TaskID int
	Issues []string
}
