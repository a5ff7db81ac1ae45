package task

// projectState is the in-memory view of one project. It is replaced, never
// mutated, on every commit so readers holding an older state stay consistent.
type projectState struct {
	tasks []Task
	idx   index
}

type index struct {
	byID       map[int]int // id -> position in tasks
	byStatus   map[Status][]int
	byAssignee map[string][]int
	parentOf   map[int]int // subtask id -> parent id
}

func newProjectState(tasks []Task) *projectState {
	if tasks == nil {
		tasks = []Task{}
	}
	return &projectState{tasks: tasks, idx: buildIndex(tasks)}
}

func buildIndex(tasks []Task) index {
	idx := index{
		byID:       make(map[int]int, len(tasks)),
		byStatus:   make(map[Status][]int),
		byAssignee: make(map[string][]int),
		parentOf:   make(map[int]int),
	}
	for i, t := range tasks {
		if _, dup := idx.byID[t.ID]; dup {
			continue
		}
		idx.byID[t.ID] = i
		idx.byStatus[t.Status] = append(idx.byStatus[t.Status], t.ID)
		if t.AssignedTo != "" {
			idx.byAssignee[t.AssignedTo] = append(idx.byAssignee[t.AssignedTo], t.ID)
		}
	}
	// Only top-level tasks own subtasks; the first owner wins.
	for _, t := range tasks {
		if t.IsSubtask {
			continue
		}
		for _, sub := range t.Subtasks {
			if _, ok := idx.parentOf[sub]; !ok {
				idx.parentOf[sub] = t.ID
			}
		}
	}
	return idx
}

func (st *projectState) get(id int) (Task, bool) {
	pos, ok := st.idx.byID[id]
	if !ok {
		return Task{}, false
	}
	return st.tasks[pos].Clone(), true
}

// filter returns clones of the tasks matching opts in file order.
func (st *projectState) filter(opts ListOptions) []Task {
	var ids []int
	switch {
	case opts.Status != nil && opts.AssignedTo != nil:
		assigned := make(map[int]bool)
		for _, id := range st.idx.byAssignee[*opts.AssignedTo] {
			assigned[id] = true
		}
		for _, id := range st.idx.byStatus[*opts.Status] {
			if assigned[id] {
				ids = append(ids, id)
			}
		}
	case opts.Status != nil:
		ids = st.idx.byStatus[*opts.Status]
	case opts.AssignedTo != nil:
		ids = st.idx.byAssignee[*opts.AssignedTo]
	default:
		return cloneTasks(st.tasks)
	}

	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.tasks[st.idx.byID[id]].Clone())
	}
	return out
}
