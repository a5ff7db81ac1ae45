package task

import "context"

// EventType identifies a significant store mutation.
type EventType string

const (
	EventTaskCompleted      EventType = "task_completed"
	EventProgressReached100 EventType = "progress_reached_100"
)

// Event is emitted after a significant mutation has been applied and the
// project lock released.
type Event struct {
	Type      EventType
	ProjectID string
	Task      Task
}

// Observer receives store events. Observers run synchronously on the
// goroutine that performed the mutation.
type Observer interface {
	HandleTaskEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) HandleTaskEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}
