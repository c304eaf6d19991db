package driving

import "context"

// TaskRunner runs scheduled maintenance on demand.
type TaskRunner interface {
	// RunNow executes a task synchronously and returns the items it processed.
	RunNow(ctx context.Context, taskID string) (int, error)
}
