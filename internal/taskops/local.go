package taskops

import (
	"context"

	"taskcanvas/internal/hierarchy"
	"taskcanvas/internal/model"
	"taskcanvas/internal/store"
)

// Local serves the API contract straight from the store, for the server
// process itself. The HTTP client in apiclient implements the same contract
// for remote callers.
type Local struct {
	Store   *store.Store
	Counter *hierarchy.Counter
}

var _ API = (*Local)(nil)

func (l *Local) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return l.Store.GetProject(ctx, id)
}

func (l *Local) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return l.Store.GetTask(ctx, id)
}

func (l *Local) Children(ctx context.Context, taskID string) ([]model.Task, error) {
	return l.Store.Children(ctx, taskID)
}

func (l *Local) Siblings(ctx context.Context, task *model.Task) ([]model.Task, error) {
	return l.Store.Siblings(ctx, task)
}

func (l *Local) CreateProjectTasks(ctx context.Context, projectID string, drafts []store.TaskDraft) ([]model.Task, error) {
	return l.Store.CreateTasks(ctx, projectID, nil, drafts)
}

func (l *Local) CreateSubtasks(ctx context.Context, taskID string, drafts []store.TaskDraft) ([]model.Task, error) {
	parent, err := l.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return l.Store.CreateTasks(ctx, parent.ProjectID, &parent.ID, drafts)
}

func (l *Local) RegenerateTask(ctx context.Context, id, name, description string, resetCounts bool) (*model.Task, error) {
	return l.Store.UpdateTaskContent(ctx, id, name, description, resetCounts)
}

func (l *Local) DeleteTaskRecursive(ctx context.Context, id string) ([]string, error) {
	return l.Store.DeleteTaskRecursive(ctx, id)
}

func (l *Local) UpdateCounts(ctx context.Context, taskID string) (int, int, error) {
	return l.Counter.UpdateCounts(ctx, taskID)
}
