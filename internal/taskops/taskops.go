// Package taskops implements the split / regenerate / delete workflows:
// gather context, call text generation, persist through the CRUD API, then
// reflect the result into workspace state and the hierarchy counts. Each
// operation is deduplicated by key so a double-click cannot stack two
// identical AI calls.
package taskops

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"taskcanvas/internal/events"
	"taskcanvas/internal/model"
	"taskcanvas/internal/store"
	"taskcanvas/internal/textgen"
	"taskcanvas/internal/workspace"
)

// maxAncestorDepth bounds the parent-pointer walk so a corrupt reference
// cannot loop forever.
const maxAncestorDepth = 100

// DuplicateOperationError is returned when the same operation on the same
// task is already in flight.
type DuplicateOperationError struct {
	Key string
}

func (e DuplicateOperationError) Error() string {
	return fmt.Sprintf("operation %s already in progress", e.Key)
}

// TaskDeletionError wraps a delete failure with the task id.
type TaskDeletionError struct {
	TaskID string
	Err    error
}

func (e TaskDeletionError) Error() string {
	return fmt.Sprintf("delete task %s: %v", e.TaskID, e.Err)
}

func (e TaskDeletionError) Unwrap() error { return e.Err }

// API is the remote CRUD surface the orchestrators persist through.
type API interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	Children(ctx context.Context, taskID string) ([]model.Task, error)
	Siblings(ctx context.Context, task *model.Task) ([]model.Task, error)
	CreateProjectTasks(ctx context.Context, projectID string, drafts []store.TaskDraft) ([]model.Task, error)
	CreateSubtasks(ctx context.Context, taskID string, drafts []store.TaskDraft) ([]model.Task, error)
	RegenerateTask(ctx context.Context, id, name, description string, resetCounts bool) (*model.Task, error)
	DeleteTaskRecursive(ctx context.Context, id string) ([]string, error)
	UpdateCounts(ctx context.Context, taskID string) (children, descendants int, err error)
}

type Options struct {
	API       API
	Generator textgen.Generator // nil means generation is unconfigured
	Workspace *workspace.Manager
	Bus       *events.Bus
	Logger    *zap.Logger
}

type Orchestrator struct {
	api API
	gen textgen.Generator
	ws  *workspace.Manager
	bus *events.Bus
	log *zap.Logger

	mu         sync.Mutex
	inProgress map[string]struct{}
}

func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	return &Orchestrator{
		api:        opts.API,
		gen:        opts.Generator,
		ws:         opts.Workspace,
		bus:        opts.Bus,
		log:        opts.Logger,
		inProgress: make(map[string]struct{}),
	}
}

// acquire reserves an operation key or fails with DuplicateOperationError.
func (o *Orchestrator) acquire(key string) (release func(), err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inProgress[key]; busy {
		return nil, DuplicateOperationError{Key: key}
	}
	o.inProgress[key] = struct{}{}
	return func() {
		o.mu.Lock()
		delete(o.inProgress, key)
		o.mu.Unlock()
	}, nil
}

func (o *Orchestrator) report(err error) {
	o.log.Warn("task operation failed", zap.Error(err))
	o.bus.Publish(events.Error, err.Error())
}

// requireGenerator fails fast with a user-actionable message when no API key
// was configured, before any network call happens.
func (o *Orchestrator) requireGenerator(op textgen.Operation) error {
	if o.gen != nil {
		return nil
	}
	err := textgen.TaskGenerationError{
		Op:  op,
		Err: fmt.Errorf("text generation is not configured; set TASKCANVAS_GENAI_API_KEY"),
	}
	o.report(err)
	return err
}

// ancestorChain walks parent pointers from the task up to the project and
// returns the chain outermost-first, excluding the task itself.
func (o *Orchestrator) ancestorChain(ctx context.Context, task *model.Task) (*model.Project, []textgen.TaskContent, error) {
	var chain []textgen.TaskContent
	cur := task
	for depth := 0; cur.HasParent(); depth++ {
		if depth >= maxAncestorDepth {
			return nil, nil, fmt.Errorf("ancestor chain for task %s exceeds depth %d", task.ID, maxAncestorDepth)
		}
		parent, err := o.api.GetTask(ctx, *cur.ParentID)
		if err != nil {
			return nil, nil, err
		}
		chain = append([]textgen.TaskContent{{Name: parent.Name, Description: parent.Description}}, chain...)
		cur = parent
	}
	project, err := o.api.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return project, chain, nil
}

// childPositions lays generated children out in a row beneath the parent.
func childPositions(parent model.Position, n int) []model.Position {
	out := make([]model.Position, n)
	for i := range out {
		out[i] = model.Position{
			X: parent.X + float64(i)*180 - float64(n-1)*90,
			Y: parent.Y + 160,
		}
	}
	return out
}

// Decompose generates first-level tasks for a project.
func (o *Orchestrator) Decompose(ctx context.Context, projectID string) ([]model.Task, error) {
	if err := o.requireGenerator(textgen.OpDecompose); err != nil {
		return nil, err
	}
	release, err := o.acquire("decompose-" + projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	project, err := o.api.GetProject(ctx, projectID)
	if err != nil {
		o.report(err)
		return nil, err
	}
	generated, err := o.gen.Decompose(ctx, textgen.Input{
		ProjectName:        project.Name,
		ProjectDescription: project.Description,
	})
	if err != nil {
		o.report(err)
		return nil, err
	}
	drafts := make([]store.TaskDraft, len(generated))
	positions := childPositions(model.Position{}, len(generated))
	for i, g := range generated {
		drafts[i] = store.TaskDraft{Name: g.Name, Description: g.Description, Position: positions[i]}
	}
	created, err := o.api.CreateProjectTasks(ctx, projectID, drafts)
	if err != nil {
		o.report(err)
		return nil, err
	}
	if o.ws != nil {
		o.ws.UpsertTasks(created)
	}
	return created, nil
}

// Split generates subtasks for a task and creates them under it.
func (o *Orchestrator) Split(ctx context.Context, taskID string) ([]model.Task, error) {
	if err := o.requireGenerator(textgen.OpSplit); err != nil {
		return nil, err
	}
	release, err := o.acquire("split-" + taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	task, err := o.api.GetTask(ctx, taskID)
	if err != nil {
		o.report(err)
		return nil, err
	}
	project, ancestors, err := o.ancestorChain(ctx, task)
	if err != nil {
		o.report(err)
		return nil, err
	}
	generated, err := o.gen.Split(ctx, textgen.Input{
		ProjectName:        project.Name,
		ProjectDescription: project.Description,
		Task:               &textgen.TaskContent{Name: task.Name, Description: task.Description},
		Ancestors:          ancestors,
	})
	if err != nil {
		o.report(err)
		return nil, err
	}
	drafts := make([]store.TaskDraft, len(generated))
	positions := childPositions(task.Position, len(generated))
	for i, g := range generated {
		drafts[i] = store.TaskDraft{Name: g.Name, Description: g.Description, Position: positions[i]}
	}
	created, err := o.api.CreateSubtasks(ctx, taskID, drafts)
	if err != nil {
		o.report(err)
		return nil, err
	}

	children, descendants, err := o.api.UpdateCounts(ctx, taskID)
	if err != nil {
		// Counts are denormalized; a failed refresh is repairable later.
		o.log.Warn("count refresh after split failed", zap.String("task", taskID), zap.Error(err))
		children, descendants = len(created), len(created)
	}
	if o.ws != nil {
		parent := *task
		parent.ChildrenCount = children
		parent.DescendantCount = descendants
		o.ws.UpsertTasks(append(created, parent))
	}
	return created, nil
}

// Regenerate rewrites one task's name and description in place.
func (o *Orchestrator) Regenerate(ctx context.Context, taskID string, resetCounts bool) (*model.Task, error) {
	if err := o.requireGenerator(textgen.OpRegenerate); err != nil {
		return nil, err
	}
	release, err := o.acquire("regenerate-" + taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	task, err := o.api.GetTask(ctx, taskID)
	if err != nil {
		o.report(err)
		return nil, err
	}
	project, ancestors, err := o.ancestorChain(ctx, task)
	if err != nil {
		o.report(err)
		return nil, err
	}
	siblingTasks, err := o.api.Siblings(ctx, task)
	if err != nil {
		o.report(err)
		return nil, err
	}
	siblings := make([]textgen.TaskContent, 0, len(siblingTasks))
	for _, s := range siblingTasks {
		if s.ID == task.ID {
			continue
		}
		siblings = append(siblings, textgen.TaskContent{Name: s.Name, Description: s.Description})
	}

	generated, err := o.gen.Regenerate(ctx, textgen.Input{
		ProjectName:        project.Name,
		ProjectDescription: project.Description,
		Task:               &textgen.TaskContent{Name: task.Name, Description: task.Description},
		Ancestors:          ancestors,
		Siblings:           siblings,
	})
	if err != nil {
		o.report(err)
		return nil, err
	}

	updated, err := o.api.RegenerateTask(ctx, taskID, generated.Name, generated.Description, resetCounts)
	if err != nil {
		o.report(err)
		return nil, err
	}
	if o.ws != nil {
		o.ws.UpsertTasks([]model.Task{*updated})
	}
	return updated, nil
}

// Delete recursively deletes a task and reflects the removal into workspace
// state as one batch.
func (o *Orchestrator) Delete(ctx context.Context, taskID string) ([]string, error) {
	release, err := o.acquire("delete-" + taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	task, err := o.api.GetTask(ctx, taskID)
	if err != nil {
		wrapped := TaskDeletionError{TaskID: taskID, Err: err}
		o.report(wrapped)
		return nil, wrapped
	}

	deleted, err := o.api.DeleteTaskRecursive(ctx, taskID)
	if err != nil {
		wrapped := TaskDeletionError{TaskID: taskID, Err: err}
		o.report(wrapped)
		return nil, wrapped
	}

	parentID := ""
	isLastChild := false
	if task.HasParent() {
		parentID = *task.ParentID
		remaining, err := o.api.Children(ctx, parentID)
		if err != nil {
			o.log.Warn("sibling check after delete failed", zap.String("parent", parentID), zap.Error(err))
		} else {
			isLastChild = len(remaining) == 0
		}
		if _, _, err := o.api.UpdateCounts(ctx, parentID); err != nil {
			o.log.Warn("count refresh after delete failed", zap.String("parent", parentID), zap.Error(err))
		}
	}
	if o.ws != nil {
		o.ws.HandleTaskDeleted(taskID, parentID, isLastChild)
	}
	return deleted, nil
}
