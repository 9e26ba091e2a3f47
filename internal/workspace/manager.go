// Package workspace owns the single in-memory workspace state: selected
// project, task list, visual-state map and the loading/error flags. Every
// mutation flows through one entry point which fans updates out to
// subscribers and schedules debounced persistence.
package workspace

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskcanvas/internal/events"
	"taskcanvas/internal/model"
	"taskcanvas/internal/sched"
	"taskcanvas/internal/snapshot"
	"taskcanvas/internal/uiflags"
)

// UpdateType tags what part of the state changed in a notification.
type UpdateType string

const (
	UpdateProject UpdateType = "project"
	UpdateTasks   UpdateType = "tasks"
	UpdateVisual  UpdateType = "visual"
	UpdateUI      UpdateType = "ui"
	UpdateLoading UpdateType = "loading"
	UpdateError   UpdateType = "error"
)

const (
	projectSaveDelay = 50 * time.Millisecond
	relaxedSaveDelay = 200 * time.Millisecond
)

// State is the manager's snapshot handed to subscribers. Tasks and
// TaskVisualStates are copies; subscribers may read them freely.
type State struct {
	SelectedProject     *model.Project
	SelectedTaskID      string
	Tasks               []model.Task
	IsLoading           bool
	Err                 error
	ShowProjectCreation bool
	TaskVisualStates    map[string]model.VisualState
	UIState             model.UIState
}

// Update is one tagged notification.
type Update struct {
	Type  UpdateType
	State State
}

// Source loads projects and their tasks.
type Source interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListTasks(ctx context.Context, projectID string) ([]model.Task, error)
}

// Persister receives debounced workspace saves; *snapshot.Store satisfies it.
type Persister interface {
	Save(req snapshot.SaveRequest)
	Clear(userID, projectID string)
}

// HierarchyState describes an expand operation for visual-state recompute.
type HierarchyState struct {
	ExpandedTaskID string
	ParentState    model.VisualState
	SiblingState   model.VisualState
	ChildState     model.VisualState
}

type Options struct {
	Source    Source
	Persister Persister
	Flags     *uiflags.Flags
	Bus       *events.Bus
	Clock     sched.Clock
	Logger    *zap.Logger
	UserID    string

	// Viewport supplies the current camera when a save is scheduled. Optional.
	Viewport func() model.ViewportState
}

// Manager is the single writer over the workspace state.
type Manager struct {
	mu    sync.Mutex
	state State

	subs map[chan Update]struct{}

	selecting     bool
	lastRequested string

	saveTimer sched.Timer

	source    Source
	persister Persister
	flags     *uiflags.Flags
	bus       *events.Bus
	clock     sched.Clock
	log       *zap.Logger
	userID    string
	viewport  func() model.ViewportState
}

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = sched.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Flags == nil {
		opts.Flags = uiflags.New()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	return &Manager{
		state:     State{TaskVisualStates: map[string]model.VisualState{}},
		subs:      make(map[chan Update]struct{}),
		source:    opts.Source,
		persister: opts.Persister,
		flags:     opts.Flags,
		bus:       opts.Bus,
		clock:     opts.Clock,
		log:       opts.Logger,
		userID:    opts.UserID,
		viewport:  opts.Viewport,
	}
}

// Subscribe registers for update notifications. Slow subscribers drop
// updates rather than block the writer.
func (m *Manager) Subscribe() (ch chan Update, cancel func()) {
	ch = make(chan Update, 16)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyState(m.state)
}

func copyState(s State) State {
	out := s
	out.Tasks = append([]model.Task(nil), s.Tasks...)
	out.TaskVisualStates = make(map[string]model.VisualState, len(s.TaskVisualStates))
	for id, vs := range s.TaskVisualStates {
		out.TaskVisualStates[id] = vs
	}
	return out
}

// SelectProject loads the project and its tasks and swaps them into state.
// Calls are serialized: a repeat call for the project already in flight is a
// no-op, and an overlapping call for a different project is dropped rather
// than interleaved. A completion event is always published, even on failure.
func (m *Manager) SelectProject(ctx context.Context, projectID string, forceNewProject bool) error {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil
	}

	m.mu.Lock()
	if m.selecting {
		inFlight := m.lastRequested
		m.mu.Unlock()
		if inFlight == projectID {
			m.log.Debug("select already in flight, ignoring repeat", zap.String("project", projectID))
		} else {
			m.log.Warn("dropping overlapping project selection",
				zap.String("inFlight", inFlight), zap.String("requested", projectID))
		}
		return nil
	}
	switching := m.state.SelectedProject != nil && m.state.SelectedProject.ID != projectID
	m.selecting = true
	m.lastRequested = projectID
	m.mu.Unlock()

	if switching {
		m.flags.SetProjectSwitch(true)
	}
	defer func() {
		m.flags.SetProjectSwitch(false)
		m.mu.Lock()
		m.selecting = false
		m.mu.Unlock()
		m.bus.Publish(events.ProjectSelectionComplete, projectID)
	}()

	m.UpdateState(func(s *State) {
		s.IsLoading = true
		s.Err = nil
	}, UpdateLoading)

	project, err := m.source.GetProject(ctx, projectID)
	if err != nil {
		m.log.Warn("project load failed, clearing its saved state",
			zap.String("project", projectID), zap.Error(err))
		if m.persister != nil {
			m.persister.Clear(m.userID, projectID)
		}
		m.UpdateState(func(s *State) {
			s.IsLoading = false
			s.Err = err
			s.ShowProjectCreation = true
		}, UpdateError)
		return err
	}

	tasks, err := m.source.ListTasks(ctx, projectID)
	if err != nil {
		// A project without its tasks still beats no project at all.
		m.log.Warn("task load failed, showing empty project",
			zap.String("project", projectID), zap.Error(err))
		tasks = nil
	}

	m.UpdateState(func(s *State) {
		s.SelectedProject = project
		s.SelectedTaskID = ""
		s.Tasks = tasks
		s.IsLoading = false
		s.Err = nil
		s.ShowProjectCreation = forceNewProject
		s.TaskVisualStates = initialVisualStates(project.ID, tasks)
	}, UpdateProject)

	m.bus.Publish(events.ProjectStateUpdated, projectID)
	return nil
}

// initialVisualStates marks first-level tasks active and everything else
// hidden; the project itself is active.
func initialVisualStates(projectID string, tasks []model.Task) map[string]model.VisualState {
	states := make(map[string]model.VisualState, len(tasks)+1)
	for _, t := range tasks {
		if !t.HasParent() || *t.ParentID == projectID {
			states[t.ID] = model.VisualActive
		} else {
			states[t.ID] = model.VisualHidden
		}
	}
	states[projectID] = model.VisualActive
	return states
}

// UpdateTaskVisualStates recomputes the whole visibility map for an expand
// operation. Full recompute, never a patch, so stale entries cannot survive.
func (m *Manager) UpdateTaskVisualStates(hs HierarchyState) {
	m.UpdateState(func(s *State) {
		states := make(map[string]model.VisualState, len(s.Tasks)+1)
		for _, t := range s.Tasks {
			states[t.ID] = model.VisualHidden
		}
		if s.SelectedProject != nil {
			states[s.SelectedProject.ID] = model.VisualHidden
		}

		var expanded *model.Task
		for i := range s.Tasks {
			if s.Tasks[i].ID == hs.ExpandedTaskID {
				expanded = &s.Tasks[i]
				break
			}
		}
		states[hs.ExpandedTaskID] = model.VisualActive
		if expanded != nil {
			parentID := ""
			if expanded.HasParent() {
				parentID = *expanded.ParentID
			} else if s.SelectedProject != nil {
				parentID = s.SelectedProject.ID
			}
			if parentID != "" {
				states[parentID] = hs.ParentState
			}
			for _, t := range s.Tasks {
				if t.ID == expanded.ID {
					continue
				}
				if sameParent(t, expanded) {
					states[t.ID] = hs.SiblingState
				}
				if t.HasParent() && *t.ParentID == expanded.ID {
					states[t.ID] = hs.ChildState
				}
			}
		}
		s.TaskVisualStates = states
	}, UpdateVisual)
}

func sameParent(a model.Task, b *model.Task) bool {
	if a.HasParent() != b.HasParent() {
		return false
	}
	if !a.HasParent() {
		return a.ProjectID == b.ProjectID
	}
	return *a.ParentID == *b.ParentID
}

// RemoveTasks drops the given ids from the task list and the visual map.
func (m *Manager) RemoveTasks(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	m.UpdateState(func(s *State) {
		kept := s.Tasks[:0]
		for _, t := range s.Tasks {
			if _, gone := drop[t.ID]; !gone {
				kept = append(kept, t)
			}
		}
		s.Tasks = kept
		for id := range drop {
			delete(s.TaskVisualStates, id)
		}
		if _, gone := drop[s.SelectedTaskID]; gone {
			s.SelectedTaskID = ""
		}
	}, UpdateTasks)
}

// HandleTaskDeleted removes the task and every descendant in one batch. When
// the task was its parent's last child, the parent's cached counts are zeroed
// in state and an event is published so the rendering layer can swap the
// parent's counter affordance back to a split button.
func (m *Manager) HandleTaskDeleted(taskID string, parentID string, isLastChildOfParent bool) {
	m.mu.Lock()
	doomed := descendantSet(m.state.Tasks, taskID)
	m.mu.Unlock()

	ids := make([]string, 0, len(doomed))
	for id := range doomed {
		ids = append(ids, id)
	}
	m.RemoveTasks(ids)

	if isLastChildOfParent && parentID != "" {
		m.UpdateState(func(s *State) {
			for i := range s.Tasks {
				if s.Tasks[i].ID == parentID {
					s.Tasks[i].ChildrenCount = 0
					s.Tasks[i].DescendantCount = 0
				}
			}
		}, UpdateTasks)
		m.bus.Publish(events.ParentTaskChildrenRemoved, parentID)
	}
}

// descendantSet walks parent pointers to collect taskID and everything under
// it.
func descendantSet(tasks []model.Task, taskID string) map[string]struct{} {
	out := map[string]struct{}{taskID: {}}
	for {
		grew := false
		for _, t := range tasks {
			if !t.HasParent() {
				continue
			}
			if _, in := out[t.ID]; in {
				continue
			}
			if _, parentDoomed := out[*t.ParentID]; parentDoomed {
				out[t.ID] = struct{}{}
				grew = true
			}
		}
		if !grew {
			break
		}
	}
	return out
}

// SelectTask records the selected task id.
func (m *Manager) SelectTask(taskID string) {
	m.UpdateState(func(s *State) { s.SelectedTaskID = taskID }, UpdateUI)
}

// SetUIState records auxiliary UI state such as scroll position.
func (m *Manager) SetUIState(ui model.UIState) {
	m.UpdateState(func(s *State) { s.UIState = ui }, UpdateUI)
}

// UpsertTasks merges created or rewritten tasks into the list.
func (m *Manager) UpsertTasks(tasks []model.Task) {
	if len(tasks) == 0 {
		return
	}
	m.UpdateState(func(s *State) {
		byID := make(map[string]int, len(s.Tasks))
		for i, t := range s.Tasks {
			byID[t.ID] = i
		}
		for _, t := range tasks {
			if i, ok := byID[t.ID]; ok {
				s.Tasks[i] = t
			} else {
				s.Tasks = append(s.Tasks, t)
				if _, ok := s.TaskVisualStates[t.ID]; !ok {
					s.TaskVisualStates[t.ID] = model.VisualHidden
				}
			}
		}
	}, UpdateTasks)
}

// UpdateState is the sole mutation entry point: it applies the mutator under
// the lock, notifies subscribers, then schedules a debounced save for
// substantive update types.
func (m *Manager) UpdateState(mutate func(*State), t UpdateType) {
	m.mu.Lock()
	mutate(&m.state)
	snap := copyState(m.state)
	for ch := range m.subs {
		select {
		case ch <- Update{Type: t, State: snap}:
		default:
		}
	}
	m.mu.Unlock()

	m.maybeScheduleSave(snap, t)
}

func (m *Manager) maybeScheduleSave(s State, t UpdateType) {
	if m.persister == nil {
		return
	}
	switch t {
	case UpdateProject, UpdateTasks, UpdateVisual:
	default:
		return
	}
	if s.IsLoading || s.SelectedProject == nil {
		return
	}
	if m.flags.Restoring() || m.flags.Dragging() {
		return
	}

	delay := relaxedSaveDelay
	if t == UpdateProject {
		delay = projectSaveDelay
	}

	m.mu.Lock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = m.clock.AfterFunc(delay, func() { m.saveNow() })
	m.mu.Unlock()
}

func (m *Manager) saveNow() {
	m.mu.Lock()
	s := copyState(m.state)
	m.mu.Unlock()
	if s.SelectedProject == nil {
		return
	}
	var vp model.ViewportState
	if m.viewport != nil {
		vp = m.viewport()
	} else {
		vp = model.DefaultViewport()
	}
	m.persister.Save(snapshot.SaveRequest{
		ProjectID:        s.SelectedProject.ID,
		SelectedTaskID:   s.SelectedTaskID,
		Viewport:         vp,
		TaskVisualStates: s.TaskVisualStates,
		UIState:          s.UIState,
	})
}

// Flush forces any pending debounced save through immediately.
func (m *Manager) Flush() {
	m.mu.Lock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
		m.saveTimer = nil
	}
	m.mu.Unlock()
	m.saveNow()
}
