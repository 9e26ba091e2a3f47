// Package session assembles the client-side workspace runtime: one canvas,
// one camera arbiter, one restoration controller and one workspace manager,
// wired together and driven against a taskcanvas server.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"taskcanvas/internal/apiclient"
	"taskcanvas/internal/events"
	"taskcanvas/internal/model"
	"taskcanvas/internal/render"
	"taskcanvas/internal/restore"
	"taskcanvas/internal/sched"
	"taskcanvas/internal/snapshot"
	"taskcanvas/internal/store"
	"taskcanvas/internal/uiflags"
	"taskcanvas/internal/viewport"
	"taskcanvas/internal/workspace"
)

const stateCallTimeout = 5 * time.Second

var (
	_ workspace.Source    = (*apiclient.Client)(nil)
	_ workspace.Persister = remotePersister{}
	_ restore.Loader      = remoteLoader{}
)

type Options struct {
	Client *apiclient.Client
	UserID string
	Bus    *events.Bus
	Flags  *uiflags.Flags
	Clock  sched.Clock
	Logger *zap.Logger
}

// Session owns the wiring between the subsystems. Task data flows from the
// server through the workspace manager onto the canvas; camera and reveal
// sequencing stay local.
type Session struct {
	Client    *apiclient.Client
	Canvas    *render.Canvas
	Camera    *viewport.Coordinator
	Restore   *restore.Controller
	Workspace *workspace.Manager
	Bus       *events.Bus
	Flags     *uiflags.Flags

	log    *zap.Logger
	cancel func()
}

// remoteLoader adapts the HTTP client to the restoration controller's
// synchronous loader contract. A missing snapshot is simply nil.
type remoteLoader struct {
	client *apiclient.Client
	log    *zap.Logger
}

func (l remoteLoader) Load(projectID string) *model.WorkspaceSnapshot {
	ctx, cancel := context.WithTimeout(context.Background(), stateCallTimeout)
	defer cancel()
	snap, err := l.client.LoadWorkspaceState(ctx, projectID)
	if err != nil {
		var nf store.NotFoundError
		if !errors.As(err, &nf) {
			l.log.Warn("session: load saved state failed", zap.Error(err))
		}
		return nil
	}
	return snap
}

// remotePersister forwards debounced workspace saves to the server, which
// applies its own write coalescing on top.
type remotePersister struct {
	client *apiclient.Client
	log    *zap.Logger
}

func (p remotePersister) Save(req snapshot.SaveRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), stateCallTimeout)
	defer cancel()
	err := p.client.SaveWorkspaceState(ctx, apiclient.WorkspaceStateRequest{
		ProjectID:        req.ProjectID,
		SelectedTaskID:   req.SelectedTaskID,
		Viewport:         req.Viewport,
		TaskVisualStates: req.TaskVisualStates,
		UIState:          req.UIState,
	})
	if err != nil {
		p.log.Warn("session: save state failed", zap.Error(err))
	}
}

func (p remotePersister) Clear(userID, projectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), stateCallTimeout)
	defer cancel()
	if err := p.client.ClearWorkspaceState(ctx, projectID); err != nil {
		p.log.Warn("session: clear state failed", zap.Error(err))
	}
}

func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Flags == nil {
		opts.Flags = uiflags.New()
	}
	if opts.Clock == nil {
		opts.Clock = sched.Real()
	}

	canvas := render.NewCanvas(opts.Clock)
	camera := viewport.NewCoordinator(canvas, opts.Flags, opts.Clock, opts.Logger)
	loader := remoteLoader{client: opts.Client, log: opts.Logger}
	ctrl := restore.NewController(loader, camera, canvas, opts.Flags, opts.Bus, opts.Clock, opts.Logger)
	canvas.Revealed = ctrl.NotifyElementRevealed

	ws := workspace.NewManager(workspace.Options{
		Source:    opts.Client,
		Persister: remotePersister{client: opts.Client, log: opts.Logger},
		Flags:     opts.Flags,
		Bus:       opts.Bus,
		Clock:     opts.Clock,
		Logger:    opts.Logger,
		UserID:    opts.UserID,
		Viewport: func() model.ViewportState {
			return canvas.Snapshot().Transform
		},
	})

	s := &Session{
		Client:    opts.Client,
		Canvas:    canvas,
		Camera:    camera,
		Restore:   ctrl,
		Workspace: ws,
		Bus:       opts.Bus,
		Flags:     opts.Flags,
		log:       opts.Logger,
	}

	// Once the reveal settles, schedule a debounced save of the settled
	// camera through the usual path.
	ctrl.OnSettled = func() {
		ws.UpdateState(func(*workspace.State) {}, workspace.UpdateVisual)
	}

	// Mirror visual-state changes onto the canvas.
	ch, unsub := ws.Subscribe()
	done := make(chan struct{})
	s.cancel = func() {
		unsub()
		close(done)
	}
	go func() {
		for {
			select {
			case <-done:
				return
			case upd := <-ch:
				switch upd.Type {
				case workspace.UpdateTasks, workspace.UpdateVisual, workspace.UpdateProject:
					canvas.ApplyVisualStates(upd.State.TaskVisualStates)
				}
			}
		}
	}()

	return s
}

// OpenProject runs the full open sequence: restoration begins before any task
// is visible, the project loads, each task is positioned against the restored
// camera, and the reveal is handed to the canvas.
func (s *Session) OpenProject(ctx context.Context, projectID string, isNew bool) error {
	s.Restore.Begin(projectID)

	lock := viewport.ProjectSwitchLockDuration
	if isNew {
		lock = viewport.NewProjectLockDuration
	}
	s.Camera.Lock(lock)

	if err := s.Workspace.SelectProject(ctx, projectID, isNew); err != nil {
		s.Restore.ForceComplete()
		return err
	}

	st := s.Workspace.State()
	for _, t := range st.Tasks {
		s.Restore.TrackRestorableElement(t.ID)
	}
	s.Restore.BeginPositioning()
	for _, t := range st.Tasks {
		s.Restore.MarkElementPositioned(t.ID)
	}

	if snap := s.Restore.Snapshot(); snap != nil && snap.SelectedTaskID != "" {
		s.Workspace.SelectTask(snap.SelectedTaskID)
	}
	return nil
}

// Close flushes pending saves and detaches the canvas mirror.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.Workspace.Flush()
}
