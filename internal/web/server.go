// Package web serves the taskcanvas CRUD and operation API plus the live
// event stream.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"

	"taskcanvas/internal/events"
	"taskcanvas/internal/export"
	"taskcanvas/internal/hierarchy"
	"taskcanvas/internal/model"
	"taskcanvas/internal/snapshot"
	"taskcanvas/internal/store"
	"taskcanvas/internal/taskops"
	"taskcanvas/internal/uiflags"
)

type ServerConfig struct {
	Addr    string
	DataDir string

	// AuthMode is none|token. Mode none maps every request to DefaultUserID;
	// mode token requires a signed bearer token.
	AuthMode      string
	DefaultUserID string

	ReadOnly bool
}

type Options struct {
	Config  ServerConfig
	Store   *store.Store
	Counter *hierarchy.Counter
	Ops     *taskops.Orchestrator
	Bus     *events.Bus
	Flags   *uiflags.Flags
	KV      snapshot.KV
	Logger  *zap.Logger
}

type Server struct {
	cfg     ServerConfig
	store   *store.Store
	counter *hierarchy.Counter
	ops     *taskops.Orchestrator
	bus     *events.Bus
	flags   *uiflags.Flags
	kv      snapshot.KV
	log     *zap.Logger
	secret  []byte

	mu        sync.Mutex
	snapshots map[string]*snapshot.Store
}

func NewServer(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg.AuthMode == "" {
		cfg.AuthMode = "none"
	}
	if cfg.DefaultUserID == "" {
		cfg.DefaultUserID = "local"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Flags == nil {
		opts.Flags = uiflags.New()
	}
	if opts.KV == nil {
		opts.KV = snapshot.FileKV{Dir: filepath.Join(cfg.DataDir, "state")}
	}
	secret, err := loadOrInitSecretKey(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:       cfg,
		store:     opts.Store,
		counter:   opts.Counter,
		ops:       opts.Ops,
		bus:       opts.Bus,
		flags:     opts.Flags,
		kv:        opts.KV,
		log:       opts.Logger,
		secret:    secret,
		snapshots: make(map[string]*snapshot.Store),
	}, nil
}

func (s *Server) Addr() string { return s.cfg.Addr }

// Secret exposes the signing key so the CLI can mint tokens out of band.
func (s *Server) Secret() []byte { return s.secret }

// snapshotsFor returns the per-user persistence store, creating it on first
// use. All users share one KV; the store partitions by key prefix.
func (s *Server) snapshotsFor(userID string) *snapshot.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.snapshots[userID]; ok {
		return st
	}
	st := snapshot.NewStore(snapshot.Options{
		KV:     s.kv,
		UserID: userID,
		Flags:  s.flags,
		Bus:    s.bus,
		Logger: s.log,
	})
	s.snapshots[userID] = st
	return st
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /events", s.auth(s.handleEvents))

	mux.HandleFunc("GET /api/projects", s.auth(s.handleProjectList))
	mux.HandleFunc("POST /api/projects", s.write(s.handleProjectCreate))
	mux.HandleFunc("GET /api/projects/{projectId}", s.auth(s.handleProjectGet))
	mux.HandleFunc("DELETE /api/projects/{projectId}", s.write(s.handleProjectDelete))
	mux.HandleFunc("GET /api/projects/{projectId}/tasks", s.auth(s.handleProjectTasks))
	mux.HandleFunc("GET /api/projects/{projectId}/export", s.auth(s.handleProjectExport))
	mux.HandleFunc("POST /api/projects/{projectId}/tasks", s.write(s.handleProjectTasksCreate))

	mux.HandleFunc("GET /api/tasks/{taskId}", s.auth(s.handleTaskGet))
	mux.HandleFunc("GET /api/tasks/{taskId}/children", s.auth(s.handleTaskChildren))
	mux.HandleFunc("POST /api/tasks/{taskId}/subtasks", s.write(s.handleTaskSubtasks))
	mux.HandleFunc("POST /api/tasks/{taskId}/regenerate", s.write(s.handleTaskRegenerate))
	mux.HandleFunc("DELETE /api/tasks/{taskId}/delete", s.write(s.handleTaskDelete))
	mux.HandleFunc("POST /api/tasks/{taskId}/counts", s.write(s.handleTaskCounts))
	mux.HandleFunc("PUT /api/tasks/{taskId}/counts", s.write(s.handleTaskCountsRecalculate))

	mux.HandleFunc("POST /api/ops/projects/{projectId}/decompose", s.write(s.handleOpDecompose))
	mux.HandleFunc("POST /api/ops/tasks/{taskId}/split", s.write(s.handleOpSplit))
	mux.HandleFunc("POST /api/ops/tasks/{taskId}/regenerate", s.write(s.handleOpRegenerate))
	mux.HandleFunc("DELETE /api/ops/tasks/{taskId}", s.write(s.handleOpDelete))

	mux.HandleFunc("GET /api/workspace-state", s.auth(s.handleStateLoadLatest))
	mux.HandleFunc("GET /api/workspace-state/{projectId}", s.auth(s.handleStateLoad))
	mux.HandleFunc("PUT /api/workspace-state", s.write(s.handleStateSave))
	mux.HandleFunc("DELETE /api/workspace-state", s.write(s.handleStateClear))
	return mux
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) auth(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.userForRequest(r)
		if err != nil {
			httpError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		h(w, r, userID)
	}
}

func (s *Server) write(h userHandler) http.HandlerFunc {
	return s.auth(func(w http.ResponseWriter, r *http.Request, userID string) {
		if s.cfg.ReadOnly {
			httpError(w, http.StatusForbidden, "server is read-only")
			return
		}
		h(w, r, userID)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// fail maps domain errors onto status codes. Unexpected errors become a
// generic 500; the detail stays in the log.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var ve store.ValidationError
	var nf store.NotFoundError
	var dup taskops.DuplicateOperationError
	switch {
	case errors.As(err, &ve):
		httpError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &nf):
		httpError(w, http.StatusNotFound, nf.Error())
	case errors.As(err, &dup):
		httpError(w, http.StatusConflict, dup.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return store.ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request, userID string) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

type projectCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Decompose   bool   `json:"decompose"`
}

func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request, userID string) {
	var req projectCreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	s.flags.SetCreatingProject(true)
	defer s.flags.SetCreatingProject(false)

	p := &model.Project{Name: req.Name, Description: req.Description, CreatedBy: userID}
	if err := s.store.CreateProject(r.Context(), p); err != nil {
		s.fail(w, err)
		return
	}

	var tasks []model.Task
	if req.Decompose && s.ops != nil {
		var err error
		tasks, err = s.ops.Decompose(r.Context(), p.ID)
		if err != nil {
			// The project exists; generation failure is reported, not fatal.
			s.log.Warn("decompose during creation failed", zap.String("project", p.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"project": p, "tasks": tasks})
}

func (s *Server) handleProjectGet(w http.ResponseWriter, r *http.Request, userID string) {
	p, err := s.store.GetProject(r.Context(), r.PathValue("projectId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProjectDelete(w http.ResponseWriter, r *http.Request, userID string) {
	projectID := r.PathValue("projectId")
	if err := s.store.DeleteProject(r.Context(), projectID); err != nil {
		s.fail(w, err)
		return
	}
	// Saved workspace state for a deleted project is garbage; drop it.
	s.snapshotsFor(userID).Clear(userID, projectID)
	writeJSON(w, http.StatusOK, map[string]string{"deleted": projectID})
}

func (s *Server) handleProjectTasks(w http.ResponseWriter, r *http.Request, userID string) {
	tasks, err := s.store.ListTasks(r.Context(), r.PathValue("projectId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleProjectExport returns the project as a markdown document. Query
// params: terse=1 drops descriptions and counts.
func (s *Server) handleProjectExport(w http.ResponseWriter, r *http.Request, userID string) {
	project, err := s.store.GetProject(r.Context(), r.PathValue("projectId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), project.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	terse := r.URL.Query().Get("terse") == "1"
	doc, err := export.RenderProjectMarkdown(project, tasks, export.Options{
		IncludeDescriptions: !terse,
		IncludeCounts:       !terse,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, doc)
}

type bulkTasksRequest struct {
	Tasks []store.TaskDraft `json:"tasks"`
}

func (s *Server) handleProjectTasksCreate(w http.ResponseWriter, r *http.Request, userID string) {
	var req bulkTasksRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	created, err := s.store.CreateTasks(r.Context(), r.PathValue("projectId"), nil, req.Tasks)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.bus.Publish(events.ProjectStateUpdated, r.PathValue("projectId"))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request, userID string) {
	t, err := s.store.GetTask(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTaskChildren(w http.ResponseWriter, r *http.Request, userID string) {
	kids, err := s.store.Children(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kids)
}

func (s *Server) handleTaskSubtasks(w http.ResponseWriter, r *http.Request, userID string) {
	taskID := r.PathValue("taskId")
	var req bulkTasksRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	parent, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		s.fail(w, err)
		return
	}
	created, err := s.store.CreateTasks(r.Context(), parent.ProjectID, &parent.ID, req.Tasks)
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, _, err := s.counter.UpdateCounts(r.Context(), taskID); err != nil {
		s.log.Warn("count refresh after subtask create failed", zap.Error(err))
	}
	s.bus.Publish(events.ProjectStateUpdated, parent.ProjectID)
	writeJSON(w, http.StatusCreated, created)
}

type regenerateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ResetCounts bool   `json:"resetCounts"`
}

func (s *Server) handleTaskRegenerate(w http.ResponseWriter, r *http.Request, userID string) {
	var req regenerateRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	updated, err := s.store.UpdateTaskContent(r.Context(), r.PathValue("taskId"), req.Name, req.Description, req.ResetCounts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.bus.Publish(events.ProjectStateUpdated, updated.ProjectID)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request, userID string) {
	taskID := r.PathValue("taskId")
	task, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		s.fail(w, err)
		return
	}
	deleted, err := s.store.DeleteTaskRecursive(r.Context(), taskID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if task.HasParent() {
		if _, _, err := s.counter.UpdateCounts(r.Context(), *task.ParentID); err != nil {
			s.log.Warn("count refresh after delete failed", zap.Error(err))
		}
	}
	s.bus.Publish(events.ProjectStateUpdated, task.ProjectID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleTaskCounts(w http.ResponseWriter, r *http.Request, userID string) {
	children, descendants, err := s.counter.UpdateCounts(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"children": children, "descendants": descendants})
}

func (s *Server) handleTaskCountsRecalculate(w http.ResponseWriter, r *http.Request, userID string) {
	children, descendants, err := s.counter.RecalculateCounts(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"children": children, "descendants": descendants})
}

func (s *Server) handleOpDecompose(w http.ResponseWriter, r *http.Request, userID string) {
	created, err := s.ops.Decompose(r.Context(), r.PathValue("projectId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleOpSplit(w http.ResponseWriter, r *http.Request, userID string) {
	created, err := s.ops.Split(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type opRegenerateRequest struct {
	ResetCounts bool `json:"resetCounts"`
}

func (s *Server) handleOpRegenerate(w http.ResponseWriter, r *http.Request, userID string) {
	var req opRegenerateRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			s.fail(w, err)
			return
		}
	}
	updated, err := s.ops.Regenerate(r.Context(), r.PathValue("taskId"), req.ResetCounts)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleOpDelete(w http.ResponseWriter, r *http.Request, userID string) {
	deleted, err := s.ops.Delete(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleStateLoad(w http.ResponseWriter, r *http.Request, userID string) {
	snap := s.snapshotsFor(userID).Load(r.PathValue("projectId"))
	if snap == nil {
		httpError(w, http.StatusNotFound, "no saved state")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStateLoadLatest(w http.ResponseWriter, r *http.Request, userID string) {
	snap := s.snapshotsFor(userID).Load("")
	if snap == nil {
		httpError(w, http.StatusNotFound, "no saved state")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type stateSaveRequest struct {
	ProjectID        string                       `json:"projectId"`
	SelectedTaskID   string                       `json:"selectedTaskId"`
	Viewport         model.ViewportState          `json:"viewport"`
	TaskVisualStates map[string]model.VisualState `json:"taskVisualStates"`
	UIState          model.UIState                `json:"uiState"`
}

func (s *Server) handleStateSave(w http.ResponseWriter, r *http.Request, userID string) {
	var req stateSaveRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		s.fail(w, store.ValidationError{Field: "projectId", Reason: "required"})
		return
	}
	s.snapshotsFor(userID).Save(snapshot.SaveRequest{
		ProjectID:        req.ProjectID,
		SelectedTaskID:   req.SelectedTaskID,
		Viewport:         req.Viewport,
		TaskVisualStates: req.TaskVisualStates,
		UIState:          req.UIState,
	})
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStateClear(w http.ResponseWriter, r *http.Request, userID string) {
	projectID := r.URL.Query().Get("project")
	s.snapshotsFor(userID).Clear(userID, projectID)
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams bus events to the browser as datastar signal patches.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, userID string) {
	sse := datastar.NewSSE(w, r)

	ch, cancel := s.bus.SubscribeAll()
	defer cancel()

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	_ = sse.MarshalAndPatchSignals(map[string]any{"connected": true})

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-keepAlive.C:
			_ = sse.MarshalAndPatchSignals(map[string]any{"ping": time.Now().Unix()})
		case ev := <-ch:
			_ = sse.MarshalAndPatchSignals(map[string]any{
				"event":   string(ev.Type),
				"payload": ev.Payload,
			})
		}
	}
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("listening", zap.String("addr", s.cfg.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.mu.Lock()
		for _, st := range s.snapshots {
			st.Flush()
		}
		s.mu.Unlock()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
