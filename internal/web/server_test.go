package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskcanvas/internal/hierarchy"
	"taskcanvas/internal/model"
	"taskcanvas/internal/snapshot"
	"taskcanvas/internal/store"
	"taskcanvas/internal/taskops"
)

func newTestServer(t *testing.T, authMode string) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	counter := hierarchy.NewCounter(st, nil)
	ops := taskops.New(taskops.Options{API: &taskops.Local{Store: st, Counter: counter}})
	srv, err := NewServer(Options{
		Config: ServerConfig{
			DataDir:       t.TempDir(),
			AuthMode:      authMode,
			DefaultUserID: "local",
		},
		Store:   st,
		Counter: counter,
		Ops:     ops,
		KV:      snapshot.NewMemKV(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProjectAndTaskRoutes(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, "none")
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/projects", map[string]any{"name": "Launch v2"}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d %s", rec.Code, rec.Body)
	}
	var created struct {
		Project model.Project `json:"project"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	pid := created.Project.ID

	rec = doJSON(t, h, http.MethodPost, "/api/projects/"+pid+"/tasks", map[string]any{
		"tasks": []map[string]any{{"name": "A"}, {"name": "B"}},
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tasks: %d %s", rec.Code, rec.Body)
	}
	var tasks []model.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode tasks: %v", err)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/tasks/"+tasks[0].ID+"/subtasks", map[string]any{
		"tasks": []map[string]any{{"name": "A1"}},
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create subtasks: %d %s", rec.Code, rec.Body)
	}

	// Subtask creation refreshed the parent's counts.
	rec = doJSON(t, h, http.MethodGet, "/api/tasks/"+tasks[0].ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get task: %d", rec.Code)
	}
	var parent model.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &parent); err != nil {
		t.Fatalf("decode parent: %v", err)
	}
	if parent.ChildrenCount != 1 {
		t.Fatalf("parent counts not refreshed: %+v", parent)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/tasks/"+tasks[0].ID+"/delete", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body)
	}
	var del struct {
		Deleted []string `json:"deleted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &del); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if len(del.Deleted) != 2 {
		t.Fatalf("expected recursive delete of 2, got %v", del.Deleted)
	}
}

func TestProjectExportIsMarkdown(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t, "none")
	h := srv.Handler()

	p := &model.Project{Name: "Launch v2", Description: "Ship it."}
	if err := st.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := st.CreateTasks(context.Background(), p.ID, nil, []store.TaskDraft{{Name: "Design"}}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/projects/"+p.ID+"/export", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("content type %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "# Launch v2") || !strings.Contains(body, "- Design") {
		t.Fatalf("unexpected export body:\n%s", body)
	}
}

func TestErrorBodiesUseErrorField(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, "none")
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/projects/nope", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("missing error field: %s", rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/projects", map[string]any{"name": "  "}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d %s", rec.Code, rec.Body)
	}
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, "token")
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/projects", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := NewSessionToken(srv.Secret(), "u1", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/projects", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d %s", rec.Code, rec.Body)
	}

	expired, err := NewSessionToken(srv.Secret(), "u1", -time.Minute)
	if err != nil {
		t.Fatalf("mint expired token: %v", err)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/projects", nil, expired)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with expired token, got %d", rec.Code)
	}
}

func TestWorkspaceStateRoundTripPerUser(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t, "token")
	h := srv.Handler()

	p := &model.Project{Name: "demo", CreatedBy: "u1"}
	if err := st.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("create project: %v", err)
	}

	tok1, _ := NewSessionToken(srv.Secret(), "u1", time.Hour)
	tok2, _ := NewSessionToken(srv.Secret(), "u2", time.Hour)

	rec := doJSON(t, h, http.MethodPut, "/api/workspace-state", map[string]any{
		"projectId": p.ID,
		"viewport":  map[string]any{"scale": 2, "translate": map[string]any{"x": 10, "y": 20}},
	}, tok1)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("save: %d %s", rec.Code, rec.Body)
	}
	srv.snapshotsFor("u1").Flush()

	rec = doJSON(t, h, http.MethodGet, "/api/workspace-state/"+p.ID, nil, tok1)
	if rec.Code != http.StatusOK {
		t.Fatalf("load: %d %s", rec.Code, rec.Body)
	}
	var snap model.WorkspaceSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Viewport.Scale != 2 || snap.Viewport.Translate.X != 10 {
		t.Fatalf("viewport not round-tripped: %+v", snap.Viewport)
	}

	// Another user never sees the first user's snapshot.
	rec = doJSON(t, h, http.MethodGet, "/api/workspace-state/"+p.ID, nil, tok2)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other user, got %d %s", rec.Code, rec.Body)
	}
}

func TestDuplicateOperationMapsToConflict(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, "none")
	rec := httptest.NewRecorder()
	srv.fail(rec, taskops.DuplicateOperationError{Key: "split-x"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == "" {
		t.Fatal("missing error body")
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	t.Parallel()
	st, err := store.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	srv, err := NewServer(Options{
		Config: ServerConfig{DataDir: t.TempDir(), AuthMode: "none", ReadOnly: true},
		Store:  st,
		KV:     snapshot.NewMemKV(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/projects", map[string]any{"name": "x"}, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, "none")
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("content type %q", got)
	}
}
