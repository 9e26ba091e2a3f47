package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"taskcanvas/internal/apiclient"
	"taskcanvas/internal/model"
	"taskcanvas/internal/sched"
)

// stubServer serves just enough of the HTTP surface for a session to open a
// project and persist state.
type stubServer struct {
	mu       sync.Mutex
	project  model.Project
	tasks    []model.Task
	snapshot *model.WorkspaceSnapshot
	saves    []map[string]any
}

func (s *stubServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/projects/{projectId}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		json.NewEncoder(w).Encode(s.project)
	})
	mux.HandleFunc("GET /api/projects/{projectId}/tasks", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		json.NewEncoder(w).Encode(s.tasks)
	})
	mux.HandleFunc("GET /api/workspace-state/{projectId}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.snapshot == nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "no saved state"})
			return
		}
		json.NewEncoder(w).Encode(s.snapshot)
	})
	mux.HandleFunc("PUT /api/workspace-state", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.saves = append(s.saves, body)
		s.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

func (s *stubServer) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func newTestSession(t *testing.T, stub *stubServer, clock sched.Clock) *Session {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	client := apiclient.New(srv.URL)
	s := New(Options{Client: client, UserID: "u1", Clock: clock})
	t.Cleanup(s.Close)
	return s
}

func TestOpenProjectRestoresSavedCamera(t *testing.T) {
	t.Parallel()

	stub := &stubServer{
		project: model.Project{ID: "p1", Name: "Launch"},
		tasks: []model.Task{
			{ID: "a", ProjectID: "p1", Name: "Design"},
			{ID: "b", ProjectID: "p1", Name: "Build"},
		},
		snapshot: &model.WorkspaceSnapshot{
			ProjectID: "p1",
			Viewport:  model.ViewportState{Scale: 2, Translate: model.Translate{X: 40, Y: -10}},
		},
	}
	clock := sched.NewManual(time.Unix(1000, 0))
	s := newTestSession(t, stub, clock)

	if err := s.OpenProject(context.Background(), "p1", false); err != nil {
		t.Fatalf("OpenProject: %v", err)
	}

	got := s.Canvas.Snapshot().Transform
	if got.Scale != 2 || got.Translate.X != 40 {
		t.Fatalf("canvas transform = %+v, want restored viewport", got)
	}
	if phase := s.Restore.Phase(); phase != model.PhaseRevealing {
		t.Fatalf("phase = %q, want revealing before reveal timers fire", phase)
	}

	// Staggered reveals fire and the last one completes restoration.
	clock.Advance(2 * time.Second)
	if phase := s.Restore.Phase(); phase != model.PhaseComplete {
		t.Fatalf("phase = %q, want complete after reveals", phase)
	}
}

func TestOpenProjectWithoutSavedStateStillCompletes(t *testing.T) {
	t.Parallel()

	stub := &stubServer{
		project: model.Project{ID: "p1", Name: "Launch"},
		tasks:   []model.Task{{ID: "a", ProjectID: "p1", Name: "Design"}},
	}
	clock := sched.NewManual(time.Unix(1000, 0))
	s := newTestSession(t, stub, clock)

	if err := s.OpenProject(context.Background(), "p1", true); err != nil {
		t.Fatalf("OpenProject: %v", err)
	}
	clock.Advance(2 * time.Second)
	if phase := s.Restore.Phase(); phase != model.PhaseComplete {
		t.Fatalf("phase = %q, want complete", phase)
	}
}

func TestSettledStateIsSavedDebounced(t *testing.T) {
	t.Parallel()

	stub := &stubServer{
		project: model.Project{ID: "p1", Name: "Launch"},
		tasks:   []model.Task{{ID: "a", ProjectID: "p1", Name: "Design"}},
	}
	clock := sched.NewManual(time.Unix(1000, 0))
	s := newTestSession(t, stub, clock)

	if err := s.OpenProject(context.Background(), "p1", false); err != nil {
		t.Fatalf("OpenProject: %v", err)
	}
	// Reveal completes, which schedules a debounced save; the save debounce
	// is well under the advance window.
	clock.Advance(3 * time.Second)
	if stub.saveCount() == 0 {
		t.Fatal("expected a settled-state save after restoration completed")
	}
}
