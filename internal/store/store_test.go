package store

import (
	"context"
	"errors"
	"testing"

	"taskcanvas/internal/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustProject(t *testing.T, s *Store) *model.Project {
	t.Helper()
	p := &model.Project{Name: "Build a treehouse", Description: "from scratch", CreatedBy: "user-1"}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestProjectLifecycle(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	p := mustProject(t, s)
	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.Name != "Build a treehouse" || got.CreatedBy != "user-1" {
		t.Fatalf("unexpected project: %+v", got)
	}

	list, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 project, got %d", len(list))
	}

	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	_, err = s.GetProject(ctx, p.ID)
	var nf NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError after delete, got %v", err)
	}
}

func TestCreateTasksValidatesParent(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()
	p := mustProject(t, s)

	missing := "no-such-task"
	_, err := s.CreateTasks(ctx, p.ID, &missing, []TaskDraft{{Name: "child"}})
	var nf NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for missing parent, got %v", err)
	}

	_, err = s.CreateTasks(ctx, p.ID, nil, []TaskDraft{{Name: "   "}})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for blank name, got %v", err)
	}
}

func TestTaskTreeAndRecursiveDelete(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()
	p := mustProject(t, s)

	roots, err := s.CreateTasks(ctx, p.ID, nil, []TaskDraft{
		{Name: "design", Position: model.Position{X: 10, Y: 20}},
		{Name: "build"},
	})
	if err != nil {
		t.Fatalf("create roots: %v", err)
	}
	design := roots[0]

	kids, err := s.CreateTasks(ctx, p.ID, &design.ID, []TaskDraft{
		{Name: "sketch"},
		{Name: "measure"},
	})
	if err != nil {
		t.Fatalf("create children: %v", err)
	}
	if _, err := s.CreateTasks(ctx, p.ID, &kids[0].ID, []TaskDraft{{Name: "buy pencils"}}); err != nil {
		t.Fatalf("create grandchild: %v", err)
	}

	children, err := s.Children(ctx, design.ID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}

	all, err := s.ListTasks(ctx, p.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(all))
	}

	deleted, err := s.DeleteTaskRecursive(ctx, design.ID)
	if err != nil {
		t.Fatalf("recursive delete: %v", err)
	}
	if len(deleted) != 4 {
		t.Fatalf("expected 4 deleted ids, got %d: %v", len(deleted), deleted)
	}
	// Deepest first, the requested task last.
	if deleted[len(deleted)-1] != design.ID {
		t.Fatalf("expected %s last, got %v", design.ID, deleted)
	}

	all, err = s.ListTasks(ctx, p.ID)
	if err != nil {
		t.Fatalf("list tasks after delete: %v", err)
	}
	if len(all) != 1 || all[0].Name != "build" {
		t.Fatalf("unexpected survivors: %+v", all)
	}
}

func TestSiblingsExcludesSelf(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()
	p := mustProject(t, s)

	roots, err := s.CreateTasks(ctx, p.ID, nil, []TaskDraft{
		{Name: "a"}, {Name: "b"}, {Name: "c"},
	})
	if err != nil {
		t.Fatalf("create roots: %v", err)
	}
	sibs, err := s.Siblings(ctx, &roots[1])
	if err != nil {
		t.Fatalf("siblings: %v", err)
	}
	if len(sibs) != 2 {
		t.Fatalf("expected 2 siblings, got %d", len(sibs))
	}
	for _, sib := range sibs {
		if sib.ID == roots[1].ID {
			t.Fatalf("siblings included the task itself")
		}
	}
}

func TestUpdateTaskContentAndCounts(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()
	p := mustProject(t, s)

	roots, err := s.CreateTasks(ctx, p.ID, nil, []TaskDraft{{Name: "old name"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := roots[0].ID

	if err := s.SetCounts(ctx, id, 3, 7); err != nil {
		t.Fatalf("set counts: %v", err)
	}
	got, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ChildrenCount != 3 || got.DescendantCount != 7 {
		t.Fatalf("counts not persisted: %+v", got)
	}

	updated, err := s.UpdateTaskContent(ctx, id, "new name", "new description", true)
	if err != nil {
		t.Fatalf("update content: %v", err)
	}
	if updated.Name != "new name" || updated.Description != "new description" {
		t.Fatalf("content not updated: %+v", updated)
	}
	if updated.ChildrenCount != 0 || updated.DescendantCount != 0 {
		t.Fatalf("counts not reset: %+v", updated)
	}
}

func TestProjectDeleteCascadesToTasks(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()
	p := mustProject(t, s)

	if _, err := s.CreateTasks(ctx, p.ID, nil, []TaskDraft{{Name: "a"}, {Name: "b"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	tasks, err := s.ListTasks(ctx, p.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected cascade to remove tasks, got %d", len(tasks))
	}
}
