package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"taskcanvas/internal/model"
	"taskcanvas/internal/store"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "taskcanvas") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestDocsTopicsAndBody(t *testing.T) {
	out, err := runCmd(t, "docs")
	if err != nil {
		t.Fatalf("docs: %v", err)
	}
	for _, topic := range []string{"getting-started", "server", "generation"} {
		if !strings.Contains(out, topic) {
			t.Errorf("topic list missing %q:\n%s", topic, out)
		}
	}

	out, err = runCmd(t, "docs", "getting-started", "--raw")
	if err != nil {
		t.Fatalf("docs topic: %v", err)
	}
	if !strings.Contains(out, "# Getting started") {
		t.Fatalf("unexpected topic body: %q", out)
	}

	if _, err := runCmd(t, "docs", "nope"); err == nil {
		t.Fatal("expected error for unknown topic")
	}
}

func TestTokenCommand(t *testing.T) {
	dir := t.TempDir()

	if _, err := runCmd(t, "--data-dir", dir, "token"); err == nil {
		t.Fatal("expected error without --user")
	}

	out, err := runCmd(t, "--data-dir", dir, "token", "--user", "alice")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	tok := strings.TrimSpace(out)
	if tok == "" || !strings.Contains(tok, ".") {
		t.Fatalf("expected payload.signature token, got %q", tok)
	}
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()

	st, err := store.Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	p := &model.Project{Name: "Launch v2"}
	if err := st.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := st.CreateTasks(context.Background(), p.ID, nil, []store.TaskDraft{{Name: "Design"}}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	out, err := runCmd(t, "--data-dir", dir, "export", p.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "# Launch v2") || !strings.Contains(out, "- Design") {
		t.Fatalf("unexpected export output:\n%s", out)
	}

	if _, err := runCmd(t, "--data-dir", dir, "export", "missing"); err == nil {
		t.Fatal("expected error for unknown project")
	}
}
