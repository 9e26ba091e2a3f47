package textgen

import (
	"errors"
	"strings"
	"testing"
)

func TestParseListStripsFencesAndBlankNames(t *testing.T) {
	t.Parallel()
	raw := "```json\n[{\"name\": \" Plan \", \"description\": \"d1\"}, {\"name\": \"\", \"description\": \"dropped\"}]\n```"
	got, err := parseList(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Plan" || got[0].Description != "d1" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestParseListRejectsNonJSON(t *testing.T) {
	t.Parallel()
	if _, err := parseList("Sure! Here are some tasks:"); err == nil {
		t.Fatal("expected error for prose response")
	}
	if _, err := parseList("[]"); err == nil {
		t.Fatal("expected error for empty array")
	}
}

func TestParseSingle(t *testing.T) {
	t.Parallel()
	got, err := parseSingle(`{"name": "Rewrite", "description": "clearer"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Name != "Rewrite" || got.Description != "clearer" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if _, err := parseSingle(`{"description": "no name"}`); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestPromptRendering(t *testing.T) {
	t.Parallel()
	in := Input{
		ProjectName:        "Launch v2",
		ProjectDescription: "ship the redesign",
		Task:               &TaskContent{Name: "Write docs", Description: "cover the API"},
		Ancestors:          []TaskContent{{Name: "Prepare release", Description: "everything before ship day"}},
		Siblings:           []TaskContent{{Name: "Write changelog", Description: "user-facing"}},
	}

	split, err := renderPrompt(splitPrompt, in)
	if err != nil {
		t.Fatalf("render split: %v", err)
	}
	for _, want := range []string{"Launch v2", "Write docs", "Prepare release"} {
		if !strings.Contains(split, want) {
			t.Fatalf("split prompt missing %q:\n%s", want, split)
		}
	}

	regen, err := renderPrompt(regeneratePrompt, in)
	if err != nil {
		t.Fatalf("render regenerate: %v", err)
	}
	if !strings.Contains(regen, "Write changelog") {
		t.Fatalf("regenerate prompt missing siblings:\n%s", regen)
	}

	// Decompose has no task context at all.
	dec, err := renderPrompt(decomposePrompt, Input{ProjectName: "Launch v2"})
	if err != nil {
		t.Fatalf("render decompose: %v", err)
	}
	if strings.Contains(dec, "Write docs") {
		t.Fatalf("decompose prompt leaked task context:\n%s", dec)
	}
}

func TestTaskGenerationErrorPreservesCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("quota exceeded")
	err := TaskGenerationError{Op: OpSplit, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("cause not unwrappable")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("original message lost: %v", err)
	}
}
