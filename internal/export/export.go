// Package export renders a project and its task hierarchy as a markdown
// document, for hand-off to tools that consume plain documents (wikis,
// issue trackers, LLM context windows).
package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"taskcanvas/internal/model"
)

type Options struct {
	// IncludeDescriptions inlines each task's description under its heading.
	IncludeDescriptions bool
	// IncludeCounts appends the denormalized child/descendant counts.
	IncludeCounts bool
}

type taskTree struct {
	roots    []model.Task
	children map[string][]model.Task
}

func buildTaskTree(tasks []model.Task) taskTree {
	byParent := map[string][]model.Task{}
	roots := make([]model.Task, 0)
	for _, t := range tasks {
		if !t.HasParent() {
			roots = append(roots, t)
			continue
		}
		pid := *t.ParentID
		byParent[pid] = append(byParent[pid], t)
	}
	sortByPosition(roots)
	for pid := range byParent {
		sortByPosition(byParent[pid])
	}
	return taskTree{roots: roots, children: byParent}
}

// sortByPosition orders siblings left to right as they appear on the canvas,
// with the vertical position and then the name as tie-breakers.
func sortByPosition(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Position.X != b.Position.X {
			return a.Position.X < b.Position.X
		}
		if a.Position.Y != b.Position.Y {
			return a.Position.Y < b.Position.Y
		}
		return a.Name < b.Name
	})
}

// RenderProjectMarkdown produces the full document: a meta block, the
// project description, an indented tree index, and one section per task.
func RenderProjectMarkdown(project *model.Project, tasks []model.Task, opt Options) (string, error) {
	if project == nil {
		return "", fmt.Errorf("missing project")
	}

	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	writeLn("# " + strings.TrimSpace(project.Name))
	writeLn("")
	writeLn("## Meta")
	writeLn("")
	writeLn("- ID: " + project.ID)
	if strings.TrimSpace(project.CreatedBy) != "" {
		writeLn("- Created by: " + strings.TrimSpace(project.CreatedBy))
	}
	writeLn("- Created: " + project.CreatedAt.UTC().Format(time.RFC3339))
	writeLn("- Updated: " + project.UpdatedAt.UTC().Format(time.RFC3339))
	writeLn("- Tasks: " + fmt.Sprintf("%d", len(tasks)))

	if desc := strings.TrimSpace(project.Description); desc != "" {
		writeLn("")
		writeLn("## Description")
		writeLn("")
		writeLn(desc)
	}

	tree := buildTaskTree(tasks)

	if len(tree.roots) > 0 {
		writeLn("")
		writeLn("## Task tree")
		writeLn("")
		for _, root := range tree.roots {
			renderIndexLine(&buf, tree, root, 0, opt)
		}

		writeLn("")
		writeLn("## Tasks")
		for _, root := range tree.roots {
			renderTaskSection(&buf, tree, root, 3, opt)
		}
	}

	return buf.String(), nil
}

func renderIndexLine(buf *bytes.Buffer, tree taskTree, t model.Task, depth int, opt Options) {
	prefix := strings.Repeat("  ", depth)
	suffix := ""
	if opt.IncludeCounts && t.DescendantCount > 0 {
		suffix = fmt.Sprintf(" (%d/%d)", t.ChildrenCount, t.DescendantCount)
	}
	fmt.Fprintf(buf, "%s- %s%s\n", prefix, strings.TrimSpace(t.Name), suffix)
	for _, ch := range tree.children[t.ID] {
		renderIndexLine(buf, tree, ch, depth+1, opt)
	}
}

func renderTaskSection(buf *bytes.Buffer, tree taskTree, t model.Task, level int, opt Options) {
	if level > 6 {
		level = 6
	}
	buf.WriteString("\n")
	buf.WriteString(strings.Repeat("#", level) + " " + strings.TrimSpace(t.Name) + "\n")
	if opt.IncludeCounts && t.DescendantCount > 0 {
		fmt.Fprintf(buf, "\n%d direct subtasks, %d in total beneath.\n", t.ChildrenCount, t.DescendantCount)
	}
	if opt.IncludeDescriptions {
		if desc := strings.TrimSpace(t.Description); desc != "" {
			buf.WriteString("\n" + desc + "\n")
		}
	}
	for _, ch := range tree.children[t.ID] {
		renderTaskSection(buf, tree, ch, level+1, opt)
	}
}
