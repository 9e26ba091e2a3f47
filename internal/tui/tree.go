package tui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"

	"taskcanvas/internal/model"
)

// taskRow is one visible line of the task tree.
type taskRow struct {
	Task  model.Task
	Depth int
}

// flattenTasks orders tasks depth-first under their parents, preserving the
// incoming (creation) order within each level. Tasks with a missing parent
// surface at the top level rather than disappearing.
func flattenTasks(tasks []model.Task) []taskRow {
	byParent := map[string][]model.Task{}
	known := map[string]bool{}
	for _, t := range tasks {
		known[t.ID] = true
	}
	for _, t := range tasks {
		key := ""
		if t.HasParent() && known[*t.ParentID] {
			key = *t.ParentID
		}
		byParent[key] = append(byParent[key], t)
	}

	var rows []taskRow
	var walk func(parentKey string, depth int)
	walk = func(parentKey string, depth int) {
		for _, t := range byParent[parentKey] {
			rows = append(rows, taskRow{Task: t, Depth: depth})
			walk(t.ID, depth+1)
		}
	}
	walk("", 0)
	return rows
}

// renderRow draws one tree line clipped to width.
func renderRow(row taskRow, selected bool, width int) string {
	indent := strings.Repeat("  ", row.Depth)
	label := indent + row.Task.Name
	if row.Task.ChildrenCount > 0 {
		label += " " + countStyle.Render("["+itoa(row.Task.ChildrenCount)+"/"+itoa(row.Task.DescendantCount)+"]")
	}
	label = ansi.Truncate(label, width, "…")
	if selected {
		return selStyle.Render(label)
	}
	return label
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
