package tui

import (
	"strings"
	"testing"

	"taskcanvas/internal/model"
)

func TestFlattenTasksDepthFirst(t *testing.T) {
	t.Parallel()
	a, b := "a", "b"
	rows := flattenTasks([]model.Task{
		{ID: "a", Name: "a"},
		{ID: "b", Name: "b"},
		{ID: "a1", Name: "a1", ParentID: &a},
		{ID: "b1", Name: "b1", ParentID: &b},
		{ID: "a2", Name: "a2", ParentID: &a},
	})

	var order []string
	var depths []int
	for _, r := range rows {
		order = append(order, r.Task.ID)
		depths = append(depths, r.Depth)
	}
	want := []string{"a", "a1", "a2", "b", "b1"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if depths[0] != 0 || depths[1] != 1 || depths[3] != 0 {
		t.Fatalf("depths = %v", depths)
	}
}

func TestFlattenTasksOrphanSurfacesAtTop(t *testing.T) {
	t.Parallel()
	missing := "gone"
	rows := flattenTasks([]model.Task{
		{ID: "x", Name: "x", ParentID: &missing},
	})
	if len(rows) != 1 || rows[0].Depth != 0 {
		t.Fatalf("orphan not surfaced: %+v", rows)
	}
}

func TestRenderRowTruncates(t *testing.T) {
	t.Parallel()
	row := taskRow{Task: model.Task{Name: strings.Repeat("long name ", 20)}}
	out := renderRow(row, false, 20)
	if len([]rune(out)) > 25 {
		t.Fatalf("row not truncated: %q", out)
	}
}
