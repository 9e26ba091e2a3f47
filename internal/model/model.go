package model

import "time"

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Task struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`

	// ParentID is nil for first-level tasks (children of the project itself).
	// A task's parent must already exist and must never equal its own id.
	ParentID *string `json:"parentId,omitempty"`

	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Position    Position `json:"position"`

	// Denormalized hierarchy counts, maintained by internal/hierarchy.
	ChildrenCount   int `json:"childrenCount"`
	DescendantCount int `json:"descendantCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasParent reports whether the task has a real parent task (not the project).
func (t Task) HasParent() bool {
	return t.ParentID != nil && *t.ParentID != ""
}
