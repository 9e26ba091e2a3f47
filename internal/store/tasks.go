package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskcanvas/internal/model"
)

// TaskDraft is the input for bulk task creation (the shape the
// decompose/split pipeline produces).
type TaskDraft struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Position    model.Position `json:"position"`
}

const taskColumns = `id, project_id, parent_id, name, description, pos_x, pos_y,
	children_count, descendant_count, created_at_unixms, updated_at_unixms`

func scanTask(scan func(dest ...any) error) (*model.Task, error) {
	var t model.Task
	var parent sql.NullString
	var createdMs, updatedMs int64
	if err := scan(&t.ID, &t.ProjectID, &parent, &t.Name, &t.Description,
		&t.Position.X, &t.Position.Y,
		&t.ChildrenCount, &t.DescendantCount, &createdMs, &updatedMs); err != nil {
		return nil, err
	}
	if parent.Valid && strings.TrimSpace(parent.String) != "" {
		p := parent.String
		t.ParentID = &p
	}
	t.CreatedAt = time.UnixMilli(createdMs).UTC()
	t.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &t, nil
}

// CreateTasks bulk-creates tasks under the given parent (nil parent means
// first-level tasks of the project). The parent must already exist; ids are
// generated here, so a cycle of length one cannot be constructed.
func (s *Store) CreateTasks(ctx context.Context, projectID string, parentID *string, drafts []TaskDraft) ([]model.Task, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, ValidationError{Field: "projectId", Reason: "required"}
	}
	if len(drafts) == 0 {
		return nil, ValidationError{Field: "tasks", Reason: "empty"}
	}
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if parentID != nil {
		parent, err := s.GetTask(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.ProjectID != projectID {
			return nil, ValidationError{Field: "parentId", Reason: "belongs to a different project"}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	out := make([]model.Task, 0, len(drafts))
	for _, d := range drafts {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, ValidationError{Field: "name", Reason: "required"}
		}
		t := model.Task{
			ID:          uuid.NewString(),
			ProjectID:   projectID,
			ParentID:    parentID,
			Name:        name,
			Description: d.Description,
			Position:    d.Position,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		var parent any
		if parentID != nil {
			parent = *parentID
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`)
			VALUES(?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
			t.ID, t.ProjectID, parent, t.Name, t.Description,
			t.Position.X, t.Position.Y, now.UnixMilli(), now.UnixMilli()); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ValidationError{Field: "taskId", Reason: "required"}
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundError{Kind: "task", ID: id}
	}
	return t, err
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListTasks returns every task in the project.
func (s *Store) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, ValidationError{Field: "projectId", Reason: "required"}
	}
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY created_at_unixms`, projectID)
}

// Children returns the direct children of a task.
func (s *Store) Children(ctx context.Context, taskID string) ([]model.Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, ValidationError{Field: "taskId", Reason: "required"}
	}
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE parent_id = ? ORDER BY created_at_unixms`, taskID)
}

// Siblings returns tasks sharing the task's parent (or, for first-level tasks,
// the project), excluding the task itself.
func (s *Store) Siblings(ctx context.Context, task *model.Task) ([]model.Task, error) {
	if task == nil {
		return nil, ValidationError{Field: "task", Reason: "required"}
	}
	if task.HasParent() {
		return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE parent_id = ? AND id <> ? ORDER BY created_at_unixms`,
			*task.ParentID, task.ID)
	}
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = ? AND parent_id IS NULL AND id <> ? ORDER BY created_at_unixms`,
		task.ProjectID, task.ID)
}

// UpdateTaskContent rewrites name/description (the regenerate path).
// resetCounts also zeroes the cached hierarchy counts, for callers that are
// about to discard the subtree.
func (s *Store) UpdateTaskContent(ctx context.Context, id, name, description string, resetCounts bool) (*model.Task, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return nil, ValidationError{Field: "taskId", Reason: "required"}
	}
	if name == "" {
		return nil, ValidationError{Field: "name", Reason: "required"}
	}
	q := `UPDATE tasks SET name = ?, description = ?, updated_at_unixms = ? WHERE id = ?`
	args := []any{name, description, time.Now().UTC().UnixMilli(), id}
	if resetCounts {
		q = `UPDATE tasks SET name = ?, description = ?, children_count = 0, descendant_count = 0, updated_at_unixms = ? WHERE id = ?`
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, NotFoundError{Kind: "task", ID: id}
	}
	return s.GetTask(ctx, id)
}

// UpdateTaskPosition moves a task on the canvas.
func (s *Store) UpdateTaskPosition(ctx context.Context, id string, pos model.Position) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ValidationError{Field: "taskId", Reason: "required"}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET pos_x = ?, pos_y = ?, updated_at_unixms = ? WHERE id = ?`,
		pos.X, pos.Y, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Kind: "task", ID: id}
	}
	return nil
}

// DeleteTaskRecursive deletes the task and all of its descendants, deepest
// first, and returns every deleted id (the task itself last).
func (s *Store) DeleteTaskRecursive(ctx context.Context, id string) ([]string, error) {
	if _, err := s.GetTask(ctx, id); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var deleted []string
	var del func(taskID string) error
	del = func(taskID string) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE parent_id = ?`, taskID)
		if err != nil {
			return err
		}
		var childIDs []string
		for rows.Next() {
			var cid string
			if err := rows.Scan(&cid); err != nil {
				rows.Close()
				return err
			}
			childIDs = append(childIDs, cid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, cid := range childIDs {
			if err := del(cid); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID); err != nil {
			return err
		}
		deleted = append(deleted, taskID)
		return nil
	}
	if err := del(strings.TrimSpace(id)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return deleted, nil
}

// SetCounts writes the denormalized hierarchy counts for one task.
func (s *Store) SetCounts(ctx context.Context, id string, children, descendants int) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ValidationError{Field: "taskId", Reason: "required"}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET children_count = ?, descendant_count = ?, updated_at_unixms = ? WHERE id = ?`,
		children, descendants, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Kind: "task", ID: id}
	}
	return nil
}
