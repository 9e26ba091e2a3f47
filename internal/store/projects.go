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

func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return ValidationError{Field: "name", Reason: "required"}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `INSERT INTO projects(id, name, description, created_by, created_at_unixms, updated_at_unixms)
		VALUES(?, ?, ?, ?, ?, ?)`,
		p.ID, strings.TrimSpace(p.Name), p.Description, p.CreatedBy, now.UnixMilli(), now.UnixMilli())
	return err
}

func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ValidationError{Field: "projectId", Reason: "required"}
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, created_by, created_at_unixms, updated_at_unixms
		FROM projects WHERE id = ?`, id)
	var p model.Project
	var createdMs, updatedMs int64
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &createdMs, &updatedMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError{Kind: "project", ID: id}
		}
		return nil, err
	}
	p.CreatedAt = time.UnixMilli(createdMs).UTC()
	p.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_by, created_at_unixms, updated_at_unixms
		FROM projects ORDER BY created_at_unixms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Project{}
	for rows.Next() {
		var p model.Project
		var createdMs, updatedMs int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &createdMs, &updatedMs); err != nil {
			return nil, err
		}
		p.CreatedAt = time.UnixMilli(createdMs).UTC()
		p.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject removes the project and, via the FK cascade, all of its tasks.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ValidationError{Field: "projectId", Reason: "required"}
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Kind: "project", ID: id}
	}
	return nil
}
