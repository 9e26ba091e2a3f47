package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"taskcanvas/internal/model"
)

type projectCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Decompose   bool   `json:"decompose,omitempty"`
}

type projectCreateResponse struct {
	Project model.Project `json:"project"`
	Tasks   []model.Task  `json:"tasks"`
}

func (c *Client) CreateProject(ctx context.Context, name, description string) (*model.Project, error) {
	var out projectCreateResponse
	err := c.do(ctx, http.MethodPost, "/api/projects", projectCreateRequest{Name: name, Description: description}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Project, nil
}

// CreateProjectDecomposed creates the project and has the server generate its
// first-level tasks in the same call.
func (c *Client) CreateProjectDecomposed(ctx context.Context, name, description string) (*model.Project, []model.Task, error) {
	var out projectCreateResponse
	err := c.do(ctx, http.MethodPost, "/api/projects", projectCreateRequest{Name: name, Description: description, Decompose: true}, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out.Project, out.Tasks, nil
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil, nil)
}

// DecomposeProject runs server-side decomposition on an existing project.
func (c *Client) DecomposeProject(ctx context.Context, projectID string) ([]model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, http.MethodPost, "/api/ops/projects/"+url.PathEscape(projectID)+"/decompose", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SplitTask runs the server-side AI split workflow.
func (c *Client) SplitTask(ctx context.Context, taskID string) ([]model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, http.MethodPost, "/api/ops/tasks/"+url.PathEscape(taskID)+"/split", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type opRegenerateRequest struct {
	ResetCounts bool `json:"resetCounts"`
}

// RegenerateTaskAI runs the server-side AI regenerate workflow.
func (c *Client) RegenerateTaskAI(ctx context.Context, taskID string, resetCounts bool) (*model.Task, error) {
	var t model.Task
	err := c.do(ctx, http.MethodPost, "/api/ops/tasks/"+url.PathEscape(taskID)+"/regenerate", opRegenerateRequest{ResetCounts: resetCounts}, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTaskOp runs the orchestrated delete (recursive, with count refresh).
func (c *Client) DeleteTaskOp(ctx context.Context, taskID string) ([]string, error) {
	var out deleteResponse
	if err := c.do(ctx, http.MethodDelete, "/api/ops/tasks/"+url.PathEscape(taskID), nil, &out); err != nil {
		return nil, err
	}
	return out.Deleted, nil
}
