package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"taskcanvas/internal/model"
)

// WorkspaceStateRequest mirrors the server's save payload.
type WorkspaceStateRequest struct {
	ProjectID        string                       `json:"projectId"`
	SelectedTaskID   string                       `json:"selectedTaskId"`
	Viewport         model.ViewportState          `json:"viewport"`
	TaskVisualStates map[string]model.VisualState `json:"taskVisualStates"`
	UIState          model.UIState                `json:"uiState"`
}

// LoadWorkspaceState fetches the saved snapshot for a project. An empty
// projectID asks for the most recently saved snapshot for the user.
func (c *Client) LoadWorkspaceState(ctx context.Context, projectID string) (*model.WorkspaceSnapshot, error) {
	path := "/api/workspace-state"
	if projectID != "" {
		path += "/" + url.PathEscape(projectID)
	}
	var snap model.WorkspaceSnapshot
	if err := c.do(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) SaveWorkspaceState(ctx context.Context, req WorkspaceStateRequest) error {
	return c.do(ctx, http.MethodPut, "/api/workspace-state", req, nil)
}

func (c *Client) ClearWorkspaceState(ctx context.Context, projectID string) error {
	path := "/api/workspace-state"
	if projectID != "" {
		path += "?project=" + url.QueryEscape(projectID)
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}
