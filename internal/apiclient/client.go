// Package apiclient is the HTTP client for the taskcanvas CRUD API. It
// satisfies the same contract the server serves locally, so orchestrators can
// run against either.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskcanvas/internal/model"
	"taskcanvas/internal/retry"
	"taskcanvas/internal/store"
)

// APIError is a non-2xx response decoded from the server's {"error": ...}
// body.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type Client struct {
	base  string
	token string
	hc    *http.Client
	retry retry.Policy
}

type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func WithRetry(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:  strings.TrimRight(baseURL, "/"),
		hc:    &http.Client{Timeout: 30 * time.Second},
		retry: retry.Policy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 2 * time.Second, Retryable: retryableStatus},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatus retries transport errors and 5xx, never client errors.
func retryableStatus(err error) bool {
	var ae APIError
	if errors.As(err, &ae) {
		return ae.Status >= 500
	}
	var nf store.NotFoundError
	var ve store.ValidationError
	if errors.As(err, &nf) || errors.As(err, &ve) {
		return false
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.retry.Do(ctx, func() error {
		var body io.Reader
		if in != nil {
			b, err := json.Marshal(in)
			if err != nil {
				return err
			}
			body = bytes.NewReader(b)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			return err
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return decodeError(resp)
		}
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

// decodeError maps error responses back onto the store's error types where
// the status allows, so callers get the same taxonomy either way.
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	msg := resp.Status
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil && body.Error != "" {
		msg = body.Error
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return store.NotFoundError{Kind: "resource", ID: msg}
	case http.StatusBadRequest:
		return store.ValidationError{Field: "request", Reason: msg}
	}
	return APIError{Status: resp.StatusCode, Message: msg}
}

func (c *Client) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var out []model.Project
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Children(ctx context.Context, taskID string) ([]model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID)+"/children", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Siblings is assembled client-side: children of the parent, or first-level
// project tasks, minus the task itself.
func (c *Client) Siblings(ctx context.Context, task *model.Task) ([]model.Task, error) {
	if task == nil {
		return nil, store.ValidationError{Field: "task", Reason: "required"}
	}
	var pool []model.Task
	var err error
	if task.HasParent() {
		pool, err = c.Children(ctx, *task.ParentID)
	} else {
		pool, err = c.ListTasks(ctx, task.ProjectID)
	}
	if err != nil {
		return nil, err
	}
	out := pool[:0]
	for _, t := range pool {
		if t.ID == task.ID {
			continue
		}
		if !task.HasParent() && t.HasParent() {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type bulkTasksRequest struct {
	Tasks []store.TaskDraft `json:"tasks"`
}

func (c *Client) CreateProjectTasks(ctx context.Context, projectID string, drafts []store.TaskDraft) ([]model.Task, error) {
	var out []model.Task
	err := c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(projectID)+"/tasks", bulkTasksRequest{Tasks: drafts}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateSubtasks(ctx context.Context, taskID string, drafts []store.TaskDraft) ([]model.Task, error) {
	var out []model.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/subtasks", bulkTasksRequest{Tasks: drafts}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type regenerateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ResetCounts bool   `json:"resetCounts,omitempty"`
}

func (c *Client) RegenerateTask(ctx context.Context, id, name, description string, resetCounts bool) (*model.Task, error) {
	var t model.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/regenerate",
		regenerateRequest{Name: name, Description: description, ResetCounts: resetCounts}, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type deleteResponse struct {
	Deleted []string `json:"deleted"`
}

func (c *Client) DeleteTaskRecursive(ctx context.Context, id string) ([]string, error) {
	var out deleteResponse
	if err := c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id)+"/delete", nil, &out); err != nil {
		return nil, err
	}
	return out.Deleted, nil
}

type countsResponse struct {
	Children    int `json:"children"`
	Descendants int `json:"descendants"`
}

// UpdateCounts asks for the incremental O(children) recompute.
func (c *Client) UpdateCounts(ctx context.Context, taskID string) (int, int, error) {
	var out countsResponse
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/counts", nil, &out); err != nil {
		return 0, 0, err
	}
	return out.Children, out.Descendants, nil
}

// RecalculateCounts asks for the authoritative full subtree recompute.
func (c *Client) RecalculateCounts(ctx context.Context, taskID string) (int, int, error) {
	var out countsResponse
	if err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(taskID)+"/counts", nil, &out); err != nil {
		return 0, 0, err
	}
	return out.Children, out.Descendants, nil
}
