// Package hierarchy maintains the denormalized children/descendant counts
// stored on each task.
package hierarchy

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskcanvas/internal/store"
)

// CountUpdateError wraps a failure to recompute counts for one task.
type CountUpdateError struct {
	TaskID string
	Err    error
}

func (e CountUpdateError) Error() string {
	return fmt.Sprintf("update counts for task %s: %v", e.TaskID, e.Err)
}

func (e CountUpdateError) Unwrap() error { return e.Err }

// Counter recomputes task counts against the store. Both operations are
// idempotent: repeated calls with unchanged children produce the same counts.
type Counter struct {
	store  *store.Store
	logger *zap.Logger
}

func NewCounter(s *store.Store, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{store: s, logger: logger}
}

// UpdateCounts recomputes one task's counts from its direct children's cached
// counts. O(children); the incremental path used after a single mutation.
func (c *Counter) UpdateCounts(ctx context.Context, taskID string) (children, descendants int, err error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return 0, 0, CountUpdateError{TaskID: taskID, Err: fmt.Errorf("empty task id")}
	}
	if _, err := c.store.GetTask(ctx, taskID); err != nil {
		return 0, 0, CountUpdateError{TaskID: taskID, Err: err}
	}
	kids, err := c.store.Children(ctx, taskID)
	if err != nil {
		return 0, 0, CountUpdateError{TaskID: taskID, Err: err}
	}
	children = len(kids)
	for _, k := range kids {
		descendants += 1 + k.DescendantCount
	}
	if err := c.store.SetCounts(ctx, taskID, children, descendants); err != nil {
		return 0, 0, CountUpdateError{TaskID: taskID, Err: err}
	}
	c.logger.Debug("counts updated",
		zap.String("task", taskID),
		zap.Int("children", children),
		zap.Int("descendants", descendants))
	return children, descendants, nil
}

// RecalculateCounts rebuilds the whole subtree's counts bottom-up, ignoring
// cached child counts. The authoritative repair path.
func (c *Counter) RecalculateCounts(ctx context.Context, taskID string) (children, descendants int, err error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return 0, 0, CountUpdateError{TaskID: taskID, Err: fmt.Errorf("empty task id")}
	}
	if _, err := c.store.GetTask(ctx, taskID); err != nil {
		return 0, 0, CountUpdateError{TaskID: taskID, Err: err}
	}
	children, descendants, err = c.recalc(ctx, taskID)
	if err != nil {
		return 0, 0, CountUpdateError{TaskID: taskID, Err: err}
	}
	return children, descendants, nil
}

func (c *Counter) recalc(ctx context.Context, taskID string) (int, int, error) {
	kids, err := c.store.Children(ctx, taskID)
	if err != nil {
		return 0, 0, err
	}
	descendants := 0
	for _, k := range kids {
		_, kd, err := c.recalc(ctx, k.ID)
		if err != nil {
			return 0, 0, err
		}
		descendants += 1 + kd
	}
	if err := c.store.SetCounts(ctx, taskID, len(kids), descendants); err != nil {
		return 0, 0, err
	}
	return len(kids), descendants, nil
}
