// Package backup keeps a git history of the data directory. Commits are
// debounced behind workspace writes so a burst of saves lands as one commit,
// and everything is best effort: a broken git setup degrades to log noise,
// never to a failed request.
package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskcanvas/internal/sched"
)

const defaultDebounce = 5 * time.Second

// RunGitFunc invokes git in dir. Swapped out in tests.
type RunGitFunc func(ctx context.Context, dir string, args ...string) (string, error)

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return string(out), nil
}

type Options struct {
	// DataDir is the directory committed; it must be (inside) a git work tree.
	DataDir string
	// Debounce is how long after the last Notify the commit runs.
	Debounce time.Duration
	// AutoPush attempts a push after each commit when an upstream exists.
	AutoPush bool

	Clock  sched.Clock
	Logger *zap.Logger
	Run    RunGitFunc
}

// Committer coalesces change notifications into debounced git commits.
type Committer struct {
	dir      string
	debounce time.Duration
	autoPush bool
	clock    sched.Clock
	log      *zap.Logger
	run      RunGitFunc

	mu        sync.Mutex
	timer     sched.Timer
	pending   bool
	running   bool
	lastLabel string
}

func NewCommitter(opts Options) *Committer {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = sched.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Run == nil {
		opts.Run = runGit
	}
	return &Committer{
		dir:      opts.DataDir,
		debounce: opts.Debounce,
		autoPush: opts.AutoPush,
		clock:    opts.Clock,
		log:      opts.Logger,
		run:      opts.Run,
	}
}

// Notify records that the data directory changed. The commit runs once the
// debounce window closes without further notifications.
func (c *Committer) Notify(label string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pending = true
	c.lastLabel = label
	if c.timer == nil {
		c.timer = c.clock.AfterFunc(c.debounce, c.onTimer)
	} else {
		c.timer.Reset(c.debounce)
	}
	c.mu.Unlock()
}

func (c *Committer) onTimer() {
	c.mu.Lock()
	if c.running {
		// A commit is in flight; re-arm to pick up the pending changes after.
		if c.timer != nil {
			c.timer.Reset(c.debounce)
		}
		c.mu.Unlock()
		return
	}
	if !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.running = true
	label := c.lastLabel
	c.mu.Unlock()

	ctx := context.Background()
	committed, err := c.Commit(ctx, label)
	if err != nil {
		c.log.Warn("backup: commit failed", zap.Error(err))
	} else if committed {
		c.log.Debug("backup: committed", zap.String("label", label))
		if c.autoPush {
			if _, err := c.run(ctx, c.dir, "push"); err != nil {
				c.log.Warn("backup: push failed", zap.Error(err))
			}
		}
	}

	c.mu.Lock()
	c.running = false
	if c.pending && c.timer != nil {
		c.timer.Reset(c.debounce)
	}
	c.mu.Unlock()
}

// Commit stages the canonical data files and commits them. Derived and
// sensitive paths (the WAL sidecars, the signing key under web/) stay out of
// history. Returns committed=false when there is nothing to record.
func (c *Committer) Commit(ctx context.Context, label string) (bool, error) {
	if ok, err := c.isRepo(ctx); err != nil || !ok {
		return false, err
	}

	staged := false
	for _, rel := range []string{"taskcanvas.sqlite", "state"} {
		if _, err := os.Stat(filepath.Join(c.dir, rel)); err != nil {
			continue
		}
		if _, err := c.run(ctx, c.dir, "add", "--", rel); err != nil {
			return false, err
		}
		staged = true
	}
	if !staged {
		return false, nil
	}

	out, err := c.run(ctx, c.dir, "diff", "--cached", "--name-only")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(out) == "" {
		return false, nil
	}

	msg := strings.TrimSpace(label)
	if msg == "" {
		msg = "update"
	}
	msg = fmt.Sprintf("taskcanvas: %s (%s)", msg, c.clock.Now().UTC().Format(time.RFC3339))
	if _, err := c.run(ctx, c.dir, "commit", "-m", msg); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Committer) isRepo(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, c.dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		// Not a repo is the expected miss, not an error worth surfacing.
		return false, nil
	}
	return strings.TrimSpace(out) == "true", nil
}

// EnsureRepo initializes a git repository in the data directory when none
// exists, with an ignore file for the paths that never belong in history.
func EnsureRepo(ctx context.Context, dir string, run RunGitFunc) error {
	if run == nil {
		run = runGit
	}
	if out, err := run(ctx, dir, "rev-parse", "--is-inside-work-tree"); err == nil && strings.TrimSpace(out) == "true" {
		return nil
	}
	if _, err := run(ctx, dir, "init"); err != nil {
		return err
	}
	ignore := strings.Join([]string{
		"web/",
		"*.sqlite-wal",
		"*.sqlite-shm",
		"",
	}, "\n")
	return os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(ignore), 0o644)
}
