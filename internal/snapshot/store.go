// Package snapshot persists per-user, per-project workspace state (camera
// transform, selection, task visual states) so a reload or project switch can
// restore the canvas where the user left it.
//
// Persistence is always best-effort: every failure degrades to "no saved
// state" and a log line. Nothing in this package returns an error to UI code.
package snapshot

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskcanvas/internal/events"
	"taskcanvas/internal/model"
	"taskcanvas/internal/sched"
	"taskcanvas/internal/uiflags"
)

const (
	projectKeyPrefix = "workspace-state"
	latestKeyPrefix  = "workspace-state-latest"

	// DefaultExpiry is how long a snapshot stays loadable. Expired snapshots
	// are deleted on the load path.
	DefaultExpiry = 30 * 24 * time.Hour

	// saveDebounce coalesces physical writes: a save arriving within this
	// window of the previous write is deferred to the end of the window.
	saveDebounce = 500 * time.Millisecond
)

type Options struct {
	KV     KV
	UserID string

	// Fallback is a lower-level writer tried when KV.Set fails; its write is
	// verified by immediate read-back. Optional.
	Fallback KV

	Flags  *uiflags.Flags
	Bus    *events.Bus
	Clock  sched.Clock
	Logger *zap.Logger
	Expiry time.Duration
}

type Store struct {
	kv       KV
	fallback KV
	userID   string
	flags    *uiflags.Flags
	bus      *events.Bus
	clock    sched.Clock
	log      *zap.Logger
	expiry   time.Duration

	mu        sync.Mutex
	lastWrite time.Time
	timer     sched.Timer
	pending   *model.WorkspaceSnapshot
}

func NewStore(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = sched.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Flags == nil {
		opts.Flags = uiflags.New()
	}
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	return &Store{
		kv:       opts.KV,
		fallback: opts.Fallback,
		userID:   strings.TrimSpace(opts.UserID),
		flags:    opts.Flags,
		bus:      opts.Bus,
		clock:    opts.Clock,
		log:      opts.Logger,
		expiry:   opts.Expiry,
	}
}

// SaveRequest is the workspace state to persist. The store stamps timestamp,
// user id and version.
type SaveRequest struct {
	ProjectID        string
	SelectedTaskID   string
	Viewport         model.ViewportState
	TaskVisualStates map[string]model.VisualState
	UIState          model.UIState
}

// Save schedules a persist of the given state. No-ops while a project is being
// created (transient pre-creation state must not stick) or when no project is
// selected. Physical writes are debounced; see Flush for forcing them.
func (s *Store) Save(req SaveRequest) {
	if strings.TrimSpace(req.ProjectID) == "" {
		return
	}
	if s.flags.CreatingProject() {
		s.log.Debug("snapshot: skipping save during project creation", zap.String("project", req.ProjectID))
		return
	}

	states := make(map[string]model.VisualState, len(req.TaskVisualStates))
	for id, st := range req.TaskVisualStates {
		states[id] = st
	}
	snap := &model.WorkspaceSnapshot{
		Version:          1,
		ProjectID:        strings.TrimSpace(req.ProjectID),
		SelectedTaskID:   strings.TrimSpace(req.SelectedTaskID),
		Viewport:         req.Viewport.Sanitize(),
		TaskVisualStates: states,
		UIState:          req.UIState,
		Timestamp:        s.clock.Now(),
		UserID:           s.userID,
	}

	s.mu.Lock()
	since := s.clock.Now().Sub(s.lastWrite)
	if s.lastWrite.IsZero() || since >= saveDebounce {
		s.lastWrite = s.clock.Now()
		s.mu.Unlock()
		s.write(snap)
		return
	}
	// Coalesce into a single write at the end of the debounce window.
	s.pending = snap
	if s.timer == nil {
		s.timer = s.clock.AfterFunc(saveDebounce-since, s.onTimer)
	} else {
		s.timer.Reset(saveDebounce - since)
	}
	s.mu.Unlock()
}

func (s *Store) onTimer() {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	if snap != nil {
		s.lastWrite = s.clock.Now()
	}
	s.mu.Unlock()
	if snap != nil {
		s.write(snap)
	}
}

// Flush writes any pending debounced save immediately.
func (s *Store) Flush() {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	if snap != nil {
		s.lastWrite = s.clock.Now()
	}
	s.mu.Unlock()
	if snap != nil {
		s.write(snap)
	}
}

func (s *Store) write(snap *model.WorkspaceSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Error("snapshot: marshal failed", zap.Error(err))
		return
	}

	ok1 := s.writeKey(s.projectKey(snap.ProjectID), data)
	ok2 := s.writeKey(s.latestKey(), data)
	if ok1 && ok2 {
		if s.bus != nil {
			s.bus.Publish(events.WorkspaceStateSaved, snap.ProjectID)
		}
		return
	}
	s.log.Warn("snapshot: save incomplete",
		zap.String("project", snap.ProjectID),
		zap.Bool("projectKey", ok1),
		zap.Bool("latestKey", ok2))
}

// writeKey tries the primary KV, then the direct fallback with read-back
// verification. Total failure is logged, never propagated.
func (s *Store) writeKey(key string, data []byte) bool {
	err := s.kv.Set(key, data)
	if err == nil {
		return true
	}
	s.log.Warn("snapshot: primary write failed, trying fallback", zap.String("key", key), zap.Error(err))
	if s.fallback == nil {
		return false
	}
	if ferr := s.fallback.Set(key, data); ferr != nil {
		s.log.Error("snapshot: fallback write failed", zap.String("key", key), zap.Error(ferr))
		return false
	}
	got, found, gerr := s.fallback.Get(key)
	if gerr != nil || !found || !bytes.Equal(got, data) {
		s.log.Error("snapshot: fallback verification failed", zap.String("key", key), zap.Error(gerr))
		return false
	}
	return true
}

// Load returns the saved snapshot for projectID, or the most recent snapshot
// for the current user when projectID is empty. Returns nil when nothing
// usable is stored; expired snapshots are removed as a side effect.
func (s *Store) Load(projectID string) *model.WorkspaceSnapshot {
	projectID = strings.TrimSpace(projectID)
	if projectID != "" {
		if snap := s.loadKey(s.projectKey(projectID)); snap != nil && snap.ProjectID == projectID {
			return snap
		}
		// Legacy non-user-scoped key, kept for snapshots written before
		// storage was partitioned by user.
		if snap := s.loadKey(legacyProjectKey(projectID)); snap != nil && snap.ProjectID == projectID {
			return snap
		}
		return nil
	}

	if snap := s.loadKey(s.latestKey()); snap != nil {
		return snap
	}
	if snap := s.loadKey(latestKeyPrefix); snap != nil {
		return snap
	}

	// Fall back to the newest project-scoped snapshot for this user.
	keys, err := s.kv.Keys(projectKeyPrefix + ":" + s.userID + ":")
	if err != nil {
		s.log.Warn("snapshot: key scan failed", zap.Error(err))
		return nil
	}
	var best *model.WorkspaceSnapshot
	for _, k := range keys {
		snap := s.loadKey(k)
		if snap == nil {
			continue
		}
		if best == nil || snap.Timestamp.After(best.Timestamp) {
			best = snap
		}
	}
	return best
}

func (s *Store) loadKey(key string) *model.WorkspaceSnapshot {
	data, found, err := s.kv.Get(key)
	if err != nil {
		s.log.Warn("snapshot: read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}
	var snap model.WorkspaceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Warn("snapshot: corrupt snapshot dropped", zap.String("key", key), zap.Error(err))
		_ = s.kv.Delete(key)
		return nil
	}
	if s.clock.Now().Sub(snap.Timestamp) > s.expiry {
		s.log.Debug("snapshot: expired snapshot removed", zap.String("key", key), zap.Time("timestamp", snap.Timestamp))
		_ = s.kv.Delete(key)
		return nil
	}
	// A snapshot belonging to a different user must never leak across; this
	// can only happen through legacy keys.
	if snap.UserID != "" && s.userID != "" && snap.UserID != s.userID {
		return nil
	}
	backfill(&snap, s.userID)
	return &snap
}

// backfill tolerates older snapshot schemas by filling fields later versions
// added.
func backfill(snap *model.WorkspaceSnapshot, userID string) {
	if snap.Version == 0 {
		snap.Version = 1
	}
	if snap.TaskVisualStates == nil {
		snap.TaskVisualStates = map[string]model.VisualState{}
	}
	if snap.UserID == "" {
		snap.UserID = userID
	}
}

// HasSavedState reports whether Load would return a snapshot.
func (s *Store) HasSavedState(projectID string) bool {
	return s.Load(projectID) != nil
}

// Clear removes saved state. Three modes:
//   - userID and projectID: that project's state for that user (plus its
//     legacy key);
//   - userID only: all state for that user;
//   - neither: all legacy non-user-scoped state.
//
// Idempotent; missing keys are not an error.
func (s *Store) Clear(userID, projectID string) {
	userID = strings.TrimSpace(userID)
	projectID = strings.TrimSpace(projectID)

	switch {
	case projectID != "":
		s.deleteKey(projectKeyPrefix + ":" + userID + ":" + projectID)
		s.deleteKey(legacyProjectKey(projectID))
	case userID != "":
		keys, err := s.kv.Keys(projectKeyPrefix + ":" + userID + ":")
		if err != nil {
			s.log.Warn("snapshot: clear scan failed", zap.Error(err))
			return
		}
		for _, k := range keys {
			s.deleteKey(k)
		}
		s.deleteKey(latestKeyPrefix + ":" + userID)
	default:
		keys, err := s.kv.Keys(projectKeyPrefix)
		if err != nil {
			s.log.Warn("snapshot: clear scan failed", zap.Error(err))
			return
		}
		for _, k := range keys {
			if isLegacyKey(k) {
				s.deleteKey(k)
			}
		}
	}
}

func (s *Store) deleteKey(key string) {
	if err := s.kv.Delete(key); err != nil {
		s.log.Warn("snapshot: delete failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) projectKey(projectID string) string {
	return projectKeyPrefix + ":" + s.userID + ":" + projectID
}

func (s *Store) latestKey() string {
	return latestKeyPrefix + ":" + s.userID
}

func legacyProjectKey(projectID string) string {
	return projectKeyPrefix + ":" + projectID
}

// isLegacyKey matches keys written before user partitioning: the bare latest
// key and project keys with a single segment after the prefix.
func isLegacyKey(key string) bool {
	if key == latestKeyPrefix {
		return true
	}
	rest, ok := strings.CutPrefix(key, projectKeyPrefix+":")
	if !ok {
		return false
	}
	return !strings.Contains(rest, ":")
}
