// Package restore sequences the "restore → position → reveal → stabilize"
// animation after a reload. Swapping in a saved camera while the page renders
// causes a visible jump, so the controller applies the correct transform while
// everything is still hidden and reveals content only once position is
// correct. Counted readiness plus layered fallback timers guarantee the page
// can never stay hidden: an element that never reports its transition cannot
// wedge the sequence.
package restore

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"taskcanvas/internal/events"
	"taskcanvas/internal/model"
	"taskcanvas/internal/sched"
	"taskcanvas/internal/uiflags"
)

const (
	// backupDelay re-applies the restored transform shortly after the first
	// attempt in case it raced element creation.
	backupDelay = 50 * time.Millisecond
	// revealBudget bounds the whole staggered reveal regardless of count.
	revealBudget = time.Second
	// revealStep is the maximum per-element stagger.
	revealStep = 100 * time.Millisecond
	// revealFallback force-finishes the reveal when transition-end signals go
	// missing.
	revealFallback = 3 * time.Second
	// watchdogTimeout force-completes the entire restoration from any phase.
	watchdogTimeout = 10 * time.Second

	// revealLockDuration guards the camera while reveal-driven layout churn
	// happens.
	revealLockDuration = 3 * time.Second
)

// Camera is the slice of the viewport coordinator the controller drives.
type Camera interface {
	SetRestorationTransform(model.ViewportState)
	SetExplicitTransform(t model.ViewportState, override bool) bool
	Lock(d time.Duration)
}

// Loader is the snapshot source consulted before any element exists.
type Loader interface {
	Load(projectID string) *model.WorkspaceSnapshot
}

// Surface is the drawing target: transform writes, a global transition kill
// switch for the positioning phase, and staggered element reveals. The surface
// reports each element's transition completion back through
// NotifyElementRevealed.
type Surface interface {
	ApplyTransform(model.ViewportState)
	SetTransitionsDisabled(disabled bool)
	RevealElement(id string, delay time.Duration)
}

type Controller struct {
	loader  Loader
	camera  Camera
	surface Surface
	flags   *uiflags.Flags
	bus     *events.Bus
	clock   sched.Clock
	log     *zap.Logger

	// OnSettled runs once restoration completes, typically scheduling a
	// debounced save of the settled state.
	OnSettled func()

	mu sync.Mutex

	phase     model.RestorationPhase
	snapshot  *model.WorkspaceSnapshot
	projectID string

	pendingPosition int
	pendingReveal   map[string]struct{}

	watchdog    sched.Timer
	backupTimer sched.Timer
	revealTimer sched.Timer
}

func NewController(loader Loader, camera Camera, surface Surface, flags *uiflags.Flags, bus *events.Bus, clock sched.Clock, log *zap.Logger) *Controller {
	if clock == nil {
		clock = sched.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if flags == nil {
		flags = uiflags.New()
	}
	return &Controller{
		loader:        loader,
		camera:        camera,
		surface:       surface,
		flags:         flags,
		bus:           bus,
		clock:         clock,
		log:           log,
		phase:         model.PhaseIdle,
		pendingReveal: map[string]struct{}{},
	}
}

func (c *Controller) Phase() model.RestorationPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Snapshot returns the snapshot pre-loaded by Begin, if any.
func (c *Controller) Snapshot() *model.WorkspaceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *Controller) setPhase(p model.RestorationPhase) {
	c.phase = p
	if c.bus != nil {
		c.bus.Publish(events.RestorationPhaseChanged, p)
	}
}

// Begin enters the loading phase: the previous viewport snapshot is loaded up
// front so it is available before any element exists, and the global watchdog
// starts counting. Begin from any phase other than idle or complete is a
// no-op.
func (c *Controller) Begin(projectID string) {
	c.mu.Lock()
	if c.phase != model.PhaseIdle && c.phase != model.PhaseComplete {
		c.mu.Unlock()
		return
	}
	c.projectID = projectID
	c.snapshot = nil
	c.pendingPosition = 0
	c.pendingReveal = map[string]struct{}{}
	c.setPhase(model.PhaseLoading)
	c.flags.SetRestoring(true)

	if c.watchdog == nil {
		c.watchdog = c.clock.AfterFunc(watchdogTimeout, c.onWatchdog)
	} else {
		c.watchdog.Reset(watchdogTimeout)
	}
	c.mu.Unlock()

	snap := c.loader.Load(projectID)
	c.mu.Lock()
	if c.phase == model.PhaseLoading {
		c.snapshot = snap
	}
	c.mu.Unlock()
}

// BeginPositioning applies the saved transform with highest priority before
// anything becomes visible. Only legal from loading.
func (c *Controller) BeginPositioning() {
	c.mu.Lock()
	if c.phase != model.PhaseLoading {
		c.log.Debug("restore: cannot begin positioning", zap.String("phase", string(c.phase)))
		c.mu.Unlock()
		return
	}
	c.setPhase(model.PhasePositioning)
	snap := c.snapshot
	c.mu.Unlock()

	if c.surface != nil {
		c.surface.SetTransitionsDisabled(true)
	}
	if snap != nil {
		vp := snap.Viewport.Sanitize()
		c.camera.SetRestorationTransform(vp)
		c.camera.SetExplicitTransform(vp, true)
	}

	// Backup re-application in case the first write raced element creation;
	// it also advances the phase when nothing registered for positioning.
	c.mu.Lock()
	if c.backupTimer == nil {
		c.backupTimer = c.clock.AfterFunc(backupDelay, c.onPositionBackup)
	} else {
		c.backupTimer.Reset(backupDelay)
	}
	c.mu.Unlock()
}

func (c *Controller) onPositionBackup() {
	c.mu.Lock()
	if c.phase != model.PhasePositioning {
		c.mu.Unlock()
		return
	}
	snap := c.snapshot
	pending := c.pendingPosition
	c.mu.Unlock()

	if snap != nil {
		c.camera.SetExplicitTransform(snap.Viewport.Sanitize(), true)
	}
	if pending == 0 {
		c.beginRevealing()
	}
}

// TrackRestorableElement registers an element that must be positioned and then
// revealed. Tracking is ignored while idle or complete.
func (c *Controller) TrackRestorableElement(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == model.PhaseIdle || c.phase == model.PhaseComplete {
		return
	}
	if _, dup := c.pendingReveal[id]; dup {
		return
	}
	c.pendingPosition++
	c.pendingReveal[id] = struct{}{}
}

// MarkElementPositioned decrements the pending counter; when it reaches zero
// during positioning the reveal phase starts.
func (c *Controller) MarkElementPositioned(id string) {
	c.mu.Lock()
	if c.pendingPosition > 0 {
		c.pendingPosition--
	}
	ready := c.phase == model.PhasePositioning && c.pendingPosition == 0
	c.mu.Unlock()
	if ready {
		c.beginRevealing()
	}
}

func (c *Controller) beginRevealing() {
	c.mu.Lock()
	if c.phase != model.PhasePositioning {
		c.mu.Unlock()
		return
	}
	c.setPhase(model.PhaseRevealing)
	ids := make([]string, 0, len(c.pendingReveal))
	for id := range c.pendingReveal {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	// Lock the camera before anything becomes visible so reveal-driven layout
	// changes cannot perturb it.
	c.camera.Lock(revealLockDuration)

	if len(ids) == 0 {
		c.complete()
		return
	}

	// Stagger bounded so the whole batch lands within the reveal budget.
	step := revealStep
	if d := revealBudget / time.Duration(len(ids)); d < step {
		step = d
	}
	for i, id := range ids {
		if c.surface != nil {
			c.surface.RevealElement(id, time.Duration(i)*step)
		}
	}

	c.mu.Lock()
	if c.revealTimer == nil {
		c.revealTimer = c.clock.AfterFunc(revealFallback, c.onRevealFallback)
	} else {
		c.revealTimer.Reset(revealFallback)
	}
	c.mu.Unlock()
}

// NotifyElementRevealed records an element's transition-end. When the last
// tracked element reports in, restoration completes.
func (c *Controller) NotifyElementRevealed(id string) {
	c.mu.Lock()
	delete(c.pendingReveal, id)
	done := c.phase == model.PhaseRevealing && len(c.pendingReveal) == 0
	c.mu.Unlock()
	if done {
		c.complete()
	}
}

func (c *Controller) onRevealFallback() {
	c.mu.Lock()
	stalled := c.phase == model.PhaseRevealing
	n := len(c.pendingReveal)
	c.mu.Unlock()
	if stalled {
		c.log.Warn("restore: reveal fallback fired", zap.Int("pending", n))
		c.complete()
	}
}

// ForceComplete jumps straight to complete from any non-idle phase. Exposed
// for the explicit force-complete signal.
func (c *Controller) ForceComplete() {
	c.mu.Lock()
	if c.phase == model.PhaseIdle || c.phase == model.PhaseComplete {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.complete()
}

func (c *Controller) onWatchdog() {
	c.mu.Lock()
	stalled := c.phase != model.PhaseIdle && c.phase != model.PhaseComplete
	phase := c.phase
	c.mu.Unlock()
	if stalled {
		c.log.Warn("restore: watchdog forced completion", zap.String("phase", string(phase)))
		c.complete()
	}
}

func (c *Controller) complete() {
	c.mu.Lock()
	if c.phase == model.PhaseComplete || c.phase == model.PhaseIdle {
		c.mu.Unlock()
		return
	}
	c.setPhase(model.PhaseComplete)
	snap := c.snapshot
	projectID := c.projectID
	c.pendingReveal = map[string]struct{}{}
	c.pendingPosition = 0
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	if c.backupTimer != nil {
		c.backupTimer.Stop()
	}
	if c.revealTimer != nil {
		c.revealTimer.Stop()
	}
	c.mu.Unlock()

	if c.surface != nil {
		c.surface.SetTransitionsDisabled(false)
	}
	// One final authoritative application covers any drift introduced while
	// elements were revealing.
	if snap != nil {
		c.camera.SetExplicitTransform(snap.Viewport.Sanitize(), true)
	}
	c.flags.SetRestoring(false)
	if c.bus != nil {
		c.bus.Publish(events.WorkspaceStateRestored, projectID)
	}
	if c.OnSettled != nil {
		c.OnSettled()
	}
}
