// Package viewport owns the camera transform. Five call sites want to set the
// camera (zoom gestures, programmatic centering, state restoration, project
// switch, first paint); without one arbiter they visibly fight. The
// Coordinator encodes a strict priority order — user gesture > restoration in
// progress > programmatic default — using a time-boxed lock with a fixed decay
// so a stuck lock can never block interaction for good.
package viewport

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"taskcanvas/internal/model"
	"taskcanvas/internal/sched"
	"taskcanvas/internal/uiflags"
)

const (
	// DefaultLockDuration guards a freshly applied transform.
	DefaultLockDuration = 5 * time.Second
	// ProjectSwitchLockDuration is shorter: switching projects should feel
	// snappy once the restored camera is in place.
	ProjectSwitchLockDuration = 3 * time.Second
	// NewProjectLockDuration is longer: the first paint of a newly created
	// project has the most layout churn to ride out.
	NewProjectLockDuration = 8 * time.Second

	// restorationFreshness bounds how old a remembered restoration transform
	// may be and still get re-applied on unlock.
	restorationFreshness = 10 * time.Second

	// relaxCap is the latest point at which interaction blocking is lifted,
	// even under a long lock. The visual transform stays fixed; only the
	// gesture-blocking flag is dropped.
	relaxCap   = 1200 * time.Millisecond
	relaxSlack = 200 * time.Millisecond
)

// Surface is the drawing target the coordinator writes transforms to. Writes
// go to the surface directly, not only through change notification, so there
// is never a frame showing a stale camera.
type Surface interface {
	ApplyTransform(model.ViewportState)
}

type Coordinator struct {
	surface Surface
	flags   *uiflags.Flags
	clock   sched.Clock
	log     *zap.Logger

	mu sync.Mutex

	explicit       model.ViewportState
	initial        model.ViewportState
	restoration    *model.ViewportState
	restorationAt  time.Time
	locked         bool
	lockExpiry     time.Time
	lockDuration   time.Duration
	blocksGestures bool

	unlockTimer sched.Timer
	relaxTimer  sched.Timer
}

func NewCoordinator(surface Surface, flags *uiflags.Flags, clock sched.Clock, log *zap.Logger) *Coordinator {
	if clock == nil {
		clock = sched.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if flags == nil {
		flags = uiflags.New()
	}
	return &Coordinator{
		surface:  surface,
		flags:    flags,
		clock:    clock,
		log:      log,
		explicit: model.DefaultViewport(),
		initial:  model.DefaultViewport(),
	}
}

// Lock marks the transform locked for d and schedules the decay steps: gesture
// blocking is relaxed at min(d-200ms, 1.2s), and the lock itself expires at d.
// A real user gesture (UserGesture) force-unlocks at any point — user intent
// always wins over a timed lock.
func (c *Coordinator) Lock(d time.Duration) {
	if d <= 0 {
		d = DefaultLockDuration
	}
	c.mu.Lock()
	c.locked = true
	c.blocksGestures = true
	c.lockDuration = d
	c.lockExpiry = c.clock.Now().Add(d)

	if c.unlockTimer == nil {
		c.unlockTimer = c.clock.AfterFunc(d, c.Unlock)
	} else {
		c.unlockTimer.Reset(d)
	}

	relax := d - relaxSlack
	if relax > relaxCap {
		relax = relaxCap
	}
	if relax < 0 {
		relax = 0
	}
	if c.relaxTimer == nil {
		c.relaxTimer = c.clock.AfterFunc(relax, c.relaxInteraction)
	} else {
		c.relaxTimer.Reset(relax)
	}
	c.mu.Unlock()
}

func (c *Coordinator) relaxInteraction() {
	c.mu.Lock()
	c.blocksGestures = false
	c.mu.Unlock()
}

// Unlock is idempotent. On unlock, a fresh restoration transform (recorded
// within the last 10s) is re-applied as the authoritative position — unless a
// project is being created, in which case the new project must not inherit the
// old camera.
func (c *Coordinator) Unlock() {
	c.mu.Lock()
	if !c.locked {
		c.mu.Unlock()
		return
	}
	c.locked = false
	c.blocksGestures = false
	if c.unlockTimer != nil {
		c.unlockTimer.Stop()
	}
	if c.relaxTimer != nil {
		c.relaxTimer.Stop()
	}

	var reapply *model.ViewportState
	if c.flags.CreatingProject() {
		c.restoration = nil
	} else if c.restoration != nil && c.clock.Now().Sub(c.restorationAt) <= restorationFreshness {
		t := *c.restoration
		c.explicit = t
		reapply = &t
	}
	c.mu.Unlock()

	if reapply != nil {
		c.apply(*reapply)
	}
}

// UserGesture force-unlocks immediately. Wire this to the first real gesture
// (mousedown, wheel, touchstart, keydown, mousemove) on the canvas.
func (c *Coordinator) UserGesture() {
	c.mu.Lock()
	wasLocked := c.locked
	c.mu.Unlock()
	if wasLocked {
		c.log.Debug("viewport: user gesture force-unlocked transform")
		c.Unlock()
	}
}

// SetInitialTransform establishes the camera for a fresh render. Priority:
// during project creation the provided transform wins outright and any pending
// restoration transform is discarded; on a project switch a previously saved
// viewport overrides the provided transform (switching back to a known project
// restores where the user left off, not a re-center); otherwise the provided
// transform is used as given.
func (c *Coordinator) SetInitialTransform(t model.ViewportState, lock bool, isProjectSwitch bool) {
	t = t.Sanitize()

	c.mu.Lock()
	chosen := t
	lockDur := DefaultLockDuration
	switch {
	case c.flags.CreatingProject():
		c.restoration = nil
		lockDur = NewProjectLockDuration
	case isProjectSwitch:
		if c.restoration != nil {
			chosen = *c.restoration
		}
		lockDur = ProjectSwitchLockDuration
	}
	c.initial = chosen
	c.explicit = chosen
	c.mu.Unlock()

	c.apply(chosen)
	if lock {
		c.Lock(lockDur)
	}
}

// SetExplicitTransform is the path ordinary pan/zoom recompute takes. It is
// rejected while locked unless the caller explicitly requests the override.
// Returns whether the transform was accepted.
func (c *Coordinator) SetExplicitTransform(t model.ViewportState, override bool) bool {
	if c.IsLocked() && !override {
		return false
	}
	t = t.Sanitize()
	c.mu.Lock()
	c.explicit = t
	c.mu.Unlock()
	c.apply(t)
	return true
}

// SetRestorationTransform records the authoritative "last known good" camera.
// It always succeeds: restoration always has authority to remember, even when
// it cannot apply immediately.
func (c *Coordinator) SetRestorationTransform(t model.ViewportState) {
	t = t.Sanitize()
	c.mu.Lock()
	c.restoration = &t
	c.restorationAt = c.clock.Now()
	c.mu.Unlock()
}

// IsLocked lazily expires the lock when its recorded duration has elapsed.
func (c *Coordinator) IsLocked() bool {
	c.mu.Lock()
	if c.locked && !c.clock.Now().Before(c.lockExpiry) {
		c.mu.Unlock()
		c.Unlock()
		return false
	}
	locked := c.locked
	c.mu.Unlock()
	return locked
}

// BlocksGestures reports whether gesture handling should still be suppressed.
// This relaxes before the lock itself expires.
func (c *Coordinator) BlocksGestures() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocksGestures
}

func (c *Coordinator) ExplicitTransform() model.ViewportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.explicit
}

func (c *Coordinator) InitialTransform() model.ViewportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initial
}

// RestorationTransform returns the remembered restoration camera, if any.
func (c *Coordinator) RestorationTransform() (model.ViewportState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restoration == nil {
		return model.ViewportState{}, false
	}
	return *c.restoration, true
}

func (c *Coordinator) apply(t model.ViewportState) {
	if c.surface == nil {
		return
	}
	c.surface.ApplyTransform(t)
}
