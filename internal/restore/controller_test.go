package restore

import (
	"testing"
	"time"

	"taskcanvas/internal/events"
	"taskcanvas/internal/model"
	"taskcanvas/internal/sched"
	"taskcanvas/internal/uiflags"
)

type fakeCamera struct {
	restoration []model.ViewportState
	explicit    []model.ViewportState
	locks       []time.Duration
}

func (f *fakeCamera) SetRestorationTransform(t model.ViewportState) {
	f.restoration = append(f.restoration, t)
}

func (f *fakeCamera) SetExplicitTransform(t model.ViewportState, override bool) bool {
	f.explicit = append(f.explicit, t)
	return true
}

func (f *fakeCamera) Lock(d time.Duration) { f.locks = append(f.locks, d) }

type fakeSurface struct {
	transitionsDisabled bool
	reveals             map[string]time.Duration
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{reveals: map[string]time.Duration{}}
}

func (f *fakeSurface) ApplyTransform(model.ViewportState) {}

func (f *fakeSurface) SetTransitionsDisabled(d bool) { f.transitionsDisabled = d }

func (f *fakeSurface) RevealElement(id string, delay time.Duration) { f.reveals[id] = delay }

type fakeLoader struct {
	snap *model.WorkspaceSnapshot
}

func (f *fakeLoader) Load(projectID string) *model.WorkspaceSnapshot { return f.snap }

func testSnapshot() *model.WorkspaceSnapshot {
	return &model.WorkspaceSnapshot{
		Version:   1,
		ProjectID: "p1",
		Viewport:  model.ViewportState{Scale: 2, Translate: model.Translate{X: 5, Y: 5}},
	}
}

func newTestController(snap *model.WorkspaceSnapshot) (*Controller, *fakeCamera, *fakeSurface, *sched.Manual, *events.Bus) {
	clock := sched.NewManual(time.Unix(1_000_000, 0))
	camera := &fakeCamera{}
	surface := newFakeSurface()
	bus := events.NewBus()
	c := NewController(&fakeLoader{snap: snap}, camera, surface, uiflags.New(), bus, clock, nil)
	return c, camera, surface, clock, bus
}

func TestFullSequence(t *testing.T) {
	t.Parallel()

	c, camera, surface, _, _ := newTestController(testSnapshot())

	c.Begin("p1")
	if c.Phase() != model.PhaseLoading {
		t.Fatalf("phase = %s, want loading", c.Phase())
	}
	if c.Snapshot() == nil {
		t.Fatal("snapshot not pre-loaded during loading phase")
	}

	c.TrackRestorableElement("a")
	c.TrackRestorableElement("b")

	c.BeginPositioning()
	if c.Phase() != model.PhasePositioning {
		t.Fatalf("phase = %s, want positioning", c.Phase())
	}
	if !surface.transitionsDisabled {
		t.Fatal("transitions not disabled during positioning")
	}
	if len(camera.restoration) != 1 || len(camera.explicit) == 0 {
		t.Fatal("saved transform not applied before reveal")
	}

	c.MarkElementPositioned("a")
	if c.Phase() != model.PhasePositioning {
		t.Fatal("advanced to revealing with elements still pending")
	}
	c.MarkElementPositioned("b")
	if c.Phase() != model.PhaseRevealing {
		t.Fatalf("phase = %s, want revealing", c.Phase())
	}
	if len(camera.locks) != 1 {
		t.Fatal("camera not locked before reveal")
	}
	if len(surface.reveals) != 2 {
		t.Fatalf("reveals = %v, want both elements", surface.reveals)
	}

	c.NotifyElementRevealed("a")
	c.NotifyElementRevealed("b")
	if c.Phase() != model.PhaseComplete {
		t.Fatalf("phase = %s, want complete", c.Phase())
	}
	if surface.transitionsDisabled {
		t.Fatal("transitions still disabled after completion")
	}
	// Final authoritative re-application covers drift during reveal.
	if last := camera.explicit[len(camera.explicit)-1]; last.Scale != 2 {
		t.Fatalf("final transform not re-applied: %#v", last)
	}
}

func TestZeroElements_BackupTimerAdvances(t *testing.T) {
	t.Parallel()

	c, _, _, clock, _ := newTestController(testSnapshot())
	c.Begin("p1")
	c.BeginPositioning()

	clock.Advance(100 * time.Millisecond)

	if c.Phase() != model.PhaseComplete {
		t.Fatalf("phase = %s, want complete (no elements to reveal)", c.Phase())
	}
}

func TestRevealFallbackTimer(t *testing.T) {
	t.Parallel()

	c, _, _, clock, _ := newTestController(testSnapshot())
	c.Begin("p1")
	c.TrackRestorableElement("a")
	c.BeginPositioning()
	c.MarkElementPositioned("a")

	if c.Phase() != model.PhaseRevealing {
		t.Fatalf("phase = %s, want revealing", c.Phase())
	}
	// "a" never reports transition-end; the 3s fallback must finish the job.
	clock.Advance(4 * time.Second)
	if c.Phase() != model.PhaseComplete {
		t.Fatalf("phase = %s, want complete", c.Phase())
	}
}

func TestWatchdogForcesCompletion(t *testing.T) {
	t.Parallel()

	c, _, _, clock, _ := newTestController(testSnapshot())
	c.Begin("p1")
	// Stall in loading: the DOM never appears.
	clock.Advance(11 * time.Second)

	if c.Phase() != model.PhaseComplete {
		t.Fatalf("phase = %s, want complete after watchdog", c.Phase())
	}
}

func TestForwardOnlyGuards(t *testing.T) {
	t.Parallel()

	c, camera, _, _, _ := newTestController(testSnapshot())

	// Positioning before loading is rejected.
	c.BeginPositioning()
	if c.Phase() != model.PhaseIdle {
		t.Fatalf("phase = %s, want idle", c.Phase())
	}
	if len(camera.explicit) != 0 {
		t.Fatal("transform applied from an illegal transition")
	}

	c.Begin("p1")
	c.Begin("p1") // double begin is a no-op
	if c.Phase() != model.PhaseLoading {
		t.Fatalf("phase = %s, want loading", c.Phase())
	}

	// Tracking is ignored once complete.
	c.ForceComplete()
	c.TrackRestorableElement("late")
	if n := len(c.pendingReveal); n != 0 {
		t.Fatalf("late element tracked after completion: %d", n)
	}
}

func TestEventsAndSettledCallback(t *testing.T) {
	t.Parallel()

	c, _, _, _, bus := newTestController(testSnapshot())
	phases, cancelPhases := bus.Subscribe(events.RestorationPhaseChanged)
	defer cancelPhases()
	restored, cancelRestored := bus.Subscribe(events.WorkspaceStateRestored)
	defer cancelRestored()

	settled := false
	c.OnSettled = func() { settled = true }

	c.Begin("p1")
	c.BeginPositioning()
	c.ForceComplete()

	var seen []model.RestorationPhase
	for len(phases) > 0 {
		ev := <-phases
		seen = append(seen, ev.Payload.(model.RestorationPhase))
	}
	want := []model.RestorationPhase{model.PhaseLoading, model.PhasePositioning, model.PhaseComplete}
	if len(seen) != len(want) {
		t.Fatalf("phase events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("phase events = %v, want %v", seen, want)
		}
	}

	ev := <-restored
	if ev.Payload.(string) != "p1" {
		t.Fatalf("restored payload = %v", ev.Payload)
	}
	if !settled {
		t.Fatal("OnSettled not called")
	}
}

func TestNoSnapshotStillCompletes(t *testing.T) {
	t.Parallel()

	c, camera, _, clock, _ := newTestController(nil)
	c.Begin("p1")
	c.BeginPositioning()
	clock.Advance(100 * time.Millisecond)

	if c.Phase() != model.PhaseComplete {
		t.Fatalf("phase = %s, want complete", c.Phase())
	}
	if len(camera.restoration) != 0 {
		t.Fatal("restoration transform applied without a snapshot")
	}
}
