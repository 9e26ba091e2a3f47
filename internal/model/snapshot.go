package model

import "time"

// UIState stores small ancillary UI state carried with a workspace snapshot.
type UIState struct {
	ProjectListScroll float64 `json:"projectListScrollPosition,omitempty"`
}

// WorkspaceSnapshot is the persisted per-user, per-project workspace state used
// to restore the canvas after a reload or a project switch.
//
// Timestamp reflects the last write and drives both expiry and "most recent
// across known projects" selection. UserID partitions storage: a snapshot saved
// for one user must never be applied to another.
type WorkspaceSnapshot struct {
	Version int `json:"version"`

	ProjectID      string `json:"projectId"`
	SelectedTaskID string `json:"selectedTaskId,omitempty"`

	Viewport         ViewportState          `json:"viewport"`
	TaskVisualStates map[string]VisualState `json:"taskVisualStates"`
	UIState          UIState                `json:"uiState"`

	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId,omitempty"`
}

// RestorationPhase sequences the restore of a saved camera position before any
// content becomes visible. Transitions are strictly forward-only, with a
// watchdog-forced jump to complete from any intermediate phase.
type RestorationPhase string

const (
	PhaseIdle        RestorationPhase = "idle"
	PhaseLoading     RestorationPhase = "loading"
	PhasePositioning RestorationPhase = "positioning"
	PhaseRevealing   RestorationPhase = "revealing"
	PhaseComplete    RestorationPhase = "complete"
)

// order returns the forward position of a phase. Unknown phases sort first.
func (p RestorationPhase) order() int {
	switch p {
	case PhaseIdle:
		return 0
	case PhaseLoading:
		return 1
	case PhasePositioning:
		return 2
	case PhaseRevealing:
		return 3
	case PhaseComplete:
		return 4
	}
	return -1
}

// Before reports whether p comes strictly before q in the forward order.
func (p RestorationPhase) Before(q RestorationPhase) bool {
	return p.order() < q.order()
}
