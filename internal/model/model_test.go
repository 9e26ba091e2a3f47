package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewportSanitize(t *testing.T) {
	t.Parallel()

	v := ViewportState{Scale: math.NaN(), Translate: Translate{X: math.Inf(1), Y: 5}}.Sanitize()
	assert.Equal(t, 1.0, v.Scale)
	assert.Equal(t, 0.0, v.Translate.X)
	assert.Equal(t, 5.0, v.Translate.Y)

	// Zero scale is as unusable as NaN.
	assert.Equal(t, 1.0, ViewportState{}.Sanitize().Scale)

	// A valid transform passes through untouched.
	ok := ViewportState{Scale: 2, Translate: Translate{X: -3, Y: 4}}
	assert.Equal(t, ok, ok.Sanitize())
}

func TestViewportTransformString(t *testing.T) {
	t.Parallel()
	v := ViewportState{Scale: 1.5, Translate: Translate{X: 10, Y: -20}}
	assert.Equal(t, "translate(10,-20) scale(1.5)", v.TransformString())
}

func TestVisualStateOpacity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.0, VisualActive.Opacity())
	assert.Equal(t, 0.4, VisualSemiTransparent.Opacity())
	assert.Equal(t, 0.0, VisualHidden.Opacity())
	assert.Equal(t, 0.0, VisualState("bogus").Opacity())

	assert.True(t, VisualActive.Valid())
	assert.False(t, VisualState("bogus").Valid())
}

func TestRestorationPhaseOrdering(t *testing.T) {
	t.Parallel()
	assert.True(t, PhaseIdle.Before(PhaseLoading))
	assert.True(t, PhaseLoading.Before(PhasePositioning))
	assert.True(t, PhasePositioning.Before(PhaseRevealing))
	assert.True(t, PhaseRevealing.Before(PhaseComplete))
	assert.False(t, PhaseComplete.Before(PhaseIdle))
}

func TestWorkspaceSnapshotJSONShape(t *testing.T) {
	t.Parallel()

	snap := WorkspaceSnapshot{
		Version:        1,
		ProjectID:      "p1",
		SelectedTaskID: "t1",
		Viewport:       ViewportState{Scale: 2, Translate: Translate{X: 1, Y: 2}},
		TaskVisualStates: map[string]VisualState{
			"t1": VisualActive,
		},
		UserID: "alice",
	}
	b, err := json.Marshal(snap)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, key := range []string{"version", "projectId", "selectedTaskId", "viewport", "taskVisualStates", "uiState", "timestamp", "userId"} {
		assert.Contains(t, raw, key)
	}
	vp := raw["viewport"].(map[string]any)
	assert.Equal(t, 2.0, vp["scale"])
}

func TestTaskHasParent(t *testing.T) {
	t.Parallel()
	assert.False(t, Task{}.HasParent())
	empty := ""
	assert.False(t, Task{ParentID: &empty}.HasParent())
	pid := "t1"
	assert.True(t, Task{ParentID: &pid}.HasParent())
}
