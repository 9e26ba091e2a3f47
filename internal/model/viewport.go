package model

import (
	"fmt"
	"math"
)

// Translate is the pan component of the camera transform.
type Translate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ViewportState is the camera state (zoom scale + pan translation) applied to
// the visual canvas. The viewport coordinator is its single logical owner.
type ViewportState struct {
	Scale     float64   `json:"scale"`
	Translate Translate `json:"translate"`
}

// DefaultViewport is the identity camera: scale 1, no translation.
func DefaultViewport() ViewportState {
	return ViewportState{Scale: 1}
}

// Sanitize replaces NaN/Inf numeric fields with safe defaults (scale=1,
// translate 0,0). A corrupted snapshot must never produce an unusable camera.
func (v ViewportState) Sanitize() ViewportState {
	if math.IsNaN(v.Scale) || math.IsInf(v.Scale, 0) || v.Scale == 0 {
		v.Scale = 1
	}
	if math.IsNaN(v.Translate.X) || math.IsInf(v.Translate.X, 0) {
		v.Translate.X = 0
	}
	if math.IsNaN(v.Translate.Y) || math.IsInf(v.Translate.Y, 0) {
		v.Translate.Y = 0
	}
	return v
}

// TransformString renders the transform the way the canvas consumes it.
func (v ViewportState) TransformString() string {
	return fmt.Sprintf("translate(%g,%g) scale(%g)", v.Translate.X, v.Translate.Y, v.Scale)
}
