package model

// VisualState is a task's display mode on the canvas. It focuses attention on
// the expanded subtree: everything not referenced by the current expansion is
// hidden.
type VisualState string

const (
	VisualActive          VisualState = "active"
	VisualSemiTransparent VisualState = "semi-transparent"
	VisualHidden          VisualState = "hidden"
)

// Valid reports whether v is one of the known visual states.
func (v VisualState) Valid() bool {
	switch v {
	case VisualActive, VisualSemiTransparent, VisualHidden:
		return true
	}
	return false
}

// Opacity maps the state to the opacity applied on the render surface.
func (v VisualState) Opacity() float64 {
	switch v {
	case VisualActive:
		return 1
	case VisualSemiTransparent:
		return 0.4
	default:
		return 0
	}
}
