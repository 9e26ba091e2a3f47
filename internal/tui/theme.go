package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Adaptive colors keep the viewer readable on light and dark terminals.
func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted    = ac("240", "243")
	colorAccent   = ac("27", "62")
	colorSelected = ac("#e9e9e9", "#262626")
	colorError    = ac("124", "203")

	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	errStyle   = lipgloss.NewStyle().Foreground(colorError)
	selStyle   = lipgloss.NewStyle().Background(colorSelected).Bold(true)
	countStyle = lipgloss.NewStyle().Foreground(colorAccent)
)

func init() {
	// Pin the profile up front so the first render does not block on
	// terminal capability queries.
	lipgloss.SetColorProfile(termenv.ColorProfile())
}
