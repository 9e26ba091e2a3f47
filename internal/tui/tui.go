// Package tui is the terminal workspace viewer: browse projects, walk the
// task tree, and run split / regenerate / delete against a running server.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"taskcanvas/internal/apiclient"
	"taskcanvas/internal/session"
)

func Run(client *apiclient.Client) error {
	sess := session.New(session.Options{Client: client})
	defer sess.Close()

	m := newAppModel(client, sess)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
