package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskcanvas/internal/apiclient"
	"taskcanvas/internal/model"
	"taskcanvas/internal/session"
)

type pane int

const (
	paneProjects pane = iota
	paneTasks
	paneNewProject
)

type projectsLoadedMsg []model.Project
type tasksLoadedMsg struct {
	projectID string
	tasks     []model.Task
}
type opDoneMsg struct{ err error }
type errMsg struct{ err error }

type appModel struct {
	client *apiclient.Client
	sess   *session.Session

	width, height int
	focus         pane

	projects    []model.Project
	projCursor  int
	selectedPID string

	rows       []taskRow
	taskCursor int

	input   textinput.Model
	spin    spinner.Model
	busy    bool
	status  string
	lastErr error
}

func newAppModel(client *apiclient.Client, sess *session.Session) appModel {
	in := textinput.New()
	in.Placeholder = "project name"
	in.CharLimit = 120

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return appModel{client: client, sess: sess, input: in, spin: sp}
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.loadProjects(), m.spin.Tick)
}

func (m appModel) loadProjects() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		projects, err := client.ListProjects(ctx)
		if err != nil {
			return errMsg{err}
		}
		return projectsLoadedMsg(projects)
	}
}

// openProject runs the full restore-and-select sequence so a revisited
// project comes back with its saved camera and selection.
func (m appModel) openProject(projectID string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := sess.OpenProject(ctx, projectID, false); err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{projectID: projectID, tasks: sess.Workspace.State().Tasks}
	}
}

func (m appModel) loadTasks(projectID string) tea.Cmd {
	client, sess := m.client, m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		tasks, err := client.ListTasks(ctx, projectID)
		if err != nil {
			return errMsg{err}
		}
		sess.Workspace.UpsertTasks(tasks)
		return tasksLoadedMsg{projectID: projectID, tasks: tasks}
	}
}

func (m appModel) runOp(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return opDoneMsg{err: fn(ctx)}
	}
}

// rememberSelection mirrors the cursor into the workspace so the selected
// task survives a restart.
func (m appModel) rememberSelection() {
	if t := m.selectedTask(); t != nil {
		m.sess.Workspace.SelectTask(t.ID)
	}
}

func (m appModel) selectedTask() *model.Task {
	if m.focus != paneTasks || m.taskCursor < 0 || m.taskCursor >= len(m.rows) {
		return nil
	}
	t := m.rows[m.taskCursor].Task
	return &t
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case projectsLoadedMsg:
		m.projects = msg
		if m.projCursor >= len(m.projects) {
			m.projCursor = 0
		}
		return m, nil

	case tasksLoadedMsg:
		if msg.projectID == m.selectedPID {
			m.rows = flattenTasks(msg.tasks)
			if sel := m.sess.Workspace.State().SelectedTaskID; sel != "" {
				for i, row := range m.rows {
					if row.Task.ID == sel {
						m.taskCursor = i
						break
					}
				}
			}
			if m.taskCursor >= len(m.rows) {
				m.taskCursor = 0
			}
		}
		return m, nil

	case opDoneMsg:
		m.busy = false
		m.lastErr = msg.err
		if msg.err == nil {
			m.status = "done"
		}
		cmds := []tea.Cmd{m.loadProjects()}
		if m.selectedPID != "" {
			cmds = append(cmds, m.loadTasks(m.selectedPID))
		}
		return m, tea.Batch(cmds...)

	case errMsg:
		m.lastErr = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.focus == paneNewProject {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focus == paneNewProject {
		switch msg.String() {
		case "esc":
			m.focus = paneProjects
			m.input.Blur()
			return m, nil
		case "enter":
			name := m.input.Value()
			m.focus = paneProjects
			m.input.Blur()
			m.input.SetValue("")
			if name == "" {
				return m, nil
			}
			m.busy = true
			m.status = "creating project"
			client := m.client
			return m, m.runOp(func(ctx context.Context) error {
				_, err := client.CreateProject(ctx, name, "")
				return err
			})
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		if m.focus == paneProjects {
			m.focus = paneTasks
		} else {
			m.focus = paneProjects
		}
		return m, nil
	case "n":
		m.focus = paneNewProject
		m.input.Focus()
		return m, textinput.Blink
	case "up", "k":
		if m.focus == paneProjects && m.projCursor > 0 {
			m.projCursor--
		}
		if m.focus == paneTasks && m.taskCursor > 0 {
			m.taskCursor--
			m.rememberSelection()
		}
		return m, nil
	case "down", "j":
		if m.focus == paneProjects && m.projCursor < len(m.projects)-1 {
			m.projCursor++
		}
		if m.focus == paneTasks && m.taskCursor < len(m.rows)-1 {
			m.taskCursor++
			m.rememberSelection()
		}
		return m, nil
	case "enter":
		if m.focus == paneProjects && m.projCursor < len(m.projects) {
			m.selectedPID = m.projects[m.projCursor].ID
			m.focus = paneTasks
			m.taskCursor = 0
			return m, m.openProject(m.selectedPID)
		}
		return m, nil
	case "s":
		if t := m.selectedTask(); t != nil && !m.busy {
			m.busy = true
			m.status = "splitting " + t.Name
			client, id := m.client, t.ID
			return m, m.runOp(func(ctx context.Context) error {
				_, err := client.SplitTask(ctx, id)
				return err
			})
		}
		return m, nil
	case "r":
		if t := m.selectedTask(); t != nil && !m.busy {
			m.busy = true
			m.status = "regenerating " + t.Name
			client, id := m.client, t.ID
			return m, m.runOp(func(ctx context.Context) error {
				_, err := client.RegenerateTaskAI(ctx, id, false)
				return err
			})
		}
		return m, nil
	case "d":
		if t := m.selectedTask(); t != nil && !m.busy {
			m.busy = true
			m.status = "deleting " + t.Name
			client, id := m.client, t.ID
			return m, m.runOp(func(ctx context.Context) error {
				_, err := client.DeleteTaskOp(ctx, id)
				return err
			})
		}
		return m, nil
	}
	return m, nil
}

func (m appModel) View() string {
	if m.width == 0 {
		return "loading..."
	}
	left := m.viewProjects(m.width/3 - 2)
	right := m.viewTasks(m.width - m.width/3 - 2)
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)

	statusLine := mutedStyle.Render("n new · enter open · s split · r regenerate · d delete · q quit")
	if m.busy {
		statusLine = m.spin.View() + " " + m.status
	}
	if m.lastErr != nil {
		statusLine = errStyle.Render(fmt.Sprintf("error: %v", m.lastErr))
	}
	if m.focus == paneNewProject {
		statusLine = "new project: " + m.input.View()
	}
	return body + "\n" + statusLine
}

func (m appModel) viewProjects(width int) string {
	out := titleStyle.Render("Projects") + "\n"
	for i, p := range m.projects {
		row := renderRow(taskRow{Task: model.Task{Name: p.Name}}, m.focus == paneProjects && i == m.projCursor, width)
		out += row + "\n"
	}
	if len(m.projects) == 0 {
		out += mutedStyle.Render("(none — press n)") + "\n"
	}
	return lipgloss.NewStyle().Width(width).Render(out)
}

func (m appModel) viewTasks(width int) string {
	out := titleStyle.Render("Tasks") + "\n"
	for i, row := range m.rows {
		out += renderRow(row, m.focus == paneTasks && i == m.taskCursor, width) + "\n"
	}
	if len(m.rows) == 0 {
		out += mutedStyle.Render("(select a project)") + "\n"
	}
	if t := m.selectedTask(); t != nil && t.Description != "" {
		out += "\n" + renderMarkdown(t.Description, width)
	}
	return lipgloss.NewStyle().Width(width).Render(out)
}
