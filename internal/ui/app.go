package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tgienger/apolo/internal/store"
	"github.com/tgienger/apolo/internal/ui/views"
)

const lastProjectKey = "last_project_id"

// Settings persists small UI preferences
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Currently active view
type View int

const (
	ViewProjects View = iota
	ViewTasks
)

type App struct {
	manager     *store.Manager
	settings    Settings
	errs        <-chan error
	currentView View
	projectList *views.ProjectListView
	taskList    *views.TaskListView
	width       int
	height      int
}

// NewApp creates the application. errs delivers background write failures
// and may be nil.
func NewApp(manager *store.Manager, settings Settings, errs <-chan error) *App {
	return &App{
		manager:     manager,
		settings:    settings,
		errs:        errs,
		currentView: ViewProjects,
		projectList: views.NewProjectListView(manager),
	}
}

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.waitForChange, a.waitForError, a.projectList.Init()}

	// Reopen the last project if it is still there
	if id, err := a.settings.GetSetting(context.Background(), lastProjectKey); err == nil && id != "" {
		if _, ok := a.manager.Project(id); ok {
			cmds = append(cmds, a.openProject(id))
		}
	}
	return tea.Batch(cmds...)
}

// waitForChange blocks until the manager's state changes
func (a *App) waitForChange() tea.Msg {
	<-a.manager.Changes()
	return views.StateChanged{}
}

func (a *App) waitForError() tea.Msg {
	if a.errs == nil {
		return nil
	}
	err, ok := <-a.errs
	if !ok {
		return nil
	}
	return views.SyncFailed{Err: err}
}

func (a *App) openProject(id string) tea.Cmd {
	a.currentView = ViewTasks
	a.taskList = views.NewTaskListView(a.manager, id)
	a.saveLastProject(a.taskList.ProjectID())

	return tea.Batch(
		a.taskList.Init(),
		func() tea.Msg {
			return tea.WindowSizeMsg{Width: a.width, Height: a.height}
		},
	)
}

// saveLastProject remembers the open project. Projects still awaiting their
// remote id are not remembered.
func (a *App) saveLastProject(id string) {
	if store.IsTempID(id) {
		return
	}
	_ = a.settings.SetSetting(context.Background(), lastProjectKey, id)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Always update project list size since it persists
		a.projectList.Update(msg)

	case views.StateChanged:
		// Both views track the state; re-arm the watcher
		a.projectList.Update(msg)
		if a.currentView == ViewTasks && a.taskList != nil {
			_, cmd := a.taskList.Update(msg)
			return a, tea.Batch(cmd, a.waitForChange)
		}
		return a, a.waitForChange

	case views.SyncFailed:
		a.projectList.Update(msg)
		if a.taskList != nil {
			a.taskList.Update(msg)
		}
		return a, a.waitForError

	case views.SelectedProject:
		return a, a.openProject(msg.ID)

	case views.BackToProjects:
		a.currentView = ViewProjects
		a.taskList = nil
		a.manager.SetActiveProject("")
		_ = a.settings.SetSetting(context.Background(), lastProjectKey, "")
		return a, tea.Batch(
			a.projectList.Init(),
			func() tea.Msg {
				return tea.WindowSizeMsg{Width: a.width, Height: a.height}
			},
		)
	}

	var cmd tea.Cmd
	switch a.currentView {
	case ViewProjects:
		_, cmd = a.projectList.Update(msg)
	case ViewTasks:
		_, cmd = a.taskList.Update(msg)
	}

	return a, cmd
}

func (a *App) View() string {
	switch a.currentView {
	case ViewTasks:
		if a.taskList != nil {
			return a.taskList.View()
		}
	}
	return a.projectList.View()
}
