package views

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/store"
	"github.com/tgienger/apolo/internal/tree"
	"github.com/tgienger/apolo/internal/ui/keys"
	"github.com/tgienger/apolo/internal/ui/styles"
)

// clamp returns val clamped between minVal and maxVal
func clamp(val, minVal, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// BackToProjects signals to go back to project list
type BackToProjects struct{}

// row is one visible line of the task tree
type row struct {
	task     models.Task
	depth    int
	parentID string
}

// flatten lists the visible tasks depth-first. Collapsed tasks hide their
// subtasks; hideDone drops completed tasks with their subtrees.
func flatten(tasks []models.Task, hideDone bool) []row {
	var rows []row
	tree.Walk(tasks, func(t models.Task, parentID string) bool {
		if hideDone && t.Status == models.StatusCompleted {
			return false
		}
		depth := 0
		if parentID != "" {
			if i := slices.IndexFunc(rows, func(r row) bool { return r.task.ID == parentID }); i >= 0 {
				depth = rows[i].depth + 1
			}
		}
		rows = append(rows, row{task: t, depth: depth, parentID: parentID})
		return t.Expanded
	})
	return rows
}

// TaskListView shows the task tree of one project
type TaskListView struct {
	manager   *store.Manager
	projectID string
	project   models.Project
	rows      []row
	styles    *styles.Styles
	keys      keys.KeyMap

	width  int
	height int

	// UI state
	cursor      int
	scrollY     int
	searchInput textinput.Model
	searching   bool
	hideDone    bool
	status      string

	// Task creation/editing
	editing      bool
	editingNew   bool
	editParentID string
	editTargetID string
	editTitle    textinput.Model
	editDesc     textarea.Model
	editTags     textinput.Model
	editFocusIdx int // 0=title, 1=desc, 2=tags, 3=save

	// Task detail view
	viewingTask    bool
	viewTaskID     string
	commentInput   textarea.Model
	commentFocused bool
	linkInput      textinput.Model
	linkFocused    bool

	// Delete confirmation
	confirmingDelete bool
	deleteTargetID   string
	deleteTargetName string

	// Notifications popup
	showingInbox bool
	inboxCursor  int

	// Help popup (shown with ? at narrow widths)
	showHelpPopup bool
}

// NewTaskListView creates a task view for a project
func NewTaskListView(manager *store.Manager, projectID string) *TaskListView {
	s := styles.NewStyles()

	search := textinput.New()
	search.Placeholder = "Search..."
	search.CharLimit = 100

	editTitle := textinput.New()
	editTitle.Placeholder = "Task title"
	editTitle.CharLimit = 200

	editDesc := textarea.New()
	editDesc.Placeholder = "Description"
	editDesc.CharLimit = 1000
	editDesc.SetWidth(50)
	editDesc.SetHeight(3)
	editDesc.ShowLineNumbers = false

	editTags := textinput.New()
	editTags.Placeholder = "tag, another tag"
	editTags.CharLimit = 200

	commentInput := textarea.New()
	commentInput.Placeholder = "Add a comment..."
	commentInput.CharLimit = 2000
	commentInput.SetWidth(50)
	commentInput.SetHeight(3)
	commentInput.ShowLineNumbers = false

	linkInput := textinput.New()
	linkInput.Placeholder = "https://..."
	linkInput.CharLimit = 500

	v := &TaskListView{
		manager:      manager,
		projectID:    projectID,
		styles:       s,
		keys:         keys.DefaultKeyMap(),
		searchInput:  search,
		editTitle:    editTitle,
		editDesc:     editDesc,
		editTags:     editTags,
		commentInput: commentInput,
		linkInput:    linkInput,
	}
	manager.SetActiveProject(projectID)
	v.refresh()
	return v
}

// Init initializes the view
func (v *TaskListView) Init() tea.Cmd {
	return nil
}

// ProjectID returns the id of the shown project
func (v *TaskListView) ProjectID() string {
	return v.projectID
}

// refresh reloads the project from the manager. It reports false when the
// project no longer exists.
func (v *TaskListView) refresh() bool {
	project, ok := v.manager.Project(v.projectID)
	if !ok {
		return false
	}
	v.project = project
	v.projectID = project.ID

	tasks := project.Tasks
	if q := strings.TrimSpace(v.searchInput.Value()); q != "" {
		tasks = tree.Search(tasks, q)
	}
	v.rows = flatten(tasks, v.hideDone)
	if v.cursor >= len(v.rows) {
		v.cursor = max(0, len(v.rows)-1)
	}
	v.ensureVisible()
	return true
}

func (v *TaskListView) selected() (row, bool) {
	if v.cursor < 0 || v.cursor >= len(v.rows) {
		return row{}, false
	}
	return v.rows[v.cursor], true
}

// selectTask moves the cursor onto id when it is visible
func (v *TaskListView) selectTask(id string) {
	if i := slices.IndexFunc(v.rows, func(r row) bool { return r.task.ID == id }); i >= 0 {
		v.cursor = i
		v.ensureVisible()
	}
}

// Update handles messages
func (v *TaskListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		// Update textarea widths dynamically based on content width
		contentWidth := styles.ContentWidth(v.width)
		inputWidth := clamp(contentWidth-10, 20, 50)
		v.editDesc.SetWidth(inputWidth)
		v.commentInput.SetWidth(inputWidth)
		return v, nil

	case StateChanged:
		if !v.refresh() {
			return v, func() tea.Msg { return BackToProjects{} }
		}
		return v, nil

	case SyncFailed:
		v.status = msg.Err.Error()
		return v, nil

	case tea.KeyMsg:
		// Handle help popup first - any key closes it
		if v.showHelpPopup {
			v.showHelpPopup = false
			return v, nil
		}

		if v.confirmingDelete {
			return v.updateConfirmDelete(msg)
		}

		if v.editing {
			return v.updateEditing(msg)
		}

		if v.viewingTask {
			return v.updateViewingTask(msg)
		}

		if v.showingInbox {
			return v.updateInbox(msg)
		}

		return v.updateNormal(msg)
	}

	return v, nil
}

func (v *TaskListView) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle search input typing first - don't process hotkeys while typing
	if v.searching {
		switch {
		case key.Matches(msg, v.keys.Back):
			v.searchInput.Reset()
			v.searchInput.Blur()
			v.searching = false
		case key.Matches(msg, v.keys.Enter):
			v.searchInput.Blur()
			v.searching = false
		default:
			var cmd tea.Cmd
			v.searchInput, cmd = v.searchInput.Update(msg)
			v.cursor = 0
			v.refresh()
			return v, cmd
		}
		v.refresh()
		return v, nil
	}

	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keys.Back):
		if v.searchInput.Value() != "" {
			v.searchInput.Reset()
			v.refresh()
			return v, nil
		}
		return v, func() tea.Msg { return BackToProjects{} }

	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor--
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.cursor < len(v.rows)-1 {
			v.cursor++
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		if r, ok := v.selected(); ok {
			v.viewingTask = true
			v.viewTaskID = r.task.ID
		}
		return v, nil

	case key.Matches(msg, v.keys.Edit):
		if r, ok := v.selected(); ok {
			v.startEditTask(r.task)
			return v, textinput.Blink
		}
		return v, nil

	case key.Matches(msg, v.keys.New):
		parentID := ""
		if r, ok := v.selected(); ok {
			parentID = r.parentID
		}
		v.startNewTask(parentID)
		return v, textinput.Blink

	case key.Matches(msg, v.keys.NewSubtask):
		if r, ok := v.selected(); ok {
			v.startNewTask(r.task.ID)
			return v, textinput.Blink
		}
		return v, nil

	case key.Matches(msg, v.keys.Delete):
		if r, ok := v.selected(); ok {
			v.confirmingDelete = true
			v.deleteTargetID = r.task.ID
			v.deleteTargetName = r.task.Title
		}
		return v, nil

	case key.Matches(msg, v.keys.Toggle):
		if r, ok := v.selected(); ok {
			v.toggleStatus(r.task)
		}
		return v, nil

	case key.Matches(msg, v.keys.Expand):
		if r, ok := v.selected(); ok && len(r.task.Subtasks) > 0 {
			v.manager.ToggleExpand(r.task.ID)
			v.refresh()
		}
		return v, nil

	case key.Matches(msg, v.keys.MoveUp):
		v.moveSelected(-1)
		return v, nil

	case key.Matches(msg, v.keys.MoveDown):
		v.moveSelected(1)
		return v, nil

	case key.Matches(msg, v.keys.Indent):
		v.indentSelected()
		return v, nil

	case key.Matches(msg, v.keys.Outdent):
		v.outdentSelected()
		return v, nil

	case key.Matches(msg, v.keys.Search):
		v.searching = true
		v.searchInput.Focus()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.ShowCompleted):
		v.hideDone = !v.hideDone
		v.cursor = 0
		v.scrollY = 0
		v.refresh()
		return v, nil

	case key.Matches(msg, v.keys.Notifications):
		v.showingInbox = true
		v.inboxCursor = 0
		return v, nil

	case key.Matches(msg, v.keys.Reload):
		return v, v.reload

	case key.Matches(msg, v.keys.Help):
		v.showHelpPopup = true
		return v, nil
	}

	return v, nil
}

func (v *TaskListView) reload() tea.Msg {
	if err := v.manager.Reload(context.Background()); err != nil {
		return SyncFailed{Err: err}
	}
	return StateChanged{}
}

// toggleStatus flips a task's status and records the change in its history
func (v *TaskListView) toggleStatus(t models.Task) {
	if !v.manager.ToggleTaskStatus(t.ID).Applied() {
		return
	}
	note := "Marked as completed"
	if t.Status == models.StatusCompleted {
		note = "Marked as pending"
	}
	v.manager.AddActivity(t.ID, note, models.ActivityStatusChange)
	v.refresh()
}

// reorderable reports whether the tree is shown unfiltered, so that visible
// neighbours are real siblings
func (v *TaskListView) reorderable() bool {
	return v.searchInput.Value() == "" && !v.hideDone
}

// siblings returns the sibling list of the selected task and its index in it
func (v *TaskListView) siblings() ([]models.Task, int, bool) {
	r, ok := v.selected()
	if !ok {
		return nil, 0, false
	}
	parentID, index, ok := tree.Locate(v.project.Tasks, r.task.ID)
	if !ok {
		return nil, 0, false
	}
	siblings, ok := tree.Siblings(v.project.Tasks, parentID)
	return siblings, index, ok
}

// moveSelected moves the selected task past its previous or next sibling
func (v *TaskListView) moveSelected(dir int) {
	if !v.reorderable() {
		return
	}
	siblings, index, ok := v.siblings()
	if !ok {
		return
	}
	to := index + dir
	if to < 0 || to >= len(siblings) {
		return
	}
	placement := models.PlaceBefore
	if dir > 0 {
		placement = models.PlaceAfter
	}
	id := siblings[index].ID
	v.manager.MoveTask(id, siblings[to].ID, placement)
	v.refresh()
	v.selectTask(id)
}

// indentSelected makes the selected task a subtask of its previous sibling
func (v *TaskListView) indentSelected() {
	if !v.reorderable() {
		return
	}
	siblings, index, ok := v.siblings()
	if !ok || index == 0 {
		return
	}
	id, target := siblings[index].ID, siblings[index-1].ID
	if !v.manager.MoveTask(id, target, models.PlaceInside).Applied() {
		return
	}
	if t, ok := v.manager.Task(target); ok && !t.Expanded {
		v.manager.ToggleExpand(target)
	}
	v.refresh()
	v.selectTask(id)
}

// outdentSelected moves the selected task out of its parent, right after it
func (v *TaskListView) outdentSelected() {
	if !v.reorderable() {
		return
	}
	r, ok := v.selected()
	if !ok || r.parentID == "" {
		return
	}
	v.manager.MoveTask(r.task.ID, r.parentID, models.PlaceAfter)
	v.refresh()
	v.selectTask(r.task.ID)
}

func (v *TaskListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.manager.DeleteTask(v.deleteTargetID)
		v.confirmingDelete = false
		if v.viewTaskID == v.deleteTargetID {
			v.viewingTask = false
		}
		v.refresh()
		return v, nil
	case "n", "N", "esc":
		v.confirmingDelete = false
		return v, nil
	}
	return v, nil
}

func (v *TaskListView) updateInbox(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	notifications := v.manager.Notifications()
	switch {
	case key.Matches(msg, v.keys.Back), key.Matches(msg, v.keys.Notifications):
		v.showingInbox = false
	case key.Matches(msg, v.keys.Up):
		if v.inboxCursor > 0 {
			v.inboxCursor--
		}
	case key.Matches(msg, v.keys.Down):
		if v.inboxCursor < len(notifications)-1 {
			v.inboxCursor++
		}
	case key.Matches(msg, v.keys.Enter), key.Matches(msg, v.keys.Toggle):
		if v.inboxCursor < len(notifications) {
			v.manager.MarkNotificationRead(notifications[v.inboxCursor].ID)
		}
	}
	return v, nil
}

func (v *TaskListView) updateViewingTask(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if v.commentFocused {
		switch {
		case key.Matches(msg, v.keys.Back):
			v.commentFocused = false
			v.commentInput.Blur()
			return v, nil
		case key.Matches(msg, v.keys.Save):
			v.submitComment()
			return v, nil
		}
		var cmd tea.Cmd
		v.commentInput, cmd = v.commentInput.Update(msg)
		return v, cmd
	}

	if v.linkFocused {
		switch {
		case key.Matches(msg, v.keys.Back):
			v.linkFocused = false
			v.linkInput.Blur()
			return v, nil
		case key.Matches(msg, v.keys.Enter), key.Matches(msg, v.keys.Save):
			v.submitLink()
			return v, nil
		}
		var cmd tea.Cmd
		v.linkInput, cmd = v.linkInput.Update(msg)
		return v, cmd
	}

	task, ok := v.manager.Task(v.viewTaskID)
	if !ok {
		v.viewingTask = false
		return v, nil
	}

	switch {
	case key.Matches(msg, v.keys.Back):
		v.viewingTask = false
		return v, nil

	case key.Matches(msg, v.keys.Edit):
		v.viewingTask = false
		v.startEditTask(task)
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Toggle):
		v.toggleStatus(task)
		return v, nil

	case key.Matches(msg, v.keys.Delete):
		v.confirmingDelete = true
		v.deleteTargetID = task.ID
		v.deleteTargetName = task.Title
		return v, nil

	case key.Matches(msg, v.keys.Comment):
		v.commentFocused = true
		v.commentInput.Reset()
		v.commentInput.Focus()
		return v, textarea.Blink

	case key.Matches(msg, v.keys.Link):
		v.linkFocused = true
		v.linkInput.Reset()
		v.linkInput.Focus()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit
	}

	return v, nil
}

func (v *TaskListView) submitComment() {
	content := strings.TrimSpace(v.commentInput.Value())
	if content == "" {
		return
	}
	v.manager.AddActivity(v.viewTaskID, content, models.ActivityComment)
	v.commentInput.Reset()
	v.commentInput.Blur()
	v.commentFocused = false
}

func (v *TaskListView) submitLink() {
	url := strings.TrimSpace(v.linkInput.Value())
	if url == "" {
		return
	}
	v.manager.AddAttachment(v.viewTaskID, models.AttachmentLink, url, url)
	v.linkInput.Reset()
	v.linkInput.Blur()
	v.linkFocused = false
}

func (v *TaskListView) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.editing = false
		return v, nil

	case key.Matches(msg, v.keys.Save):
		v.saveTask()
		return v, nil

	case msg.String() == "shift+tab":
		v.editFocusIdx = (v.editFocusIdx + 3) % 4
		v.updateEditFocus()
		return v, nil

	case key.Matches(msg, v.keys.Tab):
		v.editFocusIdx = (v.editFocusIdx + 1) % 4
		v.updateEditFocus()
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		switch v.editFocusIdx {
		case 1:
			// newline in the description
		case 3:
			v.saveTask()
			return v, nil
		default:
			v.editFocusIdx++
			v.updateEditFocus()
			return v, nil
		}
	}

	var cmd tea.Cmd
	switch v.editFocusIdx {
	case 0:
		v.editTitle, cmd = v.editTitle.Update(msg)
	case 1:
		v.editDesc, cmd = v.editDesc.Update(msg)
	case 2:
		v.editTags, cmd = v.editTags.Update(msg)
	}
	return v, cmd
}

func (v *TaskListView) ensureVisible() {
	visible := v.visibleRows()
	if v.cursor < v.scrollY {
		v.scrollY = v.cursor
	}
	if v.cursor >= v.scrollY+visible {
		v.scrollY = v.cursor - visible + 1
	}
	v.scrollY = max(0, v.scrollY)
}

func (v *TaskListView) visibleRows() int {
	return max(v.height-10, 1)
}

func (v *TaskListView) startNewTask(parentID string) {
	v.editing = true
	v.editingNew = true
	v.editParentID = parentID
	v.editTargetID = ""
	v.editTitle.Reset()
	v.editDesc.Reset()
	v.editTags.Reset()
	v.editFocusIdx = 0
	v.updateEditFocus()
}

func (v *TaskListView) startEditTask(task models.Task) {
	v.editing = true
	v.editingNew = false
	v.editParentID = ""
	v.editTargetID = task.ID
	v.editTitle.SetValue(task.Title)
	v.editDesc.SetValue(task.Description)
	v.editTags.SetValue(strings.Join(task.Tags, ", "))
	v.editFocusIdx = 0
	v.updateEditFocus()
}

func (v *TaskListView) updateEditFocus() {
	v.editTitle.Blur()
	v.editDesc.Blur()
	v.editTags.Blur()
	switch v.editFocusIdx {
	case 0:
		v.editTitle.Focus()
	case 1:
		v.editDesc.Focus()
	case 2:
		v.editTags.Focus()
	}
}

// parseTags splits a comma separated tag list, dropping blanks and repeats
func parseTags(s string) []string {
	tags := []string{}
	for _, part := range strings.Split(s, ",") {
		tag := strings.TrimSpace(part)
		if tag != "" && !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (v *TaskListView) saveTask() {
	title := strings.TrimSpace(v.editTitle.Value())
	if title == "" {
		return
	}
	desc := strings.TrimSpace(v.editDesc.Value())
	tags := parseTags(v.editTags.Value())

	id := v.editTargetID
	if v.editingNew {
		if !v.manager.AddTask(v.editParentID, title).Applied() {
			return
		}
		// The new task is the last child of its parent
		siblings := v.currentTasks()
		if v.editParentID != "" {
			parent, ok := v.manager.Task(v.editParentID)
			if !ok {
				v.editing = false
				return
			}
			siblings = parent.Subtasks
		}
		if len(siblings) == 0 {
			v.editing = false
			return
		}
		id = siblings[len(siblings)-1].ID
		if desc == "" && len(tags) == 0 {
			v.finishEdit(id)
			return
		}
	}

	v.manager.UpdateTask(id, store.TaskPatch{
		Title:       &title,
		Description: &desc,
		Tags:        &tags,
	})
	v.finishEdit(id)
}

func (v *TaskListView) finishEdit(id string) {
	v.editing = false
	if v.editParentID != "" {
		if parent, ok := v.manager.Task(v.editParentID); ok && !parent.Expanded {
			v.manager.ToggleExpand(parent.ID)
		}
	}
	v.refresh()
	v.selectTask(id)
}

func (v *TaskListView) currentTasks() []models.Task {
	if p, ok := v.manager.Project(v.projectID); ok {
		return p.Tasks
	}
	return nil
}

// View renders the view
func (v *TaskListView) View() string {
	if v.showHelpPopup {
		return v.renderHelpPopup()
	}

	if v.confirmingDelete {
		return v.renderDeleteConfirm()
	}

	if v.editing {
		return v.renderEditForm()
	}

	if v.viewingTask {
		return v.renderTaskView()
	}

	if v.showingInbox {
		return v.renderInbox()
	}

	var b strings.Builder

	b.WriteString(v.renderHeader())
	b.WriteString("\n\n")

	b.WriteString(v.renderTaskList())

	b.WriteString("\n")
	b.WriteString(v.renderStatus())
	b.WriteString(v.renderHelp())

	return styles.CenterView(b.String(), v.width, v.height)
}

func (v *TaskListView) renderHeader() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	searchStyle := s.Input
	if v.searching {
		searchStyle = s.InputFocused
	}
	searchWidth := clamp(contentWidth-30, 10, 30)
	searchBox := searchStyle.Width(searchWidth).Render(v.searchInput.View())

	dot := lipgloss.NewStyle().Foreground(styles.ProjectColor(v.project.Color)).Render("●")
	titleText := v.project.Title
	if v.hideDone {
		titleText += " (open)"
	}
	title := dot + " " + s.Title.Render(titleText)

	progress := tree.ProjectProgress(v.project)
	bar := s.Progress.Render(styles.ProgressBar(progress, 12)) + fmt.Sprintf(" %d%%", progress)

	inbox := s.TitleMuted.Render("inbox")
	if n := v.manager.UnreadCount(); n > 0 {
		inbox = s.StatusSync.Render(fmt.Sprintf("inbox (%d)", n))
	}

	header := lipgloss.JoinHorizontal(lipgloss.Center, searchBox, "  ", bar, "  ", inbox)
	parts := []string{title}
	if v.project.Subtitle != "" {
		parts = append(parts, s.TitleMuted.Render(v.project.Subtitle))
	}
	parts = append(parts, header)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (v *TaskListView) renderTaskList() string {
	s := v.styles

	if len(v.rows) == 0 {
		if v.searchInput.Value() != "" {
			return s.TitleMuted.Render("No matching tasks.")
		}
		return s.TitleMuted.Render("No tasks. Press 'n' to create one.")
	}

	var items []string
	endIdx := min(v.scrollY+v.visibleRows(), len(v.rows))
	for i := v.scrollY; i < endIdx; i++ {
		items = append(items, v.renderTaskItem(v.rows[i], i == v.cursor))
	}
	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

func (v *TaskListView) renderTaskItem(r row, selected bool) string {
	s := v.styles
	width := max(styles.ContentWidth(v.width)-4, 20)
	t := r.task

	fold := "  "
	if len(t.Subtasks) > 0 {
		fold = "▸ "
		if t.Expanded {
			fold = "▾ "
		}
	}
	check := "[ ] "
	titleStyle := s.TaskPending
	if t.Status == models.StatusCompleted {
		check = "[x] "
		titleStyle = s.TaskDone
	}

	line := strings.Repeat("  ", r.depth) + fold + check + titleStyle.Render(t.Title)
	if len(t.Subtasks) > 0 {
		line += s.TitleMuted.Render(fmt.Sprintf("  %d%%", tree.Progress(t)))
	}
	for _, tag := range t.Tags {
		line += " " + s.Tag.Render("#"+tag)
	}
	if store.IsTempID(t.ID) {
		line += s.StatusSync.Render("•")
	}

	if selected {
		return s.ListSelected.Width(width).Render(line)
	}
	return s.ListItem.Width(width).Render(line)
}

func (v *TaskListView) renderStatus() string {
	switch {
	case v.status != "":
		return v.styles.StatusError.Render(v.status) + "\n"
	case v.manager.Syncing():
		return v.styles.StatusSync.Render("Syncing...") + "\n"
	}
	return ""
}

func (v *TaskListView) renderEditForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	formTitle := "New Task"
	switch {
	case !v.editingNew:
		formTitle = "Edit Task"
	case v.editParentID != "":
		if parent, ok := v.manager.Task(v.editParentID); ok {
			formTitle = "New Subtask of " + parent.Title
		}
	}

	titleStyle := s.Input
	descStyle := s.Input
	tagsStyle := s.Input
	btnStyle := s.Button

	switch v.editFocusIdx {
	case 0:
		titleStyle = s.InputFocused
	case 1:
		descStyle = s.InputFocused
	case 2:
		tagsStyle = s.InputFocused
	case 3:
		btnStyle = s.ButtonFocused
	}

	inputWidth := clamp(contentWidth-6, 20, 50)

	form := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render(formTitle),
		"",
		"Title:",
		titleStyle.Width(inputWidth).Render(v.editTitle.View()),
		"",
		"Description:",
		descStyle.Render(v.editDesc.View()),
		"",
		"Tags:",
		tagsStyle.Width(inputWidth).Render(v.editTags.View()),
		"",
		btnStyle.Render(" Save "),
		"",
		s.TitleMuted.Render("Tab: next • Ctrl+S: save • Esc: cancel"),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		form,
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *TaskListView) renderHelp() string {
	contentWidth := styles.ContentWidth(v.width)
	// At narrow widths, show hint to press ? for help
	if contentWidth > 0 && contentWidth < 50 {
		return v.styles.Help.Render(v.styles.HelpKey.Render("?") + " help")
	}

	return v.styles.Help.Render(
		fmt.Sprintf("%s view • %s new • %s sub • %s done • %s fold • %s move • %s nest • %s search • %s back • %s more",
			v.styles.HelpKey.Render("↵"),
			v.styles.HelpKey.Render("n"),
			v.styles.HelpKey.Render("N"),
			v.styles.HelpKey.Render("x"),
			v.styles.HelpKey.Render("o"),
			v.styles.HelpKey.Render("J/K"),
			v.styles.HelpKey.Render("</>"),
			v.styles.HelpKey.Render("/"),
			v.styles.HelpKey.Render("esc"),
			v.styles.HelpKey.Render("?"),
		),
	)
}

func (v *TaskListView) renderHelpPopup() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	completedLabel := "hide completed"
	if v.hideDone {
		completedLabel = "show completed"
	}

	helpItems := []string{
		s.HelpKey.Render("↵") + "      view task",
		s.HelpKey.Render("e") + "      edit task",
		s.HelpKey.Render("n") + "      new task",
		s.HelpKey.Render("N") + "      new subtask",
		s.HelpKey.Render("d") + "      delete task",
		s.HelpKey.Render("x") + "      toggle done",
		s.HelpKey.Render("o") + "      expand/collapse",
		s.HelpKey.Render("J/K") + "    move down/up",
		s.HelpKey.Render(">") + "      nest under previous",
		s.HelpKey.Render("<") + "      move out of parent",
		s.HelpKey.Render("/") + "      search",
		s.HelpKey.Render("c") + "      " + completedLabel,
		s.HelpKey.Render("i") + "      notifications",
		s.HelpKey.Render("r") + "      reload",
		s.HelpKey.Render("esc") + "    back",
		s.HelpKey.Render("q") + "      quit",
		"",
		s.TitleMuted.Render("Press any key to close"),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{s.Title.Render("Keyboard Shortcuts"), ""}, helpItems...)...,
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		s.Popup.Render(content),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *TaskListView) renderInbox() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	width := clamp(contentWidth-8, 20, 60)

	items := []string{s.Title.Render("Notifications"), ""}
	notifications := v.manager.Notifications()
	if len(notifications) == 0 {
		items = append(items, s.TitleMuted.Render("Nothing new"))
	}
	for i, n := range notifications {
		marker := "• "
		if n.Read {
			marker = "  "
		}
		line := marker + n.Title
		if n.Body != "" {
			line += ": " + n.Body
		}
		style := s.ListItem
		if i == v.inboxCursor {
			style = s.ListSelected
		}
		items = append(items, style.Width(width).Render(line))
	}
	items = append(items, "", s.TitleMuted.Render("↵: mark read • Esc: close"))

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		s.Popup.Render(lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *TaskListView) renderDeleteConfirm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Foreground(styles.Current.Error).Render("Delete Task?"),
		"",
		s.TitleMuted.Render(fmt.Sprintf("%q and its subtasks will be removed.", v.deleteTargetName)),
		"",
		lipgloss.JoinHorizontal(lipgloss.Center,
			s.ButtonPrimary.Render(" Y - Yes "),
			"  ",
			s.Button.Render(" N - No "),
		),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
	return styles.CenterView(centered, v.width, v.height)
}

// userName resolves a user id to a display name
func (v *TaskListView) userName(id string) string {
	for _, u := range v.manager.Users() {
		if u.ID == id && u.Name != "" {
			return u.Name
		}
	}
	if id == "" {
		return "someone"
	}
	return id
}

func (v *TaskListView) renderTaskView() string {
	task, ok := v.manager.Task(v.viewTaskID)
	if !ok {
		return ""
	}

	s := v.styles
	maxContentWidth := styles.ContentWidth(v.width)
	textWidth := clamp(maxContentWidth-10, 20, 70)
	labelStyle := s.TitleMuted

	statusText := "Pending"
	if task.Status == models.StatusCompleted {
		statusText = "Completed"
	}
	progress := tree.Progress(task)

	tagsLine := "None"
	if len(task.Tags) > 0 {
		var tagStrs []string
		for _, tag := range task.Tags {
			tagStrs = append(tagStrs, s.Tag.Render("#"+tag))
		}
		tagsLine = strings.Join(tagStrs, "")
	}

	descText := task.Description
	if descText == "" {
		descText = s.TitleMuted.Render("No description")
	}

	var attachments []string
	for _, a := range task.Attachments {
		attachments = append(attachments, fmt.Sprintf("[%s] %s", a.Type, a.Name))
	}
	if len(attachments) == 0 {
		attachments = []string{s.TitleMuted.Render("No attachments")}
	}

	var activity []string
	for i := len(task.Activity) - 1; i >= 0; i-- {
		entry := task.Activity[i]
		stamp := time.UnixMilli(entry.Timestamp).Format("Jan 2, 2006 3:04 PM")
		header := s.TitleMuted.Render(fmt.Sprintf("%s · %s", stamp, v.userName(entry.CreatedBy)))
		activity = append(activity, lipgloss.JoinVertical(lipgloss.Left,
			header,
			lipgloss.NewStyle().Width(textWidth).Render(entry.Content),
		))
	}
	if len(activity) == 0 {
		activity = []string{s.TitleMuted.Render("No activity yet")}
	}

	var input string
	var helpText string
	switch {
	case v.commentFocused:
		input = s.InputFocused.Render(v.commentInput.View())
		helpText = fmt.Sprintf("%s submit • %s cancel",
			s.HelpKey.Render("ctrl+s"), s.HelpKey.Render("esc"))
	case v.linkFocused:
		input = s.InputFocused.Width(clamp(textWidth, 20, 50)).Render(v.linkInput.View())
		helpText = fmt.Sprintf("%s attach • %s cancel",
			s.HelpKey.Render("↵"), s.HelpKey.Render("esc"))
	default:
		helpText = fmt.Sprintf("%s edit • %s done • %s comment • %s link • %s delete • %s back",
			s.HelpKey.Render("e"),
			s.HelpKey.Render("x"),
			s.HelpKey.Render("m"),
			s.HelpKey.Render("l"),
			s.HelpKey.Render("d"),
			s.HelpKey.Render("esc"),
		)
	}

	parts := []string{
		s.Title.MarginBottom(1).Render(task.Title),
		labelStyle.Render("Status"),
		fmt.Sprintf("%s  %s %d%%", statusText, s.Progress.Render(styles.ProgressBar(progress, 10)), progress),
		"",
		labelStyle.Render("Created"),
		fmt.Sprintf("%s by %s", task.CreatedAt.Format("Jan 2, 2006"), v.userName(task.CreatedBy)),
		"",
		labelStyle.Render("Tags"),
		tagsLine,
		"",
		labelStyle.Render("Description"),
		lipgloss.NewStyle().Width(textWidth).Render(descText),
		"",
		labelStyle.Render("Attachments"),
		lipgloss.JoinVertical(lipgloss.Left, attachments...),
		"",
		labelStyle.Render("Activity"),
		lipgloss.JoinVertical(lipgloss.Left, activity...),
	}
	if input != "" {
		parts = append(parts, "", input)
	}
	parts = append(parts, "", s.Help.Render(helpText))

	padded := lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
	return styles.CenterView(padded, v.width, v.height)
}
