package store

import (
	"context"
	"math/rand/v2"
	"slices"

	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/position"
	"github.com/tgienger/apolo/internal/remote"
)

// Colors are the tags a new project is randomly painted with
var Colors = []string{"indigo", "emerald", "rose", "amber", "cyan", "violet", "fuchsia"}

func randomColor() string {
	return Colors[rand.IntN(len(Colors))]
}

// ProjectPatch holds the project fields to change; nil fields are kept
type ProjectPatch struct {
	Title    *string
	Subtitle *string
	Color    *string
	ImageURL *string
	Position *float64
}

func (p ProjectPatch) apply(project models.Project) models.Project {
	if p.Title != nil {
		project.Title = *p.Title
	}
	if p.Subtitle != nil {
		project.Subtitle = *p.Subtitle
	}
	if p.Color != nil {
		project.Color = *p.Color
	}
	if p.ImageURL != nil {
		project.ImageURL = *p.ImageURL
	}
	if p.Position != nil {
		project.Position = p.Position
	}
	return project
}

func (p ProjectPatch) row() remote.Row {
	row := remote.Row{}
	if p.Title != nil {
		row["title"] = *p.Title
	}
	if p.Subtitle != nil {
		row["subtitle"] = *p.Subtitle
	}
	if p.Color != nil {
		row["color"] = *p.Color
	}
	if p.ImageURL != nil {
		row["image_url"] = *p.ImageURL
	}
	if p.Position != nil {
		row["position"] = *p.Position
	}
	return row
}

func projectKeys(projects []models.Project) []*float64 {
	keys := make([]*float64, len(projects))
	for i, p := range projects {
		keys[i] = p.Position
	}
	return keys
}

// AddProject appends a project owned by the current user. A failed insert
// removes it again.
func (m *Manager) AddProject(title, subtitle string) *Commit {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return skipped()
	}
	now := m.now()
	pos := position.Append(projectKeys(m.state.Projects), now)
	p := models.Project{
		ID:        newTempID(),
		Title:     title,
		Subtitle:  subtitle,
		Color:     randomColor(),
		Position:  &pos,
		CreatedBy: m.user.ID,
		CreatedAt: now,
	}
	m.state.Projects = append(slices.Clip(m.state.Projects), p)
	c := newCommit()
	m.pending[p.ID] = c
	m.mu.Unlock()

	m.syncing.Add(1)
	m.notify()

	return m.create(c, "add_project", p.ID, func(ctx context.Context) (string, error) {
		defer m.syncing.Add(-1)
		row, err := m.remote.Insert(ctx, remote.Projects, remote.Row{
			"owner_id":   p.CreatedBy,
			"title":      p.Title,
			"subtitle":   p.Subtitle,
			"color":      p.Color,
			"position":   pos,
			"created_at": remote.Millis(p.CreatedAt),
		})
		if err != nil {
			m.mu.Lock()
			if i := m.projectIndex(p.ID); i >= 0 {
				m.state.Projects = slices.Delete(slices.Clone(m.state.Projects), i, i+1)
			}
			if m.activeProject == p.ID {
				m.activeProject = ""
			}
			m.mu.Unlock()
			m.metrics.rollbacks.WithLabelValues("add_project").Inc()
			return "", err
		}
		return row.String("id"), nil
	})
}

// UpdateProject changes project fields. Failures are reported and the
// local change is kept.
func (m *Manager) UpdateProject(id string, patch ProjectPatch) *Commit {
	m.mu.Lock()
	id = m.canonical(id)
	i := m.projectIndex(id)
	if m.user == nil || i < 0 {
		m.mu.Unlock()
		return skipped()
	}
	m.setProject(i, patch.apply(m.state.Projects[i]))
	m.mu.Unlock()
	m.notify()

	row := patch.row()
	return m.write("update_project", func(ctx context.Context) error {
		if len(row) == 0 {
			return nil
		}
		rid, err := m.resolve(ctx, id)
		if err != nil {
			return err
		}
		return m.remote.Update(ctx, remote.Projects, remote.Where("id", rid), row)
	})
}

// DeleteProject removes a project and its tasks. A failed delete puts the
// project back at its former index.
func (m *Manager) DeleteProject(id string) *Commit {
	m.mu.Lock()
	id = m.canonical(id)
	i := m.projectIndex(id)
	if m.user == nil || i < 0 {
		m.mu.Unlock()
		return skipped()
	}
	removed := m.state.Projects[i]
	m.state.Projects = slices.Delete(slices.Clone(m.state.Projects), i, i+1)
	if m.activeProject == id {
		m.activeProject = ""
	}
	m.mu.Unlock()

	m.syncing.Add(1)
	m.notify()

	return m.write("delete_project", func(ctx context.Context) error {
		defer m.syncing.Add(-1)
		rid, err := m.resolve(ctx, id)
		if err != nil {
			// Never created remotely, nothing to delete
			return nil
		}
		if err := m.remote.Delete(ctx, remote.Projects, remote.Where("id", rid)); err != nil {
			removed.ID = rid
			m.mu.Lock()
			// a reload may have brought the project back already
			if m.projectIndex(rid) < 0 {
				at := min(i, len(m.state.Projects))
				m.state.Projects = slices.Insert(slices.Clone(m.state.Projects), at, removed)
			}
			m.mu.Unlock()
			m.metrics.rollbacks.WithLabelValues("delete_project").Inc()
			m.notify()
			return err
		}
		return nil
	})
}

// MoveProject moves draggedID to targetID's index and gives it a position
// between its new neighbours
func (m *Manager) MoveProject(draggedID, targetID string) *Commit {
	m.mu.Lock()
	draggedID, targetID = m.canonical(draggedID), m.canonical(targetID)
	from, to := m.projectIndex(draggedID), m.projectIndex(targetID)
	if m.user == nil || draggedID == targetID || from < 0 || to < 0 {
		m.mu.Unlock()
		return skipped()
	}

	dragged := m.state.Projects[from]
	rest := slices.Delete(slices.Clone(m.state.Projects), from, from+1)
	pos := position.ForSlot(projectKeys(rest), to, m.now())
	dragged.Position = &pos
	m.state.Projects = slices.Insert(rest, to, dragged)
	m.mu.Unlock()
	m.notify()

	return m.write("move_project", func(ctx context.Context) error {
		rid, err := m.resolve(ctx, draggedID)
		if err != nil {
			return err
		}
		return m.remote.Update(ctx, remote.Projects, remote.Where("id", rid), remote.Row{"position": pos})
	})
}
