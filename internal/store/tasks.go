package store

import (
	"context"
	"strings"

	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/position"
	"github.com/tgienger/apolo/internal/remote"
	"github.com/tgienger/apolo/internal/tree"
)

// TaskPatch holds the task fields to change; nil fields are kept
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *models.TaskStatus
	Expanded    *bool
	Tags        *[]string
}

func (p TaskPatch) apply(t models.Task) models.Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Expanded != nil {
		t.Expanded = *p.Expanded
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	return t
}

func (p TaskPatch) row() remote.Row {
	row := remote.Row{}
	if p.Title != nil {
		row["title"] = *p.Title
	}
	if p.Description != nil {
		row["description"] = *p.Description
	}
	if p.Status != nil {
		row["status"] = statusColumn(*p.Status)
	}
	if p.Expanded != nil {
		row["expanded"] = *p.Expanded
	}
	if p.Tags != nil {
		row["tags"] = *p.Tags
	}
	return row
}

func statusColumn(s models.TaskStatus) string {
	return strings.ToLower(string(s))
}

func taskKeys(tasks []models.Task) []*float64 {
	keys := make([]*float64, len(tasks))
	for i, t := range tasks {
		keys[i] = t.Position
	}
	return keys
}

// AddTask appends a task under parentID in the active project, or as a root
// task when parentID is empty
func (m *Manager) AddTask(parentID, title string) *Commit {
	m.mu.Lock()
	p, i, ok := m.active()
	if !ok {
		m.mu.Unlock()
		return skipped()
	}
	parentID = m.canonical(parentID)
	siblings, ok := tree.Siblings(p.Tasks, parentID)
	if !ok {
		m.mu.Unlock()
		return skipped()
	}

	now := m.now()
	pos := position.Append(taskKeys(siblings), now)
	t := models.Task{
		ID:        newTempID(),
		Title:     title,
		Status:    models.StatusPending,
		Position:  &pos,
		Expanded:  true,
		CreatedBy: m.user.ID,
		CreatedAt: now,
	}
	if parentID == "" {
		p.Tasks = append(p.Tasks[:len(p.Tasks):len(p.Tasks)], t)
	} else {
		p.Tasks = tree.AddSubtask(p.Tasks, parentID, t)
	}
	m.setProject(i, p)
	c := newCommit()
	m.pending[t.ID] = c
	projectID := p.ID
	m.mu.Unlock()
	m.notify()

	return m.create(c, "add_task", t.ID, func(ctx context.Context) (string, error) {
		pid, err := m.resolve(ctx, projectID)
		if err != nil {
			return "", err
		}
		var parent any
		if parentID != "" {
			rp, err := m.resolve(ctx, parentID)
			if err != nil {
				return "", err
			}
			parent = rp
		}
		row, err := m.remote.Insert(ctx, remote.Tasks, remote.Row{
			"project_id": pid,
			"parent_id":  parent,
			"title":      t.Title,
			"status":     statusColumn(t.Status),
			"position":   pos,
			"expanded":   true,
			"created_by": t.CreatedBy,
			"created_at": remote.Millis(now),
		})
		if err != nil {
			return "", err
		}
		return row.String("id"), nil
	})
}

// UpdateTask changes task fields in the active project
func (m *Manager) UpdateTask(id string, patch TaskPatch) *Commit {
	return m.updateTask("update_task", id, patch.apply, patch.row())
}

// updateTask applies fn to a task and persists row
func (m *Manager) updateTask(op, id string, fn func(models.Task) models.Task, row remote.Row) *Commit {
	m.mu.Lock()
	p, i, ok := m.active()
	id = m.canonical(id)
	if !ok {
		m.mu.Unlock()
		return skipped()
	}
	if _, found := tree.Find(p.Tasks, id); !found {
		m.mu.Unlock()
		return skipped()
	}
	p.Tasks = tree.UpdateAt(p.Tasks, id, fn)
	m.setProject(i, p)
	m.mu.Unlock()
	m.notify()

	return m.write(op, func(ctx context.Context) error {
		if len(row) == 0 {
			return nil
		}
		rid, err := m.resolve(ctx, id)
		if err != nil {
			return err
		}
		return m.remote.Update(ctx, remote.Tasks, remote.Where("id", rid), row)
	})
}

// ToggleTaskStatus flips a task between pending and completed
func (m *Manager) ToggleTaskStatus(id string) *Commit {
	t, ok := m.Task(id)
	if !ok {
		return skipped()
	}
	next := t.Status.Toggled()
	return m.UpdateTask(id, TaskPatch{Status: &next})
}

// ToggleExpand flips whether a task's subtasks are shown
func (m *Manager) ToggleExpand(id string) *Commit {
	t, ok := m.Task(id)
	if !ok {
		return skipped()
	}
	expanded := !t.Expanded
	return m.updateTask("toggle_expand", id, func(t models.Task) models.Task {
		t.Expanded = expanded
		return t
	}, remote.Row{"expanded": expanded})
}

// DeleteTask removes a task and its subtree from the active project
func (m *Manager) DeleteTask(id string) *Commit {
	m.mu.Lock()
	p, i, ok := m.active()
	id = m.canonical(id)
	if !ok {
		m.mu.Unlock()
		return skipped()
	}
	if _, found := tree.Find(p.Tasks, id); !found {
		m.mu.Unlock()
		return skipped()
	}
	p.Tasks = tree.DeleteAt(p.Tasks, id)
	m.setProject(i, p)
	m.mu.Unlock()
	m.notify()

	return m.write("delete_task", func(ctx context.Context) error {
		rid, err := m.resolve(ctx, id)
		if err != nil {
			return err
		}
		return m.remote.Delete(ctx, remote.Tasks, remote.Where("id", rid))
	})
}

// MoveTask drops draggedID before, after or inside targetID. The task may
// change parent; it cannot be dropped into its own subtree.
func (m *Manager) MoveTask(draggedID, targetID string, placement models.Placement) *Commit {
	m.mu.Lock()
	p, i, ok := m.active()
	draggedID, targetID = m.canonical(draggedID), m.canonical(targetID)
	if !ok || draggedID == targetID {
		m.mu.Unlock()
		return skipped()
	}
	dragged, ok := tree.Find(p.Tasks, draggedID)
	if !ok || tree.Contains(dragged, targetID) {
		m.mu.Unlock()
		return skipped()
	}

	tasks, dragged, _ := tree.Remove(p.Tasks, draggedID)
	targetParent, targetIdx, ok := tree.Locate(tasks, targetID)
	if !ok {
		m.mu.Unlock()
		return skipped()
	}

	var (
		parentID string
		index    int
		pos      float64
	)
	switch placement {
	case models.PlaceInside:
		target, _ := tree.Find(tasks, targetID)
		parentID, index = targetID, 0
		pos = position.Inside(taskKeys(target.Subtasks))
	case models.PlaceBefore, models.PlaceAfter:
		siblings, _ := tree.Siblings(tasks, targetParent)
		parentID, index = targetParent, targetIdx
		if placement == models.PlaceAfter {
			index++
		}
		pos = position.ForSlot(taskKeys(siblings), index, m.now())
	default:
		m.mu.Unlock()
		return skipped()
	}

	dragged.Position = &pos
	p.Tasks, _ = tree.InsertAt(tasks, parentID, index, dragged)
	m.setProject(i, p)
	m.mu.Unlock()
	m.notify()

	return m.write("move_task", func(ctx context.Context) error {
		rid, err := m.resolve(ctx, draggedID)
		if err != nil {
			return err
		}
		var parent any
		if parentID != "" {
			rp, err := m.resolve(ctx, parentID)
			if err != nil {
				return err
			}
			parent = rp
		}
		return m.remote.Update(ctx, remote.Tasks, remote.Where("id", rid), remote.Row{
			"parent_id": parent,
			"position":  pos,
		})
	})
}
