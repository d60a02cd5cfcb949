package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/remote"
	"github.com/tgienger/apolo/internal/tree"
)

// AddActivity appends a log entry to a task
func (m *Manager) AddActivity(taskID, content string, kind models.ActivityType) *Commit {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return skipped()
	}
	entry := models.ActivityLog{
		ID:        uuid.NewString(),
		Type:      kind,
		Content:   content,
		Timestamp: m.now().UnixMilli(),
		CreatedBy: m.user.ID,
	}
	m.mu.Unlock()

	return m.editSequence("add_activity", taskID,
		func(t models.Task) models.Task {
			t.Activity = append(slices.Clip(t.Activity), entry)
			return t
		},
		func(ctx context.Context, rid string) error {
			return rewrite(ctx, m.remote, rid, "activity", func(cur []models.ActivityLog) []models.ActivityLog {
				return append(cur, entry)
			})
		})
}

// UpdateActivity replaces the content of a log entry
func (m *Manager) UpdateActivity(taskID, logID, content string) *Commit {
	edit := func(logs []models.ActivityLog) []models.ActivityLog {
		out := slices.Clone(logs)
		for i := range out {
			if out[i].ID == logID {
				out[i].Content = content
			}
		}
		return out
	}
	return m.editSequence("update_activity", taskID,
		func(t models.Task) models.Task {
			t.Activity = edit(t.Activity)
			return t
		},
		func(ctx context.Context, rid string) error {
			return rewrite(ctx, m.remote, rid, "activity", edit)
		})
}

// DeleteActivity removes a log entry
func (m *Manager) DeleteActivity(taskID, logID string) *Commit {
	drop := func(logs []models.ActivityLog) []models.ActivityLog {
		return slices.DeleteFunc(slices.Clone(logs), func(a models.ActivityLog) bool { return a.ID == logID })
	}
	return m.editSequence("delete_activity", taskID,
		func(t models.Task) models.Task {
			t.Activity = drop(t.Activity)
			return t
		},
		func(ctx context.Context, rid string) error {
			return rewrite(ctx, m.remote, rid, "activity", drop)
		})
}

// AddAttachment appends an attachment to a task
func (m *Manager) AddAttachment(taskID string, kind models.AttachmentType, name, url string) *Commit {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return skipped()
	}
	att := models.Attachment{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      kind,
		URL:       url,
		CreatedAt: m.now().UnixMilli(),
		CreatedBy: m.user.ID,
	}
	m.mu.Unlock()

	return m.editSequence("add_attachment", taskID,
		func(t models.Task) models.Task {
			t.Attachments = append(slices.Clip(t.Attachments), att)
			return t
		},
		func(ctx context.Context, rid string) error {
			return rewrite(ctx, m.remote, rid, "attachments", func(cur []models.Attachment) []models.Attachment {
				return append(cur, att)
			})
		})
}

// editSequence applies fn to a task in the active project and runs persist
// with the task's remote id
func (m *Manager) editSequence(op, taskID string, fn func(models.Task) models.Task, persist func(ctx context.Context, rid string) error) *Commit {
	m.mu.Lock()
	p, i, ok := m.active()
	taskID = m.canonical(taskID)
	if !ok {
		m.mu.Unlock()
		return skipped()
	}
	if _, found := tree.Find(p.Tasks, taskID); !found {
		m.mu.Unlock()
		return skipped()
	}
	p.Tasks = tree.UpdateAt(p.Tasks, taskID, fn)
	m.setProject(i, p)
	m.mu.Unlock()
	m.notify()

	return m.write(op, func(ctx context.Context) error {
		rid, err := m.resolve(ctx, taskID)
		if err != nil {
			return err
		}
		return persist(ctx, rid)
	})
}

// rewrite reads a task's sequence column, edits it and writes it back whole.
// Concurrent writers to the same column race; the last write wins.
func rewrite[T any](ctx context.Context, r remote.Store, taskID, column string, edit func([]T) []T) error {
	rows, err := r.Select(ctx, remote.Tasks, remote.Query{Filter: remote.Where("id", taskID), Limit: 1})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("task %s: %w", taskID, remote.ErrNotFound)
	}
	var current []T
	if err := rows[0].Decode(column, &current); err != nil {
		return fmt.Errorf("decode %s: %w", column, err)
	}
	return r.Update(ctx, remote.Tasks, remote.Where("id", taskID), remote.Row{column: edit(current)})
}
