// Package tree holds pure operations over a forest of tasks.
//
// Every function treats its input as immutable. Functions that change the
// forest return a new root slice and reallocate only the sibling slices on
// the path from the root to the change; untouched subtrees are shared with
// the input.
package tree

import (
	"math"
	"slices"
	"strings"

	"github.com/tgienger/apolo/internal/models"
)

// Find returns the first task with the given id, depth first
func Find(tasks []models.Task, id string) (models.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
		if found, ok := Find(t.Subtasks, id); ok {
			return found, true
		}
	}
	return models.Task{}, false
}

// UpdateAt replaces the task with the given id by fn(task). fn must not
// mutate the subtasks slice it receives in place. If id is not found the
// input is returned unchanged.
func UpdateAt(tasks []models.Task, id string, fn func(models.Task) models.Task) []models.Task {
	out, _ := updateAt(tasks, id, fn)
	return out
}

func updateAt(tasks []models.Task, id string, fn func(models.Task) models.Task) ([]models.Task, bool) {
	for i := range tasks {
		if tasks[i].ID == id {
			out := slices.Clone(tasks)
			out[i] = fn(tasks[i])
			return out, true
		}
		if sub, ok := updateAt(tasks[i].Subtasks, id, fn); ok {
			out := slices.Clone(tasks)
			out[i].Subtasks = sub
			return out, true
		}
	}
	return tasks, false
}

// AddSubtask appends task to the subtasks of parentID and expands the parent
func AddSubtask(tasks []models.Task, parentID string, task models.Task) []models.Task {
	return UpdateAt(tasks, parentID, func(p models.Task) models.Task {
		p.Subtasks = append(slices.Clip(p.Subtasks), task)
		p.Expanded = true
		return p
	})
}

// DeleteAt removes the task with the given id together with its subtree
func DeleteAt(tasks []models.Task, id string) []models.Task {
	out, _ := deleteAt(tasks, id)
	return out
}

func deleteAt(tasks []models.Task, id string) ([]models.Task, bool) {
	for i := range tasks {
		if tasks[i].ID == id {
			out := make([]models.Task, 0, len(tasks)-1)
			out = append(out, tasks[:i]...)
			return append(out, tasks[i+1:]...), true
		}
		if sub, ok := deleteAt(tasks[i].Subtasks, id); ok {
			out := slices.Clone(tasks)
			out[i].Subtasks = sub
			return out, true
		}
	}
	return tasks, false
}

// Search returns a pruned forest of tasks whose title or description
// contains query, case-insensitively. A node is kept if it matches or any
// descendant matches; kept nodes only carry their matching descendants and
// are always expanded. The result is meant for display, not mutation.
func Search(tasks []models.Task, query string) []models.Task {
	q := strings.ToLower(query)
	var out []models.Task
	for _, t := range tasks {
		match := strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Description), q)
		children := Search(t.Subtasks, query)
		if match || len(children) > 0 {
			t.Subtasks = children
			t.Expanded = true
			out = append(out, t)
		}
	}
	return out
}

// Progress returns the completion percentage of a task. A leaf is 0 or 100;
// a composite task is the rounded mean of its direct children.
func Progress(task models.Task) int {
	if len(task.Subtasks) == 0 {
		if task.Status == models.StatusCompleted {
			return 100
		}
		return 0
	}
	total := 0
	for _, sub := range task.Subtasks {
		total += Progress(sub)
	}
	return int(math.Round(float64(total) / float64(len(task.Subtasks))))
}

// ProjectProgress is the rounded mean progress of a project's root tasks
func ProjectProgress(project models.Project) int {
	if len(project.Tasks) == 0 {
		return 0
	}
	total := 0
	for _, t := range project.Tasks {
		total += Progress(t)
	}
	return int(math.Round(float64(total) / float64(len(project.Tasks))))
}
