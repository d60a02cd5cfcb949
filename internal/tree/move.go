package tree

import "github.com/tgienger/apolo/internal/models"

// Walk visits every task depth first. parentID is empty for roots.
// Returning false from fn skips the task's subtree.
func Walk(tasks []models.Task, fn func(t models.Task, parentID string) bool) {
	walk(tasks, "", fn)
}

func walk(tasks []models.Task, parentID string, fn func(models.Task, string) bool) {
	for _, t := range tasks {
		if fn(t, parentID) {
			walk(t.Subtasks, t.ID, fn)
		}
	}
}

// Locate returns the parent id (empty for roots) and sibling index of id
func Locate(tasks []models.Task, id string) (parentID string, index int, ok bool) {
	return locate(tasks, "", id)
}

func locate(tasks []models.Task, parentID, id string) (string, int, bool) {
	for i, t := range tasks {
		if t.ID == id {
			return parentID, i, true
		}
		if p, idx, ok := locate(t.Subtasks, t.ID, id); ok {
			return p, idx, true
		}
	}
	return "", 0, false
}

// Siblings returns the child list of parentID, or the roots when parentID is empty
func Siblings(tasks []models.Task, parentID string) ([]models.Task, bool) {
	if parentID == "" {
		return tasks, true
	}
	parent, ok := Find(tasks, parentID)
	if !ok {
		return nil, false
	}
	return parent.Subtasks, true
}

// Remove detaches the task with the given id and returns it
func Remove(tasks []models.Task, id string) ([]models.Task, models.Task, bool) {
	t, ok := Find(tasks, id)
	if !ok {
		return tasks, models.Task{}, false
	}
	return DeleteAt(tasks, id), t, true
}

// InsertAt places task at index within the children of parentID (roots when
// empty). index is clamped to the sibling range. Inserting under a parent
// expands it.
func InsertAt(tasks []models.Task, parentID string, index int, task models.Task) ([]models.Task, bool) {
	if parentID == "" {
		return insert(tasks, index, task), true
	}
	if _, ok := Find(tasks, parentID); !ok {
		return tasks, false
	}
	return UpdateAt(tasks, parentID, func(p models.Task) models.Task {
		p.Subtasks = insert(p.Subtasks, index, task)
		p.Expanded = true
		return p
	}), true
}

func insert(list []models.Task, index int, task models.Task) []models.Task {
	index = max(0, min(index, len(list)))
	out := make([]models.Task, 0, len(list)+1)
	out = append(out, list[:index]...)
	out = append(out, task)
	return append(out, list[index:]...)
}

// Contains reports whether id is task itself or one of its descendants
func Contains(task models.Task, id string) bool {
	if task.ID == id {
		return true
	}
	_, ok := Find(task.Subtasks, id)
	return ok
}

// Count returns the number of tasks in the forest
func Count(tasks []models.Task) int {
	n := 0
	Walk(tasks, func(models.Task, string) bool {
		n++
		return true
	})
	return n
}
