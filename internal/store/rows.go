package store

import (
	"cmp"
	"slices"
	"strings"

	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/position"
	"github.com/tgienger/apolo/internal/remote"
)

// ProjectFromRow maps a projects row
func ProjectFromRow(r remote.Row) models.Project {
	return models.Project{
		ID:        r.String("id"),
		Title:     r.String("title"),
		Subtitle:  r.String("subtitle"),
		Color:     r.String("color"),
		ImageURL:  r.String("image_url"),
		Position:  r.Float("position"),
		CreatedBy: r.String("owner_id"),
		CreatedAt: r.Time("created_at"),
	}
}

// TaskFromRow maps a tasks row, defaulting expanded to true and sequences to
// empty. Malformed sequence columns are treated as empty.
func TaskFromRow(r remote.Row) models.Task {
	t := models.Task{
		ID:          r.String("id"),
		Title:       r.String("title"),
		Description: r.String("description"),
		Status:      models.StatusPending,
		Position:    r.Float("position"),
		Expanded:    true,
		CreatedBy:   r.String("created_by"),
		CreatedAt:   r.Time("created_at"),
	}
	if strings.EqualFold(r.String("status"), string(models.StatusCompleted)) {
		t.Status = models.StatusCompleted
	}
	if b := r.Bool("expanded"); b != nil {
		t.Expanded = *b
	}
	if r.Decode("attachments", &t.Attachments) != nil {
		t.Attachments = nil
	}
	if r.Decode("activity", &t.Activity) != nil {
		t.Activity = nil
	}
	if r.Decode("tags", &t.Tags) != nil {
		t.Tags = nil
	}
	return t
}

func userFromProfile(r remote.Row) models.User {
	name := r.String("full_name")
	if name == "" {
		name = r.String("email")
	}
	return models.User{
		ID:        r.String("id"),
		Email:     r.String("email"),
		Name:      name,
		AvatarURL: r.String("avatar_url"),
	}
}

func notificationFromRow(r remote.Row) models.Notification {
	n := models.Notification{
		ID:        r.String("id"),
		UserID:    r.String("user_id"),
		Title:     r.String("title"),
		Body:      r.String("body"),
		CreatedAt: r.Time("created_at"),
	}
	if b := r.Bool("is_read"); b != nil {
		n.Read = *b
	}
	return n
}

// BuildForest assembles one project's flat task rows into a forest. A row
// whose parent_id names another row becomes that row's subtask; any other
// row is a root. Siblings are ordered by position, nil first as 0. Rows
// caught in a parent cycle are attached as roots so no data is dropped.
func BuildForest(rows []remote.Row) []models.Task {
	ordered := slices.Clone(rows)
	slices.SortStableFunc(ordered, func(a, b remote.Row) int {
		return cmp.Compare(position.Key(a.Float("position")), position.Key(b.Float("position")))
	})

	known := make(map[string]bool, len(ordered))
	for _, r := range ordered {
		known[r.String("id")] = true
	}

	children := make(map[string][]remote.Row)
	var roots []remote.Row
	for _, r := range ordered {
		parent := r.String("parent_id")
		if parent != "" && parent != r.String("id") && known[parent] {
			children[parent] = append(children[parent], r)
		} else {
			roots = append(roots, r)
		}
	}

	visited := make(map[string]bool, len(ordered))
	var build func(r remote.Row) models.Task
	build = func(r remote.Row) models.Task {
		t := TaskFromRow(r)
		visited[t.ID] = true
		for _, c := range children[t.ID] {
			if !visited[c.String("id")] {
				t.Subtasks = append(t.Subtasks, build(c))
			}
		}
		return t
	}

	var forest []models.Task
	for _, r := range roots {
		forest = append(forest, build(r))
	}
	for _, r := range ordered {
		if !visited[r.String("id")] {
			forest = append(forest, build(r))
		}
	}
	return forest
}

// MergeProjects combines owned and shared projects, keeping one entry per
// id with the owned record winning, then sorts them
func MergeProjects(owned, shared []models.Project) []models.Project {
	seen := make(map[string]bool, len(owned)+len(shared))
	var out []models.Project
	for _, list := range [][]models.Project{owned, shared} {
		for _, p := range list {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	SortProjects(out)
	return out
}

// SortProjects orders projects by position ascending (nil as 0), newest
// first among equal positions
func SortProjects(projects []models.Project) {
	slices.SortStableFunc(projects, func(a, b models.Project) int {
		if c := cmp.Compare(position.Key(a.Position), position.Key(b.Position)); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
