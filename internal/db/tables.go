package db

import (
	"fmt"

	"github.com/tgienger/apolo/internal/remote"
)

// table describes the columns a remote table accepts
type table struct {
	name    string
	columns []string
	// json columns hold encoded sequences
	json map[string]bool
	// hasID tables get a generated uuid primary key on insert
	hasID     bool
	createdAt string
}

var tables = map[string]table{
	remote.Projects: {
		name:      remote.Projects,
		columns:   []string{"id", "owner_id", "title", "subtitle", "color", "image_url", "position", "created_at"},
		hasID:     true,
		createdAt: "created_at",
	},
	remote.Tasks: {
		name: remote.Tasks,
		columns: []string{"id", "project_id", "parent_id", "title", "description", "status", "position",
			"expanded", "attachments", "activity", "tags", "created_by", "created_at"},
		json:      map[string]bool{"attachments": true, "activity": true, "tags": true},
		hasID:     true,
		createdAt: "created_at",
	},
	remote.ProjectMembers: {
		name:      remote.ProjectMembers,
		columns:   []string{"project_id", "user_id", "role", "created_at"},
		createdAt: "created_at",
	},
	remote.Profiles: {
		name:    remote.Profiles,
		columns: []string{"id", "email", "full_name", "avatar_url", "updated_at"},
		hasID:   true,
	},
	remote.Notifications: {
		name:      remote.Notifications,
		columns:   []string{"id", "user_id", "title", "body", "is_read", "created_at"},
		hasID:     true,
		createdAt: "created_at",
	},
}

func lookup(name string) (table, error) {
	t, ok := tables[name]
	if !ok {
		return table{}, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

func (t table) has(col string) bool {
	for _, c := range t.columns {
		if c == col {
			return true
		}
	}
	return false
}

func (t table) check(cols ...string) error {
	for _, c := range cols {
		if !t.has(c) {
			return fmt.Errorf("table %s has no column %q", t.name, c)
		}
	}
	return nil
}
