package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/remote"
)

func TestTaskFromRowDefaults(t *testing.T) {
	task := TaskFromRow(remote.Row{"id": "t1", "title": "Plain", "created_at": int64(5000)})
	assert.Equal(t, models.StatusPending, task.Status)
	assert.True(t, task.Expanded)
	assert.Nil(t, task.Position)
	assert.Empty(t, task.Attachments)
	assert.Empty(t, task.Activity)
	assert.Equal(t, time.UnixMilli(5000), task.CreatedAt)

	task = TaskFromRow(remote.Row{
		"id":       "t2",
		"status":   "completed",
		"expanded": int64(0),
		"tags":     `["a","b"]`,
		"activity": "not json",
	})
	assert.Equal(t, models.StatusCompleted, task.Status)
	assert.False(t, task.Expanded)
	assert.Equal(t, []string{"a", "b"}, task.Tags)
	assert.Empty(t, task.Activity, "malformed sequences read as empty")

	// a type mismatch part way through leaves nothing behind
	task = TaskFromRow(remote.Row{
		"id":          "t3",
		"tags":        `["a", 1]`,
		"attachments": `[{"id": "x1", "name": "notes"}, {"id": 2}]`,
	})
	assert.Nil(t, task.Tags)
	assert.Nil(t, task.Attachments)
}

func TestBuildForest(t *testing.T) {
	rows := []remote.Row{
		{"id": "r1", "title": "root one", "position": 2000.0},
		{"id": "r3", "parent_id": "r1", "position": 1.0},
		{"id": "r2", "title": "no position"},
		{"id": "r4", "parent_id": "r1", "position": 0.5},
		{"id": "r5", "parent_id": "ghost", "position": 3000.0},
		{"id": "x", "parent_id": "y", "position": 10.0},
		{"id": "y", "parent_id": "x", "position": 20.0},
		{"id": "s", "parent_id": "s", "position": 4000.0},
	}

	forest := BuildForest(rows)

	require.Equal(t, []string{"r2", "r1", "r5", "s", "x"}, taskIDs(forest))
	assert.Equal(t, []string{"r4", "r3"}, taskIDs(forest[1].Subtasks))
	assert.Equal(t, []string{"y"}, taskIDs(forest[4].Subtasks), "cycle rows are kept")
	assert.Empty(t, BuildForest(nil))
}

func TestMergeProjects(t *testing.T) {
	owned := []models.Project{{ID: "p1", Title: "mine", Position: models.Float(2)}}
	shared := []models.Project{
		{ID: "p1", Title: "shared copy", Position: models.Float(2)},
		{ID: "p2", Title: "theirs", Position: models.Float(1)},
	}

	got := MergeProjects(owned, shared)
	require.Equal(t, []string{"p2", "p1"}, projectIDs(got))
	assert.Equal(t, "mine", got[1].Title)
}

func TestSortProjects(t *testing.T) {
	older := time.UnixMilli(1000)
	newer := time.UnixMilli(2000)
	projects := []models.Project{
		{ID: "a", Position: models.Float(1), CreatedAt: older},
		{ID: "b", Position: models.Float(1), CreatedAt: newer},
		{ID: "c", Position: nil},
		{ID: "d", Position: models.Float(-5)},
	}
	SortProjects(projects)
	assert.Equal(t, []string{"d", "c", "b", "a"}, projectIDs(projects))
}

func TestProfileAndNotificationRows(t *testing.T) {
	u := userFromProfile(remote.Row{"id": "u1", "email": "u@example.com", "avatar_url": "x.png"})
	assert.Equal(t, "u@example.com", u.Name)
	assert.Equal(t, "x.png", u.AvatarURL)

	n := notificationFromRow(remote.Row{"id": "n1", "is_read": int64(1), "created_at": int64(3000)})
	assert.True(t, n.Read)
	assert.Equal(t, time.UnixMilli(3000), n.CreatedAt)
}
