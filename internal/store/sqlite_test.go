package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgienger/apolo/internal/db"
	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/tree"
)

// TestSessionAgainstSQLite drives a full session through the SQLite store and
// checks that a second session sees the same forest
func TestSessionAgainstSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apolo.db")
	database, err := db.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	m := newManager(t, database)
	login(t, m, nil, alice)

	add := m.AddProject("Home", "chores")
	m.SetActiveProject(m.Snapshot().Projects[0].ID)
	m.AddTask("", "Kitchen")
	kitchen := activeTasks(t, m)[0].ID
	m.AddTask(kitchen, "Dishes")
	m.AddTask(kitchen, "Floor")
	m.AddTask("", "Garden")
	require.NoError(t, m.Flush(ctx))
	require.NoError(t, add.Wait(ctx))

	kitchenTask, ok := m.Task(kitchen)
	require.True(t, ok)
	floor := kitchenTask.Subtasks[1].ID
	m.ToggleTaskStatus(floor)
	m.MoveTask(floor, kitchenTask.Subtasks[0].ID, models.PlaceBefore)
	m.AddActivity(floor, "done twice", models.ActivityComment)
	require.NoError(t, m.Flush(ctx))

	other := newManager(t, database)
	login(t, other, nil, alice)

	projects := other.Snapshot().Projects
	require.Len(t, projects, 1)
	assert.Equal(t, "Home", projects[0].Title)
	assert.Equal(t, add.ID(), projects[0].ID)

	other.SetActiveProject(projects[0].ID)
	tasks := activeTasks(t, other)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Kitchen", tasks[0].Title)
	assert.Equal(t, "Garden", tasks[1].Title)
	require.Len(t, tasks[0].Subtasks, 2)
	moved := tasks[0].Subtasks[0]
	assert.Equal(t, "Floor", moved.Title)
	assert.Equal(t, models.StatusCompleted, moved.Status)
	require.Len(t, moved.Activity, 1)
	assert.Equal(t, "done twice", moved.Activity[0].Content)
	assert.Equal(t, 25, tree.ProjectProgress(projects[0]))
}
