package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgienger/apolo/internal/models"
	"gopkg.in/yaml.v3"
)

// env isolates a test from the user's config and data directories
type env struct {
	t   *testing.T
	dir string
}

func newEnv(t *testing.T) *env {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	return &env{t: t, dir: dir}
}

// as runs apolo as user with args
func (e *env) as(user string, args ...string) (string, error) {
	e.t.Helper()
	args = append(args,
		"--db", filepath.Join(e.dir, "apolo.db"),
		"--log-dir", filepath.Join(e.dir, "logs"),
		"--user", user,
		"--name", strings.ToUpper(user[:1])+user[1:],
	)
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (e *env) must(user string, args ...string) string {
	e.t.Helper()
	out, err := e.as(user, args...)
	require.NoError(e.t, err, out)
	return out
}

func TestAddListAndDone(t *testing.T) {
	e := newEnv(t)

	projectID := strings.TrimSpace(e.must("alice", "add", "project", "Garden", "--subtitle", "backyard"))
	require.NotEmpty(t, projectID)
	waterID := strings.TrimSpace(e.must("alice", "add", "task", "Water", "--project", projectID))
	rosesID := strings.TrimSpace(e.must("alice", "add", "task", "Roses", "--project", projectID,
		"--parent", waterID, "--tag", "outside"))

	out := e.must("alice", "list")
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "Garden")

	out = e.must("alice", "list", "--project", projectID)
	assert.Contains(t, out, "[ ] Water (0%)")
	assert.Contains(t, out, "  [ ] Roses #outside")

	out = e.must("alice", "done", rosesID, "--project", projectID)
	assert.Equal(t, "Roses is now completed\n", out)

	out = e.must("alice", "list", "--project", projectID)
	assert.Contains(t, out, "Garden (100%)")
	assert.Contains(t, out, "[ ] Water (100%)")
	assert.Contains(t, out, "  [x] Roses")
}

func TestAddTaskErrors(t *testing.T) {
	e := newEnv(t)

	_, err := e.as("alice", "add", "task", "Orphan", "--project", "missing")
	assert.ErrorContains(t, err, "project missing not found")

	projectID := strings.TrimSpace(e.must("alice", "add", "project", "Garden"))
	_, err = e.as("alice", "add", "task", "Orphan", "--project", projectID, "--parent", "missing")
	assert.ErrorContains(t, err, "parent task missing not found")

	_, err = e.as("alice", "add", "task", "Orphan")
	assert.Error(t, err, "--project is required")
}

func TestSearch(t *testing.T) {
	e := newEnv(t)
	projectID := strings.TrimSpace(e.must("alice", "add", "project", "Garden"))
	e.must("alice", "add", "task", "Prune roses", "--project", projectID)
	e.must("alice", "add", "task", "Mow", "--project", projectID)

	out := e.must("alice", "search", "ROSE")
	assert.Contains(t, out, "Garden")
	assert.Contains(t, out, "Prune roses")
	assert.NotContains(t, out, "Mow")

	out = e.must("alice", "search", "tulips")
	assert.Contains(t, out, `No tasks match "tulips".`)
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	projectID := strings.TrimSpace(e.must("alice", "add", "project", "Garden"))
	e.must("alice", "add", "task", "Water", "--project", projectID, "--description", "every morning")

	path := filepath.Join(e.dir, "export.yaml")
	out := e.must("alice", "export", "--out", path)
	assert.Contains(t, out, "Exported 1 projects")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var state models.AppState
	require.NoError(t, yaml.Unmarshal(data, &state))
	require.Len(t, state.Projects, 1)
	assert.Equal(t, projectID, state.Projects[0].ID)
	require.Len(t, state.Projects[0].Tasks, 1)
	assert.Equal(t, "every morning", state.Projects[0].Tasks[0].Description)
}

func TestJoinNotifiesOwner(t *testing.T) {
	e := newEnv(t)
	projectID := strings.TrimSpace(e.must("alice", "add", "project", "Garden"))

	out := e.must("bob", "join", projectID)
	assert.Equal(t, "Joined Garden\n", out)

	out = e.must("bob", "list")
	assert.Contains(t, out, "Garden", "shared projects are listed")

	out = e.must("alice", "notifications", "--mark-read")
	assert.Contains(t, out, "1 unread")
	assert.Contains(t, out, "Bob joined Garden")

	out = e.must("alice", "notifications")
	assert.Contains(t, out, "0 unread")
}

func TestInviteFlag(t *testing.T) {
	e := newEnv(t)
	projectID := strings.TrimSpace(e.must("alice", "add", "project", "Garden"))

	out := e.must("bob", "list", "--invite", projectID)
	assert.Contains(t, out, "Garden")
}

func TestWelcomeProject(t *testing.T) {
	e := newEnv(t)
	out := e.must("carol", "list", "--welcome")
	assert.Contains(t, out, "Example project")

	out = e.must("carol", "search", "explore")
	assert.Contains(t, out, "Explore Apolo")
}

func TestRequiresUser(t *testing.T) {
	newEnv(t)
	t.Setenv("USER", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"list", "--config", filepath.Join(t.TempDir(), "none.yaml")})
	assert.ErrorIs(t, root.Execute(), errNoUser)
}

func TestConfigCommands(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "apolo.yaml")

	root := func(args ...string) (string, error) {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(append(args, "--config", path))
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := root("config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = root("config", "init")
	assert.Error(t, err, "existing file is kept")
	_, err = root("config", "init", "--force")
	assert.NoError(t, err)

	out, err = root("config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "database:")
	assert.Contains(t, out, filepath.Join(e.dir, "data", "apolo", "apolo.db"))

	out, err = root("config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, "Config: "+path)
}

func TestVersion(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "apolo dev (commit: none, built: unknown)\n", out.String())
}
