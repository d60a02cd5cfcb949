package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("USER", "alice")

	cfg := Default()
	assert.Equal(t, "/data/apolo/apolo.db", cfg.Database.Path)
	assert.Equal(t, "/data/apolo/logs", cfg.Log.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "alice", cfg.User.ID)
	assert.False(t, cfg.WelcomeProject)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, "/data/apolo/apolo.db", cfg.Database.Path)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /from/file.db
log:
  level: debug
user:
  id: file-user
  name: File User
welcome_project: true
`), 0644))
	t.Setenv("APOLO_USER_NAME", "Env User")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.String("user", "", "")
	require.NoError(t, flags.Parse([]string{"--user", "flag-user"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "/from/file.db", cfg.Database.Path, "unset flags do not override")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "flag-user", cfg.User.ID)
	assert.Equal(t, "Env User", cfg.User.Name)
	assert.True(t, cfg.WelcomeProject)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unclosed"), 0644))
	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apolo", "config.yaml")
	require.NoError(t, WriteDefault(path, false))
	assert.Error(t, WriteDefault(path, false), "existing file is kept")
	require.NoError(t, WriteDefault(path, true))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Database.Path, cfg.Database.Path)
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	assert.Equal(t, "/cfg/apolo/config.yaml", Path())
}
