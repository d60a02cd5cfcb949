// Package config loads apolo settings from defaults, the YAML config file,
// APOLO_* environment variables and command-line flags, in increasing
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full apolo configuration
type Config struct {
	Database       DatabaseConfig `yaml:"database" mapstructure:"database"`
	Log            LogConfig      `yaml:"log" mapstructure:"log"`
	User           UserConfig     `yaml:"user" mapstructure:"user"`
	WelcomeProject bool           `yaml:"welcome_project" mapstructure:"welcome_project"`
	Metrics        MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// DatabaseConfig locates the SQLite store
type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	Dir   string `yaml:"dir" mapstructure:"dir"`
}

// UserConfig is the identity the session acts as
type UserConfig struct {
	ID        string `yaml:"id" mapstructure:"id"`
	Email     string `yaml:"email" mapstructure:"email"`
	Name      string `yaml:"name" mapstructure:"name"`
	AvatarURL string `yaml:"avatar_url" mapstructure:"avatar_url"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"db":           "database.path",
	"log-level":    "log.level",
	"log-dir":      "log.dir",
	"user":         "user.id",
	"email":        "user.email",
	"name":         "user.name",
	"welcome":      "welcome_project",
	"metrics-addr": "metrics.addr",
}

// Default returns the built-in configuration
func Default() *Config {
	data := DataDir()
	return &Config{
		Database: DatabaseConfig{Path: filepath.Join(data, "apolo.db")},
		Log:      LogConfig{Level: "info", Dir: filepath.Join(data, "logs")},
		User:     UserConfig{ID: os.Getenv("USER")},
	}
}

// Load reads the config file at path (Path() when empty), then applies the
// environment and any flags in flags that were set. A missing file is not an
// error.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("APOLO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = Path()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.dir", cfg.Log.Dir)
	v.SetDefault("user.id", cfg.User.ID)
	v.SetDefault("user.email", cfg.User.Email)
	v.SetDefault("user.name", cfg.User.Name)
	v.SetDefault("user.avatar_url", cfg.User.AvatarURL)
	v.SetDefault("welcome_project", cfg.WelcomeProject)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

// WriteDefault writes the default configuration to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	content := "# apolo configuration\n" + string(data)
	return os.WriteFile(path, []byte(content), 0644)
}

// Path returns the config file location
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "apolo", "config.yaml")
}

// DataDir returns the directory holding the database and logs
func DataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "apolo")
}
