// Package logging sets up the structured logger.
//
// The terminal belongs to the TUI, so interactive sessions log to a JSON
// file named {service}_{date}.log under the configured directory. Without a
// directory, records go to stderr as text.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config configures a Logger
type Config struct {
	Level   string
	Dir     string
	Service string
	// Stderr overrides the fallback writer, for tests
	Stderr io.Writer
}

// Logger is a slog.Logger that owns its output file
type Logger struct {
	*slog.Logger
	file *os.File
	path string
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger from cfg
func New(cfg Config) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	if cfg.Dir == "" {
		w := cfg.Stderr
		if w == nil {
			w = os.Stderr
		}
		return &Logger{Logger: slog.New(slog.NewTextHandler(w, opts))}, nil
	}

	dir := expandPath(cfg.Dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	service := cfg.Service
	if service == "" {
		service = "apolo"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(file, opts)).With("service", service)
	return &Logger{Logger: logger, file: file, path: path}, nil
}

// Path returns the log file path, or "" when logging to stderr
func (l *Logger) Path() string {
	return l.path
}

// Close flushes and closes the log file
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Sync()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}

// expandPath expands a leading ~ to the user's home directory
func expandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
