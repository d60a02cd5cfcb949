package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tgienger/apolo/internal/config"
	"github.com/tgienger/apolo/internal/db"
	"github.com/tgienger/apolo/internal/logging"
	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/store"
	"github.com/tgienger/apolo/internal/ui"
)

// closeTimeout bounds how long shutdown waits for pending writes
const closeTimeout = 10 * time.Second

var errNoUser = errors.New("no user configured: set user.id in the config file or pass --user")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "apolo",
		Short: "Apolo - projects and nested tasks in the terminal",
		Long: `Apolo keeps projects and their task trees, applying every change
immediately and syncing it to the store in the background.

Run without a command to open the interactive interface.`,
		Version:       version,
		RunE:          runTUI,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("apolo %s (commit: %s, built: %s)\n", version, commit, date))

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $XDG_CONFIG_HOME/apolo/config.yaml)")
	flags.String("db", "", "database file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-dir", "", "directory for log files")
	flags.String("user", "", "user id to act as")
	flags.String("email", "", "user email")
	flags.String("name", "", "user display name")
	flags.Bool("welcome", false, "create an example project for users without projects")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("invite", "", "join this project on start")

	root.AddCommand(
		listCmd(),
		searchCmd(),
		exportCmd(),
		joinCmd(),
		addCmd(),
		doneCmd(),
		notificationsCmd(),
		versionCmd(),
		configCmd(),
	)
	return root
}

// session is everything a command needs to act as the configured user
type session struct {
	cfg     *config.Config
	logger  *logging.Logger
	db      *db.DB
	manager *store.Manager
	metrics *http.Server
	errs    chan error
}

// openSession loads the configuration, opens the store and loads the
// configured user's projects
func openSession(cmd *cobra.Command) (*session, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if cfg.User.ID == "" {
		return nil, errNoUser
	}

	logger, err := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Dir:     cfg.Log.Dir,
		Service: "apolo",
		Stderr:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &session{cfg: cfg, logger: logger, db: database, errs: make(chan error, 16)}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	if cfg.Metrics.Addr != "" {
		s.serveMetrics(registry)
	}

	opts := []store.Option{
		store.WithLogger(logger.Logger),
		store.WithRegistry(registry),
		store.WithErrorHandler(func(err error) {
			select {
			case s.errs <- err:
			default:
			}
		}),
	}
	if invite, _ := cmd.Flags().GetString("invite"); invite != "" {
		opts = append(opts, store.WithInvite(invite))
	}
	if cfg.WelcomeProject {
		opts = append(opts, store.WithWelcomeProject())
	}
	s.manager = store.New(database, opts...)

	user := &models.User{
		ID:        cfg.User.ID,
		Email:     cfg.User.Email,
		Name:      cfg.User.Name,
		AvatarURL: cfg.User.AvatarURL,
	}
	if err := s.manager.SetUser(user).Wait(cmd.Context()); err != nil {
		s.Close()
		return nil, fmt.Errorf("load projects: %w", err)
	}
	if err := s.publishProfile(cmd.Context()); err != nil {
		logger.Warn("profile not saved", "error", err)
	}
	return s, nil
}

// publishProfile stores the configured name and avatar in the user's
// profile so other members see them
func (s *session) publishProfile(ctx context.Context) error {
	want := s.cfg.User
	if want.Name == "" && want.AvatarURL == "" {
		return nil
	}
	users := s.manager.Users()
	var current models.User
	if i := slices.IndexFunc(users, func(u models.User) bool { return u.ID == want.ID }); i >= 0 {
		current = users[i]
	}

	var patch store.UserPatch
	if want.Name != "" && want.Name != current.Name {
		patch.Name = &want.Name
	}
	if want.AvatarURL != "" && want.AvatarURL != current.AvatarURL {
		patch.AvatarURL = &want.AvatarURL
	}
	return s.manager.UpdateCurrentUser(patch).Wait(ctx)
}

func (s *session) serveMetrics(registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	s.metrics = &http.Server{
		Addr:              s.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "addr", s.cfg.Metrics.Addr, "error", err)
		}
	}()
	s.logger.Info("serving metrics", "addr", s.cfg.Metrics.Addr)
}

// Close waits for pending writes, then releases the store and the log file
func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error
	if s.manager != nil {
		if err := s.manager.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush pending changes: %w", err))
		}
	}
	if s.metrics != nil {
		_ = s.metrics.Shutdown(ctx)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withSession runs fn with an open session and closes it afterwards
func withSession(cmd *cobra.Command, fn func(s *session) error) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

func runTUI(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		app := ui.NewApp(s.manager, s.db, s.errs)
		p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running application: %w", err)
		}
		return nil
	})
}
