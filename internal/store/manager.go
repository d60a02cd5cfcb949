// Package store holds the in-memory project and task state for one session
// and keeps it in sync with a remote store.
//
// Every mutation has two phases. The apply phase runs synchronously on the
// caller's goroutine and changes in-memory state before the method returns.
// The commit phase persists the change through a Dispatcher and is tracked
// by the returned *Commit, which callers may wait on or ignore.
//
// Failure policy: a failed project create or delete is rolled back; every
// other failed write keeps the optimistic state and is only reported.
package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/remote"
	"github.com/tgienger/apolo/internal/tree"
)

// Manager owns the session state. Construct one per session with New and
// pass it to every component that reads or mutates state.
type Manager struct {
	remote   remote.Store
	logger   *slog.Logger
	metrics  *Metrics
	dispatch Dispatcher
	queue    *serialQueue
	now      func() time.Time
	timeout  time.Duration
	onError  func(error)
	welcome  bool

	mu            sync.Mutex
	state         models.AppState
	user          *models.User
	users         []models.User
	dirty         map[string]int // profile field -> uncommitted local edits
	activeProject string
	notifications []models.Notification
	invite        string
	welcomed      bool
	generation    uint64
	feedCancel    context.CancelFunc
	pending       map[string]*Commit // creation commits by temporary id
	resolved      map[string]string  // temporary id -> remote id

	syncing  atomic.Int32
	inflight tracker
	changes  chan struct{}
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRegistry registers the manager's metrics with reg
func WithRegistry(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.metrics = NewMetrics(reg) }
}

// WithDispatcher replaces the default serial commit queue
func WithDispatcher(d Dispatcher) Option {
	return func(m *Manager) { m.dispatch = d }
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTimeout bounds each commit's remote calls
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithErrorHandler receives every commit failure, for user-facing display
func WithErrorHandler(fn func(error)) Option {
	return func(m *Manager) { m.onError = fn }
}

// WithInvite makes the next load join projectID if the user lacks it
func WithInvite(projectID string) Option {
	return func(m *Manager) { m.invite = projectID }
}

// WithWelcomeProject creates a sample project for users with none
func WithWelcomeProject() Option {
	return func(m *Manager) { m.welcome = true }
}

// New creates a manager persisting to r
func New(r remote.Store, opts ...Option) *Manager {
	m := &Manager{
		remote:   r,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
		timeout:  30 * time.Second,
		dirty:    make(map[string]int),
		pending:  make(map[string]*Commit),
		resolved: make(map[string]string),
		changes:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(prometheus.NewRegistry())
	}
	if m.dispatch == nil {
		m.queue = newSerialQueue()
		m.dispatch = m.queue.push
	}
	return m
}

// Changes is signalled after every state change, including ones made by
// commits and realtime events. Signals are coalesced.
func (m *Manager) Changes() <-chan struct{} {
	return m.changes
}

func (m *Manager) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

// Flush waits until no dispatched commit is left, including commits
// dispatched while it waits
func (m *Manager) Flush(ctx context.Context) error {
	for {
		select {
		case <-m.inflight.idle():
			if m.inflight.count() == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close waits for pending commits and stops background work
func (m *Manager) Close(ctx context.Context) error {
	err := m.Flush(ctx)
	m.mu.Lock()
	m.stopFeed()
	m.mu.Unlock()
	if m.queue != nil && err == nil {
		m.queue.stop()
	}
	return err
}

// Syncing reports whether a project create or delete is in flight
func (m *Manager) Syncing() bool {
	return m.syncing.Load() > 0
}

// Snapshot returns the current state. The returned value shares structure
// with the manager and must be treated as read-only.
func (m *Manager) Snapshot() models.AppState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.AppState{Projects: slices.Clone(m.state.Projects)}
}

// Project returns a loaded project by id
func (m *Manager) Project(id string) (models.Project, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.projectIndex(m.canonical(id))
	if i < 0 {
		return models.Project{}, false
	}
	return m.state.Projects[i], true
}

// SetActiveProject selects the project task operations act on
func (m *Manager) SetActiveProject(id string) {
	m.mu.Lock()
	m.activeProject = m.canonical(id)
	m.mu.Unlock()
	m.notify()
}

// ActiveProject returns the selected project
func (m *Manager) ActiveProject() (models.Project, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.projectIndex(m.activeProject)
	if i < 0 {
		return models.Project{}, false
	}
	return m.state.Projects[i], true
}

// Task finds a task in the active project
func (m *Manager) Task(id string) (models.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.projectIndex(m.activeProject)
	if i < 0 {
		return models.Task{}, false
	}
	return tree.Find(m.state.Projects[i].Tasks, m.canonical(id))
}

// CurrentUser returns the acting user
func (m *Manager) CurrentUser() (models.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return models.User{}, false
	}
	return *m.user, true
}

// Users returns every known profile
func (m *Manager) Users() []models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.users)
}

// projectIndex returns the index of id in the project list, or -1.
// Callers must hold m.mu.
func (m *Manager) projectIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(m.state.Projects, func(p models.Project) bool { return p.ID == id })
}

// setProject replaces the project at i without mutating the shared list.
// Callers must hold m.mu.
func (m *Manager) setProject(i int, p models.Project) {
	projects := slices.Clone(m.state.Projects)
	projects[i] = p
	m.state.Projects = projects
}

// active returns the active project and its index when a user and project
// are selected. Callers must hold m.mu.
func (m *Manager) active() (models.Project, int, bool) {
	if m.user == nil {
		return models.Project{}, -1, false
	}
	i := m.projectIndex(m.activeProject)
	if i < 0 {
		return models.Project{}, -1, false
	}
	return m.state.Projects[i], i, true
}

// substitute replaces a temporary id with its remote id wherever it occurs.
// When a load already delivered the remote copy, the temporary entry is
// dropped and its pending children move under the remote copy.
// Callers must hold m.mu.
func (m *Manager) substitute(tempID, id string) {
	if m.activeProject == tempID {
		m.activeProject = id
	}
	if i := m.projectIndex(tempID); i >= 0 {
		p := m.state.Projects[i]
		j := m.projectIndex(id)
		if j < 0 {
			p.ID = id
			m.setProject(i, p)
			return
		}
		loaded := m.state.Projects[j]
		for _, t := range p.Tasks {
			if _, ok := tree.Find(loaded.Tasks, t.ID); !ok {
				loaded.Tasks = append(slices.Clip(loaded.Tasks), t)
			}
		}
		m.setProject(j, loaded)
		m.state.Projects = slices.Delete(slices.Clone(m.state.Projects), i, i+1)
		return
	}
	for i, p := range m.state.Projects {
		t, ok := tree.Find(p.Tasks, tempID)
		if !ok {
			continue
		}
		if _, loaded := tree.Find(p.Tasks, id); loaded {
			p.Tasks = tree.DeleteAt(p.Tasks, tempID)
			for _, sub := range t.Subtasks {
				if _, ok := tree.Find(p.Tasks, sub.ID); !ok {
					p.Tasks = tree.AddSubtask(p.Tasks, id, sub)
				}
			}
		} else {
			p.Tasks = tree.UpdateAt(p.Tasks, tempID, func(t models.Task) models.Task {
				t.ID = id
				return t
			})
		}
		m.setProject(i, p)
		return
	}
}
