package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/remote"
	"github.com/tgienger/apolo/internal/tree"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrNoUser is returned by operations that need an acting user
var ErrNoUser = errors.New("no active user")

// SetUser switches the acting identity. State is cleared before SetUser
// returns; for a non-nil user a full load is dispatched and tracked by the
// returned Commit.
func (m *Manager) SetUser(user *models.User) *Commit {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	if m.user == nil || user == nil || m.user.ID != user.ID {
		m.dirty = make(map[string]int)
		m.welcomed = false
	}
	m.state = models.AppState{}
	m.activeProject = ""
	m.users = nil
	m.notifications = nil
	m.stopFeed()
	if user != nil {
		u := *user
		m.user = &u
	} else {
		m.user = nil
	}
	m.mu.Unlock()
	m.notify()

	if user == nil {
		c := newCommit()
		c.finish("", nil)
		return c
	}
	return m.write("load", func(ctx context.Context) error {
		return m.load(ctx, gen)
	})
}

// Reload fetches the full state for the current user, replacing what is
// loaded. Any load still in flight is superseded and its result discarded.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return ErrNoUser
	}
	m.generation++
	gen := m.generation
	m.mu.Unlock()
	return m.load(ctx, gen)
}

// load builds the state for generation gen. Results of a load whose
// generation has been superseded are dropped.
func (m *Manager) load(ctx context.Context, gen uint64) (err error) {
	ctx, span := tracer.Start(ctx, "store.load",
		trace.WithAttributes(attribute.Int64("apolo.generation", int64(gen))))
	defer span.End()
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.metrics.loadDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	m.mu.Lock()
	if m.user == nil || gen != m.generation {
		m.mu.Unlock()
		return nil
	}
	user := *m.user
	m.mu.Unlock()

	projects, err := m.fetchProjects(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}

	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	byProject := make(map[string][]remote.Row)
	if len(ids) > 0 {
		rows, err := m.remote.Select(ctx, remote.Tasks, remote.Query{
			Filter: remote.WhereIn("project_id", ids),
			Order:  []remote.Order{{Column: "position"}},
		})
		if err != nil {
			return fmt.Errorf("load tasks: %w", err)
		}
		for _, r := range rows {
			pid := r.String("project_id")
			byProject[pid] = append(byProject[pid], r)
		}
	}
	for i := range projects {
		projects[i].Tasks = BuildForest(byProject[projects[i].ID])
	}

	users, err := m.fetchProfiles(ctx)
	if err != nil {
		m.logger.Debug("profile fetch skipped", "error", err)
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Debug("discarding stale load", "generation", gen)
		return nil
	}
	m.state = models.AppState{Projects: m.carryPending(projects)}
	if m.projectIndex(m.activeProject) < 0 {
		m.activeProject = ""
	}
	if users != nil {
		m.users = users
		m.refreshCurrentUser(users)
	}
	invite := m.invite
	joinInvite := invite != "" && m.projectIndex(invite) < 0
	m.invite = ""
	welcome := m.welcome && !m.welcomed && !joinInvite && len(m.state.Projects) == 0
	if welcome {
		m.welcomed = true
	}
	m.mu.Unlock()
	m.notify()
	m.logger.Info("state loaded", "user", user.ID, "projects", len(projects))

	m.startFeed(gen, user.ID)

	if joinInvite {
		joined, err := m.join(ctx, user.ID, invite)
		if err != nil {
			m.report("join_project", err)
		} else if joined {
			return m.load(ctx, gen)
		}
	}
	if welcome {
		if err := m.createWelcomeProject(ctx, user.ID); err != nil {
			m.logger.Error("welcome project failed", "error", err)
			return nil
		}
		return m.load(ctx, gen)
	}
	return nil
}

// fetchProjects returns owned and shared projects, merged and sorted. Only
// the owned query is fatal.
func (m *Manager) fetchProjects(ctx context.Context, userID string) ([]models.Project, error) {
	var owned, shared []remote.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := m.remote.Select(gctx, remote.Projects, remote.Query{
			Filter: remote.Where("owner_id", userID),
			Order:  []remote.Order{{Column: "position"}, {Column: "created_at", Desc: true}},
		})
		owned = rows
		return err
	})
	g.Go(func() error {
		shared = m.fetchShared(gctx, userID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return MergeProjects(projectsFromRows(owned), projectsFromRows(shared)), nil
}

func (m *Manager) fetchShared(ctx context.Context, userID string) []remote.Row {
	members, err := m.remote.Select(ctx, remote.ProjectMembers, remote.Query{
		Filter: remote.Where("user_id", userID),
	})
	if err != nil {
		m.logger.Warn("shared projects lookup failed", "error", err)
		return nil
	}
	if len(members) == 0 {
		return nil
	}
	ids := make([]string, len(members))
	for i, r := range members {
		ids[i] = r.String("project_id")
	}
	rows, err := m.remote.Select(ctx, remote.Projects, remote.Query{
		Filter: remote.WhereIn("id", ids),
		Order:  []remote.Order{{Column: "position"}},
	})
	if err != nil {
		m.logger.Warn("shared projects fetch failed", "error", err)
		return nil
	}
	return rows
}

func projectsFromRows(rows []remote.Row) []models.Project {
	out := make([]models.Project, len(rows))
	for i, r := range rows {
		out[i] = ProjectFromRow(r)
	}
	return out
}

func (m *Manager) fetchProfiles(ctx context.Context) ([]models.User, error) {
	rows, err := m.remote.Select(ctx, remote.Profiles, remote.Query{})
	if err != nil {
		return nil, err
	}
	users := make([]models.User, len(rows))
	for i, r := range rows {
		users[i] = userFromProfile(r)
	}
	return users, nil
}

// refreshCurrentUser copies display fields from the user's stored profile,
// except fields edited locally and not yet committed. Callers must hold m.mu.
func (m *Manager) refreshCurrentUser(users []models.User) {
	if m.user == nil {
		return
	}
	i := slices.IndexFunc(users, func(u models.User) bool { return u.ID == m.user.ID })
	if i < 0 {
		return
	}
	u := *m.user
	if m.dirty[fieldName] == 0 {
		u.Name = users[i].Name
	}
	if m.dirty[fieldAvatar] == 0 {
		u.AvatarURL = users[i].AvatarURL
	}
	users[i].Name, users[i].AvatarURL = u.Name, u.AvatarURL
	m.user = &u
}

// carryPending keeps projects and tasks whose creation is still in flight,
// which a fresh load cannot know about yet. Callers must hold m.mu.
func (m *Manager) carryPending(fresh []models.Project) []models.Project {
	for _, old := range m.state.Projects {
		if _, ok := m.pending[old.ID]; ok {
			fresh = append(fresh, old)
			continue
		}
		i := slices.IndexFunc(fresh, func(p models.Project) bool { return p.ID == old.ID })
		if i < 0 {
			continue
		}
		p := fresh[i]
		tree.Walk(old.Tasks, func(t models.Task, parentID string) bool {
			if _, ok := m.pending[t.ID]; !ok {
				return true
			}
			if _, exists := tree.Find(p.Tasks, t.ID); !exists {
				parent := m.canonical(parentID)
				siblings, ok := tree.Siblings(p.Tasks, parent)
				if !ok {
					parent = ""
					siblings = p.Tasks
				}
				p.Tasks, _ = tree.InsertAt(p.Tasks, parent, len(siblings), t)
			}
			return false
		})
		fresh[i] = p
	}
	return fresh
}

// JoinProject adds the current user as an editor of projectID and reloads.
// Being a member already is not an error.
func (m *Manager) JoinProject(projectID string) *Commit {
	m.mu.Lock()
	if m.user == nil || projectID == "" {
		m.mu.Unlock()
		return skipped()
	}
	userID := m.user.ID
	m.mu.Unlock()

	return m.write("join_project", func(ctx context.Context) error {
		joined, err := m.join(ctx, userID, projectID)
		if err != nil || !joined {
			return err
		}
		return m.Reload(ctx)
	})
}

func (m *Manager) join(ctx context.Context, userID, projectID string) (bool, error) {
	_, err := m.remote.Insert(ctx, remote.ProjectMembers, remote.Row{
		"project_id": projectID,
		"user_id":    userID,
		"role":       "editor",
	})
	if errors.Is(err, remote.ErrConflict) {
		m.logger.Info("already a member", "project", projectID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.logger.Info("joined project", "project", projectID)
	m.notifyOwner(ctx, userID, projectID)
	return true, nil
}

// notifyOwner tells a project's owner that userID joined it. Failures are
// only logged.
func (m *Manager) notifyOwner(ctx context.Context, userID, projectID string) {
	rows, err := m.remote.Select(ctx, remote.Projects, remote.Query{Filter: remote.Where("id", projectID), Limit: 1})
	if err != nil || len(rows) == 0 {
		return
	}
	owner := rows[0].String("owner_id")
	if owner == "" || owner == userID {
		return
	}
	name := userID
	m.mu.Lock()
	if m.owns(userID) && m.user.Name != "" {
		name = m.user.Name
	}
	m.mu.Unlock()
	_, err = m.remote.Insert(ctx, remote.Notifications, remote.Row{
		"user_id": owner,
		"title":   "New collaborator",
		"body":    fmt.Sprintf("%s joined %s", name, rows[0].String("title")),
	})
	if err != nil {
		m.logger.Warn("owner notification failed", "project", projectID, "error", err)
	}
}

func (m *Manager) createWelcomeProject(ctx context.Context, userID string) error {
	row, err := m.remote.Insert(ctx, remote.Projects, remote.Row{
		"owner_id": userID,
		"title":    "Example project",
		"subtitle": "Welcome to Apolo!",
		"color":    "indigo",
		"position": 1.0,
	})
	if err != nil {
		return err
	}
	for i, title := range []string{"Explore Apolo", "Personalize my profile"} {
		_, err := m.remote.Insert(ctx, remote.Tasks, remote.Row{
			"project_id": row.String("id"),
			"title":      title,
			"status":     statusColumn(models.StatusPending),
			"position":   float64(i + 1),
			"expanded":   true,
			"created_by": userID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
