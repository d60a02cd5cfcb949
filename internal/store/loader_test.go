package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgienger/apolo/internal/remote"
)

func TestLoadMergesOwnedAndShared(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p1", "alice", 2)
	seedProject(r, "p2", "bob", 1)
	seedProject(r, "p3", "bob", 0)
	r.seed(remote.Projects, remote.Row{"id": "p4", "owner_id": "alice", "title": "Newer", "position": 2.0, "created_at": int64(2000)})
	r.seed(remote.ProjectMembers,
		remote.Row{"project_id": "p2", "user_id": "alice", "role": "editor"},
		remote.Row{"project_id": "p1", "user_id": "alice", "role": "editor"},
	)
	m := newManager(t, r)
	login(t, m, nil, alice)

	projects := m.Snapshot().Projects
	assert.Equal(t, []string{"p2", "p4", "p1"}, projectIDs(projects))
	assert.Equal(t, "bob", projects[0].CreatedBy)
	assert.Equal(t, []string{"p1-a", "p1-b", "p1-c"}, taskIDs(projects[2].Tasks))
	assert.Empty(t, projects[1].Tasks)
}

func TestLoadFailsWhenOwnedFetchFails(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p1", "alice", 1)
	boom := errors.New("boom")
	r.failOn("select", remote.Projects, boom)
	var reported []error
	m := newManager(t, r, WithErrorHandler(func(err error) { reported = append(reported, err) }))

	c := m.SetUser(&alice)
	require.ErrorIs(t, c.Wait(ctx), boom)
	assert.Empty(t, m.Snapshot().Projects)
	require.NoError(t, m.Flush(ctx))
	assert.Len(t, reported, 1)
}

func TestLoadToleratesSharedAndProfileFailures(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p1", "alice", 1)
	r.failOn("select", remote.ProjectMembers, errors.New("denied"))
	r.failOn("select", remote.Profiles, errors.New("denied"))
	m := newManager(t, r)

	login(t, m, nil, alice)
	assert.Equal(t, []string{"p1"}, projectIDs(m.Snapshot().Projects))
	u, ok := m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "Alice", u.Name)
}

func TestLoadFailsWhenTaskFetchFails(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p1", "alice", 1)
	r.failOn("select", remote.Tasks, errors.New("boom"))
	m := newManager(t, r)

	require.Error(t, m.SetUser(&alice).Wait(ctx))
	assert.Empty(t, m.Snapshot().Projects)
}

func TestSetUserClearsStateImmediately(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p1", "alice", 1)
	seedProject(r, "p2", "bob", 1)
	m, q := newQueuedManager(t, r)
	login(t, m, q, alice)
	m.SetActiveProject("p1")

	m.SetUser(&bob)
	assert.Empty(t, m.Snapshot().Projects)
	_, ok := m.ActiveProject()
	assert.False(t, ok)

	q.run()
	assert.Equal(t, []string{"p2"}, projectIDs(m.Snapshot().Projects))

	c := m.SetUser(nil)
	require.NoError(t, c.Wait(ctx))
	assert.Empty(t, m.Snapshot().Projects)
	_, ok = m.CurrentUser()
	assert.False(t, ok)
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p1", "alice", 1)
	seedProject(r, "p2", "bob", 1)
	m, q := newQueuedManager(t, r)

	first := m.SetUser(&alice)
	second := m.SetUser(&bob)
	q.run()

	require.NoError(t, first.Wait(ctx))
	require.NoError(t, second.Wait(ctx))
	assert.Equal(t, []string{"p2"}, projectIDs(m.Snapshot().Projects))
	u, _ := m.CurrentUser()
	assert.Equal(t, "bob", u.ID)
}

func TestReloadWithoutUser(t *testing.T) {
	m := newManager(t, newFakeRemote())
	assert.ErrorIs(t, m.Reload(ctx), ErrNoUser)
}

func TestReloadCarriesPendingCreations(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p1", "alice", 1)
	m, q := newQueuedManager(t, r)
	login(t, m, q, alice)
	m.SetActiveProject("p1")

	m.AddProject("Draft", "")
	m.AddTask("p1-a", "Draft task")
	projects := m.Snapshot().Projects
	require.Len(t, projects, 2)
	tmpProject := projects[1].ID
	a, _ := m.Task("p1-a")
	tmpTask := a.Subtasks[0].ID

	require.NoError(t, m.Reload(ctx))

	projects = m.Snapshot().Projects
	assert.Equal(t, []string{"p1", tmpProject}, projectIDs(projects))
	a, ok := m.Task("p1-a")
	require.True(t, ok)
	require.Len(t, a.Subtasks, 1)
	assert.Equal(t, tmpTask, a.Subtasks[0].ID)

	q.run()
	projects = m.Snapshot().Projects
	assert.False(t, isTemp(projects[1].ID))
	a, _ = m.Task("p1-a")
	assert.False(t, isTemp(a.Subtasks[0].ID))
}

func TestLoadRefreshesProfileUnlessEditedLocally(t *testing.T) {
	r := newFakeRemote()
	r.seed(remote.Profiles,
		remote.Row{"id": "alice", "email": "alice@example.com", "full_name": "Alice Remote"},
		remote.Row{"id": "bob", "email": "bob@example.com"},
	)
	m, q := newQueuedManager(t, r)
	login(t, m, q, alice)

	u, _ := m.CurrentUser()
	assert.Equal(t, "Alice Remote", u.Name)
	users := m.Users()
	require.Len(t, users, 2)
	assert.Equal(t, "bob@example.com", users[1].Name, "name falls back to email")

	name := "Alice Local"
	c := m.UpdateCurrentUser(UserPatch{Name: &name})
	require.NoError(t, m.Reload(ctx))
	u, _ = m.CurrentUser()
	assert.Equal(t, "Alice Local", u.Name, "uncommitted edit survives a load")

	q.run()
	require.NoError(t, c.Wait(ctx))
	row, _ := r.find(remote.Profiles, "alice")
	assert.Equal(t, "Alice Local", row.String("full_name"))

	require.NoError(t, r.Update(ctx, remote.Profiles, remote.Where("id", "alice"), remote.Row{"full_name": "Alice Elsewhere"}))
	require.NoError(t, m.Reload(ctx))
	u, _ = m.CurrentUser()
	assert.Equal(t, "Alice Elsewhere", u.Name)
}

func TestUpdateCurrentUserFailureStaysDirty(t *testing.T) {
	r := newFakeRemote()
	r.seed(remote.Profiles, remote.Row{"id": "alice", "full_name": "Alice Remote"})
	m, q := newQueuedManager(t, r)
	login(t, m, q, alice)

	r.failOn("upsert", remote.Profiles, errors.New("offline"))
	avatar := "https://example.com/a.png"
	c := m.UpdateCurrentUser(UserPatch{AvatarURL: &avatar})
	q.run()
	require.Error(t, c.Wait(ctx))

	require.NoError(t, m.Reload(ctx))
	u, _ := m.CurrentUser()
	assert.Equal(t, avatar, u.AvatarURL)
	assert.Equal(t, "Alice Remote", u.Name)

	assert.False(t, m.UpdateCurrentUser(UserPatch{}).Applied())
}

func TestInviteJoinsProject(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p9", "bob", 1)
	m := newManager(t, r, WithInvite("p9"))

	login(t, m, nil, alice)

	assert.Equal(t, []string{"p9"}, projectIDs(m.Snapshot().Projects))
	members := r.all(remote.ProjectMembers)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].String("user_id"))
	assert.Equal(t, "editor", members[0].String("role"))

	notes := r.all(remote.Notifications)
	require.Len(t, notes, 1)
	assert.Equal(t, "bob", notes[0].String("user_id"))
	assert.Equal(t, "Alice joined Project p9", notes[0].String("body"))

	// the invite is used once
	require.NoError(t, m.Reload(ctx))
	assert.Equal(t, 1, r.called("insert", remote.ProjectMembers))
}

func TestJoinProjectWhenAlreadyMember(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p9", "bob", 1)
	r.seed(remote.ProjectMembers, remote.Row{"project_id": "p9", "user_id": "alice", "role": "editor"})
	m := newManager(t, r)
	login(t, m, nil, alice)

	require.NoError(t, m.JoinProject("p9").Wait(ctx))
	assert.Len(t, r.all(remote.ProjectMembers), 1)
	assert.Empty(t, r.all(remote.Notifications))
	assert.False(t, m.JoinProject("").Applied())
}

func TestJoinProjectReloads(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p9", "bob", 1)
	m := newManager(t, r)
	login(t, m, nil, alice)
	assert.Empty(t, m.Snapshot().Projects)

	require.NoError(t, m.JoinProject("p9").Wait(ctx))
	assert.Equal(t, []string{"p9"}, projectIDs(m.Snapshot().Projects))
}

func TestWelcomeProject(t *testing.T) {
	r := newFakeRemote()
	m := newManager(t, r, WithWelcomeProject())

	login(t, m, nil, alice)

	projects := m.Snapshot().Projects
	require.Len(t, projects, 1)
	assert.Equal(t, "Example project", projects[0].Title)
	assert.Equal(t, "alice", projects[0].CreatedBy)
	require.Len(t, projects[0].Tasks, 2)
	assert.Equal(t, "Explore Apolo", projects[0].Tasks[0].Title)

	// an emptied account is not seeded again in the same session
	require.NoError(t, m.DeleteProject(projects[0].ID).Wait(ctx))
	require.NoError(t, m.Reload(ctx))
	assert.Empty(t, m.Snapshot().Projects)
}

func TestNotificationFeed(t *testing.T) {
	r := newFakeRemote()
	r.seed(remote.Notifications,
		remote.Row{"id": "n1", "user_id": "alice", "title": "old", "is_read": false, "created_at": int64(1000)},
		remote.Row{"id": "n2", "user_id": "alice", "title": "older read", "is_read": true, "created_at": int64(2000)},
		remote.Row{"id": "n3", "user_id": "bob", "title": "not mine", "created_at": int64(3000)},
	)
	m := newManager(t, r)
	login(t, m, nil, alice)

	notes := m.Notifications()
	require.Len(t, notes, 2)
	assert.Equal(t, "n2", notes[0].ID)
	assert.Equal(t, 1, m.UnreadCount())

	_, err := r.Insert(ctx, remote.Notifications, remote.Row{"user_id": "alice", "title": "fresh"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		notes := m.Notifications()
		return len(notes) == 3 && notes[0].Title == "fresh"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, m.UnreadCount())

	require.NoError(t, m.MarkNotificationRead("n1").Wait(ctx))
	assert.Equal(t, 1, m.UnreadCount())
	row, _ := r.find(remote.Notifications, "n1")
	assert.Equal(t, true, row["is_read"])
	assert.False(t, m.MarkNotificationRead("n1").Applied(), "already read")

	// a new identity drops the old feed
	login(t, m, nil, bob)
	notes = m.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "n3", notes[0].ID)
}

func TestChangesSignalled(t *testing.T) {
	r := newFakeRemote()
	seedProject(r, "p1", "alice", 1)
	m := newManager(t, r)
	login(t, m, nil, alice)

	// drain the signal left by the load
	select {
	case <-m.Changes():
	default:
	}
	m.AddProject("x", "")
	select {
	case <-m.Changes():
	default:
		t.Fatal("expected a change signal")
	}
	require.NoError(t, m.Flush(ctx))
	_, ok := r.find(remote.Projects, m.Snapshot().Projects[1].ID)
	assert.True(t, ok)
}
