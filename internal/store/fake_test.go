package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/remote"
)

var (
	ctx   = context.Background()
	clock = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	alice = models.User{ID: "alice", Email: "alice@example.com", Name: "Alice"}
	bob   = models.User{ID: "bob", Email: "bob@example.com", Name: "Bob"}
)

// fakeRemote is an in-memory remote.Store with per-call failure injection
type fakeRemote struct {
	mu    sync.Mutex
	rows  map[string][]remote.Row
	fail  map[string]error // keyed "op:table"
	calls []string
	seq   int
	subs  []*fakeSub
}

type fakeSub struct {
	table  string
	filter remote.Filter
	ch     chan remote.Row
	done   bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: map[string][]remote.Row{}, fail: map[string]error{}}
}

func (f *fakeRemote) seed(table string, rows ...remote.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.rows[table] = append(f.rows[table], maps.Clone(r))
	}
}

func (f *fakeRemote) failOn(op, table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op+":"+table] = err
}

func (f *fakeRemote) heal(op, table string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fail, op+":"+table)
}

func (f *fakeRemote) find(table, id string) (remote.Row, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows[table] {
		if r.String("id") == id {
			return maps.Clone(r), true
		}
	}
	return nil, false
}

func (f *fakeRemote) all(table string) []remote.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Row, len(f.rows[table]))
	for i, r := range f.rows[table] {
		out[i] = maps.Clone(r)
	}
	return out
}

func (f *fakeRemote) called(op, table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op+":"+table {
			n++
		}
	}
	return n
}

// enter records a call and returns the injected failure, if any.
// Callers must hold f.mu.
func (f *fakeRemote) enter(op, table string) error {
	f.calls = append(f.calls, op+":"+table)
	return f.fail[op+":"+table]
}

func matches(filter remote.Filter, r remote.Row) bool {
	for _, c := range filter {
		switch c.Op {
		case remote.Eq:
			if c.Value == nil {
				if r[c.Column] != nil {
					return false
				}
				continue
			}
			if fmt.Sprint(r[c.Column]) != fmt.Sprint(c.Value) {
				return false
			}
		case remote.In:
			if !slices.Contains(c.Value.([]string), fmt.Sprint(r[c.Column])) {
				return false
			}
		}
	}
	return true
}

func (f *fakeRemote) Select(_ context.Context, table string, q remote.Query) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("select", table); err != nil {
		return nil, err
	}
	var out []remote.Row
	for _, r := range f.rows[table] {
		if matches(q.Filter, r) {
			out = append(out, maps.Clone(r))
		}
	}
	slices.SortStableFunc(out, func(a, b remote.Row) int {
		for _, o := range q.Order {
			c := compareColumn(a, b, o.Column)
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func compareColumn(a, b remote.Row, col string) int {
	if fa, fb := a.Float(col), b.Float(col); fa != nil || fb != nil {
		var x, y float64
		if fa != nil {
			x = *fa
		}
		if fb != nil {
			y = *fb
		}
		return cmp.Compare(x, y)
	}
	return cmp.Compare(a.String(col), b.String(col))
}

func (f *fakeRemote) Insert(_ context.Context, table string, row remote.Row) (remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("insert", table); err != nil {
		return nil, err
	}
	stored := maps.Clone(row)
	if table == remote.ProjectMembers {
		for _, r := range f.rows[table] {
			if r.String("project_id") == stored.String("project_id") && r.String("user_id") == stored.String("user_id") {
				return nil, remote.ErrConflict
			}
		}
	} else if stored.String("id") == "" {
		f.seq++
		stored["id"] = fmt.Sprintf("%s-%d", table, f.seq)
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = clock().UnixMilli()
	}
	f.rows[table] = append(f.rows[table], stored)
	for _, s := range f.subs {
		if !s.done && s.table == table && matches(s.filter, stored) {
			select {
			case s.ch <- maps.Clone(stored):
			default:
			}
		}
	}
	return maps.Clone(stored), nil
}

func (f *fakeRemote) Upsert(_ context.Context, table string, row remote.Row) (remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("upsert", table); err != nil {
		return nil, err
	}
	for i, r := range f.rows[table] {
		if r.String("id") == row.String("id") {
			f.rows[table][i] = maps.Clone(row)
			return maps.Clone(row), nil
		}
	}
	f.rows[table] = append(f.rows[table], maps.Clone(row))
	return maps.Clone(row), nil
}

func (f *fakeRemote) Update(_ context.Context, table string, filter remote.Filter, patch remote.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("update", table); err != nil {
		return err
	}
	for _, r := range f.rows[table] {
		if matches(filter, r) {
			maps.Copy(r, patch)
		}
	}
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, table string, filter remote.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete", table); err != nil {
		return err
	}
	f.rows[table] = slices.DeleteFunc(f.rows[table], func(r remote.Row) bool { return matches(filter, r) })
	return nil
}

func (f *fakeRemote) Subscribe(ctx context.Context, table string, filter remote.Filter) (<-chan remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("subscribe", table); err != nil {
		return nil, err
	}
	s := &fakeSub{table: table, filter: filter, ch: make(chan remote.Row, 16)}
	f.subs = append(f.subs, s)
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		s.done = true
		close(s.ch)
	}()
	return s.ch, nil
}

// queue is a Dispatcher that holds jobs until run is called, so tests can
// observe state between the apply and commit phases
type queue struct {
	mu   sync.Mutex
	jobs []func()
}

func (q *queue) dispatch(job func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
}

func (q *queue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// run executes queued jobs in order, including jobs queued while running
func (q *queue) run() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		job()
	}
}

func newManager(t *testing.T, r remote.Store, opts ...Option) *Manager {
	t.Helper()
	m := New(r, append([]Option{WithClock(clock)}, opts...)...)
	t.Cleanup(func() {
		c, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_ = m.Close(c)
	})
	return m
}

// newQueuedManager returns a manager whose commits wait for q.run
func newQueuedManager(t *testing.T, r remote.Store, opts ...Option) (*Manager, *queue) {
	t.Helper()
	q := &queue{}
	m := New(r, append([]Option{WithClock(clock), WithDispatcher(q.dispatch)}, opts...)...)
	t.Cleanup(func() {
		q.run()
		_ = m.Close(ctx)
	})
	return m, q
}

// login sets the user and waits for the initial load
func login(t *testing.T, m *Manager, q *queue, u models.User) {
	t.Helper()
	c := m.SetUser(&u)
	if q != nil {
		q.run()
	}
	require.NoError(t, c.Wait(ctx))
}

// seedProject stores a project owned by owner with tasks a(1000), b(2000), c(3000)
func seedProject(r *fakeRemote, id, owner string, pos float64) {
	r.seed(remote.Projects, remote.Row{
		"id": id, "owner_id": owner, "title": "Project " + id, "color": "indigo",
		"position": pos, "created_at": int64(1000),
	})
	for i, name := range []string{"a", "b", "c"} {
		r.seed(remote.Tasks, remote.Row{
			"id": id + "-" + name, "project_id": id, "title": "Task " + name,
			"status": "pending", "position": float64(i+1) * 1000, "created_at": int64(1000),
		})
	}
}

func taskIDs(tasks []models.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func projectIDs(projects []models.Project) []string {
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids
}

// hookRemote calls afterInsert once an insert has been stored, before the
// caller sees the new row
type hookRemote struct {
	*fakeRemote
	afterInsert func(table string)
}

func (h *hookRemote) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	out, err := h.fakeRemote.Insert(ctx, table, row)
	if err == nil && h.afterInsert != nil {
		h.afterInsert(table)
	}
	return out, err
}
