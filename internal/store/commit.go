package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotPersisted is returned by commits that target an entity whose
	// creation never reached the remote store
	ErrNotPersisted = errors.New("entity was never persisted")
)

const tempPrefix = "tmp-"

func newTempID() string {
	return tempPrefix + uuid.NewString()[:8]
}

func isTemp(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// IsTempID reports whether id is a temporary id still awaiting its remote id
func IsTempID(id string) bool {
	return isTemp(id)
}

// Commit is the asynchronous half of a mutation. The in-memory change has
// already been applied when a Commit is returned; the Commit tracks the
// remote write that follows.
type Commit struct {
	applied bool
	done    chan struct{}
	err     error
	id      string
}

func newCommit() *Commit {
	return &Commit{applied: true, done: make(chan struct{})}
}

// skipped is returned when a mutation had no context to act on
func skipped() *Commit {
	c := &Commit{done: make(chan struct{})}
	close(c.done)
	return c
}

func (c *Commit) finish(id string, err error) {
	c.id = id
	c.err = err
	close(c.done)
}

// Applied reports whether the mutation changed in-memory state
func (c *Commit) Applied() bool { return c.applied }

// Done is closed once the remote write has finished
func (c *Commit) Done() <-chan struct{} { return c.done }

// Wait blocks until the remote write finishes and returns its error
func (c *Commit) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the remote write's error, or nil while it is still running
func (c *Commit) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// ID returns the remote id assigned by a creation commit
func (c *Commit) ID() string {
	select {
	case <-c.done:
		return c.id
	default:
		return ""
	}
}

// Dispatcher schedules a commit job. It must not run the job on the
// caller's goroutine before returning.
type Dispatcher func(job func())

// serialQueue runs jobs one at a time in submission order, so the remote
// sees writes in the order they were applied locally
type serialQueue struct {
	mu   sync.Mutex
	jobs []func()
	wake chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup
}

func newSerialQueue() *serialQueue {
	q := &serialQueue{wake: make(chan struct{}, 1), quit: make(chan struct{})}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *serialQueue) push(job func()) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *serialQueue) loop() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			q.mu.Unlock()
			job()
			continue
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.quit:
			return
		}
	}
}

func (q *serialQueue) stop() {
	close(q.quit)
	q.wg.Wait()
}

// tracker counts dispatched commits. Unlike a WaitGroup it may be
// incremented while another goroutine waits for it to drain.
type tracker struct {
	mu    sync.Mutex
	n     int
	empty chan struct{}
}

func (t *tracker) add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.empty = make(chan struct{})
	}
	t.n++
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 {
		close(t.empty)
	}
}

func (t *tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// idle returns a channel that is closed once the count drops to zero
func (t *tracker) idle() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		return closedChan
	}
	return t.empty
}

// run dispatches fn as the commit phase of op and finishes c with its result
func (m *Manager) run(c *Commit, op string, fn func(ctx context.Context) (string, error)) *Commit {
	m.inflight.add()
	m.metrics.inflight.Inc()
	m.dispatch(func() {
		defer m.inflight.done()
		defer m.metrics.inflight.Dec()

		ctx, span := tracer.Start(context.Background(), "store.commit."+op,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("apolo.op", op)))
		defer span.End()
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		id, err := fn(ctx)
		if err != nil {
			err = fmt.Errorf("%s: %w", op, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.metrics.commits.WithLabelValues(op, "error").Inc()
			m.report(op, err)
		} else {
			m.metrics.commits.WithLabelValues(op, "ok").Inc()
		}
		c.finish(id, err)
	})
	return c
}

// write dispatches a commit that does not create anything
func (m *Manager) write(op string, fn func(ctx context.Context) error) *Commit {
	return m.run(newCommit(), op, func(ctx context.Context) (string, error) {
		return "", fn(ctx)
	})
}

// create dispatches a creation commit. c must already be registered in
// m.pending under tempID. On success the remote id replaces tempID.
func (m *Manager) create(c *Commit, op, tempID string, fn func(ctx context.Context) (string, error)) *Commit {
	return m.run(c, op, func(ctx context.Context) (string, error) {
		id, err := fn(ctx)

		m.mu.Lock()
		delete(m.pending, tempID)
		if err == nil {
			m.resolved[tempID] = id
			m.substitute(tempID, id)
		}
		m.mu.Unlock()
		m.notify()
		return id, err
	})
}

// resolve maps a possibly temporary id to its remote id, waiting for the
// creation commit when it is still in flight
func (m *Manager) resolve(ctx context.Context, id string) (string, error) {
	if !isTemp(id) {
		return id, nil
	}
	m.mu.Lock()
	if rid, ok := m.resolved[id]; ok {
		m.mu.Unlock()
		return rid, nil
	}
	c, ok := m.pending[id]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", id, ErrNotPersisted)
	}
	if err := c.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: %w", id, ErrNotPersisted)
	}
	return c.ID(), nil
}

// canonical returns the remote id for a temporary id that has already been
// resolved. Callers must hold m.mu.
func (m *Manager) canonical(id string) string {
	if rid, ok := m.resolved[id]; ok {
		return rid
	}
	return id
}

// report logs a commit failure and hands it to the error handler
func (m *Manager) report(op string, err error) {
	m.logger.Error("sync failed", "op", op, "error", err)
	if m.onError != nil {
		m.onError(err)
	}
}
