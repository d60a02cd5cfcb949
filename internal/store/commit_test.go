package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialQueueRunsInOrder(t *testing.T) {
	q := newSerialQueue()
	defer q.stop()

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	for i := range 50 {
		wg.Add(1)
		q.push(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestCommitLifecycle(t *testing.T) {
	c := newCommit()
	assert.True(t, c.Applied())
	assert.Nil(t, c.Err())
	assert.Empty(t, c.ID())

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(short), context.DeadlineExceeded)

	c.finish("remote-1", nil)
	<-c.Done()
	assert.NoError(t, c.Wait(ctx))
	assert.Equal(t, "remote-1", c.ID())

	s := skipped()
	assert.False(t, s.Applied())
	assert.NoError(t, s.Wait(ctx))
}

func TestTempIDs(t *testing.T) {
	id := newTempID()
	assert.True(t, isTemp(id))
	assert.Len(t, id, len(tempPrefix)+8)
	assert.NotEqual(t, id, newTempID())
	assert.False(t, isTemp("3f2a"))
}

func TestResolveUnknownTempID(t *testing.T) {
	m := newManager(t, newFakeRemote())
	_, err := m.resolve(ctx, "tmp-deadbeef")
	assert.ErrorIs(t, err, ErrNotPersisted)

	id, err := m.resolve(ctx, "real")
	require.NoError(t, err)
	assert.Equal(t, "real", id)
}

func TestTracker(t *testing.T) {
	var tr tracker
	assert.Zero(t, tr.count())
	<-tr.idle()

	tr.add()
	tr.add()
	busy := tr.idle()
	tr.done()
	select {
	case <-busy:
		t.Fatal("idle with a commit outstanding")
	default:
	}
	tr.done()
	<-busy
	assert.Zero(t, tr.count())
}

func TestFlushWaitsForCommitsDispatchedWhileWaiting(t *testing.T) {
	r := newFakeRemote()
	m, q := newQueuedManager(t, r)
	login(t, m, q, alice)

	first := m.AddProject("First", "")
	flushed := make(chan error, 1)
	go func() { flushed <- m.Flush(ctx) }()

	second := m.AddProject("Second", "")
	select {
	case err := <-flushed:
		t.Fatalf("flush returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	q.run()
	require.NoError(t, <-flushed)
	assert.NoError(t, first.Err())
	assert.NoError(t, second.Err())
	assert.Len(t, r.all("projects"), 2)
}

func TestFlushHonoursContext(t *testing.T) {
	m, q := newQueuedManager(t, newFakeRemote())
	login(t, m, q, alice)
	m.AddProject("Pending", "")

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Flush(short), context.DeadlineExceeded)
}
