package db

import (
	"context"
	"fmt"

	"github.com/tgienger/apolo/internal/remote"
)

const subscriberBuffer = 16

type subscriber struct {
	filter remote.Filter
	ch     chan remote.Row
	closed bool
}

// Subscribe delivers rows inserted into table through this handle that match
// f. Only equality conditions are supported. The channel is closed when ctx
// is done or the database is closed.
func (db *DB) Subscribe(ctx context.Context, tableName string, f remote.Filter) (<-chan remote.Row, error) {
	t, err := lookup(tableName)
	if err != nil {
		return nil, err
	}
	for _, c := range f {
		if c.Op != remote.Eq {
			return nil, fmt.Errorf("subscribe %s: only equality filters are supported", t.name)
		}
		if err := t.check(c.Column); err != nil {
			return nil, err
		}
	}

	s := &subscriber{filter: f, ch: make(chan remote.Row, subscriberBuffer)}
	db.mu.Lock()
	db.subs[t.name] = append(db.subs[t.name], s)
	db.mu.Unlock()

	go func() {
		<-ctx.Done()
		db.unsubscribe(t.name, s)
	}()
	return s.ch, nil
}

func (db *DB) unsubscribe(tableName string, s *subscriber) {
	db.mu.Lock()
	defer db.mu.Unlock()
	subs := db.subs[tableName]
	for i, other := range subs {
		if other == s {
			db.subs[tableName] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// publish fans an inserted row out to matching subscribers. Slow subscribers
// lose events rather than blocking writers.
func (db *DB) publish(tableName string, row remote.Row) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, s := range db.subs[tableName] {
		if s.closed || !matches(s.filter, row) {
			continue
		}
		select {
		case s.ch <- row:
		default:
			db.logger.Warn("realtime subscriber full, dropping row", "table", tableName)
		}
	}
}

func matches(f remote.Filter, row remote.Row) bool {
	for _, c := range f {
		if fmt.Sprint(row[c.Column]) != fmt.Sprint(c.Value) {
			return false
		}
	}
	return true
}
